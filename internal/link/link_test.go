package link

import (
	"bytes"
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"zkvmc/internal/asm"
	"zkvmc/internal/diag"
	"zkvmc/internal/metadata"
	"zkvmc/internal/project"
)

func unit(t *testing.T, bag *diag.Bag, name string, libs, deps []string) *Unit {
	t.Helper()
	text := ".func @main\n  enter #0\n"
	for _, l := range libs {
		text += `  ldc r1, =lib:"` + l + "\"\n"
	}
	for _, d := range deps {
		text += `  ldc r1, =dep:"` + d + "\"\n"
	}
	// distinct code per unit
	text += "  ldc r2, =0x" + common.Bytes2Hex(crypto.Keccak256([]byte(name))) + "\n  exit.stop\n"
	bin, err := asm.Assemble(text)
	require.NoError(t, err)
	art, err := metadata.Append(bin.Code, metadata.NewSettings("yul", project.Settings{}))
	require.NoError(t, err)
	h, err := metadata.CodeHash(art)
	require.NoError(t, err)
	return &Unit{
		Name:         name,
		Artifact:     art,
		CodeHash:     h,
		Libraries:    libs,
		Dependencies: deps,
		Reporter:     diag.BagReporter{Bag: bag, Unit: name},
	}
}

func codes(bag *diag.Bag) []diag.Code {
	var out []diag.Code
	for _, d := range bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func byName(rs []*Result) map[string]*Result {
	out := make(map[string]*Result, len(rs))
	for _, r := range rs {
		out[r.Name] = r
	}
	return out
}

func TestLibraryInProjectGetsPredictableAddress(t *testing.T) {
	bag := diag.NewBag(10)
	lib := unit(t, bag, "lib.sol:Math", nil, nil)
	app := unit(t, bag, "app.sol:App", []string{"lib.sol:Math"}, nil)
	res := byName(Link(context.Background(), Request{Units: []*Unit{app, lib}}))
	require.Empty(t, bag.Items())

	r := res["app.sol:App"]
	require.False(t, r.Failed)
	require.Empty(t, r.Unresolved)
	want := PredictableAddress(lib.CodeHash)
	require.True(t, bytes.Contains(r.Bytecode, common.LeftPadBytes(want[:], 32)))
	require.False(t, bytes.Contains(r.Bytecode, asm.LibraryPrefix))

	_, tr, err := metadata.Split(r.Bytecode)
	require.NoError(t, err)
	code, _, _ := metadata.Split(app.Artifact)
	require.Equal(t, crypto.Keccak256(code), tr.ContentHash[:], "content hash covers the unlinked code")
}

func TestPredictableAddressMatchesCreate2(t *testing.T) {
	var h [32]byte
	h[0] = 1
	got := PredictableAddress(h)
	want := crypto.CreateAddress2(common.HexToAddress("0x0000000000000000000000000000000000008006"), [32]byte{}, h[:])
	require.Equal(t, want, got)
}

func TestExplicitAddressWins(t *testing.T) {
	bag := diag.NewBag(10)
	lib := unit(t, bag, "lib.sol:Math", nil, nil)
	app := unit(t, bag, "app.sol:App", []string{"lib.sol:Math"}, nil)
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	res := byName(Link(context.Background(), Request{
		Units:     []*Unit{app, lib},
		Libraries: project.Libraries{"lib.sol:Math": addr},
	}))
	require.True(t, bytes.Contains(res["app.sol:App"].Bytecode, common.LeftPadBytes(addr[:], 32)))
}

func TestMissingLibrary(t *testing.T) {
	t.Run("placeholders allowed", func(t *testing.T) {
		bag := diag.NewBag(10)
		app := unit(t, bag, "app.sol:App", []string{"ext.sol:Ext"}, nil)
		r := Link(context.Background(), Request{Units: []*Unit{app}, AllowPlaceholders: true})[0]
		require.False(t, r.Failed)
		require.Equal(t, []diag.Code{diag.ADVUnresolvedPlaceholder}, codes(bag))
		require.Len(t, r.Unresolved, 1)
		require.Equal(t, "ext.sol:Ext", r.Unresolved[0].Library)

		// post-hoc linking fills the marker
		addr := common.HexToAddress("0x00000000000000000000000000000000000000bb")
		linked, left, err := Patch(r.Bytecode, map[string]common.Address{"ext.sol:Ext": addr}, nil)
		require.NoError(t, err)
		require.Empty(t, left)
		require.Equal(t, common.LeftPadBytes(addr[:], 32), linked[r.Unresolved[0].Offsets[0]:r.Unresolved[0].Offsets[0]+32])
		require.True(t, bytes.Contains(r.Bytecode, asm.LibraryPrefix), "Patch must not modify its input")
	})
	t.Run("placeholders rejected", func(t *testing.T) {
		bag := diag.NewBag(10)
		app := unit(t, bag, "app.sol:App", []string{"ext.sol:Ext"}, nil)
		r := Link(context.Background(), Request{Units: []*Unit{app}})[0]
		require.True(t, r.Failed)
		require.Equal(t, []diag.Code{diag.LNKMissingLibrary}, codes(bag))
	})
}

func TestLibraryCycleReportedOnEveryMember(t *testing.T) {
	bag := diag.NewBag(10)
	a := unit(t, bag, "a.sol:A", []string{"b.sol:B"}, nil)
	b := unit(t, bag, "b.sol:B", []string{"a.sol:A"}, nil)
	c := unit(t, bag, "c.sol:C", nil, nil)
	res := byName(Link(context.Background(), Request{Units: []*Unit{a, b, c}}))
	require.Equal(t, []diag.Code{diag.LNKLibraryCycle, diag.LNKLibraryCycle}, codes(bag))
	require.True(t, res["a.sol:A"].Failed)
	require.True(t, res["b.sol:B"].Failed)
	require.False(t, res["c.sol:C"].Failed)
}

func TestMutualFactoryDependencies(t *testing.T) {
	bag := diag.NewBag(10)
	a := unit(t, bag, "a.sol:A", nil, []string{"b.sol:B"})
	b := unit(t, bag, "b.sol:B", nil, []string{"a.sol:A", "b.sol:B"})
	res := byName(Link(context.Background(), Request{Units: []*Unit{a, b}}))
	require.Empty(t, bag.Items())

	ra, rb := res["a.sol:A"], res["b.sol:B"]
	require.True(t, bytes.Contains(ra.Bytecode, b.CodeHash[:]))
	require.True(t, bytes.Contains(rb.Bytecode, a.CodeHash[:]))
	require.True(t, bytes.Contains(rb.Bytecode, b.CodeHash[:]), "self dependency")
	require.Len(t, rb.FactoryDependencies, 2)
	require.False(t, bytes.Contains(ra.Bytecode, asm.FactoryPrefix))
}

func TestMissingFactoryDependency(t *testing.T) {
	bag := diag.NewBag(10)
	a := unit(t, bag, "a.sol:A", nil, []string{"gone.sol:G"})
	r := Link(context.Background(), Request{Units: []*Unit{a}})[0]
	require.True(t, r.Failed)
	require.Equal(t, []diag.Code{diag.LNKMissingDependency}, codes(bag))
}

func TestResultsInNameOrder(t *testing.T) {
	bag := diag.NewBag(10)
	rs := Link(context.Background(), Request{Units: []*Unit{
		unit(t, bag, "z.sol:Z", nil, nil),
		unit(t, bag, "a.sol:A", nil, nil),
		unit(t, bag, "m.sol:M", nil, nil),
	}})
	require.Equal(t, "a.sol:A", rs[0].Name)
	require.Equal(t, "m.sol:M", rs[1].Name)
	require.Equal(t, "z.sol:Z", rs[2].Name)
}
