package interp

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

func newMain(name string) (*native.Module, *native.FuncBuilder) {
	m := native.NewModule(name)
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	return m, native.NewFuncBuilder(f)
}

// returnWord stores v at heap 0 and returns those 32 bytes.
func returnWord(b *native.FuncBuilder, v native.Operand) {
	p := b.Ptr(native.SpaceHeap, native.U64(0))
	b.Store(native.SpaceHeap, p, v)
	b.Exit(native.ExitReturn, native.SpaceHeap, p, native.U64(32))
}

func run(t *testing.T, m *native.Module, host Host, cfg Config) *Result {
	t.Helper()
	if err := native.Validate(m); err != nil {
		t.Fatalf("invalid module: %v", err)
	}
	if host == nil {
		host = NewMemHost()
	}
	res, err := Run(m, host, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func word(res *Result) *uint256.Int {
	return new(uint256.Int).SetBytes(res.Output)
}

func TestArithmeticWraps(t *testing.T) {
	max := new(uint256.Int).Not(new(uint256.Int))
	cases := []struct {
		name string
		op   native.Op
		x, y *uint256.Int
		want *uint256.Int
	}{
		{"add overflow", native.OpAdd, max, uint256.NewInt(1), uint256.NewInt(0)},
		{"sub underflow", native.OpSub, uint256.NewInt(0), uint256.NewInt(1), max},
		{"div by zero", native.OpUDiv, uint256.NewInt(7), uint256.NewInt(0), uint256.NewInt(0)},
		{"rem by zero", native.OpURem, uint256.NewInt(7), uint256.NewInt(0), uint256.NewInt(0)},
		{"sdiv", native.OpSDiv, max, uint256.NewInt(1), max},
		{"shl", native.OpShl, uint256.NewInt(1), uint256.NewInt(8), uint256.NewInt(256)},
		{"lshr", native.OpLShr, uint256.NewInt(256), uint256.NewInt(4), uint256.NewInt(16)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, b := newMain("A")
			returnWord(b, b.Bin(tc.op, native.Const(tc.x), native.Const(tc.y)))
			res := run(t, m, nil, Config{})
			if res.Trapped || res.Exit != native.ExitReturn {
				t.Fatalf("unexpected result %+v", res)
			}
			if got := word(res); !got.Eq(tc.want) {
				t.Fatalf("got %s, want %s", got.Hex(), tc.want.Hex())
			}
		})
	}
}

func TestCalldataReadsPastEndAsZero(t *testing.T) {
	m, b := newMain("A")
	cd := b.Ptr(native.SpaceCalldata, native.U64(2))
	returnWord(b, b.Load(native.SpaceCalldata, cd))
	res := run(t, m, nil, Config{Calldata: []byte{1, 2, 3, 4}})
	want := make([]byte, 32)
	want[0], want[1] = 3, 4
	if !bytes.Equal(res.Output, want) {
		t.Fatalf("got %x", res.Output)
	}
}

func TestKeccakOfHeap(t *testing.T) {
	m, b := newMain("A")
	p := b.Ptr(native.SpaceHeap, native.U64(0))
	b.Store8(native.SpaceHeap, p, native.U64(0xab))
	returnWord(b, b.Keccak(native.SpaceHeap, p, native.U64(1)))
	res := run(t, m, nil, Config{})
	if !bytes.Equal(res.Output, crypto.Keccak256([]byte{0xab})) {
		t.Fatalf("got %x", res.Output)
	}
}

func TestHeapLimitTraps(t *testing.T) {
	m, b := newMain("A")
	p := b.Ptr(native.SpaceHeap, native.U64(1<<20))
	b.Store(native.SpaceHeap, p, native.U64(1))
	b.Exit(native.ExitStop, native.SpaceHeap, native.Operand{}, native.Operand{})
	res := run(t, m, nil, Config{MaxHeap: 1 << 10})
	if !res.Trapped {
		t.Fatalf("expected trap, got %+v", res)
	}
}

func TestStorageAndLoop(t *testing.T) {
	// for i := 0; i < 10; i++ { s[0] += i }
	m, b := newMain("A")
	slot := b.Alloca(native.U64(1))
	b.Store(native.SpaceStack, slot, native.U64(0))
	head := b.NewBlock("head")
	body := b.NewBlock("body")
	done := b.NewBlock("done")
	b.Goto(head)
	b.SetBlock(head)
	i := b.Load(native.SpaceStack, slot)
	b.If(b.Cmp(native.OpULt, i, native.U64(10)), body, done)
	b.SetBlock(body)
	cur := b.SLoad(native.U64(0))
	b.SStore(native.U64(0), b.Bin(native.OpAdd, cur, i))
	b.Store(native.SpaceStack, slot, b.Bin(native.OpAdd, i, native.U64(1)))
	b.Goto(head)
	b.SetBlock(done)
	b.Exit(native.ExitStop, native.SpaceHeap, native.Operand{}, native.Operand{})

	host := NewMemHost()
	res := run(t, m, host, Config{})
	if res.Exit != native.ExitStop || res.Trapped {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := host.Storage[uint256.Int{}]; got.Uint64() != 45 {
		t.Fatalf("storage = %d, want 45", got.Uint64())
	}
}

func TestNearCallRestoresStack(t *testing.T) {
	m := native.NewModule("A")
	sq := m.AddFunc("square", 1, 1)
	sb := native.NewFuncBuilder(sq)
	tmp := sb.Alloca(native.U64(4))
	x := native.Val(sq.Params[0])
	sb.Store(native.SpaceStack, tmp, x)
	v := sb.Load(native.SpaceStack, tmp)
	sb.Return(sb.Bin(native.OpMul, v, v))

	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := native.NewFuncBuilder(f)
	a := b.Call(sq, native.U64(3))[0]
	c := b.Call(sq, a)[0]
	returnWord(b, c)

	vm, err := New(m, NewMemHost(), Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := vm.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := word(res).Uint64(); got != 81 {
		t.Fatalf("got %d, want 81", got)
	}
	if vm.sp != 0 {
		t.Fatalf("stack pointer leaked: %d", vm.sp)
	}
}

func TestRecursionDepthTraps(t *testing.T) {
	m := native.NewModule("A")
	f := m.AddFunc("loop", 0, 0)
	m.Entry = f.ID
	b := native.NewFuncBuilder(f)
	b.Call(f)
	b.Return()
	res := run(t, m, nil, Config{MaxDepth: 16})
	if !res.Trapped {
		t.Fatalf("expected depth trap")
	}
}

func TestStepLimitTraps(t *testing.T) {
	m, b := newMain("A")
	loop := b.NewBlock("loop")
	b.Goto(loop)
	b.SetBlock(loop)
	b.Goto(loop)
	res := run(t, m, nil, Config{MaxSteps: 100})
	if !res.Trapped || res.Steps != 101 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestFarCallSetsReturnData(t *testing.T) {
	m, b := newMain("A")
	in := b.Ptr(native.SpaceHeap, native.U64(0))
	ok := b.FarCall(native.FarCall{Mode: native.FarStatic}, native.U64(0x8006), native.U64(1000), in, native.U64(0))
	n := b.Size(native.SpaceReturnData)
	out := b.Ptr(native.SpaceHeap, native.U64(64))
	rd := b.Ptr(native.SpaceReturnData, native.U64(0))
	b.Copy(native.SpaceHeap, native.SpaceReturnData, out, rd, n)
	b.Store(native.SpaceHeap, in, ok)
	b.Exit(native.ExitReturn, native.SpaceHeap, in, native.U64(96))

	host := NewMemHost()
	host.OnFarCall = func(req FarCallRequest) FarCallResult {
		return FarCallResult{OK: true, Output: []byte{0xca, 0xfe}}
	}
	res := run(t, m, host, Config{})
	if len(host.Calls) != 1 || host.Calls[0].Address.Uint64() != 0x8006 || host.Calls[0].Desc.Mode != native.FarStatic {
		t.Fatalf("unexpected calls %+v", host.Calls)
	}
	if res.Output[31] != 1 || res.Output[64] != 0xca || res.Output[65] != 0xfe {
		t.Fatalf("got %x", res.Output)
	}
}

func TestReturnDataOutOfRangeTraps(t *testing.T) {
	m, b := newMain("A")
	out := b.Ptr(native.SpaceHeap, native.U64(0))
	rd := b.Ptr(native.SpaceReturnData, native.U64(0))
	b.Copy(native.SpaceHeap, native.SpaceReturnData, out, rd, native.U64(1))
	b.Exit(native.ExitStop, native.SpaceHeap, native.Operand{}, native.Operand{})
	if res := run(t, m, nil, Config{}); !res.Trapped {
		t.Fatalf("expected trap")
	}
}

func TestDeployCommitsImmutables(t *testing.T) {
	m, b := newMain("A")
	p := b.Ptr(native.SpaceImmutables, native.U64(32))
	b.Store(native.SpaceImmutables, p, native.U64(7))
	b.Exit(native.ExitDeploy, native.SpaceHeap, native.Operand{}, native.Operand{})
	res := run(t, m, nil, Config{Constructor: true})
	if res.Exit != native.ExitDeploy || len(res.Immutables) != 64 || res.Immutables[63] != 7 {
		t.Fatalf("unexpected result %+v", res)
	}

	// the runtime reads the committed buffer
	m2, b2 := newMain("A")
	returnWord(b2, b2.Load(native.SpaceImmutables, b2.Ptr(native.SpaceImmutables, native.U64(32))))
	res2 := run(t, m2, nil, Config{Immutables: res.Immutables})
	if word(res2).Uint64() != 7 {
		t.Fatalf("got %s", word(res2).Hex())
	}
}

func TestLinkSymUnresolvedTraps(t *testing.T) {
	m, b := newMain("A")
	sym := native.LinkSymbol{Kind: native.SymLibrary, Path: "l.sol:L"}
	returnWord(b, b.LinkSym(sym))
	if res := run(t, m, nil, Config{}); !res.Trapped {
		t.Fatalf("expected trap")
	}
	host := NewMemHost()
	host.Symbols[sym] = uint256.NewInt(0x1234)
	if res := run(t, m, host, Config{}); word(res).Uint64() != 0x1234 {
		t.Fatalf("got %s", word(res).Hex())
	}
}

func TestIsConstructorFromConfig(t *testing.T) {
	m, b := newMain("A")
	returnWord(b, b.Context(native.CtxIsConstructor))
	if res := run(t, m, nil, Config{Constructor: true}); word(res).Uint64() != 1 {
		t.Fatalf("expected constructor flag")
	}
}
