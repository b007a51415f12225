package lower

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/core/vm/runtime"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"zkvmc/internal/diag"
	"zkvmc/internal/native"
	"zkvmc/internal/native/interp"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
	"zkvmc/internal/symbols"
)

type lowered struct {
	mod *native.Module
	ok  bool
	bag *diag.Bag
}

func (l lowered) codes() []diag.Code {
	var out []diag.Code
	for _, d := range l.bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func lowerProject(t *testing.T, settings project.Settings, add func(*project.Loader)) lowered {
	t.Helper()
	bag := diag.NewBag(100)
	ld := project.NewLoader(source.NewFileSet(), bag)
	add(ld)
	p, err := ld.Finish()
	require.NoError(t, err, "%v", bag.Items())
	require.Len(t, p.Units, 1)
	table := symbols.BuildProjectTable(p, bag)
	u := p.Units[0]
	mod, ok := Unit(context.Background(), Request{
		Unit:     u,
		Project:  table,
		Settings: settings,
		Reporter: diag.BagReporter{Bag: bag, Unit: u.Name},
	})
	return lowered{mod: mod, ok: ok, bag: bag}
}

func lowerYul(t *testing.T, settings project.Settings, src string) lowered {
	t.Helper()
	return lowerProject(t, settings, func(ld *project.Loader) {
		ld.AddYulText("test.yul", []byte(src))
	})
}

// runtimeYul wraps runtime code into an object with an empty constructor.
func runtimeYul(code string) string {
	return fmt.Sprintf(`object "T" {
    code { return(0, 0) }
    object "T_deployed" {
        code { %s }
    }
}`, code)
}

func word(v *uint256.Int) []byte {
	b := v.Bytes32()
	return b[:]
}

func run(t *testing.T, mod *native.Module, host *interp.MemHost, cfg interp.Config) *interp.Result {
	t.Helper()
	if host == nil {
		host = interp.NewMemHost()
	}
	res, err := interp.Run(mod, host, cfg)
	require.NoError(t, err)
	return res
}

var parityValues = []*uint256.Int{
	uint256.NewInt(0),
	uint256.NewInt(1),
	uint256.NewInt(7),
	uint256.NewInt(31),
	uint256.NewInt(256),
	new(uint256.Int).Lsh(uint256.NewInt(1), 255),
	new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 255), 1),
	new(uint256.Int).Neg(uint256.NewInt(7)),
	new(uint256.Int).SetAllOne(),
}

func TestArithmeticMatchesEVM(t *testing.T) {
	ops := map[string]vm.OpCode{
		"add": vm.ADD, "sub": vm.SUB, "mul": vm.MUL, "div": vm.DIV, "sdiv": vm.SDIV,
		"mod": vm.MOD, "smod": vm.SMOD, "exp": vm.EXP, "signextend": vm.SIGNEXTEND,
		"lt": vm.LT, "gt": vm.GT, "slt": vm.SLT, "sgt": vm.SGT, "eq": vm.EQ,
		"and": vm.AND, "or": vm.OR, "xor": vm.XOR, "byte": vm.BYTE,
		"shl": vm.SHL, "shr": vm.SHR, "sar": vm.SAR,
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			l := lowerYul(t, project.Settings{}, runtimeYul(
				fmt.Sprintf("mstore(0, %s(calldataload(0), calldataload(32))) return(0, 32)", name)))
			require.True(t, l.ok, "%v", l.bag.Items())

			for _, a := range parityValues {
				for _, b := range parityValues {
					// b is pushed first so that a is on top, as in op(a, b)
					code := []byte{byte(vm.PUSH32)}
					code = append(code, word(b)...)
					code = append(code, byte(vm.PUSH32))
					code = append(code, word(a)...)
					code = append(code, byte(op),
						byte(vm.PUSH1), 0, byte(vm.MSTORE),
						byte(vm.PUSH1), 32, byte(vm.PUSH1), 0, byte(vm.RETURN))
					want, _, err := runtime.Execute(code, nil, nil)
					require.NoError(t, err)

					input := append(word(a), word(b)...)
					res := run(t, l.mod, nil, interp.Config{Calldata: input})
					require.True(t, res.Success(), "%s(%s, %s): %s", name, a.Hex(), b.Hex(), res.Reason)
					require.Equal(t, want, res.Output, "%s(%s, %s)", name, a.Hex(), b.Hex())
				}
			}
		})
	}
}

func TestModularArithmetic(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        mstore(0, addmod(calldataload(0), calldataload(32), calldataload(64)))
        mstore(32, mulmod(calldataload(0), calldataload(32), calldataload(64)))
        return(0, 64)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	max := new(uint256.Int).SetAllOne()
	input := append(append(word(max), word(max)...), word(uint256.NewInt(10))...)
	res := run(t, l.mod, nil, interp.Config{Calldata: input})
	require.True(t, res.Success())

	wantAdd := new(uint256.Int).AddMod(max, max, uint256.NewInt(10))
	wantMul := new(uint256.Int).MulMod(max, max, uint256.NewInt(10))
	require.Equal(t, append(word(wantAdd), word(wantMul)...), res.Output)

	// modulus 0 yields 0
	zeroMod := append(append(word(max), word(max)...), make([]byte, 32)...)
	res = run(t, l.mod, nil, interp.Config{Calldata: zeroMod})
	require.Equal(t, make([]byte, 64), res.Output)
}

func TestMsizeTracksHighWaterMark(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        let before := msize()
        mstore(100, 1)
        let after := msize()
        mstore(0, before)
        mstore(32, after)
        return(0, 64)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	res := run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success())
	require.Equal(t, append(word(uint256.NewInt(0)), word(uint256.NewInt(160))...), res.Output)
}

func TestCreate2AddressMatchesGeth(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        mstore(0, calldataload(0))
        let a := create2(0, 0, 32, calldataload(32))
        mstore(0, a)
        return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())

	triples := []struct {
		sender string
		salt   uint64
		hash   string
	}{
		{"0x0000000000000000000000000000000000000000", 0, "0x00"},
		{"0xdeadbeef00000000000000000000000000000000", 0x1234, "0x01"},
		{"0x00000000000000000000000000000000deadbeef", 0xcafebabe, "0xffee"},
	}
	for _, tc := range triples {
		host := interp.NewMemHost()
		sender := new(uint256.Int).SetBytes(common.HexToAddress(tc.sender).Bytes())
		host.Ctx[native.CtxAddress] = sender
		host.OnFarCall = func(req interp.FarCallRequest) interp.FarCallResult {
			require.True(t, req.Address.Eq(uint256.NewInt(AddrDeployer)))
			require.True(t, req.Desc.System)
			require.True(t, req.Extra[0].Eq(Selector(sigCreate2)))
			return interp.FarCallResult{OK: true, Output: make([]byte, 32)}
		}
		hash := crypto.Keccak256([]byte(tc.hash))
		salt := uint256.NewInt(tc.salt)
		input := append(word(new(uint256.Int).SetBytes(hash)), word(salt)...)

		res := run(t, l.mod, host, interp.Config{Calldata: input})
		require.True(t, res.Success(), res.Reason)

		want := crypto.CreateAddress2(common.BytesToAddress(sender.Bytes()), salt.Bytes32(), hash)
		require.Equal(t, common.LeftPadBytes(want.Bytes(), 32), res.Output)
		require.Len(t, host.Calls, 1)
	}
}

func TestCreateFailureYieldsZero(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        mstore(0, create(0, 0, 32))
        return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	res := run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success())
	require.Equal(t, make([]byte, 32), res.Output)
}

func TestCallWithValueUsesSimulator(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        let ok := call(gas(), 0x1234, calldataload(0), 0, 0, 0, 0)
        mstore(0, ok)
        return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())

	for _, value := range []uint64{0, 5} {
		host := interp.NewMemHost()
		host.OnFarCall = func(interp.FarCallRequest) interp.FarCallResult {
			return interp.FarCallResult{OK: true}
		}
		res := run(t, l.mod, host, interp.Config{Calldata: word(uint256.NewInt(value))})
		require.True(t, res.Success())
		require.Len(t, host.Calls, 1)
		req := host.Calls[0]
		if value == 0 {
			require.True(t, req.Address.Eq(uint256.NewInt(0x1234)))
			continue
		}
		require.True(t, req.Address.Eq(uint256.NewInt(AddrMsgValueSimulator)))
		require.True(t, req.Extra[0].Eq(uint256.NewInt(value)))
		require.True(t, req.Extra[1].Eq(uint256.NewInt(0x1234)))
	}
}

const immutableSrc = `object "Imm" {
    code {
        datacopy(0, dataoffset("Imm_deployed"), datasize("Imm_deployed"))
        setimmutable(0, "owner", caller())
        return(0, datasize("Imm_deployed"))
    }
    object "Imm_deployed" {
        code {
            mstore(0, loadimmutable("owner"))
            return(0, 32)
        }
    }
}`

func TestImmutableRoundTrip(t *testing.T) {
	l := lowerYul(t, project.Settings{}, immutableSrc)
	require.True(t, l.ok, "%v", l.bag.Items())

	owner := uint256.MustFromHex("0xabcdef")
	host := interp.NewMemHost()
	host.Ctx[native.CtxCaller] = owner
	deployed := run(t, l.mod, host, interp.Config{Constructor: true})
	require.Equal(t, native.ExitDeploy, deployed.Exit)
	require.Equal(t, word(owner), deployed.Immutables)

	res := run(t, l.mod, nil, interp.Config{Immutables: deployed.Immutables})
	require.True(t, res.Success())
	require.Equal(t, word(owner), res.Output)
}

func TestImmutableMisuse(t *testing.T) {
	cases := map[string]struct {
		deploy, runtime string
		code            diag.Code
	}{
		"read before write": {
			deploy:  `mstore(0, loadimmutable("x")) setimmutable(0, "x", 1) return(0, 0)`,
			runtime: `mstore(0, loadimmutable("x"))`,
			code:    diag.IRVImmutableBeforeWrite,
		},
		"write in runtime": {
			deploy:  `setimmutable(0, "x", 1) return(0, 0)`,
			runtime: `setimmutable(0, "x", 2)`,
			code:    diag.IRVImmutableInRuntime,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := fmt.Sprintf(`object "T" { code { %s } object "T_deployed" { code { %s } } }`, tc.deploy, tc.runtime)
			l := lowerYul(t, project.Settings{}, src)
			require.False(t, l.ok)
			require.Contains(t, l.codes(), tc.code)
		})
	}
}

func TestUnsupportedOpcodes(t *testing.T) {
	cases := map[string]diag.Code{
		"selfdestruct(0)":                    diag.UNSSelfDestruct,
		"pop(pc())":                          diag.UNSProgramCounter,
		"extcodecopy(0, 0, 0, 0)":            diag.UNSExtCodeCopy,
		"pop(callcode(0, 0, 0, 0, 0, 0, 0))": diag.UNSCallCode,
		"pop(blobbasefee())":                 diag.UNSBlob,
		"codecopy(0, 0, 32)":                 diag.UNSRuntimeCode,
		"pop(codesize())":                    diag.UNSRuntimeCode,
		`verbatim_0i_0o(hex"6000")`:          diag.UNSBuiltin,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			l := lowerYul(t, project.Settings{}, runtimeYul(code))
			require.False(t, l.ok)
			require.Nil(t, l.mod)
			require.Contains(t, l.codes(), want)
		})
	}
}

func TestSuppressedOpcodeTraps(t *testing.T) {
	l := lowerYul(t, project.Settings{Suppressed: []string{project.SuppressSelfDestruct}},
		runtimeYul(`if calldataload(0) { selfdestruct(0) } return(0, 0)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	require.Equal(t, []diag.Code{diag.UNSSuppressed}, l.codes())
	require.False(t, l.bag.HasErrors())

	res := run(t, l.mod, nil, interp.Config{Calldata: word(uint256.NewInt(1))})
	require.True(t, res.Trapped)
	require.Equal(t, "selfdestruct", res.Reason)

	res = run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success())
}

func TestConstructorCodeReadsArguments(t *testing.T) {
	l := lowerYul(t, project.Settings{}, `object "T" {
    code {
        codecopy(0, 0, codesize())
        sstore(0, mload(0))
        return(0, 0)
    }
    object "T_deployed" { code { stop() } }
}`)
	require.True(t, l.ok, "%v", l.bag.Items())
	host := interp.NewMemHost()
	res := run(t, l.mod, host, interp.Config{Constructor: true, Calldata: word(uint256.NewInt(42))})
	require.Equal(t, native.ExitDeploy, res.Exit)
	got := host.Storage[uint256.Int{}]
	require.Equal(t, uint64(42), got.Uint64())
}

func TestRecursionGuard(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        function count(n) -> r {
            if n { r := add(count(sub(n, 1)), 1) }
        }
        mstore(0, count(calldataload(0)))
        return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	require.Equal(t, []diag.Code{diag.ADVUnboundedRecursion}, l.codes())
	require.NotNil(t, l.mod.FuncByName("__depth.enter"))

	res := run(t, l.mod, nil, interp.Config{Calldata: word(uint256.NewInt(100))})
	require.True(t, res.Success(), res.Reason)
	require.Equal(t, word(uint256.NewInt(100)), res.Output)

	res = run(t, l.mod, nil, interp.Config{Calldata: word(uint256.NewInt(MaxRecursionDepth + 1))})
	require.True(t, res.Trapped)
	require.Equal(t, "recursion depth exceeded", res.Reason)
}

func TestMutualRecursionReportedOnce(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        function even(n) -> r { switch n case 0 { r := 1 } default { r := odd(sub(n, 1)) } }
        function odd(n) -> r { switch n case 0 { r := 0 } default { r := even(sub(n, 1)) } }
        function plain(x) -> y { y := mul(x, 2) }
        mstore(0, add(even(calldataload(0)), plain(0)))
        return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	require.Equal(t, []diag.Code{diag.ADVUnboundedRecursion}, l.codes())

	res := run(t, l.mod, nil, interp.Config{Calldata: word(uint256.NewInt(10))})
	require.Equal(t, word(uint256.NewInt(1)), res.Output)
}

func TestYulControlFlow(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`
        function fib(n) -> a {
            let b := 1
            for { let i := 0 } lt(i, n) { i := add(i, 1) } {
                if gt(a, 1000) { break }
                let t := add(a, b)
                a := b
                b := t
            }
        }
        function pick(x) -> r {
            switch x
            case 0 { r := 10 }
            case 1 { r := 20 leave }
            default { r := 30 }
            r := add(r, 1)
        }
        mstore(0, fib(10))
        mstore(32, pick(0))
        mstore(64, pick(1))
        mstore(96, pick(7))
        return(0, 128)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	res := run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success(), res.Reason)
	var want []byte
	for _, v := range []uint64{55, 11, 20, 31} {
		want = append(want, word(uint256.NewInt(v))...)
	}
	require.Equal(t, want, res.Output)
}

func TestSystemGetter(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`mstore(0, chainid()) return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	host := interp.NewMemHost()
	host.OnFarCall = func(req interp.FarCallRequest) interp.FarCallResult {
		require.True(t, req.Address.Eq(uint256.NewInt(AddrSystemContext)))
		return interp.FarCallResult{OK: true, Output: word(uint256.NewInt(324))}
	}
	res := run(t, l.mod, host, interp.Config{})
	require.Equal(t, word(uint256.NewInt(324)), res.Output)
}

func TestLinkerSymbol(t *testing.T) {
	l := lowerYul(t, project.Settings{}, runtimeYul(`mstore(0, linkersymbol("lib.sol:Math")) return(0, 32)`))
	require.True(t, l.ok, "%v", l.bag.Items())
	syms := l.mod.Symbols()
	require.Equal(t, []native.LinkSymbol{{Kind: native.SymLibrary, Path: "lib.sol:Math"}}, syms)

	host := interp.NewMemHost()
	host.Symbols[syms[0]] = uint256.NewInt(0xbeef)
	res := run(t, l.mod, host, interp.Config{})
	require.Equal(t, word(uint256.NewInt(0xbeef)), res.Output)
}

const zeroKey = "0000000000000000000000000000000000000000000000000000000000000000"

func TestLegacyAssemblyLoop(t *testing.T) {
	asm := `{
  ".code": [
    {"name": "PUSH #[$]", "value": "` + zeroKey + `"},
    {"name": "DUP1"},
    {"name": "PUSH [$]", "value": "` + zeroKey + `"},
    {"name": "PUSH", "value": "0"},
    {"name": "CODECOPY"},
    {"name": "PUSH", "value": "0"},
    {"name": "RETURN"}
  ],
  ".data": {
    "0": {
      ".code": [
        {"name": "PUSH", "value": "0"},
        {"name": "PUSH", "value": "A"},
        {"name": "tag", "value": "1"},
        {"name": "JUMPDEST"},
        {"name": "DUP1"},
        {"name": "ISZERO"},
        {"name": "PUSH [tag]", "value": "2"},
        {"name": "JUMPI"},
        {"name": "SWAP1"},
        {"name": "DUP2"},
        {"name": "ADD"},
        {"name": "SWAP1"},
        {"name": "PUSH", "value": "1"},
        {"name": "SWAP1"},
        {"name": "SUB"},
        {"name": "PUSH [tag]", "value": "1"},
        {"name": "JUMP"},
        {"name": "tag", "value": "2"},
        {"name": "JUMPDEST"},
        {"name": "POP"},
        {"name": "PUSH", "value": "0"},
        {"name": "MSTORE"},
        {"name": "PUSH", "value": "20"},
        {"name": "PUSH", "value": "0"},
        {"name": "RETURN"}
      ]
    }
  }
}`
	l := lowerProject(t, project.Settings{}, func(ld *project.Loader) {
		ld.AddEVMLA("sum.sol:Sum", []byte(asm))
	})
	require.True(t, l.ok, "%v", l.bag.Items())

	res := run(t, l.mod, nil, interp.Config{Constructor: true})
	require.Equal(t, native.ExitDeploy, res.Exit)

	res = run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success(), res.Reason)
	require.Equal(t, word(uint256.NewInt(55)), res.Output)
}

func TestLegacyAssemblyDynamicJump(t *testing.T) {
	// the jump target comes back from memory, so it is dispatched over the pushed tags
	asm := `{
  ".code": [{"name": "STOP"}],
  ".data": {
    "0": {
      ".code": [
        {"name": "PUSH [tag]", "value": "3"},
        {"name": "PUSH", "value": "0"},
        {"name": "MSTORE"},
        {"name": "PUSH", "value": "5"},
        {"name": "PUSH", "value": "2"},
        {"name": "MUL"},
        {"name": "PUSH", "value": "0"},
        {"name": "MLOAD"},
        {"name": "JUMP"},
        {"name": "tag", "value": "3"},
        {"name": "JUMPDEST"},
        {"name": "PUSH", "value": "0"},
        {"name": "MSTORE"},
        {"name": "PUSH", "value": "20"},
        {"name": "PUSH", "value": "0"},
        {"name": "RETURN"}
      ]
    }
  }
}`
	l := lowerProject(t, project.Settings{}, func(ld *project.Loader) {
		ld.AddEVMLA("dyn.sol:Dyn", []byte(asm))
	})
	require.True(t, l.ok, "%v", l.bag.Items())

	res := run(t, l.mod, nil, interp.Config{})
	require.True(t, res.Success(), res.Reason)
	require.Equal(t, word(uint256.NewInt(10)), res.Output)
}

func TestLegacyAssemblyErrors(t *testing.T) {
	cases := map[string]struct {
		code string
		want diag.Code
	}{
		"underflow":      {`{"name": "ADD"}`, diag.IRVStackUnderflow},
		"undefined tag":  {`{"name": "PUSH [tag]", "value": "9"}, {"name": "JUMP"}`, diag.IRVUndefinedTag},
		"unknown opcode": {`{"name": "FROB"}`, diag.IRVUnknownInstruction},
		"push data":      {`{"name": "PUSH data", "value": "` + zeroKey + `"}, {"name": "POP"}`, diag.UNSDataBlob},
		"selfdestruct":   {`{"name": "PUSH", "value": "0"}, {"name": "SELFDESTRUCT"}`, diag.UNSSelfDestruct},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			asm := `{".code": [{"name": "STOP"}], ".data": {"0": {".code": [` + tc.code + `]}}}`
			l := lowerProject(t, project.Settings{}, func(ld *project.Loader) {
				ld.AddEVMLA("bad.sol:Bad", []byte(asm))
			})
			require.False(t, l.ok)
			require.Contains(t, l.codes(), tc.want)
		})
	}
}

func TestMissingRuntime(t *testing.T) {
	l := lowerYul(t, project.Settings{}, `object "T" { code { stop() } }`)
	require.False(t, l.ok)
	require.Contains(t, l.codes(), diag.IRVMissingRuntime)
}

func TestPolicyTableIsComplete(t *testing.T) {
	for _, name := range PolicyNames() {
		p := Policies[name]
		if p.Action == ActionSuppressible {
			require.NotEmpty(t, p.Kind, name)
			require.NoError(t, suppressOK(p.Kind), name)
		}
		if p.Action != ActionEmulate {
			require.NotZero(t, p.Code, name)
		}
	}
}

func suppressOK(kind string) error {
	_, err := project.NormalizeSuppressed([]string{kind})
	return err
}

func TestConstructorStopStillDeploys(t *testing.T) {
	src := `object "T" {
    code { sstore(0, 1) stop() }
    object "T_deployed" {
        code { mstore(0, 9) return(0, 32) }
    }
}`
	l := lowerYul(t, project.Settings{}, src)
	require.True(t, l.ok, "%v", l.bag.Items())

	// the runtime object is deployed on its own; stop only ends the constructor
	host := interp.NewMemHost()
	res := run(t, l.mod, host, interp.Config{Constructor: true})
	require.Equal(t, native.ExitDeploy, res.Exit)
	require.Equal(t, uint256.Int{1}, host.Storage[uint256.Int{}])

	res = run(t, l.mod, host, interp.Config{})
	require.True(t, res.Success(), res.Reason)
	require.Equal(t, word(uint256.NewInt(9)), res.Output)
}
