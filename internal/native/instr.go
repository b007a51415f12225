package native

// Op enumerates native instructions.
type Op uint8

const (
	OpNop Op = iota
	OpAdd
	OpSub
	OpMul
	OpUDiv // x / 0 = 0
	OpSDiv
	OpURem // x % 0 = 0
	OpSRem
	OpAnd
	OpOr
	OpXor
	OpNot
	OpShl // value << (amount mod 256)
	OpLShr
	OpAShr
	OpEq
	OpULt
	OpUGt
	OpSLt
	OpSGt
	OpIsZero
	OpZExt
	OpSelect
	OpAddMod
	OpMulMod
	OpExp
	OpKeccak
	OpAlloca
	OpPtr
	OpPtrAdd
	OpLoad
	OpStore
	OpStore8
	OpCopy
	OpSize
	OpSLoad
	OpSStore
	OpTLoad
	OpTStore
	OpContext
	OpGlobalGet
	OpGlobalSet
	OpCall
	OpFarCall
	OpLinkSym
	OpLog
)

type opInfo struct {
	name   string
	args   int // -1 = variadic
	result TypeKind
}

var opTable = [...]opInfo{
	OpNop:        {"nop", 0, TypeVoid},
	OpAdd:        {"add", 2, TypeWord},
	OpSub:        {"sub", 2, TypeWord},
	OpMul:        {"mul", 2, TypeWord},
	OpUDiv:       {"udiv", 2, TypeWord},
	OpSDiv:       {"sdiv", 2, TypeWord},
	OpURem:       {"urem", 2, TypeWord},
	OpSRem:       {"srem", 2, TypeWord},
	OpAnd:        {"and", 2, TypeWord},
	OpOr:         {"or", 2, TypeWord},
	OpXor:        {"xor", 2, TypeWord},
	OpNot:        {"not", 1, TypeWord},
	OpShl:        {"shl", 2, TypeWord},
	OpLShr:       {"lshr", 2, TypeWord},
	OpAShr:       {"ashr", 2, TypeWord},
	OpEq:         {"eq", 2, TypeBool},
	OpULt:        {"ult", 2, TypeBool},
	OpUGt:        {"ugt", 2, TypeBool},
	OpSLt:        {"slt", 2, TypeBool},
	OpSGt:        {"sgt", 2, TypeBool},
	OpIsZero:     {"iszero", 1, TypeBool},
	OpZExt:       {"zext", 1, TypeWord},
	OpSelect:     {"select", 3, TypeWord},
	OpAddMod:     {"addmod", 3, TypeWord},
	OpMulMod:     {"mulmod", 3, TypeWord},
	OpExp:        {"exp", 2, TypeWord},
	OpKeccak:     {"keccak", 2, TypeWord},
	OpAlloca:     {"alloca", 1, TypePtr},
	OpPtr:        {"ptr", 1, TypePtr},
	OpPtrAdd:     {"ptradd", 2, TypePtr},
	OpLoad:       {"load", 1, TypeWord},
	OpStore:      {"store", 2, TypeVoid},
	OpStore8:     {"store8", 2, TypeVoid},
	OpCopy:       {"copy", 3, TypeVoid},
	OpSize:       {"size", 0, TypeWord},
	OpSLoad:      {"sload", 1, TypeWord},
	OpSStore:     {"sstore", 2, TypeVoid},
	OpTLoad:      {"tload", 1, TypeWord},
	OpTStore:     {"tstore", 2, TypeVoid},
	OpContext:    {"context", 0, TypeWord},
	OpGlobalGet:  {"global.get", 0, TypeWord},
	OpGlobalSet:  {"global.set", 1, TypeVoid},
	OpCall:       {"call", -1, TypeVoid},
	OpFarCall:    {"farcall", -1, TypeWord},
	OpLinkSym:    {"linksym", 0, TypeWord},
	OpLog:        {"log", -1, TypeVoid},
}

func (op Op) String() string {
	if int(op) < len(opTable) {
		return opTable[op].name
	}
	return "op?"
}

// Arity returns the fixed operand count or -1.
func (op Op) Arity() int { return opTable[op].args }

// HasSideEffects reports whether the instruction must be kept even when its
// result is unused.
func (op Op) HasSideEffects() bool {
	switch op {
	case OpStore, OpStore8, OpCopy, OpSStore, OpTStore, OpGlobalSet, OpCall, OpFarCall, OpLog:
		return true
	}
	return false
}

// IsPure reports ops whose result depends only on their operands.
func (op Op) IsPure() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpUDiv, OpSDiv, OpURem, OpSRem, OpAnd, OpOr, OpXor, OpNot,
		OpShl, OpLShr, OpAShr, OpEq, OpULt, OpUGt, OpSLt, OpSGt, OpIsZero, OpZExt, OpSelect,
		OpAddMod, OpMulMod, OpExp, OpPtr, OpPtrAdd:
		return true
	}
	return false
}

// ContextKind selects a native context getter.
type ContextKind uint8

const (
	CtxAddress ContextKind = iota
	CtxCaller
	CtxCallValue
	CtxGasLeft
	CtxIsConstructor
	CtxCodeAddress
)

var contextNames = [...]string{"this", "caller", "callvalue", "gasleft", "isconstructor", "codeaddress"}

func (k ContextKind) String() string {
	if int(k) < len(contextNames) {
		return contextNames[k]
	}
	return "ctx?"
}

// FarMode is the far call flavour.
type FarMode uint8

const (
	FarNormal FarMode = iota
	FarStatic
	FarDelegate
)

func (m FarMode) String() string {
	switch m {
	case FarStatic:
		return "static"
	case FarDelegate:
		return "delegate"
	default:
		return "call"
	}
}

// FarCall is the call descriptor. Operands of OpFarCall are
// [address, gas, inputPtr, inputLen, extra...]; extra words are passed to
// system contracts in registers. The result is 1 on success, 0 on failure;
// the callee's output becomes the return-data space.
type FarCall struct {
	Mode   FarMode
	System bool
}

func (d FarCall) String() string {
	if d.System {
		return d.Mode.String() + ".system"
	}
	return d.Mode.String()
}

// SymbolKind distinguishes linker symbols.
type SymbolKind uint8

const (
	SymLibrary SymbolKind = iota
	SymFactory
)

// LinkSymbol is resolved after code generation: a library address or the
// code hash of a factory dependency.
type LinkSymbol struct {
	Kind SymbolKind
	Path string
}

func (s LinkSymbol) String() string {
	if s.Kind == SymFactory {
		return "dep:" + s.Path
	}
	return "lib:" + s.Path
}

// Instr is one native instruction. Dst is NoValueID when the op yields
// nothing; near calls yield Dsts instead.
type Instr struct {
	Op     Op
	Dst    ValueID
	Args   []Operand
	Space  Space // pointer space of load/store/copy destination, keccak, size, log, ptr
	Src    Space // copy source space
	Ctx    ContextKind
	Glob   GlobalID
	Callee FuncID
	Dsts   []ValueID
	Far    FarCall
	Sym    LinkSymbol
}

// Defs returns the values defined by the instruction.
func (in *Instr) Defs() []ValueID {
	if in.Op == OpCall {
		return in.Dsts
	}
	if in.Dst != NoValueID {
		return []ValueID{in.Dst}
	}
	return nil
}
