package backend

import (
	"fmt"
	"math/big"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"zkvmc/internal/native"
)

var i256 = types.NewInt(256)

// spacePtr is a byte pointer in the address space of sp; address space 0 is
// left to the host.
func spacePtr(sp native.Space) *types.PointerType {
	p := types.NewPointer(types.I8)
	p.AddrSpace = types.AddrSpace(int64(sp) + 1)
	return p
}

func llvmType(t native.Type) types.Type {
	switch t.Kind {
	case native.TypeBool:
		return types.I1
	case native.TypePtr:
		return spacePtr(t.Space)
	case native.TypeVoid:
		return types.Void
	}
	return i256
}

type llvmGen struct {
	m       *ir.Module
	mod     *native.Module
	funcs   map[native.FuncID]*ir.Func
	globals []*ir.Global
	helpers map[string]*ir.Func
	// per function
	f      *native.Func
	vals   map[native.ValueID]value.Value
	blocks []*ir.Block
	cur    *ir.Block
}

// EmitLLVM renders mod as LLVM IR text. Words are i256, bools i1 and each
// memory space gets its own address space; operations without an LLVM
// counterpart call declared zkvm.* helpers.
func EmitLLVM(mod *native.Module) (string, error) {
	g := &llvmGen{
		m:       ir.NewModule(),
		mod:     mod,
		funcs:   make(map[native.FuncID]*ir.Func),
		helpers: make(map[string]*ir.Func),
	}
	g.m.SourceFilename = mod.Unit
	for _, gl := range mod.Globals {
		g.globals = append(g.globals, g.m.NewGlobalDef(gl.Name, constant.NewInt(i256, 0)))
	}
	for _, f := range mod.Funcs {
		params := make([]*ir.Param, len(f.Params))
		for i, p := range f.Params {
			params[i] = ir.NewParam(fmt.Sprintf("p%d", i), llvmType(f.ValueType(p)))
		}
		g.funcs[f.ID] = g.m.NewFunc(f.Name, resultType(f.Results), params...)
	}
	for _, f := range mod.Funcs {
		if err := g.function(f); err != nil {
			return "", fmt.Errorf("function %s: %w", f.Name, err)
		}
	}
	return g.m.String(), nil
}

func resultType(n int) types.Type {
	switch n {
	case 0:
		return types.Void
	case 1:
		return i256
	}
	fields := make([]types.Type, n)
	for i := range fields {
		fields[i] = i256
	}
	return types.NewStruct(fields...)
}

// helper declares zkvm.<name> on first use.
func (g *llvmGen) helper(name string, ret types.Type, params ...types.Type) *ir.Func {
	full := "zkvm." + name
	if h, ok := g.helpers[full]; ok {
		return h
	}
	ps := make([]*ir.Param, len(params))
	for i, t := range params {
		ps[i] = ir.NewParam("", t)
	}
	h := g.m.NewFunc(full, ret, ps...)
	g.helpers[full] = h
	return h
}

func (g *llvmGen) function(f *native.Func) error {
	lf := g.funcs[f.ID]
	g.f = f
	g.vals = make(map[native.ValueID]value.Value)
	for i, p := range f.Params {
		g.vals[p] = lf.Params[i]
	}
	g.blocks = make([]*ir.Block, len(f.Blocks))
	// LLVM takes the first block as entry
	for _, id := range blockOrder(f) {
		g.blocks[id] = lf.NewBlock(fmt.Sprintf("bb%d", id))
	}
	// defs may be used in blocks emitted before the defining one
	for _, id := range blockOrder(f) {
		g.cur = g.blocks[id]
		blk := &f.Blocks[id]
		for i := range blk.Instrs {
			if err := g.instr(&blk.Instrs[i]); err != nil {
				return fmt.Errorf("bb%d: %w", id, err)
			}
		}
		if err := g.term(&blk.Term); err != nil {
			return fmt.Errorf("bb%d: %w", id, err)
		}
	}
	return nil
}

func bigConst(v native.Operand) *constant.Int {
	return &constant.Int{Typ: i256, X: new(big.Int).SetBytes(v.Const.Bytes())}
}

func (g *llvmGen) raw(o native.Operand) (value.Value, error) {
	switch o.Kind {
	case native.OperandConst:
		return bigConst(o), nil
	case native.OperandValue:
		v, ok := g.vals[o.Value]
		if !ok {
			return nil, fmt.Errorf("value %%%d used before its definition was emitted", o.Value)
		}
		return v, nil
	}
	return nil, fmt.Errorf("missing operand")
}

// word reads o as i256.
func (g *llvmGen) word(o native.Operand) (value.Value, error) {
	v, err := g.raw(o)
	if err != nil {
		return nil, err
	}
	if v.Type().Equal(types.I1) {
		return g.cur.NewZExt(v, i256), nil
	}
	return v, nil
}

// cond reads o as i1.
func (g *llvmGen) cond(o native.Operand) (value.Value, error) {
	v, err := g.raw(o)
	if err != nil {
		return nil, err
	}
	if v.Type().Equal(types.I1) {
		return v, nil
	}
	return g.cur.NewICmp(enum.IPredNE, v, constant.NewInt(i256, 0)), nil
}

func (g *llvmGen) words(ops []native.Operand) ([]value.Value, error) {
	out := make([]value.Value, len(ops))
	for i, o := range ops {
		v, err := g.word(o)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (g *llvmGen) wordPtr(p value.Value, sp native.Space) value.Value {
	wp := types.NewPointer(i256)
	wp.AddrSpace = spacePtr(sp).AddrSpace
	return g.cur.NewBitCast(p, wp)
}

var icmpPreds = map[native.Op]enum.IPred{
	native.OpEq:  enum.IPredEQ,
	native.OpULt: enum.IPredULT,
	native.OpUGt: enum.IPredUGT,
	native.OpSLt: enum.IPredSLT,
	native.OpSGt: enum.IPredSGT,
}

func (g *llvmGen) instr(in *native.Instr) error {
	b := g.cur
	var res value.Value
	switch in.Op {
	case native.OpNop:
		return nil
	case native.OpAdd, native.OpSub, native.OpMul, native.OpAnd, native.OpOr, native.OpXor:
		a, err := g.words(in.Args)
		if err != nil {
			return err
		}
		switch in.Op {
		case native.OpAdd:
			res = b.NewAdd(a[0], a[1])
		case native.OpSub:
			res = b.NewSub(a[0], a[1])
		case native.OpMul:
			res = b.NewMul(a[0], a[1])
		case native.OpAnd:
			res = b.NewAnd(a[0], a[1])
		case native.OpOr:
			res = b.NewOr(a[0], a[1])
		default:
			res = b.NewXor(a[0], a[1])
		}
	case native.OpNot:
		a, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		res = b.NewXor(a, constant.NewInt(i256, -1))
	case native.OpEq, native.OpULt, native.OpUGt, native.OpSLt, native.OpSGt:
		a, err := g.words(in.Args)
		if err != nil {
			return err
		}
		res = b.NewICmp(icmpPreds[in.Op], a[0], a[1])
	case native.OpIsZero:
		a, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		res = b.NewICmp(enum.IPredEQ, a, constant.NewInt(i256, 0))
	case native.OpZExt:
		a, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		res = a
	case native.OpSelect:
		c, err := g.cond(in.Args[0])
		if err != nil {
			return err
		}
		a, err := g.words(in.Args[1:])
		if err != nil {
			return err
		}
		res = b.NewSelect(c, a[0], a[1])
	case native.OpPtr:
		a, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		res = b.NewIntToPtr(a, spacePtr(in.Space))
	case native.OpPtrAdd:
		p, err := g.raw(in.Args[0])
		if err != nil {
			return err
		}
		d, err := g.word(in.Args[1])
		if err != nil {
			return err
		}
		res = b.NewGetElementPtr(types.I8, p, d)
	case native.OpLoad:
		p, err := g.raw(in.Args[0])
		if err != nil {
			return err
		}
		res = b.NewLoad(i256, g.wordPtr(p, in.Space))
	case native.OpStore, native.OpStore8:
		p, err := g.raw(in.Args[0])
		if err != nil {
			return err
		}
		v, err := g.word(in.Args[1])
		if err != nil {
			return err
		}
		if in.Op == native.OpStore8 {
			b.NewStore(b.NewTrunc(v, types.I8), p)
		} else {
			b.NewStore(v, g.wordPtr(p, in.Space))
		}
		return nil
	case native.OpAlloca:
		n, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		res = b.NewCall(g.helper("alloca", spacePtr(native.SpaceStack), i256), n)
	case native.OpCall:
		args, err := g.words(in.Args)
		if err != nil {
			return err
		}
		call := b.NewCall(g.funcs[in.Callee], args...)
		switch len(in.Dsts) {
		case 0:
		case 1:
			g.vals[in.Dsts[0]] = call
		default:
			for i, d := range in.Dsts {
				g.vals[d] = b.NewExtractValue(call, uint64(i)) // #nosec G115 -- i >= 0
			}
		}
		return nil
	case native.OpGlobalGet:
		res = b.NewLoad(i256, g.globals[in.Glob])
	case native.OpGlobalSet:
		v, err := g.word(in.Args[0])
		if err != nil {
			return err
		}
		b.NewStore(v, g.globals[in.Glob])
		return nil
	default:
		return g.helperCall(in)
	}
	if in.Dst != native.NoValueID {
		g.vals[in.Dst] = res
	}
	return nil
}

// helperCall lowers ops with EVM semantics LLVM does not share (division
// by zero, shifts past 256, storage, far calls) to zkvm.* calls.
func (g *llvmGen) helperCall(in *native.Instr) error {
	b := g.cur
	var (
		args   []value.Value
		params []types.Type
	)
	for _, o := range in.Args {
		v, err := g.raw(o)
		if err != nil {
			return err
		}
		if v.Type().Equal(types.I1) {
			v = b.NewZExt(v, i256)
		}
		args = append(args, v)
		params = append(params, v.Type())
	}
	name := in.Op.String()
	switch in.Op {
	case native.OpKeccak, native.OpSize, native.OpLog:
		name += "." + in.Space.String()
	case native.OpCopy:
		name += "." + in.Space.String() + "." + in.Src.String()
	case native.OpContext:
		name += "." + in.Ctx.String()
	case native.OpFarCall:
		name += "." + in.Far.String() + "." + in.Space.String()
	case native.OpLinkSym:
		name += "." + in.Sym.String()
	}
	ret := types.Type(types.Void)
	if in.Dst != native.NoValueID {
		ret = llvmType(g.f.ValueType(in.Dst))
	}
	call := b.NewCall(g.helper(fmt.Sprintf("%s.%d", name, len(params)), ret, params...), args...)
	if in.Dst != native.NoValueID {
		g.vals[in.Dst] = call
	}
	return nil
}

func (g *llvmGen) term(t *native.Terminator) error {
	b := g.cur
	switch t.Kind {
	case native.TermGoto:
		b.NewBr(g.blocks[t.Goto.Target])
	case native.TermIf:
		c, err := g.cond(t.If.Cond)
		if err != nil {
			return err
		}
		b.NewCondBr(c, g.blocks[t.If.Then], g.blocks[t.If.Else])
	case native.TermSwitch:
		v, err := g.word(t.Switch.Value)
		if err != nil {
			return err
		}
		cases := make([]*ir.Case, len(t.Switch.Cases))
		for i, c := range t.Switch.Cases {
			cases[i] = ir.NewCase(bigConst(native.Const(c.Value)), g.blocks[c.Target])
		}
		b.NewSwitch(v, g.blocks[t.Switch.Default], cases...)
	case native.TermReturn:
		vals, err := g.words(t.Return.Values)
		if err != nil {
			return err
		}
		switch len(vals) {
		case 0:
			b.NewRet(nil)
		case 1:
			b.NewRet(vals[0])
		default:
			var agg value.Value = constant.NewUndef(resultType(len(vals)))
			for i, v := range vals {
				agg = b.NewInsertValue(agg, v, uint64(i)) // #nosec G115 -- i >= 0
			}
			b.NewRet(agg)
		}
	case native.TermExit:
		var args []value.Value
		var params []types.Type
		name := "exit." + t.Exit.Kind.String()
		if t.Exit.Kind == native.ExitReturn || t.Exit.Kind == native.ExitRevert {
			p, err := g.raw(t.Exit.Ptr)
			if err != nil {
				return err
			}
			n, err := g.word(t.Exit.Len)
			if err != nil {
				return err
			}
			name += "." + t.Exit.Space.String()
			args, params = []value.Value{p, n}, []types.Type{p.Type(), i256}
		}
		b.NewCall(g.helper(name, types.Void, params...), args...)
		b.NewUnreachable()
	case native.TermTrap:
		b.NewCall(g.helper("trap", types.Void))
		b.NewUnreachable()
	case native.TermUnreachable:
		b.NewUnreachable()
	default:
		return fmt.Errorf("unterminated block")
	}
	return nil
}
