package lower

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/native"
	"zkvmc/internal/project"
	"zkvmc/internal/source"
)

// stackVal is one symbolic stack item. Items inherited from a predecessor
// live in slot from and are loaded on first use.
type stackVal struct {
	op     native.Operand
	loaded bool
	from   int
	elem   evmla.Element
}

type evmlaLowerer struct {
	c      *Context
	cfg    *evmla.CFG
	base   int
	blocks []native.BlockID
	slots  []native.Operand
	stack  []stackVal
	refs   map[string]dataRef
	end    native.BlockID
}

func lowerEVMLA(c *Context, src *ir.EVMLASource, deploy, runtime *native.Func) {
	asm := src.Assembly
	rt := asm.Runtime()
	if rt == nil {
		c.errorf(diag.IRVMissingRuntime, source.Span{File: c.Unit.File}, "legacy assembly has no runtime code under data key %q", evmla.RuntimeKey)
		return
	}
	checkEVMLAImmutables(c, asm.Code, rt.Code, c.Unit.File)
	refs := make(map[string]dataRef)
	lowerEVMLASegment(c, SegDeploy, asm.Code, 0, deploy, refs)
	lowerEVMLASegment(c, SegRuntime, rt.Code, len(asm.Code), runtime, refs)
}

func lowerEVMLASegment(c *Context, seg Segment, code []evmla.Instruction, base int, f *native.Func, refs map[string]dataRef) {
	cfg, ok := evmla.BuildCFG(code, evmla.Options{
		File:     c.Unit.File,
		Unit:     c.Unit.Name,
		Segment:  seg.String(),
		Base:     base,
		MaxStack: c.stackBudget,
	}, c.Rep)
	if !ok {
		c.failed = true
		return
	}
	c.enter(seg, f)
	l := &evmlaLowerer{c: c, cfg: cfg, base: base, refs: refs, end: native.NoBlockID}
	l.blocks = make([]native.BlockID, len(cfg.Blocks))
	for i, blk := range cfg.Blocks {
		name := fmt.Sprintf("b%d", blk.ID)
		if blk.HasTag {
			name = fmt.Sprintf("tag_%d", blk.Tag)
		}
		l.blocks[i] = c.B.NewBlock(name)
	}
	// the entry block holds the slot allocas and is never a jump target
	c.B.Goto(l.blocks[0])
	for _, blk := range cfg.Blocks {
		l.block(blk)
	}
}

func (l *evmlaLowerer) span(idx int) source.Span {
	return source.AtIndex(l.c.Unit.File, l.base+idx)
}

func (l *evmlaLowerer) slot(i int) native.Operand {
	for len(l.slots) <= i {
		l.slots = append(l.slots, l.c.B.EntryAlloca(1))
	}
	return l.slots[i]
}

func (l *evmlaLowerer) value(v *stackVal) native.Operand {
	if !v.loaded {
		v.op = l.c.B.Load(native.SpaceStack, l.slot(v.from))
		v.loaded = true
	}
	return v.op
}

func (l *evmlaLowerer) push(op native.Operand, elem evmla.Element) {
	l.stack = append(l.stack, stackVal{op: op, loaded: true, from: -1, elem: elem})
}

// pop returns the top n items, top first, loaded.
func (l *evmlaLowerer) pop(n int) ([]native.Operand, []evmla.Element) {
	ops := make([]native.Operand, n)
	elems := make([]evmla.Element, n)
	top := len(l.stack) - 1
	for i := 0; i < n; i++ {
		v := &l.stack[top-i]
		ops[i] = l.value(v)
		elems[i] = v.elem
	}
	l.stack = l.stack[:len(l.stack)-n]
	return ops, elems
}

func (l *evmlaLowerer) dataRef(key string, sp source.Span) dataRef {
	if ref, ok := l.refs[key]; ok {
		return ref
	}
	ref := l.c.resolveData(key, sp)
	l.refs[key] = ref
	return ref
}

func (l *evmlaLowerer) block(blk *evmla.Block) {
	b := l.c.B
	b.SetBlock(l.blocks[blk.ID])
	l.stack = l.stack[:0]
	for i, e := range blk.Entry {
		l.stack = append(l.stack, stackVal{from: i, elem: e})
	}
	for j, in := range blk.Code {
		idx := blk.Start + j
		if in.Name == evmla.NameJump || in.Name == evmla.NameJumpI {
			l.jump(blk, in.Name == evmla.NameJumpI)
			return
		}
		l.instr(in, l.span(idx))
	}
	switch blk.Term {
	case evmla.TermFall:
		l.spill()
		b.Goto(l.target(blk.Next))
	case evmla.TermExit:
		if !b.Terminated() {
			l.c.exit(native.ExitStop, native.Operand{}, native.Operand{})
		}
	}
}

// target maps a CFG successor to its native block; a negative successor is
// the end of code.
func (l *evmlaLowerer) target(id int) native.BlockID {
	if id >= 0 {
		return l.blocks[id]
	}
	if l.end == native.NoBlockID {
		b := l.c.B
		cur := b.Block()
		l.end = b.NewBlock("end")
		b.SetBlock(l.end)
		l.c.exit(native.ExitStop, native.Operand{}, native.Operand{})
		b.SetBlock(cur)
	}
	return l.end
}

func (l *evmlaLowerer) jump(blk *evmla.Block, cond bool) {
	b := l.c.B
	n := 1
	if cond {
		n = 2
	}
	ops, _ := l.pop(n)
	l.spill()
	switch blk.Term {
	case evmla.TermJump:
		b.Goto(l.target(blk.Next))
	case evmla.TermCondJump:
		b.If(ops[1], l.target(blk.Taken), l.target(blk.Next))
	case evmla.TermDynamic:
		l.dispatch(blk, ops[0])
	case evmla.TermDynamicCond:
		d := b.NewBlock("dispatch")
		b.If(ops[1], d, l.target(blk.Next))
		b.SetBlock(d)
		l.dispatch(blk, ops[0])
	default:
		b.Trap("invalid jump")
	}
}

func (l *evmlaLowerer) dispatch(blk *evmla.Block, dest native.Operand) {
	b := l.c.B
	cases := make([]native.SwitchCase, 0, len(blk.Dispatch))
	for _, d := range blk.Dispatch {
		cases = append(cases, native.SwitchCase{Value: uint256.NewInt(d.Tag), Target: l.target(d.Block)})
	}
	bad := b.NewBlock("invalid.jump")
	b.Switch(dest, cases, bad)
	b.SetBlock(bad)
	b.Trap("invalid jump")
}

// spill writes the stack back to its slots before leaving the block. All
// values are read before any slot is written.
func (l *evmlaLowerer) spill() {
	type move struct {
		slot int
		v    native.Operand
	}
	var moves []move
	for i := range l.stack {
		v := &l.stack[i]
		if v.from == i {
			continue
		}
		moves = append(moves, move{slot: i, v: l.value(v)})
	}
	for _, m := range moves {
		l.c.B.Store(native.SpaceStack, l.slot(m.slot), m.v)
	}
}

func (l *evmlaLowerer) instr(in evmla.Instruction, sp source.Span) {
	c := l.c
	switch in.Name {
	case evmla.NameTag, evmla.NameJumpDest:
		return
	case evmla.NamePushTag:
		t, _ := in.TagValue()
		l.push(native.U64(t), evmla.Element{Kind: evmla.ElemTag, Tag: t})
		return
	case evmla.NamePushData:
		key := in.DataKey()
		l.push(c.dataOffset(l.dataRef(key, sp)), evmla.Element{Kind: evmla.ElemData, Data: key})
		return
	case evmla.NamePushDataSize:
		key := in.DataKey()
		l.push(c.dataSize(l.dataRef(key, sp)), evmla.Element{Kind: evmla.ElemDataSize, Data: key})
		return
	case evmla.NamePushLib:
		path := in.Value
		if full, err := project.NormalizeName(path); err == nil {
			path = full
		}
		l.push(c.B.LinkSym(native.LinkSymbol{Kind: native.SymLibrary, Path: path}), evmla.Element{})
		return
	case evmla.NamePushDeployAddress:
		l.push(c.B.Context(native.CtxAddress), evmla.Element{})
		return
	case evmla.NamePushSize:
		l.push(zero(), evmla.Element{})
		return
	case evmla.NamePushImmutable:
		l.push(c.loadImmutable(in.Value), evmla.Element{})
		return
	case evmla.NameAssignImmutable:
		ops, _ := l.pop(2)
		c.setImmutable(in.Value, ops[1])
		return
	case evmla.NamePushDataBlob:
		c.reject("push data", sp)
		l.push(zero(), evmla.Element{})
		return
	case "POP":
		l.stack = l.stack[:len(l.stack)-1]
		return
	case "CODECOPY":
		ops, elems := l.pop(3)
		var ref dataRef
		if elems[1].Kind == evmla.ElemData {
			ref = l.dataRef(elems[1].Data, sp)
		}
		c.codeCopy(ops[0], ops[1], ops[2], ref, sp)
		return
	}
	if in.Name == evmla.NamePush || strings.HasPrefix(in.Name, "PUSH") {
		l.push(l.literal(in, sp), evmla.Element{})
		return
	}
	if n, ok := evmla.DupDepth(in.Name); ok {
		l.stack = append(l.stack, l.stack[len(l.stack)-n])
		return
	}
	if n, ok := evmla.SwapDepth(in.Name); ok {
		top := len(l.stack) - 1
		l.stack[top], l.stack[top-n] = l.stack[top-n], l.stack[top]
		return
	}
	info, ok := evmla.Lookup(in.Name)
	if !ok {
		c.errorf(diag.IRVUnknownInstruction, sp, "unknown instruction %q", in.Name)
		return
	}
	args, _ := l.pop(info.In)
	for _, v := range fit(c.evm(strings.ToLower(in.Name), args, sp), info.Out) {
		l.push(v, evmla.Element{})
	}
}

// literal parses the hex operand of PUSH; PUSH0 and an empty operand are 0.
func (l *evmlaLowerer) literal(in evmla.Instruction, sp source.Span) native.Operand {
	digits := strings.TrimLeft(strings.TrimPrefix(strings.ToLower(in.Value), "0x"), "0")
	if digits == "" {
		return zero()
	}
	v, err := uint256.FromHex("0x" + digits)
	if err != nil {
		l.c.errorf(diag.IRVInvalidLiteral, sp, "invalid push value %q: %v", in.Value, err)
		return zero()
	}
	return native.Const(v)
}
