package backend

import (
	"context"
	"fmt"
	"strings"

	"fortio.org/safecast"

	"zkvmc/internal/asm"
	"zkvmc/internal/diag"
	"zkvmc/internal/native"
	"zkvmc/internal/trace"
)

// Every SSA value lives in a frame slot; instructions load their operands
// into scratch registers r1..r4 and write the result from r1.
type isel struct {
	mod   *native.Module
	sb    strings.Builder
	f     *native.Func
	slots []int
	frame int
	names map[native.FuncID]string
	bb    native.BlockID
	ii    int
	err   *AssemblyError
}

// EmitAssembly selects instructions for mod and renders target assembly.
func (Target) EmitAssembly(ctx context.Context, mod *native.Module) (string, error) {
	_, span := trace.StartSpan(ctx, trace.ScopeModule, "isel")
	defer span.End(mod.Unit)

	s := &isel{mod: mod, names: funcNames(mod)}
	fmt.Fprintf(&s.sb, ".unit %q\n", mod.Unit)
	for _, f := range funcOrder(mod) {
		s.function(f)
		if s.err != nil {
			return "", s.err
		}
	}
	return s.sb.String(), nil
}

// funcOrder places the module entry first.
func funcOrder(mod *native.Module) []*native.Func {
	out := make([]*native.Func, 0, len(mod.Funcs))
	if e := mod.Func(mod.Entry); e != nil {
		out = append(out, e)
	}
	for _, f := range mod.Funcs {
		if f.ID != mod.Entry {
			out = append(out, f)
		}
	}
	return out
}

func funcNames(mod *native.Module) map[native.FuncID]string {
	names := make(map[native.FuncID]string, len(mod.Funcs))
	for _, f := range mod.Funcs {
		name := f.Name
		if name == "" || strings.IndexFunc(name, badNameRune) >= 0 {
			name = fmt.Sprintf("fn%d", f.ID)
		}
		names[f.ID] = "@" + name
	}
	return names
}

func badNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("_.$#", r)
}

func (s *isel) fail(code diag.Code, format string, args ...any) {
	if s.err != nil {
		return
	}
	s.err = &AssemblyError{
		Code:  code,
		Unit:  s.mod.Unit,
		Func:  s.f.Name,
		Block: int(s.bb),
		Instr: s.ii,
		Err:   fmt.Errorf(format, args...),
	}
}

func (s *isel) emit(format string, args ...any) {
	s.sb.WriteString("  ")
	fmt.Fprintf(&s.sb, format, args...)
	s.sb.WriteByte('\n')
}

func (s *isel) label(b native.BlockID) string {
	return fmt.Sprintf(".L%d_%d", s.f.ID, b)
}

func (s *isel) assignSlots(f *native.Func) {
	s.slots = make([]int, len(f.Values))
	for i := range s.slots {
		s.slots[i] = -1
	}
	s.frame = 0
	def := func(v native.ValueID) {
		if v >= 0 && int(v) < len(s.slots) && s.slots[v] < 0 {
			s.slots[v] = s.frame
			s.frame++
		}
	}
	for _, p := range f.Params {
		def(p)
	}
	for bi := range f.Blocks {
		for _, in := range f.Blocks[bi].Instrs {
			for _, d := range in.Defs() {
				def(d)
			}
		}
	}
}

func blockOrder(f *native.Func) []native.BlockID {
	out := make([]native.BlockID, 0, len(f.Blocks))
	out = append(out, f.Entry)
	for i := range f.Blocks {
		if id := native.BlockID(i); id != f.Entry { //nolint:gosec // bounded by block count
			out = append(out, id)
		}
	}
	return out
}

func (s *isel) function(f *native.Func) {
	s.f, s.bb, s.ii = f, -1, -1
	s.assignSlots(f)
	if s.frame > asm.MaxIndex {
		s.fail(diag.RESFrameTooLarge, "frame needs %d slots, limit is %d", s.frame, asm.MaxIndex)
		return
	}
	fmt.Fprintf(&s.sb, ".func %s\n", s.names[f.ID])
	s.emit("enter #%d", s.frame)
	for i, p := range f.Params {
		s.emit("param r1, #%d", i)
		s.store(p)
	}
	order := blockOrder(f)
	for k, id := range order {
		next := native.NoBlockID
		if k+1 < len(order) {
			next = order[k+1]
		}
		s.block(&f.Blocks[id], next)
		if s.err != nil {
			return
		}
	}
}

func (s *isel) block(blk *native.Block, next native.BlockID) {
	s.bb = blk.ID
	fmt.Fprintf(&s.sb, "%s:", s.label(blk.ID))
	if blk.Name != "" {
		fmt.Fprintf(&s.sb, " ; %s", blk.Name)
	}
	s.sb.WriteByte('\n')
	for i := range blk.Instrs {
		s.ii = i
		s.instr(&blk.Instrs[i])
	}
	s.ii = -1
	s.term(&blk.Term, next)
}

// load materialises o into register r.
func (s *isel) load(r int, o native.Operand) {
	switch o.Kind {
	case native.OperandConst:
		if o.Const.IsUint64() && o.Const.Uint64() <= asm.MaxIndex {
			s.emit("ldi r%d, #%d", r, o.Const.Uint64())
			return
		}
		s.emit("ldc r%d, =%s", r, o.Const.Hex())
	case native.OperandValue:
		if o.Value < 0 || int(o.Value) >= len(s.slots) || s.slots[o.Value] < 0 {
			s.fail(diag.ASMMalformedModule, "operand %s has no definition", o)
			return
		}
		s.emit("lds r%d, stack[%d]", r, s.slots[o.Value])
	default:
		s.fail(diag.ASMMalformedModule, "missing operand")
	}
}

func (s *isel) store(v native.ValueID) {
	if v == native.NoValueID {
		return
	}
	s.emit("sts stack[%d], r1", s.slots[v])
}

// space checks that sp can be addressed by a target instruction.
func (s *isel) space(sp native.Space) string {
	if sp == native.SpaceStorage || int(sp) > int(native.SpaceImmutables) {
		s.fail(diag.ASMMalformedModule, "no addressing mode for space %s", sp)
	}
	return sp.String()
}

func (s *isel) loadArgs(args []native.Operand) {
	for i, a := range args {
		s.load(i+1, a)
	}
}

func (s *isel) imm(n int) int {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		s.fail(diag.RESFrameTooLarge, "immediate %d does not fit 16 bits", n)
	}
	return int(v)
}

func (s *isel) instr(in *native.Instr) {
	switch in.Op {
	case native.OpNop:
	case native.OpAdd, native.OpSub, native.OpMul, native.OpUDiv, native.OpSDiv, native.OpURem, native.OpSRem,
		native.OpAnd, native.OpOr, native.OpXor, native.OpShl, native.OpLShr, native.OpAShr,
		native.OpEq, native.OpULt, native.OpUGt, native.OpSLt, native.OpSGt, native.OpExp:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1, r2", in.Op)
		s.store(in.Dst)
	case native.OpNot, native.OpIsZero:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1", in.Op)
		s.store(in.Dst)
	case native.OpZExt, native.OpPtr:
		s.loadArgs(in.Args)
		s.store(in.Dst)
	case native.OpPtrAdd:
		s.loadArgs(in.Args)
		s.emit("add r1, r1, r2")
		s.store(in.Dst)
	case native.OpSelect, native.OpAddMod, native.OpMulMod:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1, r2, r3", in.Op)
		s.store(in.Dst)
	case native.OpKeccak:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1, r2", asm.KeccakOp(s.space(in.Space)))
		s.store(in.Dst)
	case native.OpAlloca:
		if a := in.Args[0]; a.IsConst() && a.Const.IsUint64() && a.Const.Uint64() <= asm.MaxIndex {
			s.emit("allocai r1, #%d", a.Const.Uint64())
		} else {
			s.loadArgs(in.Args)
			s.emit("alloca r1, r1")
		}
		s.store(in.Dst)
	case native.OpLoad:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1", asm.LoadOp(s.space(in.Space)))
		s.store(in.Dst)
	case native.OpStore:
		s.loadArgs(in.Args)
		s.emit("%s r1, r2", asm.StoreOp(s.space(in.Space)))
	case native.OpStore8:
		s.loadArgs(in.Args)
		s.emit("%s r1, r2", asm.Store8Op(s.space(in.Space)))
	case native.OpCopy:
		s.loadArgs(in.Args)
		s.emit("%s r1, r2, r3", asm.CopyOp(s.space(in.Space), s.space(in.Src)))
	case native.OpSize:
		s.emit("%s r1", asm.SizeOp(s.space(in.Space)))
		s.store(in.Dst)
	case native.OpSLoad, native.OpTLoad:
		s.loadArgs(in.Args)
		s.emit("%s r1, r1", in.Op)
		s.store(in.Dst)
	case native.OpSStore, native.OpTStore:
		s.loadArgs(in.Args)
		s.emit("%s r1, r2", in.Op)
	case native.OpContext:
		s.emit("%s r1", asm.ContextOp(in.Ctx.String()))
		s.store(in.Dst)
	case native.OpGlobalGet:
		s.emit("gld r1, #%d", in.Glob)
		s.store(in.Dst)
	case native.OpGlobalSet:
		s.loadArgs(in.Args)
		s.emit("gst #%d, r1", in.Glob)
	case native.OpCall:
		for i, a := range in.Args {
			s.load(1, a)
			s.emit("arg #%d, r1", s.imm(i))
		}
		s.emit("call %s", s.names[in.Callee])
		for i, d := range in.Dsts {
			s.emit("res r1, #%d", i)
			s.store(d)
		}
	case native.OpFarCall:
		extra := in.Args[4:]
		for i, a := range extra {
			s.load(1, a)
			s.emit("arg #%d, r1", s.imm(i))
		}
		s.load(1, in.Args[1])
		s.emit("fgas r1")
		s.load(2, in.Args[0])
		s.load(3, in.Args[2])
		s.load(4, in.Args[3])
		op := asm.FarCallOp(in.Far.Mode.String(), in.Far.System, s.space(in.Space))
		s.emit("%s r1, r2, r3, r4, #%d", op, len(extra))
		s.store(in.Dst)
	case native.OpLinkSym:
		s.emit("ldc r1, =%s", linkOperand(in.Sym))
		s.store(in.Dst)
	case native.OpLog:
		topics := in.Args[2:]
		for i, a := range topics {
			s.load(1, a)
			s.emit("arg #%d, r1", i)
		}
		s.loadArgs(in.Args[:2])
		s.emit("%s r1, r2, #%d", asm.LogOp(s.space(in.Space)), len(topics))
	default:
		s.fail(diag.ASMMalformedModule, "no selection for %s", in.Op)
	}
}

func linkOperand(sym native.LinkSymbol) string {
	if sym.Kind == native.SymFactory {
		return `dep:"` + sym.Path + `"`
	}
	return `lib:"` + sym.Path + `"`
}

func (s *isel) jump(target, next native.BlockID) {
	if target != next {
		s.emit("jmp %s", s.label(target))
	}
}

func (s *isel) term(t *native.Terminator, next native.BlockID) {
	switch t.Kind {
	case native.TermGoto:
		s.jump(t.Goto.Target, next)
	case native.TermIf:
		s.load(1, t.If.Cond)
		s.emit("jnz r1, %s", s.label(t.If.Then))
		s.jump(t.If.Else, next)
	case native.TermSwitch:
		s.load(1, t.Switch.Value)
		for _, c := range t.Switch.Cases {
			s.load(2, native.Const(c.Value))
			s.emit("eq r3, r1, r2")
			s.emit("jnz r3, %s", s.label(c.Target))
		}
		s.jump(t.Switch.Default, next)
	case native.TermReturn:
		for i, v := range t.Return.Values {
			s.load(1, v)
			s.emit("retv #%d, r1", i)
		}
		s.emit("ret")
	case native.TermExit:
		switch t.Exit.Kind {
		case native.ExitReturn, native.ExitRevert:
			s.load(1, t.Exit.Ptr)
			s.load(2, t.Exit.Len)
			s.emit("%s r1, r2", asm.ExitOp(t.Exit.Kind.String(), s.space(t.Exit.Space)))
		case native.ExitStop:
			s.emit("exit.stop")
		case native.ExitDeploy:
			s.emit("exit.deploy")
		}
	case native.TermTrap:
		if t.Trap.Reason != "" {
			s.emit("trap ; %s", strings.ReplaceAll(t.Trap.Reason, "\n", " "))
		} else {
			s.emit("trap")
		}
	case native.TermUnreachable:
		s.emit("trap ; unreachable")
	default:
		s.fail(diag.ASMMalformedModule, "unterminated block")
	}
}
