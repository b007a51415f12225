package native

import (
	"errors"
	"fmt"
)

// Validate checks module invariants: terminated blocks, valid targets,
// single definitions, operand types and call signatures.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	if m.Func(m.Entry) == nil {
		errs = append(errs, errors.New("module has no entry function"))
	}
	for _, f := range m.Funcs {
		if err := validateFunc(m, f); err != nil {
			errs = append(errs, fmt.Errorf("function %s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

type funcChecker struct {
	m       *Module
	f       *Func
	defined []bool
	errs    []error
}

func (c *funcChecker) errorf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf(format, args...))
}

func validateFunc(m *Module, f *Func) error {
	c := &funcChecker{m: m, f: f, defined: make([]bool, len(f.Values))}
	if len(f.Blocks) == 0 {
		return errors.New("no blocks")
	}
	if !c.validBlock(f.Entry) {
		c.errorf("invalid entry block %d", f.Entry)
	}
	for _, p := range f.Params {
		c.define(p, "param")
	}
	for i := range f.Blocks {
		for _, in := range f.Blocks[i].Instrs {
			for _, d := range in.Defs() {
				c.define(d, fmt.Sprintf("bb%d", i))
			}
		}
	}
	for i := range f.Blocks {
		blk := &f.Blocks[i]
		if blk.ID != BlockID(i) { //nolint:gosec // bounded by block count
			c.errorf("bb%d: stale id %d", i, blk.ID)
		}
		for j := range blk.Instrs {
			c.instr(i, &blk.Instrs[j])
		}
		c.term(i, &blk.Term)
	}
	return errors.Join(c.errs...)
}

func (c *funcChecker) validBlock(id BlockID) bool {
	return id >= 0 && int(id) < len(c.f.Blocks)
}

func (c *funcChecker) define(id ValueID, where string) {
	if id < 0 || int(id) >= len(c.defined) {
		c.errorf("%s: defines unknown value %%%d", where, id)
		return
	}
	if c.defined[id] {
		c.errorf("%s: value %%%d defined twice", where, id)
		return
	}
	c.defined[id] = true
}

func (c *funcChecker) operand(bb int, o Operand) Type {
	switch o.Kind {
	case OperandConst:
		if o.Const == nil {
			c.errorf("bb%d: nil constant", bb)
		}
		return Word
	case OperandValue:
		if o.Value < 0 || int(o.Value) >= len(c.defined) || !c.defined[o.Value] {
			c.errorf("bb%d: use of undefined value %%%d", bb, o.Value)
			return Void
		}
		return c.f.Values[o.Value]
	default:
		c.errorf("bb%d: missing operand", bb)
		return Void
	}
}

func (c *funcChecker) wantScalar(bb int, in *Instr, o Operand) {
	if t := c.operand(bb, o); t.Kind != TypeWord && t.Kind != TypeBool {
		c.errorf("bb%d: %s: operand %s has type %s, want word", bb, in.Op, o, t)
	}
}

func (c *funcChecker) wantPtr(bb int, in *Instr, o Operand, space Space) {
	t := c.operand(bb, o)
	if t.Kind != TypePtr || t.Space != space {
		c.errorf("bb%d: %s: operand %s has type %s, want %s", bb, in.Op, o, t, Ptr(space))
	}
}

func (c *funcChecker) instr(bb int, in *Instr) {
	if n := in.Op.Arity(); n >= 0 && len(in.Args) != n {
		c.errorf("bb%d: %s takes %d operands, got %d", bb, in.Op, n, len(in.Args))
		return
	}
	if in.Op != OpCall {
		want := opTable[in.Op].result
		got := c.f.ValueType(in.Dst)
		if want == TypeVoid && in.Dst != NoValueID {
			c.errorf("bb%d: %s defines a value", bb, in.Op)
		}
		if want != TypeVoid && got.Kind != want {
			c.errorf("bb%d: %s result has type %s", bb, in.Op, got)
		}
	}
	switch in.Op {
	case OpLoad:
		c.wantPtr(bb, in, in.Args[0], in.Space)
	case OpStore, OpStore8:
		if !in.Space.Writable() {
			c.errorf("bb%d: %s into read-only space %s", bb, in.Op, in.Space)
		}
		c.wantPtr(bb, in, in.Args[0], in.Space)
		c.wantScalar(bb, in, in.Args[1])
	case OpCopy:
		if !in.Space.Writable() {
			c.errorf("bb%d: copy into read-only space %s", bb, in.Space)
		}
		c.wantPtr(bb, in, in.Args[0], in.Space)
		c.wantPtr(bb, in, in.Args[1], in.Src)
		c.wantScalar(bb, in, in.Args[2])
	case OpKeccak:
		c.wantPtr(bb, in, in.Args[0], in.Space)
		c.wantScalar(bb, in, in.Args[1])
	case OpPtrAdd:
		c.wantPtr(bb, in, in.Args[0], in.Space)
		c.wantScalar(bb, in, in.Args[1])
	case OpAlloca:
		if in.Space != SpaceStack {
			c.errorf("bb%d: alloca outside stack space", bb)
		}
		c.wantScalar(bb, in, in.Args[0])
	case OpSize:
		if in.Space != SpaceCalldata && in.Space != SpaceReturnData {
			c.errorf("bb%d: size of %s", bb, in.Space)
		}
	case OpSelect:
		if t := c.operand(bb, in.Args[0]); t.Kind != TypeBool {
			c.errorf("bb%d: select condition has type %s", bb, t)
		}
		c.wantScalar(bb, in, in.Args[1])
		c.wantScalar(bb, in, in.Args[2])
	case OpZExt:
		if t := c.operand(bb, in.Args[0]); t.Kind != TypeBool {
			c.errorf("bb%d: zext of %s", bb, t)
		}
	case OpGlobalGet, OpGlobalSet:
		if in.Glob < 0 || int(in.Glob) >= len(c.m.Globals) {
			c.errorf("bb%d: unknown global %d", bb, in.Glob)
		}
		for _, a := range in.Args {
			c.wantScalar(bb, in, a)
		}
	case OpCall:
		callee := c.m.Func(in.Callee)
		if callee == nil {
			c.errorf("bb%d: call of unknown function %d", bb, in.Callee)
			return
		}
		if len(in.Args) != len(callee.Params) || len(in.Dsts) != callee.Results {
			c.errorf("bb%d: call %s with %d args / %d results, want %d / %d",
				bb, callee.Name, len(in.Args), len(in.Dsts), len(callee.Params), callee.Results)
		}
		for _, a := range in.Args {
			c.wantScalar(bb, in, a)
		}
	case OpFarCall:
		if len(in.Args) < 4 {
			c.errorf("bb%d: farcall needs address, gas, input pointer and length", bb)
			return
		}
		c.wantScalar(bb, in, in.Args[0])
		c.wantScalar(bb, in, in.Args[1])
		c.wantPtr(bb, in, in.Args[2], in.Space)
		for _, a := range in.Args[3:] {
			c.wantScalar(bb, in, a)
		}
	case OpLog:
		if len(in.Args) < 2 || len(in.Args) > 6 {
			c.errorf("bb%d: log with %d operands", bb, len(in.Args))
			return
		}
		c.wantPtr(bb, in, in.Args[0], in.Space)
		for _, a := range in.Args[1:] {
			c.wantScalar(bb, in, a)
		}
	case OpLinkSym:
		if in.Sym.Path == "" {
			c.errorf("bb%d: linker symbol without path", bb)
		}
	default:
		for _, a := range in.Args {
			c.wantScalar(bb, in, a)
		}
	}
}

func (c *funcChecker) term(bb int, t *Terminator) {
	if t.Kind == TermNone {
		c.errorf("bb%d: unterminated block", bb)
		return
	}
	for _, s := range t.Successors() {
		if !c.validBlock(s) {
			c.errorf("bb%d: jump to unknown block %d", bb, s)
		}
	}
	switch t.Kind {
	case TermIf:
		c.operand(bb, t.If.Cond)
	case TermSwitch:
		c.operand(bb, t.Switch.Value)
		seen := make(map[string]struct{}, len(t.Switch.Cases))
		for _, cs := range t.Switch.Cases {
			key := cs.Value.Hex()
			if _, dup := seen[key]; dup {
				c.errorf("bb%d: duplicate switch case %s", bb, key)
			}
			seen[key] = struct{}{}
		}
	case TermReturn:
		if len(t.Return.Values) != c.f.Results {
			c.errorf("bb%d: return of %d values, want %d", bb, len(t.Return.Values), c.f.Results)
		}
		for _, v := range t.Return.Values {
			c.operand(bb, v)
		}
	case TermExit:
		if t.Exit.Kind == ExitReturn || t.Exit.Kind == ExitRevert {
			c.wantPtr(bb, &Instr{Op: OpNop}, t.Exit.Ptr, t.Exit.Space)
			c.operand(bb, t.Exit.Len)
		}
	}
}
