package backend

import (
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

// ConstFold evaluates pure instructions over constant operands, resolves
// selects with a constant condition and turns constant branches into gotos.
// Pointer-producing ops are left alone so pointer types survive.
func ConstFold(f *native.Func) bool {
	s := make(subst)
	changed := false
	for {
		progress := s.apply(f)
		for bi := range f.Blocks {
			blk := &f.Blocks[bi]
			if removeInstrs(blk, func(in *native.Instr) bool { return foldInstr(s, in) }) > 0 {
				progress = true
			}
			if foldTerm(&blk.Term) {
				progress = true
			}
		}
		if !progress {
			return changed
		}
		changed = true
	}
}

func foldInstr(s subst, in *native.Instr) bool {
	if !in.Op.IsPure() || in.Op == native.OpPtr || in.Op == native.OpPtrAdd || in.Dst == native.NoValueID {
		return false
	}
	switch in.Op {
	case native.OpSelect:
		cond, ok := constOf(s, in.Args[0])
		if !ok {
			if in.Args[1] == in.Args[2] {
				s[in.Dst] = in.Args[1]
				return true
			}
			return false
		}
		if cond.IsZero() {
			s[in.Dst] = in.Args[2]
		} else {
			s[in.Dst] = in.Args[1]
		}
		return true
	case native.OpZExt:
		v, ok := constOf(s, in.Args[0])
		if !ok {
			return false
		}
		s[in.Dst] = native.Const(v)
		return true
	}
	args := make([]*uint256.Int, len(in.Args))
	for i, a := range in.Args {
		if !a.IsConst() {
			return false
		}
		args[i] = a.Const
	}
	v, ok := native.Eval(in.Op, args)
	if !ok {
		return false
	}
	s[in.Dst] = native.Const(v)
	return true
}

// constOf looks through s for a bool operand that is known to be constant.
func constOf(s subst, o native.Operand) (*uint256.Int, bool) {
	r := s.resolve(o)
	if r.IsConst() {
		return r.Const, true
	}
	return nil, false
}

func foldTerm(t *native.Terminator) bool {
	switch t.Kind {
	case native.TermIf:
		if !t.If.Cond.IsConst() {
			return false
		}
		target := t.If.Then
		if t.If.Cond.Const.IsZero() {
			target = t.If.Else
		}
		*t = native.Terminator{Kind: native.TermGoto, Goto: native.GotoTerm{Target: target}}
		return true
	case native.TermSwitch:
		if !t.Switch.Value.IsConst() {
			return false
		}
		target := t.Switch.Default
		for _, c := range t.Switch.Cases {
			if c.Value.Eq(t.Switch.Value.Const) {
				target = c.Target
				break
			}
		}
		*t = native.Terminator{Kind: native.TermGoto, Goto: native.GotoTerm{Target: target}}
		return true
	}
	return false
}
