package backend

import "zkvmc/internal/native"

// subst maps removed values to the operand that replaces them.
type subst map[native.ValueID]native.Operand

func (s subst) resolve(o native.Operand) native.Operand {
	for i := 0; o.IsValue() && i < len(s)+1; i++ {
		r, ok := s[o.Value]
		if !ok {
			break
		}
		o = r
	}
	return o
}

// needsBool reports operand positions typed bool; a constant or a word
// cannot stand there.
func needsBool(in *native.Instr, idx int) bool {
	return idx == 0 && (in.Op == native.OpSelect || in.Op == native.OpZExt)
}

// apply rewrites every operand of f through s. It reports whether
// anything changed.
func (s subst) apply(f *native.Func) bool {
	if len(s) == 0 {
		return false
	}
	changed := false
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		for ii := range blk.Instrs {
			in := &blk.Instrs[ii]
			for ai, a := range in.Args {
				if !a.IsValue() {
					continue
				}
				r := s.resolve(a)
				if r == a || needsBool(in, ai) && f.OperandType(r).Kind != native.TypeBool {
					continue
				}
				in.Args[ai] = r
				changed = true
			}
		}
		blk.Term.MapOperands(func(o native.Operand) native.Operand {
			r := s.resolve(o)
			if r != o {
				changed = true
			}
			return r
		})
	}
	return changed
}

// removeInstrs drops the instructions for which drop returns true.
func removeInstrs(blk *native.Block, drop func(*native.Instr) bool) int {
	kept := blk.Instrs[:0]
	n := 0
	for i := range blk.Instrs {
		if drop(&blk.Instrs[i]) {
			n++
			continue
		}
		kept = append(kept, blk.Instrs[i])
	}
	blk.Instrs = kept
	return n
}
