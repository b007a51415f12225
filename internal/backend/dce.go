package backend

import "zkvmc/internal/native"

// removable reports instructions that may be dropped when their result is
// unused. Heap reads stay: they can trap on the heap limit.
func removable(in *native.Instr) bool {
	switch in.Op {
	case native.OpLoad:
		return in.Space == native.SpaceStack || in.Space == native.SpaceCalldata
	case native.OpSize, native.OpContext, native.OpGlobalGet, native.OpAlloca, native.OpNop:
		return true
	}
	return in.Op.IsPure()
}

// DCE removes instructions whose results are never read.
func DCE(f *native.Func) bool {
	changed := false
	for {
		used := make([]bool, len(f.Values))
		mark := func(o native.Operand) {
			if o.IsValue() && int(o.Value) < len(used) && o.Value >= 0 {
				used[o.Value] = true
			}
		}
		for bi := range f.Blocks {
			blk := &f.Blocks[bi]
			for ii := range blk.Instrs {
				for _, a := range blk.Instrs[ii].Args {
					mark(a)
				}
			}
			for _, o := range blk.Term.Operands() {
				mark(o)
			}
		}
		n := 0
		for bi := range f.Blocks {
			n += removeInstrs(&f.Blocks[bi], func(in *native.Instr) bool {
				if in.Op == native.OpNop {
					return true
				}
				return in.Dst != native.NoValueID && !used[in.Dst] && removable(in)
			})
		}
		if n == 0 {
			return changed
		}
		changed = true
	}
}
