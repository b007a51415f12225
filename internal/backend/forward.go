package backend

import "zkvmc/internal/native"

// slotAllocas returns the single-word stack allocations of f.
func slotAllocas(f *native.Func) map[native.ValueID]bool {
	slots := make(map[native.ValueID]bool)
	for bi := range f.Blocks {
		for _, in := range f.Blocks[bi].Instrs {
			if in.Op == native.OpAlloca && len(in.Args) == 1 && in.Args[0].IsConstU64(1) {
				slots[in.Dst] = true
			}
		}
	}
	return slots
}

// ForwardSlots replaces loads of single-word stack slots with the value
// stored earlier in the same block, then deletes slots that are written
// but never read.
func ForwardSlots(f *native.Func) bool {
	slots := slotAllocas(f)
	if len(slots) == 0 {
		return false
	}
	s := make(subst)
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		known := make(map[native.ValueID]native.Operand)
		removeInstrs(blk, func(in *native.Instr) bool {
			switch in.Op {
			case native.OpLoad:
				if in.Space != native.SpaceStack {
					return false
				}
				p := in.Args[0]
				if !p.IsValue() || !slots[p.Value] {
					return false
				}
				if v, ok := known[p.Value]; ok {
					s[in.Dst] = v
					return true
				}
				known[p.Value] = native.Val(in.Dst)
			case native.OpStore, native.OpStore8, native.OpCopy:
				if in.Space != native.SpaceStack {
					return false
				}
				p := in.Args[0]
				if in.Op == native.OpStore && p.IsValue() && slots[p.Value] {
					known[p.Value] = s.resolve(in.Args[1])
					return false
				}
				clear(known)
			case native.OpCall, native.OpFarCall:
				clear(known)
			}
			return false
		})
	}
	changed := s.apply(f)
	if dropDeadSlots(f, slots) {
		changed = true
	}
	return changed || len(s) > 0
}

// dropDeadSlots removes slots whose only uses are as a store target.
func dropDeadSlots(f *native.Func, slots map[native.ValueID]bool) bool {
	read := make(map[native.ValueID]bool)
	for bi := range f.Blocks {
		blk := &f.Blocks[bi]
		for _, in := range blk.Instrs {
			for ai, a := range in.Args {
				if !a.IsValue() || !slots[a.Value] {
					continue
				}
				if in.Op == native.OpStore && ai == 0 {
					continue
				}
				read[a.Value] = true
			}
		}
		for _, o := range blk.Term.Operands() {
			if o.IsValue() && slots[o.Value] {
				read[o.Value] = true
			}
		}
	}
	n := 0
	for bi := range f.Blocks {
		n += removeInstrs(&f.Blocks[bi], func(in *native.Instr) bool {
			switch in.Op {
			case native.OpAlloca:
				return slots[in.Dst] && !read[in.Dst]
			case native.OpStore:
				p := in.Args[0]
				return p.IsValue() && slots[p.Value] && !read[p.Value]
			}
			return false
		})
	}
	return n > 0
}
