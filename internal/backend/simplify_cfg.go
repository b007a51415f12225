package backend

import "zkvmc/internal/native"

// SimplifyCFG performs control flow graph simplification on a function.
// Transformations:
// 1. Remove trivial goto blocks (0 instructions + goto terminator)
// 2. Collapse goto chains
// 3. Merge a block into its only predecessor when that one ends in a goto
// 4. Remove unreachable blocks
// 5. Renumber blocks deterministically
func SimplifyCFG(f *native.Func) bool {
	if f == nil || len(f.Blocks) == 0 {
		return false
	}
	before := len(f.Blocks)

	redirects := buildRedirectMap(f)
	applyRedirects(f, redirects)
	compactBlocks(f, computeReachability(f))
	merged := mergeChains(f)
	compactBlocks(f, computeReachability(f))
	return merged || len(redirects) > 0 || len(f.Blocks) != before
}

// buildRedirectMap finds all trivial goto blocks and builds a mapping
// from their IDs to their final targets (following chains).
func buildRedirectMap(f *native.Func) map[native.BlockID]native.BlockID {
	redirects := make(map[native.BlockID]native.BlockID)
	for i := range f.Blocks {
		bb := &f.Blocks[i]
		if !isTrivialGotoBlock(f, bb.ID) {
			continue
		}
		target := bb.Term.Goto.Target
		visited := map[native.BlockID]bool{bb.ID: true}
		for !visited[target] {
			visited[target] = true
			if next, ok := redirects[target]; ok {
				target = next
				continue
			}
			if isTrivialGotoBlock(f, target) {
				target = f.Blocks[target].Term.Goto.Target
				continue
			}
			break
		}
		// a trivial block in a cycle of trivial blocks is an infinite loop; keep it
		if target == bb.ID {
			continue
		}
		redirects[bb.ID] = target
	}
	return redirects
}

func isTrivialGotoBlock(f *native.Func, id native.BlockID) bool {
	if id < 0 || int(id) >= len(f.Blocks) {
		return false
	}
	bb := &f.Blocks[id]
	return len(bb.Instrs) == 0 && bb.Term.Kind == native.TermGoto
}

func applyRedirects(f *native.Func, redirects map[native.BlockID]native.BlockID) {
	if len(redirects) == 0 {
		return
	}
	redirect := func(id native.BlockID) native.BlockID {
		if newID, ok := redirects[id]; ok {
			return newID
		}
		return id
	}
	for i := range f.Blocks {
		f.Blocks[i].Term.MapTargets(redirect)
	}
	f.Entry = redirect(f.Entry)
}

// mergeChains appends a block to its single predecessor when the
// predecessor ends in a goto to it.
func mergeChains(f *native.Func) bool {
	merged := false
	for {
		preds := make([]int, len(f.Blocks))
		for i := range f.Blocks {
			for _, s := range f.Blocks[i].Term.Successors() {
				if s >= 0 && int(s) < len(preds) {
					preds[s]++
				}
			}
		}
		progress := false
		for i := range f.Blocks {
			bb := &f.Blocks[i]
			if bb.Term.Kind != native.TermGoto {
				continue
			}
			t := bb.Term.Goto.Target
			if t == bb.ID || t == f.Entry || preds[t] != 1 {
				continue
			}
			succ := &f.Blocks[t]
			bb.Instrs = append(bb.Instrs, succ.Instrs...)
			bb.Term = succ.Term
			succ.Instrs = nil
			succ.Term = native.Terminator{Kind: native.TermUnreachable}
			progress = true
			break
		}
		if !progress {
			return merged
		}
		merged = true
	}
}

// computeReachability performs a DFS from the entry block.
func computeReachability(f *native.Func) []bool {
	reachable := make([]bool, len(f.Blocks))
	var visit func(id native.BlockID)
	visit = func(id native.BlockID) {
		if id < 0 || int(id) >= len(f.Blocks) || reachable[id] {
			return
		}
		reachable[id] = true
		for _, s := range f.Blocks[id].Term.Successors() {
			visit(s)
		}
	}
	visit(f.Entry)
	return reachable
}

// compactBlocks removes unreachable blocks and renumbers the remaining ones.
func compactBlocks(f *native.Func, reachable []bool) {
	count := 0
	for _, r := range reachable {
		if r {
			count++
		}
	}
	if count == len(f.Blocks) {
		for i := range f.Blocks {
			f.Blocks[i].ID = native.BlockID(i) //nolint:gosec // G115: bounded by existing block count
		}
		return
	}

	oldToNew := make(map[native.BlockID]native.BlockID)
	newBlocks := make([]native.Block, 0, count)
	for i, keep := range reachable {
		if keep {
			oldToNew[native.BlockID(i)] = native.BlockID(len(newBlocks)) //nolint:gosec // G115: bounded by block count
			newBlocks = append(newBlocks, f.Blocks[i])
		}
	}
	remap := func(id native.BlockID) native.BlockID {
		if newID, ok := oldToNew[id]; ok {
			return newID
		}
		return id
	}
	for i := range newBlocks {
		newBlocks[i].ID = native.BlockID(i) //nolint:gosec // G115: bounded by newBlocks length
		newBlocks[i].Term.MapTargets(remap)
	}
	f.Blocks = newBlocks
	f.Entry = remap(f.Entry)
}
