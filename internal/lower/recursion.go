package lower

import (
	"slices"
	"strings"

	"zkvmc/internal/diag"
	"zkvmc/internal/native"
	"zkvmc/internal/project/dag"
)

// guardRecursion finds recursive functions among funcs and wraps each of
// them in a depth counter that traps past MaxRecursionDepth. One advisory
// is reported per recursive component.
func guardRecursion(c *Context, funcs []*yulFunc, calls map[native.FuncID]map[native.FuncID]struct{}) {
	if len(funcs) == 0 {
		return
	}
	index := make(map[native.FuncID]int, len(funcs))
	for i, yf := range funcs {
		index[yf.f.ID] = i
	}
	adj := make([][]int, len(funcs))
	for i, yf := range funcs {
		for callee := range calls[yf.f.ID] {
			if j, ok := index[callee]; ok {
				adj[i] = append(adj[i], j)
			}
		}
		slices.Sort(adj[i])
	}

	var enter, leave *native.Func
	for _, comp := range dag.StronglyConnected(adj) {
		self := len(comp) == 1 && slices.Contains(adj[comp[0]], comp[0])
		if len(comp) < 2 && !self {
			continue
		}
		names := make([]string, 0, len(comp))
		for _, i := range comp {
			names = append(names, funcs[i].def.Name)
		}
		first := funcs[comp[0]].def
		b := diag.ReportWarning(c.Rep, diag.ADVUnboundedRecursion, first.Src,
			"function "+first.Name+" is recursive; call depth is limited to 1024 at runtime")
		if len(names) > 1 {
			b = b.WithNote(first.Src, "cycle: "+strings.Join(names, " -> "))
		}
		b.Emit()

		if enter == nil {
			enter, leave = depthFuncs(c)
		}
		for _, i := range comp {
			wrapDepth(funcs[i], enter, leave)
		}
	}
}

// depthFuncs returns the shared counter functions of the module, creating
// them on first use.
func depthFuncs(c *Context) (enter, leave *native.Func) {
	if f := c.Module.FuncByName("__depth.enter"); f != nil {
		return f, c.Module.FuncByName("__depth.leave")
	}
	g := c.Module.AddGlobal(globalDepth)

	enter = c.Module.AddFunc("__depth.enter", 0, 0)
	b := native.NewFuncBuilder(enter)
	n := b.Bin(native.OpAdd, b.GlobalGet(g), native.U64(1))
	over, ok := b.NewBlock("overflow"), b.NewBlock("ok")
	b.If(b.Cmp(native.OpUGt, n, native.U64(MaxRecursionDepth)), over, ok)
	b.SetBlock(over)
	b.Trap("recursion depth exceeded")
	b.SetBlock(ok)
	b.GlobalSet(g, n)
	b.Return()

	leave = c.Module.AddFunc("__depth.leave", 0, 0)
	b = native.NewFuncBuilder(leave)
	b.GlobalSet(g, b.Bin(native.OpSub, b.GlobalGet(g), native.U64(1)))
	b.Return()
	return enter, leave
}

// wrapDepth calls enter on function entry and leave in the single exit
// block every return goes through.
func wrapDepth(yf *yulFunc, enter, leave *native.Func) {
	f := yf.f
	entry := &f.Blocks[f.Entry]
	call := native.Instr{Op: native.OpCall, Dst: native.NoValueID, Callee: enter.ID}
	entry.Instrs = append([]native.Instr{call}, entry.Instrs...)
	exit := &f.Blocks[yf.exit]
	exit.Instrs = append(exit.Instrs, native.Instr{Op: native.OpCall, Dst: native.NoValueID, Callee: leave.ID})
}
