package lower

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"zkvmc/internal/diag"
	"zkvmc/internal/ir"
	"zkvmc/internal/ir/yul"
	"zkvmc/internal/native"
	"zkvmc/internal/project"
	"zkvmc/internal/symbols"
)

type yulFunc struct {
	def  *yul.FunctionDefinition
	f    *native.Func
	exit native.BlockID
	rets []native.Operand
}

type loopTargets struct {
	brk, cont native.BlockID
}

// yulLowerer lowers one segment of a Yul object. Variables live in stack
// slots; the backend forwards slot stores to loads.
type yulLowerer struct {
	c     *Context
	table *symbols.Table
	// slots are indexed by Symbol.Ref of variables
	slots []native.Operand
	funcs map[*yul.FunctionDefinition]*yulFunc
	order []*yulFunc
	fn    *yulFunc
	loops []loopTargets
	calls map[native.FuncID]map[native.FuncID]struct{}
}

func lowerYulObject(c *Context, src *ir.YulSource, deploy, runtime *native.Func) {
	obj := src.Object
	if !yul.Validate(obj, c.Rep) {
		c.failed = true
		return
	}
	rt := obj.Runtime()
	if rt == nil {
		c.errorf(diag.IRVMissingRuntime, obj.Src, "object %q has no runtime object %q", obj.Name, obj.Name+yul.DeployedSuffix)
		return
	}
	c.selfNames[obj.Name] = struct{}{}
	c.selfNames[rt.Name] = struct{}{}
	checkYulImmutables(c, obj, rt)

	lowerYulSegment(c, SegDeploy, obj, deploy)
	lowerYulSegment(c, SegRuntime, rt, runtime)
}

func lowerYulSegment(c *Context, seg Segment, obj *yul.Object, f *native.Func) {
	c.enter(seg, f)
	l := &yulLowerer{
		c:     c,
		table: symbols.NewTable(symbols.Hints{}),
		funcs: make(map[*yul.FunctionDefinition]*yulFunc),
		calls: make(map[native.FuncID]map[native.FuncID]struct{}),
	}
	scope := l.table.Enter(symbols.ScopeSegment, obj.Src)
	l.block(obj.Code)
	l.table.Leave(scope)
	c.exitEnd()
	guardRecursion(c, l.order, l.calls)
}

func (l *yulLowerer) block(blk *yul.Block) {
	scope := l.table.Enter(symbols.ScopeBlock, blk.Src)
	l.hoist(blk)
	for _, st := range blk.Statements {
		l.statement(st)
	}
	l.table.Leave(scope)
}

// hoist creates the native functions of a block before its statements, so
// calls may precede definitions.
func (l *yulLowerer) hoist(blk *yul.Block) {
	for _, st := range blk.Statements {
		fd, ok := st.(*yul.FunctionDefinition)
		if !ok {
			continue
		}
		f := l.c.Module.AddFunc(l.funcName(fd.Name), len(fd.Params), len(fd.Returns))
		f.Span = fd.Src
		yf := &yulFunc{def: fd, f: f}
		l.funcs[fd] = yf
		l.order = append(l.order, yf)
		ref, err := safecast.Conv[uint32](f.ID)
		if err != nil {
			panic(fmt.Errorf("function id overflow: %w", err))
		}
		l.table.Declare(fd.Name, symbols.SymbolFunction, fd.Src, ref)
	}
}

// funcName prefixes the segment and disambiguates names reused in
// different blocks.
func (l *yulLowerer) funcName(name string) string {
	base := l.c.Segment.String() + "." + name
	if l.c.Module.FuncByName(base) == nil {
		return base
	}
	for i := 1; ; i++ {
		cand := fmt.Sprintf("%s#%d", base, i)
		if l.c.Module.FuncByName(cand) == nil {
			return cand
		}
	}
}

func (l *yulLowerer) declareVar(name yul.TypedName, v native.Operand) {
	slot := l.c.B.EntryAlloca(1)
	l.c.B.Store(native.SpaceStack, slot, v)
	ref, err := safecast.Conv[uint32](len(l.slots))
	if err != nil {
		panic(fmt.Errorf("variable count overflow: %w", err))
	}
	l.slots = append(l.slots, slot)
	l.table.Declare(name.Name, symbols.SymbolVariable, name.Src, ref)
}

func (l *yulLowerer) slot(id *yul.Identifier) (native.Operand, bool) {
	sym, ok := l.table.Lookup(id.Name)
	if !ok || sym.Kind != symbols.SymbolVariable {
		l.c.errorf(diag.IRVUndefinedIdentifier, id.Src, "undefined variable %q", id.Name)
		return native.Operand{}, false
	}
	return l.slots[sym.Ref], true
}

func (l *yulLowerer) statement(st yul.Statement) {
	b := l.c.B
	switch st := st.(type) {
	case *yul.Block:
		l.block(st)
	case *yul.FunctionDefinition:
		l.function(l.funcs[st])
	case *yul.VariableDeclaration:
		var vals []native.Operand
		if st.Value != nil {
			vals = l.exprN(st.Value, len(st.Names))
		} else {
			vals = fit(nil, len(st.Names))
		}
		for i, name := range st.Names {
			l.declareVar(name, vals[i])
		}
	case *yul.Assignment:
		vals := l.exprN(st.Value, len(st.Targets))
		for i, t := range st.Targets {
			if slot, ok := l.slot(t); ok {
				b.Store(native.SpaceStack, slot, vals[i])
			}
		}
	case *yul.If:
		cond := l.expr1(st.Cond)
		then, join := b.NewBlock("if.then"), b.NewBlock("if.join")
		b.If(cond, then, join)
		b.SetBlock(then)
		l.block(st.Body)
		l.jump(join)
		b.SetBlock(join)
	case *yul.Switch:
		l.switchStmt(st)
	case *yul.ForLoop:
		l.forLoop(st)
	case *yul.Break:
		if n := len(l.loops); n > 0 {
			b.Goto(l.loops[n-1].brk)
		}
	case *yul.Continue:
		if n := len(l.loops); n > 0 {
			b.Goto(l.loops[n-1].cont)
		}
	case *yul.Leave:
		if l.fn != nil {
			b.Goto(l.fn.exit)
		}
	case *yul.ExpressionStatement:
		l.expr(st.Expr)
	default:
		l.c.errorf(diag.IRVMalformedInput, st.Span(), "unexpected statement %T", st)
	}
}

// jump closes the current block with a goto unless it already ended.
func (l *yulLowerer) jump(target native.BlockID) {
	if !l.c.B.Terminated() {
		l.c.B.Goto(target)
	}
}

func (l *yulLowerer) switchStmt(st *yul.Switch) {
	b := l.c.B
	v := l.expr1(st.Expr)
	join := b.NewBlock("switch.join")
	def := join
	var cases []native.SwitchCase
	bodies := make([]native.BlockID, len(st.Cases))
	for i, cs := range st.Cases {
		bodies[i] = b.NewBlock("switch.case")
		if cs.Value == nil {
			def = bodies[i]
			continue
		}
		w, err := cs.Value.Word()
		if err != nil {
			l.c.errorf(diag.IRVInvalidLiteral, cs.Value.Src, "%v", err)
			continue
		}
		cases = append(cases, native.SwitchCase{Value: w, Target: bodies[i]})
	}
	b.Switch(v, cases, def)
	for i, cs := range st.Cases {
		b.SetBlock(bodies[i])
		l.block(cs.Body)
		l.jump(join)
	}
	b.SetBlock(join)
}

func (l *yulLowerer) forLoop(st *yul.ForLoop) {
	b := l.c.B
	scope := l.table.Enter(symbols.ScopeBlock, st.Pre.Src)
	for _, s := range st.Pre.Statements {
		l.statement(s)
	}
	head, body := b.NewBlock("for.head"), b.NewBlock("for.body")
	post, exit := b.NewBlock("for.post"), b.NewBlock("for.exit")
	l.jump(head)
	b.SetBlock(head)
	b.If(l.expr1(st.Cond), body, exit)

	b.SetBlock(body)
	l.loops = append(l.loops, loopTargets{brk: exit, cont: post})
	l.block(st.Body)
	l.loops = l.loops[:len(l.loops)-1]
	l.jump(post)

	b.SetBlock(post)
	l.block(st.Post)
	l.jump(head)
	b.SetBlock(exit)
	l.table.Leave(scope)
}

func (l *yulLowerer) function(yf *yulFunc) {
	c := l.c
	saveB, saveFn, saveLoops := c.B, l.fn, l.loops
	c.B = native.NewFuncBuilder(yf.f)
	l.fn, l.loops = yf, nil
	defer func() { c.B, l.fn, l.loops = saveB, saveFn, saveLoops }()

	fd := yf.def
	scope := l.table.Enter(symbols.ScopeFunction, fd.Src)
	for i, p := range fd.Params {
		l.declareVar(p, native.Val(yf.f.Params[i]))
	}
	for _, r := range fd.Returns {
		l.declareVar(r, native.U64(0))
		yf.rets = append(yf.rets, l.slots[len(l.slots)-1])
	}
	yf.exit = c.B.NewBlock("exit")
	l.block(fd.Body)
	l.jump(yf.exit)
	c.B.SetBlock(yf.exit)
	vals := make([]native.Operand, len(yf.rets))
	for i, slot := range yf.rets {
		vals[i] = c.B.Load(native.SpaceStack, slot)
	}
	c.B.Return(vals...)
	l.table.Leave(scope)
}

func (l *yulLowerer) expr1(e yul.Expression) native.Operand {
	return l.exprN(e, 1)[0]
}

func (l *yulLowerer) exprN(e yul.Expression, n int) []native.Operand {
	return fit(l.expr(e), n)
}

func (l *yulLowerer) expr(e yul.Expression) []native.Operand {
	switch e := e.(type) {
	case *yul.Literal:
		w, err := e.Word()
		if err != nil {
			l.c.errorf(diag.IRVInvalidLiteral, e.Src, "%v", err)
			return one(zero())
		}
		return one(native.Const(w))
	case *yul.Identifier:
		slot, ok := l.slot(e)
		if !ok {
			return one(zero())
		}
		return one(l.c.B.Load(native.SpaceStack, slot))
	case *yul.FunctionCall:
		if sym, ok := l.table.Lookup(e.Name); ok && sym.Kind == symbols.SymbolFunction {
			callee := l.c.Module.Func(native.FuncID(sym.Ref)) //nolint:gosec // ref is a function id
			args := l.args(e.Args)
			if l.fn != nil {
				edges := l.calls[l.fn.f.ID]
				if edges == nil {
					edges = make(map[native.FuncID]struct{})
					l.calls[l.fn.f.ID] = edges
				}
				edges[callee.ID] = struct{}{}
			}
			return l.c.B.Call(callee, args...)
		}
		return l.builtin(e)
	}
	l.c.errorf(diag.IRVMalformedInput, e.Span(), "unexpected expression %T", e)
	return one(zero())
}

// args evaluates call arguments right to left, as the EVM dialect does.
func (l *yulLowerer) args(list []yul.Expression) []native.Operand {
	out := make([]native.Operand, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out[i] = l.expr1(list[i])
	}
	return out
}

func (l *yulLowerer) builtin(call *yul.FunctionCall) []native.Operand {
	c := l.c
	bi, ok := yul.LookupBuiltin(call.Name)
	if !ok {
		c.errorf(diag.IRVUndefinedIdentifier, call.Src, "undefined function %q", call.Name)
		return nil
	}
	lit, _ := yul.LiteralArg(call, bi.LiteralArg)
	switch call.Name {
	case "datasize":
		return one(c.dataSize(c.resolveData(lit, call.Src)))
	case "dataoffset":
		return one(c.dataOffset(c.resolveData(lit, call.Src)))
	case "datacopy", "codecopy":
		n := l.expr1(call.Args[2])
		var ref dataRef
		var off native.Operand
		if inner, ok := call.Args[1].(*yul.FunctionCall); ok && inner.Name == "dataoffset" {
			name, _ := yul.LiteralArg(inner, 0)
			ref = c.resolveData(name, inner.Src)
			off = c.dataOffset(ref)
		} else {
			off = l.expr1(call.Args[1])
		}
		dst := l.expr1(call.Args[0])
		c.codeCopy(dst, off, n, ref, call.Src)
		return nil
	case "setimmutable":
		v := l.expr1(call.Args[2])
		l.expr1(call.Args[0])
		c.setImmutable(lit, v)
		return nil
	case "loadimmutable":
		return one(c.loadImmutable(lit))
	case "linkersymbol":
		path := lit
		if full, err := project.NormalizeName(lit); err == nil {
			path = full
		}
		return one(c.B.LinkSym(native.LinkSymbol{Kind: native.SymLibrary, Path: path}))
	case "memoryguard":
		return one(l.expr1(call.Args[0]))
	}
	if strings.HasPrefix(call.Name, "verbatim") {
		c.reject("verbatim", call.Src)
		return fit(nil, bi.Returns)
	}
	return fit(c.evm(call.Name, l.args(call.Args), call.Src), bi.Returns)
}
