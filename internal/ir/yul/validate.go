package yul

import (
	"fmt"

	"zkvmc/internal/diag"
	"zkvmc/internal/source"
)

type symKind uint8

const (
	symVar symKind = iota + 1
	symFunc
)

type symbol struct {
	kind    symKind
	params  int
	returns int
	span    source.Span
}

type vscope struct {
	parent   *vscope
	names    map[string]symbol
	boundary bool // тело функции: переменные снаружи не видны
}

func (s *vscope) lookup(name string) (symbol, bool) {
	crossed := false
	for sc := s; sc != nil; sc = sc.parent {
		if sym, ok := sc.names[name]; ok {
			if sym.kind == symVar && crossed {
				return symbol{}, false
			}
			return sym, true
		}
		if sc.boundary {
			crossed = true
		}
	}
	return symbol{}, false
}

type validator struct {
	rep   diag.Reporter
	ok    bool
	loops int  // глубина циклов внутри текущей функции
	inFn  bool // внутри определения функции
	inPre bool
}

// Validate checks an object tree (code of every nested object) and reports
// IR validation errors. It returns false when anything was reported.
func Validate(obj *Object, rep diag.Reporter) bool {
	v := &validator{rep: rep, ok: true}
	v.object(obj)
	return v.ok
}

func (v *validator) errorf(code diag.Code, sp source.Span, format string, args ...any) {
	v.ok = false
	diag.ReportError(v.rep, code, sp, fmt.Sprintf(format, args...)).Emit()
}

func (v *validator) object(obj *Object) {
	if obj.Code == nil {
		v.errorf(diag.IRVMalformedInput, obj.Src, "object %q has no code", obj.Name)
	} else {
		v.block(obj.Code, &vscope{boundary: true})
	}
	for _, sub := range obj.Objects {
		v.object(sub)
	}
}

func (v *validator) declare(sc *vscope, name string, sym symbol) {
	if _, ok := LookupBuiltin(name); ok {
		v.errorf(diag.IRVDuplicateDeclaration, sym.span, "%q shadows a builtin", name)
		return
	}
	if _, ok := sc.lookup(name); ok {
		v.errorf(diag.IRVDuplicateDeclaration, sym.span, "%q is already declared", name)
		return
	}
	if sc.names == nil {
		sc.names = make(map[string]symbol)
	}
	sc.names[name] = sym
}

// block hoists function definitions before checking statements.
func (v *validator) block(b *Block, parent *vscope) {
	sc := &vscope{parent: parent}
	v.hoist(b, sc)
	for _, st := range b.Statements {
		v.statement(st, sc)
	}
}

func (v *validator) hoist(b *Block, sc *vscope) {
	for _, st := range b.Statements {
		if fn, ok := st.(*FunctionDefinition); ok {
			v.declare(sc, fn.Name, symbol{kind: symFunc, params: len(fn.Params), returns: len(fn.Returns), span: fn.Src})
		}
	}
}

func (v *validator) statement(st Statement, sc *vscope) {
	switch st := st.(type) {
	case *Block:
		v.block(st, sc)
	case *VariableDeclaration:
		if st.Value != nil {
			v.expectValues(st.Value, sc, len(st.Names))
		}
		for _, n := range st.Names {
			v.declare(sc, n.Name, symbol{kind: symVar, span: n.Src})
		}
	case *Assignment:
		for _, t := range st.Targets {
			sym, ok := sc.lookup(t.Name)
			if !ok {
				v.errorf(diag.IRVUndefinedIdentifier, t.Src, "assignment to undeclared variable %q", t.Name)
			} else if sym.kind != symVar {
				v.errorf(diag.IRVUndefinedIdentifier, t.Src, "%q is not a variable", t.Name)
			}
		}
		v.expectValues(st.Value, sc, len(st.Targets))
	case *If:
		v.expectValues(st.Cond, sc, 1)
		v.block(st.Body, sc)
	case *Switch:
		v.expectValues(st.Expr, sc, 1)
		v.switchCases(st, sc)
	case *ForLoop:
		v.forLoop(st, sc)
	case *Break, *Continue:
		if v.loops == 0 || v.inPre {
			v.errorf(diag.IRVMisplacedControl, st.Span(), "break/continue outside of a loop body")
		}
	case *Leave:
		if !v.inFn {
			v.errorf(diag.IRVMisplacedControl, st.Span(), "leave outside of a function")
		}
	case *FunctionDefinition:
		v.function(st, sc)
	case *ExpressionStatement:
		v.expectValues(st.Expr, sc, 0)
	}
}

func (v *validator) switchCases(st *Switch, sc *vscope) {
	seen := make(map[string]source.Span)
	defaults := 0
	for _, c := range st.Cases {
		if c.Value == nil {
			defaults++
			if defaults > 1 {
				v.errorf(diag.IRVDuplicateCase, c.Src, "more than one default case")
			}
		} else {
			w, err := c.Value.Word()
			if err != nil {
				v.errorf(diag.IRVInvalidLiteral, c.Value.Src, "invalid case value: %v", err)
			} else {
				key := w.Hex()
				if prev, dup := seen[key]; dup {
					diag.ReportError(v.rep, diag.IRVDuplicateCase, c.Src, fmt.Sprintf("duplicate case %s", key)).
						WithNote(prev, "previous case").Emit()
					v.ok = false
				}
				seen[key] = c.Src
			}
		}
		v.block(c.Body, sc)
	}
}

func (v *validator) forLoop(st *ForLoop, sc *vscope) {
	for _, s := range st.Pre.Statements {
		if fn, ok := s.(*FunctionDefinition); ok {
			v.errorf(diag.IRVFunctionInForInit, fn.Src, "function %q defined in for-loop init", fn.Name)
		}
	}
	// переменные из pre видны в условии, теле и post
	loopScope := &vscope{parent: sc}
	prevPre := v.inPre
	v.inPre = true
	for _, s := range st.Pre.Statements {
		v.statement(s, loopScope)
	}
	v.expectValues(st.Cond, loopScope, 1)
	v.block(st.Post, loopScope)
	v.inPre = prevPre

	v.loops++
	v.block(st.Body, loopScope)
	v.loops--
}

func (v *validator) function(fn *FunctionDefinition, sc *vscope) {
	fs := &vscope{parent: sc, boundary: true}
	for _, p := range fn.Params {
		v.declare(fs, p.Name, symbol{kind: symVar, span: p.Src})
	}
	for _, r := range fn.Returns {
		v.declare(fs, r.Name, symbol{kind: symVar, span: r.Src})
	}
	prevLoops, prevFn, prevPre := v.loops, v.inFn, v.inPre
	v.loops, v.inFn, v.inPre = 0, true, false
	v.block(fn.Body, fs)
	v.loops, v.inFn, v.inPre = prevLoops, prevFn, prevPre
}

// expectValues checks e and that it yields exactly want values.
func (v *validator) expectValues(e Expression, sc *vscope, want int) {
	got := v.expression(e, sc)
	if got >= 0 && got != want {
		v.errorf(diag.IRVArityMismatch, e.Span(), "expression yields %d value(s), %d expected", got, want)
	}
}

// expression returns the number of values e yields, or -1 if unknown.
func (v *validator) expression(e Expression, sc *vscope) int {
	switch e := e.(type) {
	case *Literal:
		if _, err := e.Word(); err != nil {
			v.errorf(diag.IRVInvalidLiteral, e.Src, "invalid literal: %v", err)
		}
		return 1
	case *Identifier:
		sym, ok := sc.lookup(e.Name)
		if !ok || sym.kind != symVar {
			v.errorf(diag.IRVUndefinedIdentifier, e.Src, "undefined variable %q", e.Name)
			return -1
		}
		return 1
	case *FunctionCall:
		return v.call(e, sc)
	}
	return -1
}

func (v *validator) call(c *FunctionCall, sc *vscope) int {
	params, returns := 0, 0
	literalArg := -1
	if bi, ok := LookupBuiltin(c.Name); ok {
		params, returns, literalArg = bi.Args, bi.Returns, bi.LiteralArg
	} else if sym, ok := sc.lookup(c.Name); ok && sym.kind == symFunc {
		params, returns = sym.params, sym.returns
	} else {
		v.errorf(diag.IRVUndefinedIdentifier, c.Src, "call to undefined function %q", c.Name)
		for _, a := range c.Args {
			v.expression(a, sc)
		}
		return -1
	}
	if len(c.Args) != params {
		v.errorf(diag.IRVArityMismatch, c.Src, "%q takes %d argument(s), %d given", c.Name, params, len(c.Args))
	}
	for i, a := range c.Args {
		if i == literalArg {
			if _, ok := LiteralArg(c, i); !ok {
				v.errorf(diag.IRVInvalidLiteral, a.Span(), "argument %d of %q must be a string literal", i+1, c.Name)
			}
			continue
		}
		v.expectValues(a, sc, 1)
	}
	return returns
}
