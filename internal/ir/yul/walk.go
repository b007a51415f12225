package yul

// Visitor is called for every node in source order. Returning false skips
// the children of the node.
type Visitor func(n Node) bool

// Walk traverses n depth-first in source order.
func Walk(n Node, v Visitor) {
	if n == nil || !v(n) {
		return
	}
	switch n := n.(type) {
	case *Block:
		for _, s := range n.Statements {
			Walk(s, v)
		}
	case *VariableDeclaration:
		if n.Value != nil {
			Walk(n.Value, v)
		}
	case *Assignment:
		for _, t := range n.Targets {
			Walk(t, v)
		}
		Walk(n.Value, v)
	case *If:
		Walk(n.Cond, v)
		Walk(n.Body, v)
	case *Switch:
		Walk(n.Expr, v)
		for _, c := range n.Cases {
			Walk(c, v)
		}
	case *Case:
		if n.Value != nil {
			Walk(n.Value, v)
		}
		Walk(n.Body, v)
	case *ForLoop:
		Walk(n.Pre, v)
		Walk(n.Cond, v)
		Walk(n.Body, v)
		Walk(n.Post, v)
	case *FunctionDefinition:
		Walk(n.Body, v)
	case *ExpressionStatement:
		Walk(n.Expr, v)
	case *FunctionCall:
		for _, a := range n.Args {
			Walk(a, v)
		}
	}
}

// LiteralCalls returns every call of name inside n in source order.
func LiteralCalls(n Node, name string) []*FunctionCall {
	var out []*FunctionCall
	Walk(n, func(n Node) bool {
		if c, ok := n.(*FunctionCall); ok && c.Name == name {
			out = append(out, c)
		}
		return true
	})
	return out
}

// LiteralArg returns the string literal argument idx of call, if any.
func LiteralArg(c *FunctionCall, idx int) (string, bool) {
	if idx < 0 || idx >= len(c.Args) {
		return "", false
	}
	l, ok := c.Args[idx].(*Literal)
	if !ok || (l.Kind != LitString && l.Kind != LitHex) {
		return "", false
	}
	return l.Value, true
}
