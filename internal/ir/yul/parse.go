package yul

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"zkvmc/internal/source"
)

var textParser = participle.MustBuild[gObject](
	participle.Lexer(yulLexer),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	participle.UseLookahead(64),
)

// SyntaxError is a parse failure of Yul text.
type SyntaxError struct {
	Span source.Span
	Msg  string
}

func (e *SyntaxError) Error() string { return e.Msg }

// ParseText parses a Yul object from source text.
func ParseText(name string, src []byte, file source.FileID) (*Object, error) {
	tree, err := textParser.ParseBytes(name, src)
	if err != nil {
		var pe participle.Error
		if ok := asParticipleError(err, &pe); ok {
			off := uint32(max(pe.Position().Offset, 0)) // #nosec G115
			return nil, &SyntaxError{Span: source.Span{File: file, Start: off, End: off + 1}, Msg: pe.Message()}
		}
		return nil, err
	}
	c := converter{file: file}
	obj := c.object(tree)
	if c.err != nil {
		return nil, c.err
	}
	return obj, nil
}

func asParticipleError(err error, out *participle.Error) bool {
	pe, ok := err.(participle.Error)
	if ok {
		*out = pe
	}
	return ok
}

type converter struct {
	file source.FileID
	err  error
}

func (c *converter) span(pos, end lexer.Position) source.Span {
	return source.Span{File: c.file, Start: uint32(pos.Offset), End: uint32(end.Offset)} // #nosec G115
}

func (c *converter) fail(sp source.Span, format string, args ...any) {
	if c.err == nil {
		c.err = &SyntaxError{Span: sp, Msg: fmt.Sprintf(format, args...)}
	}
}

func (c *converter) object(g *gObject) *Object {
	obj := &Object{Src: c.span(g.Pos, g.EndPos), Name: c.unquote(g.Name, g.Pos)}
	obj.Code = c.block(g.Code)
	for _, it := range g.Items {
		switch {
		case it.Object != nil:
			obj.Objects = append(obj.Objects, c.object(it.Object))
		case it.Data != nil:
			if obj.Data == nil {
				obj.Data = make(map[string][]byte)
			}
			name := c.unquote(it.Data.Name, it.Data.Pos)
			obj.Data[name] = []byte(c.stringValue(it.Data.Value, it.Data.Pos))
		}
	}
	return obj
}

func (c *converter) block(g *gBlock) *Block {
	blk := &Block{Src: c.span(g.Pos, g.EndPos)}
	for _, st := range g.Statements {
		blk.Statements = append(blk.Statements, c.statement(st))
	}
	return blk
}

func (c *converter) names(list []string, sp source.Span) []TypedName {
	out := make([]TypedName, len(list))
	for i, n := range list {
		out[i] = TypedName{Src: sp, Name: n}
	}
	return out
}

func (c *converter) statement(g *gStatement) Statement {
	sp := c.span(g.Pos, g.EndPos)
	switch {
	case g.Function != nil:
		f := g.Function
		return &FunctionDefinition{
			Src:     sp,
			Name:    f.Name,
			Params:  c.names(f.Params, sp),
			Returns: c.names(f.Returns, sp),
			Body:    c.block(f.Body),
		}
	case g.Let != nil:
		decl := &VariableDeclaration{Src: sp, Names: c.names(g.Let.Names, sp)}
		if g.Let.Value != nil {
			decl.Value = c.expr(g.Let.Value)
		}
		return decl
	case g.If != nil:
		return &If{Src: sp, Cond: c.expr(g.If.Cond), Body: c.block(g.If.Body)}
	case g.Switch != nil:
		sw := &Switch{Src: sp, Expr: c.expr(g.Switch.Expr)}
		for _, gc := range g.Switch.Cases {
			sw.Cases = append(sw.Cases, &Case{
				Src:   c.span(gc.Pos, gc.EndPos),
				Value: c.literal(gc.Value),
				Body:  c.block(gc.Body),
			})
		}
		if d := g.Switch.Default; d != nil {
			sw.Cases = append(sw.Cases, &Case{Src: c.span(d.Pos, d.EndPos), Body: c.block(d.Body)})
		}
		return sw
	case g.For != nil:
		return &ForLoop{
			Src:  sp,
			Pre:  c.block(g.For.Pre),
			Cond: c.expr(g.For.Cond),
			Post: c.block(g.For.Post),
			Body: c.block(g.For.Body),
		}
	case g.Break:
		return &Break{Src: sp}
	case g.Continue:
		return &Continue{Src: sp}
	case g.Leave:
		return &Leave{Src: sp}
	case g.Block != nil:
		return c.block(g.Block)
	case g.Assign != nil:
		asg := &Assignment{Src: sp, Value: c.expr(g.Assign.Value)}
		for _, t := range g.Assign.Targets {
			asg.Targets = append(asg.Targets, &Identifier{Src: sp, Name: t})
		}
		return asg
	case g.Expr != nil:
		return &ExpressionStatement{Src: sp, Expr: c.expr(g.Expr)}
	}
	c.fail(sp, "empty statement")
	return &Block{Src: sp}
}

func (c *converter) expr(g *gExpr) Expression {
	sp := c.span(g.Pos, g.EndPos)
	switch {
	case g.Call != nil:
		call := &FunctionCall{Src: sp, Name: g.Call.Name}
		for _, a := range g.Call.Args {
			call.Args = append(call.Args, c.expr(a))
		}
		return call
	case g.Lit != nil:
		return c.literal(g.Lit)
	}
	return &Identifier{Src: sp, Name: g.Ident}
}

func (c *converter) literal(g *gLiteral) *Literal {
	sp := c.span(g.Pos, g.EndPos)
	v := g.Value
	switch {
	case v == "true" || v == "false":
		return &Literal{Src: sp, Kind: LitBool, Value: v}
	case strings.HasPrefix(v, "hex"):
		return &Literal{Src: sp, Kind: LitHex, Value: c.stringValue(v, g.Pos)}
	case strings.HasPrefix(v, `"`):
		return &Literal{Src: sp, Kind: LitString, Value: c.stringValue(v, g.Pos)}
	}
	return &Literal{Src: sp, Kind: LitNumber, Value: v}
}

func (c *converter) unquote(s string, pos lexer.Position) string {
	out, err := strconv.Unquote(s)
	if err != nil {
		c.fail(c.span(pos, pos), "invalid string %s: %v", s, err)
		return s
	}
	return out
}

// stringValue decodes "..." and hex"..." literals to raw bytes.
func (c *converter) stringValue(s string, pos lexer.Position) string {
	if rest, ok := strings.CutPrefix(s, "hex"); ok {
		b, err := hex.DecodeString(rest[1 : len(rest)-1])
		if err != nil {
			c.fail(c.span(pos, pos), "invalid hex string %s: %v", s, err)
			return ""
		}
		return string(b)
	}
	return c.unquote(s, pos)
}
