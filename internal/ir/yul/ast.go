package yul

import (
	"zkvmc/internal/source"
)

// Node is any Yul AST node.
type Node interface {
	Span() source.Span
}

// Statement is a Yul statement.
type Statement interface {
	Node
	stmtNode()
}

// Expression is a Yul expression: a call, an identifier or a literal.
type Expression interface {
	Node
	exprNode()
}

type Block struct {
	Src        source.Span
	Statements []Statement
}

type TypedName struct {
	Src  source.Span
	Name string
}

type VariableDeclaration struct {
	Src   source.Span
	Names []TypedName
	Value Expression // nil means zero-initialised
}

type Assignment struct {
	Src     source.Span
	Targets []*Identifier
	Value   Expression
}

type If struct {
	Src  source.Span
	Cond Expression
	Body *Block
}

type Case struct {
	Src   source.Span
	Value *Literal // nil for default
	Body  *Block
}

type Switch struct {
	Src   source.Span
	Expr  Expression
	Cases []*Case
}

type ForLoop struct {
	Src  source.Span
	Pre  *Block
	Cond Expression
	Post *Block
	Body *Block
}

type Break struct{ Src source.Span }

type Continue struct{ Src source.Span }

type Leave struct{ Src source.Span }

type FunctionDefinition struct {
	Src     source.Span
	Name    string
	Params  []TypedName
	Returns []TypedName
	Body    *Block
}

type ExpressionStatement struct {
	Src  source.Span
	Expr Expression
}

type FunctionCall struct {
	Src  source.Span
	Name string
	Args []Expression
}

type Identifier struct {
	Src  source.Span
	Name string
}

type LiteralKind uint8

const (
	LitNumber LiteralKind = iota
	LitString
	LitHex
	LitBool
)

func (k LiteralKind) String() string {
	switch k {
	case LitNumber:
		return "number"
	case LitString:
		return "string"
	case LitHex:
		return "hex"
	case LitBool:
		return "bool"
	}
	return "unknown"
}

// Literal keeps the decoded value: digits for numbers ("0x.." or decimal),
// raw bytes for strings and hex strings, "true"/"false" for booleans.
type Literal struct {
	Src   source.Span
	Kind  LiteralKind
	Value string
}

func (b *Block) Span() source.Span               { return b.Src }
func (v *VariableDeclaration) Span() source.Span { return v.Src }
func (a *Assignment) Span() source.Span          { return a.Src }
func (i *If) Span() source.Span                  { return i.Src }
func (c *Case) Span() source.Span                { return c.Src }
func (s *Switch) Span() source.Span              { return s.Src }
func (f *ForLoop) Span() source.Span             { return f.Src }
func (b *Break) Span() source.Span               { return b.Src }
func (c *Continue) Span() source.Span            { return c.Src }
func (l *Leave) Span() source.Span               { return l.Src }
func (f *FunctionDefinition) Span() source.Span  { return f.Src }
func (e *ExpressionStatement) Span() source.Span { return e.Src }
func (c *FunctionCall) Span() source.Span        { return c.Src }
func (i *Identifier) Span() source.Span          { return i.Src }
func (l *Literal) Span() source.Span             { return l.Src }

func (*Block) stmtNode()               {}
func (*VariableDeclaration) stmtNode() {}
func (*Assignment) stmtNode()          {}
func (*If) stmtNode()                  {}
func (*Switch) stmtNode()              {}
func (*ForLoop) stmtNode()             {}
func (*Break) stmtNode()               {}
func (*Continue) stmtNode()            {}
func (*Leave) stmtNode()               {}
func (*FunctionDefinition) stmtNode()  {}
func (*ExpressionStatement) stmtNode() {}

func (*FunctionCall) exprNode() {}
func (*Identifier) exprNode()   {}
func (*Literal) exprNode()      {}
