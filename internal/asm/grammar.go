package asm

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Each source line is parsed on its own; comments are cut before lexing.
var asmLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Directive", `\.(unit|func)\b`, nil},
		{"Label", `\.L[A-Za-z0-9_.$#]+`, nil},
		{"Func", `@[A-Za-z0-9_.$#]+`, nil},
		{"Pool", `=(0x[0-9a-fA-F]+|lib:"[^"]*"|dep:"[^"]*")`, nil},
		{"Imm", `#[0-9]+`, nil},
		{"Stack", `stack\[[0-9]+\]`, nil},
		{"Reg", `r[0-9]+\b`, nil},
		{"Ident", `[a-z][a-z0-9_.]*`, nil},
		{"String", `"[^"]*"`, nil},
		{"Punct", `[,:]`, nil},
		{"Whitespace", `[ \t\r]+`, nil},
	},
})

type gLine struct {
	Label     *string     `( @Label ":" )?`
	Directive *gDirective `( @@`
	Instr     *gInstr     `| @@ )?`
}

type gDirective struct {
	Pos  lexer.Position
	Name string `@Directive`
	Arg  string `@(String | Func)`
}

type gInstr struct {
	Pos      lexer.Position
	Mnemonic string      `@Ident`
	Operands []*gOperand `( @@ ( "," @@ )* )?`
}

type gOperand struct {
	Pos   lexer.Position
	Reg   *string `  @Reg`
	Stack *string `| @Stack`
	Imm   *string `| @Imm`
	Pool  *string `| @Pool`
	Label *string `| @Label`
	Func  *string `| @Func`
}

var lineParser = participle.MustBuild[gLine](
	participle.Lexer(asmLexer),
	participle.Elide("Whitespace"),
)
