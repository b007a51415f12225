package yul

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var yulLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `//[^\n]*`, nil},
		{"BlockComment", `/\*([^*]|\*+[^*/])*\*+/`, nil},
		// hex"..." must win over identifiers
		{"HexString", `hex"[0-9a-fA-F]*"|hex'[0-9a-fA-F]*'`, nil},
		{"String", `"(\\.|[^"\\])*"`, nil},
		{"HexNumber", `0x[0-9a-fA-F]+`, nil},
		{"Number", `[0-9]+`, nil},
		// ключевые слова не могут быть идентификаторами
		{"Keyword", `\b(let|if|switch|case|default|for|break|continue|leave|function|true|false)\b`, nil},
		{"Ident", `[a-zA-Z_$][a-zA-Z_$0-9.]*`, nil},
		{"Assign", `:=`, nil},
		{"Arrow", `->`, nil},
		{"Punct", `[{}(),:]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

type gObject struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `"object" @String "{"`
	Code   *gBlock  `"code" @@`
	Items  []*gItem `@@* "}"`
}

type gItem struct {
	Object *gObject `  @@`
	Data   *gData   `| @@`
}

type gData struct {
	Pos   lexer.Position
	Name  string `"data" @String`
	Value string `@(HexString | String)`
}

type gBlock struct {
	Pos        lexer.Position
	EndPos     lexer.Position
	Statements []*gStatement `"{" @@* "}"`
}

type gStatement struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Function *gFunction `  @@`
	Let      *gLet      `| @@`
	If       *gIf       `| @@`
	Switch   *gSwitch   `| @@`
	For      *gFor      `| @@`
	Break    bool       `| @"break"`
	Continue bool       `| @"continue"`
	Leave    bool       `| @"leave"`
	Block    *gBlock    `| @@`
	Assign   *gAssign   `| @@`
	Expr     *gExpr     `| @@`
}

type gFunction struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Name    string   `"function" @Ident "("`
	Params  []string `( @Ident ( "," @Ident )* )? ")"`
	Returns []string `( "->" @Ident ( "," @Ident )* )?`
	Body    *gBlock  `@@`
}

type gLet struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Names  []string `"let" @Ident ( "," @Ident )*`
	Value  *gExpr   `( ":=" @@ )?`
}

type gAssign struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Targets []string `@Ident ( "," @Ident )* ":="`
	Value   *gExpr   `@@`
}

type gIf struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *gExpr  `"if" @@`
	Body   *gBlock `@@`
}

type gSwitch struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Expr    *gExpr     `"switch" @@`
	Cases   []*gCase   `@@*`
	Default *gDefault  `@@?`
}

type gCase struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  *gLiteral `"case" @@`
	Body   *gBlock   `@@`
}

type gDefault struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Body   *gBlock `"default" @@`
}

type gFor struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Pre    *gBlock `"for" @@`
	Cond   *gExpr  `@@`
	Post   *gBlock `@@`
	Body   *gBlock `@@`
}

type gExpr struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Call   *gCall    `  @@`
	Lit    *gLiteral `| @@`
	Ident  string    `| @Ident`
}

type gCall struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string   `@Ident "("`
	Args   []*gExpr `( @@ ( "," @@ )* )? ")"`
}

type gLiteral struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  string `@(HexNumber | Number | String | HexString | "true" | "false")`
	Type   string `( ":" @Ident )?`
}
