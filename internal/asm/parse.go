package asm

import (
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"zkvmc/internal/diag"
)

// Operand is one decoded instruction operand.
type Operand struct {
	Kind Slot // SlotA for every register operand
	Reg  uint8
	Num  uint16
	Word [WordSize]byte
	Name string
}

// Instr is one parsed instruction.
type Instr struct {
	Op   *OpInfo
	Args []Operand
	Line int
	Col  int
}

// Program is a parsed assembly unit.
type Program struct {
	Unit   string
	Instrs []Instr
	Labels map[string]int
	Funcs  map[string]int
	// label and function references, resolved by Encode
	refs []ref
}

type ref struct {
	instr, arg int
	line, col  int
}

// Parse reads assembly text.
func Parse(text string) (*Program, error) {
	p := &Program{Labels: make(map[string]int), Funcs: make(map[string]int)}
	var pending []pendingName
	for i, raw := range strings.Split(text, "\n") {
		lineNo := i + 1
		if c := strings.IndexByte(raw, ';'); c >= 0 && !inString(raw, c) {
			raw = raw[:c]
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		g, err := lineParser.ParseString("", raw)
		if err != nil {
			return nil, syntaxError(lineNo, err)
		}
		if g.Label != nil {
			if _, dup := p.Labels[*g.Label]; dup {
				return nil, errAt(diag.ASMSyntax, lineNo, 1, "duplicate label %s", *g.Label)
			}
			p.Labels[*g.Label] = len(p.Instrs)
			pending = append(pending, pendingName{name: *g.Label, line: lineNo})
		}
		switch {
		case g.Directive != nil:
			if err := p.directive(g.Directive, lineNo, &pending); err != nil {
				return nil, err
			}
		case g.Instr != nil:
			ins, err := p.instr(g.Instr, lineNo)
			if err != nil {
				return nil, err
			}
			p.Instrs = append(p.Instrs, ins)
			pending = pending[:0]
		}
	}
	if len(pending) > 0 {
		return nil, errAt(diag.ASMUndefinedLabel, pending[0].line, 1, "%s is not followed by an instruction", pending[0].name)
	}
	return p, nil
}

type pendingName struct {
	name string
	line int
}

func (p *Program) directive(d *gDirective, line int, pending *[]pendingName) error {
	switch d.Name {
	case ".unit":
		if !strings.HasPrefix(d.Arg, `"`) {
			return errAt(diag.ASMBadOperand, line, d.Pos.Column, ".unit expects a string")
		}
		p.Unit = strings.Trim(d.Arg, `"`)
	case ".func":
		if !strings.HasPrefix(d.Arg, "@") {
			return errAt(diag.ASMBadOperand, line, d.Pos.Column, ".func expects @name")
		}
		if _, dup := p.Funcs[d.Arg]; dup {
			return errAt(diag.ASMSyntax, line, d.Pos.Column, "duplicate function %s", d.Arg)
		}
		p.Funcs[d.Arg] = len(p.Instrs)
		*pending = append(*pending, pendingName{name: d.Arg, line: line})
	}
	return nil
}

func (p *Program) instr(g *gInstr, line int) (Instr, error) {
	op, ok := Lookup(g.Mnemonic)
	if !ok || op.Mnemonic == "hdr" {
		return Instr{}, errAt(diag.ASMUnknownMnemonic, line, g.Pos.Column, "unknown mnemonic %q", g.Mnemonic)
	}
	if len(g.Operands) != len(op.Slots) {
		return Instr{}, errAt(diag.ASMBadOperand, line, g.Pos.Column,
			"%s takes %d operands, got %d", op.Mnemonic, len(op.Slots), len(g.Operands))
	}
	ins := Instr{Op: op, Args: make([]Operand, len(op.Slots)), Line: line, Col: g.Pos.Column}
	for i, slot := range op.Slots {
		o, err := operand(g.Operands[i], slot, line)
		if err != nil {
			return Instr{}, err
		}
		if slot == SlotLabel || slot == SlotFunc {
			p.refs = append(p.refs, ref{instr: len(p.Instrs), arg: i, line: line, col: g.Operands[i].Pos.Column})
		}
		ins.Args[i] = o
	}
	return ins, nil
}

func operand(g *gOperand, slot Slot, line int) (Operand, error) {
	col := g.Pos.Column
	bad := func() (Operand, error) {
		return Operand{}, errAt(diag.ASMBadOperand, line, col, "expected %s", slot)
	}
	switch slot {
	case SlotDst, SlotA, SlotB, SlotC:
		if g.Reg == nil {
			return bad()
		}
		n, err := strconv.Atoi((*g.Reg)[1:])
		if err != nil || n >= NumRegs {
			return Operand{}, errAt(diag.ASMBadOperand, line, col, "no register %s", *g.Reg)
		}
		return Operand{Kind: SlotA, Reg: uint8(n)}, nil // #nosec G115 -- n < NumRegs
	case SlotImm, SlotStack:
		var text string
		switch {
		case slot == SlotImm && g.Imm != nil:
			text = (*g.Imm)[1:]
		case slot == SlotStack && g.Stack != nil:
			text = strings.TrimSuffix(strings.TrimPrefix(*g.Stack, "stack["), "]")
		default:
			return bad()
		}
		n, err := strconv.ParseUint(text, 10, 16)
		if err != nil {
			return Operand{}, errAt(diag.ASMBadOperand, line, col, "immediate %s does not fit 16 bits", text)
		}
		return Operand{Kind: slot, Num: uint16(n)}, nil
	case SlotPool:
		if g.Pool == nil {
			return bad()
		}
		return poolOperand(*g.Pool, line, col)
	case SlotLabel:
		if g.Label == nil {
			return bad()
		}
		return Operand{Kind: slot, Name: *g.Label}, nil
	case SlotFunc:
		if g.Func == nil {
			return bad()
		}
		return Operand{Kind: slot, Name: *g.Func}, nil
	}
	return bad()
}

func poolOperand(text string, line, col int) (Operand, error) {
	o := Operand{Kind: SlotPool}
	switch {
	case strings.HasPrefix(text, "=lib:"):
		o.Name = strings.Trim(text[len("=lib:"):], `"`)
		o.Word = LibraryMarker(o.Name)
	case strings.HasPrefix(text, "=dep:"):
		o.Name = strings.Trim(text[len("=dep:"):], `"`)
		o.Word = FactoryMarker(o.Name)
	default:
		digits := text[len("=0x"):]
		if len(digits) > 2*WordSize {
			return Operand{}, errAt(diag.ASMBadOperand, line, col, "constant wider than 256 bits")
		}
		if len(digits)%2 == 1 {
			digits = "0" + digits
		}
		b, err := hex.DecodeString(digits)
		if err != nil {
			return Operand{}, errAt(diag.ASMBadOperand, line, col, "bad constant: %v", err)
		}
		copy(o.Word[WordSize-len(b):], b)
	}
	return o, nil
}

func syntaxError(line int, err error) *Error {
	var perr participle.Error
	if errors.As(err, &perr) {
		return errAt(diag.ASMSyntax, line, perr.Position().Column, "%s", perr.Message())
	}
	return errAt(diag.ASMSyntax, line, 1, "%v", err)
}

// inString reports whether byte i of s sits inside a quoted string.
func inString(s string, i int) bool {
	return strings.Count(s[:i], `"`)%2 == 1
}
