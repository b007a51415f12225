package asm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"zkvmc/internal/diag"
)

const sample = `.unit "a.sol:A"
.func @entry
  enter #2
  ldi r1, #7
  ldc r2, =0x0102 ; comment
  add r3, r1, r2
  sts stack[1], r3
  jnz r3, .Ldone
  call @helper
.Ldone:
  ldc r4, =0x0102
  ldc r5, =lib:"lib.sol:L"
  exit.return.heap r0, r0
.func @helper
  ret
`

func TestAssembleLayout(t *testing.T) {
	bin, err := Assemble(sample)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// header + 11 instructions = 12 -> 3 words
	if bin.CodeWords != 3 {
		t.Fatalf("code words = %d, want 3", bin.CodeWords)
	}
	if bin.PoolWords != 2 {
		t.Fatalf("pool words = %d, want 2 (dedup)", bin.PoolWords)
	}
	if len(bin.Code) != (3+2)*WordSize {
		t.Fatalf("size = %d", len(bin.Code))
	}
	if w, err := CodeWords(bin.Code); err != nil || w != 3 {
		t.Fatalf("CodeWords = %d, %v", w, err)
	}
	// jnz targets instruction 8 (1-based after the header)
	jnz := bin.Code[6*InstrSize : 7*InstrSize]
	if got := binary.BigEndian.Uint16(jnz[6:]); got != 8 {
		t.Fatalf("jnz target = %d, want 8", got)
	}
	call := bin.Code[7*InstrSize : 8*InstrSize]
	if got := binary.BigEndian.Uint16(call[6:]); got != 11 {
		t.Fatalf("call target = %d, want 11", got)
	}
	pool := bin.Code[3*WordSize:]
	if pool[WordSize-2] != 1 || pool[WordSize-1] != 2 {
		t.Fatalf("first pool word = %x", pool[:WordSize])
	}
	if len(bin.Markers) != 1 || bin.Markers[0] != 4*WordSize {
		t.Fatalf("markers = %v", bin.Markers)
	}
	want := LibraryMarker("lib.sol:L")
	if !bytes.Equal(bin.Code[4*WordSize:], want[:]) {
		t.Fatalf("marker word mismatch")
	}
}

func TestPaddingWithNop(t *testing.T) {
	bin, err := Assemble("  trap\n")
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(bin.Code) != WordSize || bin.PoolWords != 0 {
		t.Fatalf("size = %d, pool = %d", len(bin.Code), bin.PoolWords)
	}
	nop, _ := Lookup("nop")
	for i := 2; i < WordSize/InstrSize; i++ {
		if got := binary.BigEndian.Uint16(bin.Code[i*InstrSize:]); got != nop.Code {
			t.Fatalf("padding slot %d has opcode %d", i, got)
		}
	}
}

func TestMarkerFormat(t *testing.T) {
	lib := LibraryMarker("x.sol:X")
	if string(lib[:12]) != "__$LIBSYM$__" || !IsLibraryMarker(lib[:]) || IsFactoryMarker(lib[:]) {
		t.Fatalf("library marker %q", lib[:12])
	}
	dep := FactoryMarker("x.sol:X")
	if string(dep[:12]) != "__$FACTORY$_" || !IsFactoryMarker(dep[:]) {
		t.Fatalf("factory marker %q", dep[:12])
	}
	other := FactoryMarker("y.sol:Y")
	if bytes.Equal(dep[12:], other[12:]) {
		t.Fatalf("ids must depend on the path")
	}
}

func TestDisassembleRoundTrip(t *testing.T) {
	bin, err := Assemble(sample)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	text, err := Disassemble(bin.Code)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	again, err := Assemble(text)
	if err != nil {
		t.Fatalf("reassemble: %v\n%s", err, text)
	}
	if !bytes.Equal(bin.Code, again.Code) {
		t.Fatalf("round trip changed bytes\n%s", text)
	}
}

func TestAssembleErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		code diag.Code
		line int
	}{
		{"unknown", "  frob r1, r2", diag.ASMUnknownMnemonic, 1},
		{"header reserved", "  hdr #1", diag.ASMUnknownMnemonic, 1},
		{"arity", "  add r1, r2", diag.ASMBadOperand, 1},
		{"kind", "  add r1, r2, #3", diag.ASMBadOperand, 1},
		{"register", "  mov r16, r1", diag.ASMBadOperand, 1},
		{"imm", "  ldi r1, #70000", diag.ASMBadOperand, 1},
		{"wide", "  ldc r1, =0x" + strings.Repeat("f", 65), diag.ASMBadOperand, 1},
		{"label", "  nop\n  jmp .Lnowhere", diag.ASMUndefinedLabel, 2},
		{"func", "  call @missing", diag.ASMUndefinedLabel, 1},
		{"dangling", "  nop\n.Lend:", diag.ASMUndefinedLabel, 2},
		{"dup", ".La:\n  nop\n.La:\n  nop", diag.ASMSyntax, 3},
		{"syntax", "  add r1,, r2", diag.ASMSyntax, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble(tc.src)
			var aerr *Error
			if !errors.As(err, &aerr) {
				t.Fatalf("want *Error, got %v", err)
			}
			if aerr.Code != tc.code || aerr.Line != tc.line {
				t.Fatalf("got %s at line %d, want %s at %d: %v", aerr.Code.ID(), aerr.Line, tc.code.ID(), tc.line, aerr)
			}
		})
	}
}

func TestCodeTooLarge(t *testing.T) {
	var sb strings.Builder
	for range MaxIndex {
		sb.WriteString("nop\n")
	}
	_, err := Assemble(sb.String())
	var aerr *Error
	if !errors.As(err, &aerr) || aerr.Code != diag.RESCodeTooLarge {
		t.Fatalf("want RES code too large, got %v", err)
	}
}

func TestEveryMnemonicEncodes(t *testing.T) {
	for _, m := range Mnemonics() {
		if m == "hdr" {
			continue
		}
		op, _ := Lookup(m)
		var args []string
		for _, s := range op.Slots {
			switch s {
			case SlotDst, SlotA, SlotB, SlotC:
				args = append(args, "r1")
			case SlotImm:
				args = append(args, "#1")
			case SlotStack:
				args = append(args, "stack[1]")
			case SlotPool:
				args = append(args, "=0x1")
			case SlotLabel:
				args = append(args, ".Lx")
			case SlotFunc:
				args = append(args, "@f")
			}
		}
		src := fmt.Sprintf(".func @f\n.Lx:\n  %s %s\n", m, strings.Join(args, ", "))
		bin, err := Assemble(src)
		if err != nil {
			t.Fatalf("%s: %v", m, err)
		}
		if got := binary.BigEndian.Uint16(bin.Code[InstrSize:]); got != op.Code {
			t.Fatalf("%s encoded as %d, want %d", m, got, op.Code)
		}
	}
}
