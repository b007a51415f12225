package native

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

func buildEcho() *Module {
	m := NewModule("Echo")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	p := b.Ptr(SpaceHeap, U64(0))
	cd := b.Ptr(SpaceCalldata, U64(0))
	n := b.Size(SpaceCalldata)
	b.Copy(SpaceHeap, SpaceCalldata, p, cd, n)
	b.Exit(ExitReturn, SpaceHeap, p, n)
	return m
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	if err := Validate(buildEcho()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnterminated(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	b.Bin(OpAdd, U64(1), U64(2))
	err := Validate(m)
	if err == nil || !strings.Contains(err.Error(), "unterminated") {
		t.Fatalf("expected unterminated error, got %v", err)
	}
}

func TestValidateRejectsStoreIntoCalldata(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	p := b.Ptr(SpaceCalldata, U64(0))
	b.Store(SpaceCalldata, p, U64(1))
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	err := Validate(m)
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("expected read-only error, got %v", err)
	}
}

func TestValidateRejectsWordAsPointer(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	b.Load(SpaceHeap, U64(0))
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	if err := Validate(m); err == nil {
		t.Fatalf("expected pointer type error")
	}
}

func TestValidateCallSignature(t *testing.T) {
	m := NewModule("X")
	callee := m.AddFunc("f", 2, 1)
	cb := NewFuncBuilder(callee)
	cb.Return(cb.Bin(OpAdd, Val(callee.Params[0]), Val(callee.Params[1])))
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	b.Call(callee, U64(1))
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	err := Validate(m)
	if err == nil || !strings.Contains(err.Error(), "call f") {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestValidateDuplicateSwitchCase(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	exit := b.NewBlock("exit")
	b.Switch(U64(1), []SwitchCase{
		{Value: uint256.NewInt(1), Target: exit},
		{Value: uint256.NewInt(1), Target: exit},
	}, exit)
	b.SetBlock(exit)
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	err := Validate(m)
	if err == nil || !strings.Contains(err.Error(), "duplicate switch case") {
		t.Fatalf("expected duplicate case error, got %v", err)
	}
}

func TestBuilderOpensDeadBlockAfterTerminator(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	b.Bin(OpAdd, U64(1), U64(1))
	b.Unreachable()
	if len(f.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(f.Blocks))
	}
	if f.Blocks[1].Name != "dead" {
		t.Fatalf("expected dead block, got %q", f.Blocks[1].Name)
	}
	if err := Validate(m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDump(t *testing.T) {
	got := String(buildEcho())
	for _, want := range []string{
		`module "Echo"`,
		"func @main() -> 0 entry {",
		"bb0:  ; entry",
		"%0 = ptr.heap 0x0",
		"%2 = size.cd",
		"copy.heap.cd %0, %1, %2",
		"exit.return.heap %0, %2",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("dump missing %q:\n%s", want, got)
		}
	}
}

func TestSymbolsFirstUseOrder(t *testing.T) {
	m := NewModule("X")
	f := m.AddFunc("main", 0, 0)
	m.Entry = f.ID
	b := NewFuncBuilder(f)
	b.LinkSym(LinkSymbol{Kind: SymFactory, Path: "b.sol:B"})
	b.LinkSym(LinkSymbol{Kind: SymLibrary, Path: "a.sol:L"})
	b.LinkSym(LinkSymbol{Kind: SymFactory, Path: "b.sol:B"})
	b.Exit(ExitStop, SpaceHeap, Operand{}, Operand{})
	syms := m.Symbols()
	if len(syms) != 2 || syms[0].String() != "dep:b.sol:B" || syms[1].String() != "lib:a.sol:L" {
		t.Fatalf("unexpected symbols %v", syms)
	}
}
