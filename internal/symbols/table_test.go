package symbols

import (
	"testing"

	"zkvmc/internal/source"
)

func TestTableScopes(t *testing.T) {
	table := NewTable(Hints{})
	span := source.Span{}

	seg := table.Enter(ScopeSegment, span)
	if _, ok := table.Declare("f", SymbolFunction, span, 1); !ok {
		t.Fatalf("declare f")
	}
	if _, ok := table.Declare("x", SymbolVariable, span, 7); !ok {
		t.Fatalf("declare x")
	}
	if _, ok := table.Declare("x", SymbolVariable, span, 8); ok {
		t.Fatalf("duplicate x accepted")
	}

	fn := table.Enter(ScopeFunction, span)
	blk := table.Enter(ScopeBlock, span)
	if _, ok := table.Lookup("x"); ok {
		t.Fatalf("outer variable visible inside function")
	}
	sym, ok := table.Lookup("f")
	if !ok || sym.Kind != SymbolFunction || sym.Ref != 1 {
		t.Fatalf("function lookup = %+v, %v", sym, ok)
	}
	if _, ok := table.Declare("x", SymbolVariable, span, 9); !ok {
		t.Fatalf("shadowing in a new function scope must be allowed")
	}
	if sym, _ := table.Lookup("x"); sym.Ref != 9 {
		t.Fatalf("inner x = %+v", sym)
	}
	table.Leave(blk)
	table.Leave(fn)

	if sym, _ := table.Lookup("x"); sym == nil || sym.Ref != 7 {
		t.Fatalf("outer x = %+v", sym)
	}
	table.Leave(seg)
	if table.Current().IsValid() {
		t.Fatalf("scope stack not empty")
	}
	if err := table.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTableLeaveOutOfOrderPanics(t *testing.T) {
	table := NewTable(Hints{})
	outer := table.Enter(ScopeSegment, source.Span{})
	table.Enter(ScopeBlock, source.Span{})
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	table.Leave(outer)
}
