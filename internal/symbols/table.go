package symbols

import (
	"fmt"

	"zkvmc/internal/source"
)

// Hints provide optional capacity suggestions for the symbol table arenas.
type Hints struct{ Scopes, Symbols int }

// Table aggregates the arenas and the current scope chain of one code
// segment. It is owned by a single lowering goroutine.
type Table struct {
	Scopes  *Scopes
	Symbols *Symbols
	stack   []ScopeID
}

// NewTable builds a fresh table with optional capacity hints.
func NewTable(h Hints) *Table {
	return &Table{
		Scopes:  NewScopes(h.Scopes),
		Symbols: NewSymbols(h.Symbols),
	}
}

// Current returns the innermost open scope.
func (t *Table) Current() ScopeID {
	if len(t.stack) == 0 {
		return NoScopeID
	}
	return t.stack[len(t.stack)-1]
}

// Enter opens a child scope of the current one.
func (t *Table) Enter(kind ScopeKind, span source.Span) ScopeID {
	id := t.Scopes.New(kind, t.Current(), span)
	t.stack = append(t.stack, id)
	return id
}

// Leave closes scope; it must be the innermost one.
func (t *Table) Leave(scope ScopeID) {
	if t.Current() != scope {
		panic(fmt.Sprintf("symbols: leaving scope %d while %d is current", scope, t.Current()))
	}
	t.stack = t.stack[:len(t.stack)-1]
}

// Declare adds name to the current scope; ok is false when the name is
// already declared there (the previous symbol is returned).
func (t *Table) Declare(name string, kind SymbolKind, span source.Span, ref uint32) (SymbolID, bool) {
	scope := t.Scopes.Get(t.Current())
	if scope == nil {
		panic("symbols: declare without an open scope")
	}
	if prev, dup := scope.NameIndex[name]; dup {
		return prev, false
	}
	id := t.Symbols.New(Symbol{Name: name, Kind: kind, Scope: t.Current(), Span: span, Ref: ref})
	scope.NameIndex[name] = id
	scope.Symbols = append(scope.Symbols, id)
	return id, true
}

// Lookup searches the scope chain outwards. Variables declared outside the
// innermost function scope are invisible; functions and labels are not.
func (t *Table) Lookup(name string) (*Symbol, bool) {
	crossed := false
	for id := t.Current(); id.IsValid(); {
		scope := t.Scopes.Get(id)
		if symID, ok := scope.NameIndex[name]; ok {
			sym := t.Symbols.Get(symID)
			if !crossed || sym.Kind != SymbolVariable {
				return sym, true
			}
		}
		if scope.Kind == ScopeFunction {
			crossed = true
		}
		id = scope.Parent
	}
	return nil, false
}

// Validate checks arena links; used by tests.
func (t *Table) Validate() error {
	for i := 1; i <= t.Scopes.Len(); i++ {
		id := ScopeID(i)
		scope := t.Scopes.Get(id)
		if scope.Parent.IsValid() && t.Scopes.Get(scope.Parent) == nil {
			return fmt.Errorf("scope %d: dangling parent %d", id, scope.Parent)
		}
		for name, symID := range scope.NameIndex {
			sym := t.Symbols.Get(symID)
			if sym == nil {
				return fmt.Errorf("scope %d: dangling symbol %d", id, symID)
			}
			if sym.Name != name || sym.Scope != id {
				return fmt.Errorf("scope %d: symbol %d indexed as %q", id, symID, name)
			}
		}
	}
	return nil
}
