package symbols

import (
	"fmt"

	"fortio.org/safecast"

	"zkvmc/internal/source"
)

// SymbolKind classifies the semantic meaning of a symbol.
type SymbolKind uint8

const (
	SymbolInvalid  SymbolKind = iota
	SymbolVariable            // stack slot of a Yul variable
	SymbolFunction            // near-callable function
	SymbolLabel               // legacy assembly tag
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolVariable:
		return "variable"
	case SymbolFunction:
		return "function"
	case SymbolLabel:
		return "label"
	default:
		return "invalid"
	}
}

// SymbolID indexes the symbol arena; 0 means "unresolved".
type SymbolID uint32

const NoSymbolID SymbolID = 0

func (id SymbolID) IsValid() bool { return id != NoSymbolID }

// Symbol is a declared name. Ref is owned by the lowering: the slot value of
// a variable, the function index of a function, the block of a label.
type Symbol struct {
	Name  string
	Kind  SymbolKind
	Scope ScopeID
	Span  source.Span
	Ref   uint32
}

// Symbols is the symbol arena; index 0 is reserved.
type Symbols struct {
	data []Symbol
}

// NewSymbols allocates an arena with the given capacity hint.
func NewSymbols(capHint int) *Symbols {
	return &Symbols{data: make([]Symbol, 1, capHint+1)}
}

// New appends a symbol.
func (s *Symbols) New(sym Symbol) SymbolID {
	n, err := safecast.Conv[uint32](len(s.data))
	if err != nil {
		panic(fmt.Errorf("symbols: arena overflow: %w", err))
	}
	id := SymbolID(n)
	s.data = append(s.data, sym)
	return id
}

// Get returns the symbol or nil.
func (s *Symbols) Get(id SymbolID) *Symbol {
	if !id.IsValid() || int(id) >= len(s.data) {
		return nil
	}
	return &s.data[id]
}

// Len returns the number of allocated symbols.
func (s *Symbols) Len() int { return len(s.data) - 1 }
