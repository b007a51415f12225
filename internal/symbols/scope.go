package symbols

import (
	"fmt"

	"fortio.org/safecast"

	"zkvmc/internal/source"
)

// ScopeID indexes the scope arena; 0 means "no scope".
type ScopeID uint32

// NoScopeID is the parent of a segment scope.
const NoScopeID ScopeID = 0

func (id ScopeID) IsValid() bool { return id != NoScopeID }

// ScopeKind enumerates supported scope categories.
type ScopeKind uint8

const (
	ScopeInvalid  ScopeKind = iota
	ScopeSegment            // deploy or runtime code of one unit
	ScopeFunction           // function body; hides outer variables
	ScopeBlock              // generic block scope
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeSegment:
		return "segment"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	default:
		return "invalid"
	}
}

// Scope models a lexical scope with a parent-child hierarchy.
type Scope struct {
	Kind      ScopeKind
	Parent    ScopeID
	Span      source.Span
	NameIndex map[string]SymbolID
	Symbols   []SymbolID
	Children  []ScopeID
}

// Scopes is the scope arena; index 0 is reserved.
type Scopes struct {
	data []Scope
}

// NewScopes allocates an arena with the given capacity hint.
func NewScopes(capHint int) *Scopes {
	s := &Scopes{data: make([]Scope, 1, capHint+1)}
	return s
}

// New appends a scope and links it to parent.
func (s *Scopes) New(kind ScopeKind, parent ScopeID, span source.Span) ScopeID {
	n, err := safecast.Conv[uint32](len(s.data))
	if err != nil {
		panic(fmt.Errorf("symbols: arena overflow: %w", err))
	}
	id := ScopeID(n)
	s.data = append(s.data, Scope{
		Kind:      kind,
		Parent:    parent,
		Span:      span,
		NameIndex: make(map[string]SymbolID),
	})
	if parent.IsValid() {
		p := s.Get(parent)
		p.Children = append(p.Children, id)
	}
	return id
}

// Get returns the scope or nil.
func (s *Scopes) Get(id ScopeID) *Scope {
	if !id.IsValid() || int(id) >= len(s.data) {
		return nil
	}
	return &s.data[id]
}

// Len returns the number of allocated scopes.
func (s *Scopes) Len() int { return len(s.data) - 1 }
