package native

import (
	"fmt"

	"fortio.org/safecast"

	"zkvmc/internal/source"
)

type Block struct {
	ID     BlockID
	Name   string
	Instrs []Instr
	Term   Terminator
}

func (b *Block) Terminated() bool {
	if b == nil {
		return true
	}
	return b.Term.Kind != TermNone
}

type Func struct {
	ID      FuncID
	Name    string
	Span    source.Span
	Params  []ValueID
	Results int
	// Values holds the type of every SSA value; the slice index is the ValueID.
	Values []Type
	Blocks []Block
	Entry  BlockID
}

// ValueType returns the type of a value or Void for invalid ids.
func (f *Func) ValueType(id ValueID) Type {
	if id < 0 || int(id) >= len(f.Values) {
		return Void
	}
	return f.Values[id]
}

// OperandType returns Word for constants.
func (f *Func) OperandType(o Operand) Type {
	if o.IsValue() {
		return f.ValueType(o.Value)
	}
	if o.IsConst() {
		return Word
	}
	return Void
}

// NewValue allocates a value of type t.
func (f *Func) NewValue(t Type) ValueID {
	n, err := safecast.Conv[int32](len(f.Values))
	if err != nil {
		panic(fmt.Errorf("value count overflow: %w", err))
	}
	f.Values = append(f.Values, t)
	return ValueID(n)
}

type Global struct {
	Name string
}

// Module is the native form of one unit.
type Module struct {
	Unit    string
	Funcs   []*Func
	Globals []Global
	Entry   FuncID
}

// NewModule creates an empty module for unit.
func NewModule(unit string) *Module {
	return &Module{Unit: unit, Entry: NoFuncID}
}

// AddGlobal declares a zero-initialised word global.
func (m *Module) AddGlobal(name string) GlobalID {
	for i, g := range m.Globals {
		if g.Name == name {
			return GlobalID(int32(i)) //nolint:gosec // bounded by globals count
		}
	}
	m.Globals = append(m.Globals, Global{Name: name})
	return GlobalID(int32(len(m.Globals) - 1)) //nolint:gosec // bounded by globals count
}

// AddFunc appends a function with params word parameters.
func (m *Module) AddFunc(name string, params, results int) *Func {
	n, err := safecast.Conv[int32](len(m.Funcs))
	if err != nil {
		panic(fmt.Errorf("function count overflow: %w", err))
	}
	f := &Func{ID: FuncID(n), Name: name, Results: results, Entry: 0}
	for i := 0; i < params; i++ {
		f.Params = append(f.Params, f.NewValue(Word))
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Func returns a function by id or nil.
func (m *Module) Func(id FuncID) *Func {
	if id < 0 || int(id) >= len(m.Funcs) {
		return nil
	}
	return m.Funcs[id]
}

// FuncByName returns the first function with name.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Symbols returns every linker symbol referenced by the module in first-use
// order.
func (m *Module) Symbols() []LinkSymbol {
	seen := make(map[LinkSymbol]struct{})
	var out []LinkSymbol
	for _, f := range m.Funcs {
		for bi := range f.Blocks {
			for _, in := range f.Blocks[bi].Instrs {
				if in.Op != OpLinkSym {
					continue
				}
				if _, dup := seen[in.Sym]; dup {
					continue
				}
				seen[in.Sym] = struct{}{}
				out = append(out, in.Sym)
			}
		}
	}
	return out
}
