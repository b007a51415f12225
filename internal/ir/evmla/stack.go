package evmla

import (
	"strconv"
	"strings"
)

// ElemKind classifies what the simulator knows about a stack slot.
type ElemKind uint8

const (
	ElemUnknown ElemKind = iota
	ElemTag
	ElemData     // PUSH [$]: offset of a data entry
	ElemDataSize // PUSH #[$]: size of a data entry
)

// Element is one simulated stack slot.
type Element struct {
	Kind ElemKind
	Tag  uint64
	Data string
}

func (e Element) String() string {
	switch e.Kind {
	case ElemTag:
		return "T" + strconv.FormatUint(e.Tag, 10)
	case ElemData:
		return "D" + e.Data
	case ElemDataSize:
		return "S" + e.Data
	default:
		return "_"
	}
}

// Stack is a simulated stack, top at the end.
type Stack []Element

func (s Stack) Clone() Stack {
	out := make(Stack, len(s))
	copy(out, s)
	return out
}

// Signature identifies a stack shape; blocks are cloned per signature.
func (s Stack) Signature() string {
	var b strings.Builder
	for i, e := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.String())
	}
	return b.String()
}

func (s *Stack) push(e Element) { *s = append(*s, e) }

func (s *Stack) pop() (Element, bool) {
	n := len(*s)
	if n == 0 {
		return Element{}, false
	}
	e := (*s)[n-1]
	*s = (*s)[:n-1]
	return e, true
}
