package source

import (
	"fmt"
	"math"

	"fortio.org/safecast"
)

// Span addresses a construct inside a unit input. For text inputs it is a
// byte range; for legacy assembly it is an instruction index range.
type Span struct {
	File  FileID
	Start uint32 // включительно
	End   uint32 // не включительно
}

func (s Span) Empty() bool {
	return s.Start == s.End
}

func (s Span) Len() uint32 {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Cover extends s so that it also covers other. Spans of different files are not merged.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// At returns a one-element span, used for instruction indices.
func At(file FileID, idx uint32) Span {
	return Span{File: file, Start: idx, End: idx + 1}
}

// AtIndex is At for int indices; out-of-range indices clamp to the last
// representable position.
func AtIndex(file FileID, idx int) Span {
	n, err := safecast.Conv[uint32](idx)
	if err != nil {
		n = math.MaxUint32 - 1
	}
	return At(file, n)
}
