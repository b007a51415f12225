package asm

import (
	"fmt"

	"zkvmc/internal/diag"
)

// Error is an assembler failure at a source position; Line and Column are
// 1-based, zero when the failure is not tied to a line.
type Error struct {
	Code   diag.Code
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Code.ID(), e.Msg)
	}
	return fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Column, e.Code.ID(), e.Msg)
}

func errAt(code diag.Code, line, col int, format string, args ...any) *Error {
	return &Error{Code: code, Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}
