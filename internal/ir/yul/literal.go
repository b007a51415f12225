package yul

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var errLiteralTooLong = errors.New("literal longer than 32 bytes")

// Word evaluates the literal as a 256-bit word. Strings and hex strings are
// left-aligned, as in the EVM dialect.
func (l *Literal) Word() (*uint256.Int, error) {
	switch l.Kind {
	case LitBool:
		switch l.Value {
		case "true":
			return uint256.NewInt(1), nil
		case "false":
			return new(uint256.Int), nil
		}
		return nil, fmt.Errorf("invalid bool literal %q", l.Value)
	case LitString, LitHex:
		if len(l.Value) > 32 {
			return nil, errLiteralTooLong
		}
		var buf [32]byte
		copy(buf[:], l.Value)
		return new(uint256.Int).SetBytes32(buf[:]), nil
	default:
		return ParseNumber(l.Value)
	}
}

// ParseNumber parses a decimal or 0x-prefixed hexadecimal word.
func ParseNumber(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, errors.New("empty number literal")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := strings.TrimLeft(s[2:], "0")
		if digits == "" {
			if len(s) == 2 {
				return nil, fmt.Errorf("invalid hex literal %q", s)
			}
			return new(uint256.Int), nil
		}
		v, err := uint256.FromHex("0x" + digits)
		if err != nil {
			return nil, fmt.Errorf("invalid hex literal %q: %w", s, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid number literal %q: %w", s, err)
	}
	return v, nil
}
