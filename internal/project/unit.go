package project

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"zkvmc/internal/ir"
	"zkvmc/internal/source"
)

// Unit is one contract (or library) compiled independently.
type Unit struct {
	Name     string // полное имя "path:Contract", NFC
	Path     string
	Contract string
	Source   ir.Source
	File     source.FileID
	// Immutables are the declared immutable names; nil means "derive from code".
	Immutables  []string
	ContentHash Digest
}

// Pipeline returns the unit's front-end.
func (u *Unit) Pipeline() ir.Pipeline { return u.Source.Pipeline() }

var errBadName = errors.New("invalid contract name")

// NormalizeName приводит полное имя контракта к каноническому виду:
// NFC, прямые слэши в пути, без пробелов по краям.
func NormalizeName(name string) (string, error) {
	path, contract, err := SplitName(name)
	if err != nil {
		return "", err
	}
	return JoinName(path, contract), nil
}

// JoinName builds "path:Contract" in canonical form.
func JoinName(path, contract string) string {
	path = norm.NFC.String(strings.ReplaceAll(strings.TrimSpace(path), "\\", "/"))
	contract = norm.NFC.String(strings.TrimSpace(contract))
	return path + ":" + contract
}

// SplitName splits "path:Contract" at the last colon.
func SplitName(name string) (path, contract string, err error) {
	idx := strings.LastIndexByte(name, ':')
	if idx <= 0 || idx == len(name)-1 {
		return "", "", fmt.Errorf("%w %q: expected <path>:<name>", errBadName, name)
	}
	path = strings.TrimSpace(name[:idx])
	contract = strings.TrimSpace(name[idx+1:])
	if path == "" || !IsValidContractIdent(contract) {
		return "", "", fmt.Errorf("%w %q", errBadName, name)
	}
	return path, contract, nil
}

// IsValidContractIdent accepts Yul/Solidity identifiers ($ and . allowed).
func IsValidContractIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && r != '_' && r != '$' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && r != '$' && r != '.' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// SortUnits orders units by normalised full name.
func SortUnits(units []*Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
}
