package project

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Libraries maps full library names ("path:Name") to deployed addresses.
type Libraries map[string]common.Address

// ParseLibraryFlag parses "path:Name=0xADDRESS".
func ParseLibraryFlag(s string) (string, common.Address, error) {
	name, addr, ok := strings.Cut(s, "=")
	if !ok {
		return "", common.Address{}, fmt.Errorf("library %q: expected <path>:<name>=<address>", s)
	}
	full, err := NormalizeName(name)
	if err != nil {
		return "", common.Address{}, err
	}
	a, err := ParseAddress(addr)
	if err != nil {
		return "", common.Address{}, fmt.Errorf("library %s: %w", full, err)
	}
	return full, a, nil
}

// ParseAddress accepts a 20-byte hex address with or without 0x.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ParseLibraries parses a list of CLI library flags.
func ParseLibraries(flags []string) (Libraries, error) {
	out := make(Libraries, len(flags))
	for _, f := range flags {
		name, addr, err := ParseLibraryFlag(f)
		if err != nil {
			return nil, err
		}
		if prev, dup := out[name]; dup && prev != addr {
			return nil, fmt.Errorf("library %s given two addresses", name)
		}
		out[name] = addr
	}
	return out, nil
}

// LibrariesFromMap converts a {"path:Name": "0x.."} table.
func LibrariesFromMap(m map[string]string) (Libraries, error) {
	out := make(Libraries, len(m))
	for _, k := range sortedKeys(m) {
		name, addr, err := ParseLibraryFlag(k + "=" + m[k])
		if err != nil {
			return nil, err
		}
		out[name] = addr
	}
	return out, nil
}

// Merge copies other into l; other wins on conflicts.
func (l Libraries) Merge(other Libraries) {
	for k, v := range other {
		l[k] = v
	}
}

// Names returns library names sorted.
func (l Libraries) Names() []string {
	names := make([]string, 0, len(l))
	for k := range l {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
