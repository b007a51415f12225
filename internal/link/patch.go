package link

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"zkvmc/internal/asm"
	"zkvmc/internal/metadata"
)

// Placeholder is a library marker left in linked code.
type Placeholder struct {
	// Library is the full name when known, else the hex marker id.
	Library string
	Offsets []int
}

// markerID is the path-derived suffix of a marker word.
func markerID(path string) string {
	return hex.EncodeToString(crypto.Keccak256([]byte(path))[:asm.MarkerIDSize])
}

// poolRange returns the byte range of the constant pool of artifact.
func poolRange(artifact []byte) (int, int, error) {
	code, _, err := metadata.Split(artifact)
	if errors.Is(err, metadata.ErrNoTrailer) {
		code = artifact
	} else if err != nil {
		return 0, 0, err
	}
	words, err := asm.CodeWords(code)
	if err != nil {
		return 0, 0, err
	}
	return words * asm.WordSize, len(code) - len(code)%asm.WordSize, nil
}

// Patch replaces library markers with addresses and factory markers with
// code hashes. Names are full "path:Name" unit names. The input is not
// modified; markers without a value are returned as placeholders.
func Patch(artifact []byte, libs map[string]common.Address, deps map[string][32]byte) ([]byte, []Placeholder, error) {
	start, end, err := poolRange(artifact)
	if err != nil {
		return nil, nil, fmt.Errorf("patch: %w", err)
	}
	libByID := make(map[string]string, len(libs))
	for name := range libs {
		libByID[markerID(name)] = name
	}
	depByID := make(map[string]string, len(deps))
	for name := range deps {
		depByID[markerID(name)] = name
	}

	out := bytes.Clone(artifact)
	var (
		pending []Placeholder
		index   = make(map[string]int)
	)
	for off := start; off+asm.WordSize <= end; off += asm.WordSize {
		w := out[off : off+asm.WordSize]
		id := hex.EncodeToString(w[len(asm.LibraryPrefix):])
		switch {
		case asm.IsLibraryMarker(w):
			if name, ok := libByID[id]; ok {
				clear(w)
				addr := libs[name]
				copy(w[asm.WordSize-common.AddressLength:], addr[:])
				continue
			}
			if i, ok := index[id]; ok {
				pending[i].Offsets = append(pending[i].Offsets, off)
				continue
			}
			index[id] = len(pending)
			pending = append(pending, Placeholder{Library: "0x" + id, Offsets: []int{off}})
		case asm.IsFactoryMarker(w):
			if name, ok := depByID[id]; ok {
				h := deps[name]
				copy(w, h[:])
			}
		}
	}
	return out, pending, nil
}

// Markers lists the library and factory marker ids present in artifact.
func Markers(artifact []byte) (libs, deps []string, err error) {
	start, end, err := poolRange(artifact)
	if err != nil {
		return nil, nil, err
	}
	for off := start; off+asm.WordSize <= end; off += asm.WordSize {
		w := artifact[off : off+asm.WordSize]
		id := hex.EncodeToString(w[len(asm.LibraryPrefix):])
		switch {
		case asm.IsLibraryMarker(w):
			libs = append(libs, id)
		case asm.IsFactoryMarker(w):
			deps = append(deps, id)
		}
	}
	return libs, deps, nil
}
