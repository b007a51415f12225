package asm

import (
	"bytes"

	"github.com/ethereum/go-ethereum/crypto"
)

// Marker prefixes stand in for values known only at link time: a library
// address and a factory dependency code hash.
var (
	LibraryPrefix = []byte("__$LIBSYM$__")
	FactoryPrefix = []byte("__$FACTORY$_")
)

// MarkerIDSize is the keccak prefix stored after a marker prefix.
const MarkerIDSize = WordSize - 12

// LibraryMarker is the placeholder word for the library at path.
func LibraryMarker(path string) [WordSize]byte {
	return marker(LibraryPrefix, path)
}

// FactoryMarker is the placeholder word for the code hash of the unit at path.
func FactoryMarker(path string) [WordSize]byte {
	return marker(FactoryPrefix, path)
}

func marker(prefix []byte, path string) [WordSize]byte {
	var w [WordSize]byte
	copy(w[:], prefix)
	copy(w[len(prefix):], crypto.Keccak256([]byte(path))[:MarkerIDSize])
	return w
}

// IsLibraryMarker reports whether w carries the library prefix.
func IsLibraryMarker(w []byte) bool {
	return len(w) == WordSize && bytes.HasPrefix(w, LibraryPrefix)
}

// IsFactoryMarker reports whether w carries the factory prefix.
func IsFactoryMarker(w []byte) bool {
	return len(w) == WordSize && bytes.HasPrefix(w, FactoryPrefix)
}
