// Package metadata builds the artifact trailer and the code hash.
package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"

	"zkvmc/internal/asm"
	"zkvmc/internal/project"
	"zkvmc/internal/version"
)

const (
	// FormatVersion is the trailer layout version.
	FormatVersion = 1
	wordSize      = asm.WordSize
	maxWords      = 1<<16 - 1
)

var magic = []byte("ZKMD")

// Settings are the build settings recorded in every artifact.
type Settings struct {
	Compiler     string   `msgpack:"compiler"`
	Version      string   `msgpack:"version"`
	Pipeline     string   `msgpack:"pipeline"`
	Optimization string   `msgpack:"opt"`
	Placeholders bool     `msgpack:"placeholders"`
	Suppressed   []string `msgpack:"suppressed"`
}

// NewSettings records s for a unit compiled through pipeline.
func NewSettings(pipeline string, s project.Settings) Settings {
	sup := append([]string(nil), s.Suppressed...)
	sort.Strings(sup)
	return Settings{
		Compiler:     version.Compiler,
		Version:      version.Version,
		Pipeline:     pipeline,
		Optimization: s.Optimizer.String(),
		Placeholders: s.AllowPlaceholders,
		Suppressed:   sup,
	}
}

// Trailer is a decoded metadata trailer.
type Trailer struct {
	Settings    Settings
	ContentHash [32]byte
}

// Append writes code || settings || pad || header || content hash. The pad
// makes the artifact an odd number of words.
func Append(code []byte, s Settings) ([]byte, error) {
	if len(code)%wordSize != 0 {
		return nil, fmt.Errorf("code is not word aligned: %d bytes", len(code))
	}
	blob, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	if len(blob) > maxWords {
		return nil, fmt.Errorf("settings blob of %d bytes is too large", len(blob))
	}
	pad := (wordSize - len(blob)%wordSize) % wordSize
	words := (len(code)+len(blob)+pad)/wordSize + 2
	if words%2 == 0 {
		pad += wordSize
	}
	out := make([]byte, 0, len(code)+len(blob)+pad+2*wordSize)
	out = append(out, code...)
	out = append(out, blob...)
	out = append(out, make([]byte, pad)...)

	var hdr [wordSize]byte
	copy(hdr[:], magic)
	binary.BigEndian.PutUint16(hdr[4:], FormatVersion)
	binary.BigEndian.PutUint16(hdr[6:], uint16(len(blob))) // #nosec G115 -- checked above
	binary.BigEndian.PutUint16(hdr[8:], uint16(pad))       // #nosec G115 -- pad < 2 words
	out = append(out, hdr[:]...)
	out = append(out, crypto.Keccak256(code)...)
	return out, nil
}

// ErrNoTrailer is returned by Split for artifacts without metadata.
var ErrNoTrailer = errors.New("no metadata trailer")

// Split separates an artifact into code and trailer.
func Split(artifact []byte) ([]byte, *Trailer, error) {
	if len(artifact) < 2*wordSize || len(artifact)%wordSize != 0 {
		return nil, nil, ErrNoTrailer
	}
	hdr := artifact[len(artifact)-2*wordSize : len(artifact)-wordSize]
	if !bytes.HasPrefix(hdr, magic) {
		return nil, nil, ErrNoTrailer
	}
	if v := binary.BigEndian.Uint16(hdr[4:]); v != FormatVersion {
		return nil, nil, fmt.Errorf("metadata version %d is not supported", v)
	}
	blobLen := int(binary.BigEndian.Uint16(hdr[6:]))
	pad := int(binary.BigEndian.Uint16(hdr[8:]))
	codeEnd := len(artifact) - 2*wordSize - pad - blobLen
	if codeEnd < 0 {
		return nil, nil, fmt.Errorf("metadata sizes exceed the artifact")
	}
	t := &Trailer{}
	if err := msgpack.Unmarshal(artifact[codeEnd:codeEnd+blobLen], &t.Settings); err != nil {
		return nil, nil, fmt.Errorf("decode settings: %w", err)
	}
	copy(t.ContentHash[:], artifact[len(artifact)-wordSize:])
	return artifact[:codeEnd], t, nil
}

// CodeHash is the versioned hash used for factory dependencies and CREATE2:
// 0x01 0x00, the word count as u16, then sha256(artifact) without its first
// four bytes. It is computed over the unlinked artifact.
func CodeHash(artifact []byte) ([32]byte, error) {
	var h [32]byte
	if len(artifact)%wordSize != 0 {
		return h, fmt.Errorf("artifact is not word aligned: %d bytes", len(artifact))
	}
	words := len(artifact) / wordSize
	if words > maxWords {
		return h, fmt.Errorf("artifact of %d words exceeds %d", words, maxWords)
	}
	sum := sha256.Sum256(artifact)
	h[0], h[1] = 1, 0
	binary.BigEndian.PutUint16(h[2:], uint16(words)) // #nosec G115 -- checked above
	copy(h[4:], sum[4:])
	return h, nil
}
