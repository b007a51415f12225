package source

type (
	// FileID uniquely identifies an input within a FileSet.
	FileID uint32
	// FileFlags encodes metadata about an input.
	FileFlags uint8
)

const (
	// FileVirtual marks inputs added from memory (tests, stdin, JSON fragments).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
	// FileInstructions marks legacy assembly inputs: spans are instruction indices.
	FileInstructions
)

// File captures metadata and content for a single input.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol represents a human-readable position in a source file.
type LineCol struct {
	Line uint32 // 1-based
	Col  uint32 // 1-based
}
