package interp

import (
	"github.com/holiman/uint256"

	"zkvmc/internal/native"
)

// FarCallRequest is what a far call hands to the host.
type FarCallRequest struct {
	Desc    native.FarCall
	Address *uint256.Int
	Gas     *uint256.Int
	Input   []byte
	Extra   []*uint256.Int
}

// FarCallResult is the callee outcome; Output becomes the return data.
type FarCallResult struct {
	OK     bool
	Output []byte
}

// Host supplies everything outside the contract frame.
type Host interface {
	SLoad(key *uint256.Int) *uint256.Int
	SStore(key, val *uint256.Int)
	TLoad(key *uint256.Int) *uint256.Int
	TStore(key, val *uint256.Int)
	Context(kind native.ContextKind) *uint256.Int
	FarCall(req FarCallRequest) FarCallResult
	LinkSym(sym native.LinkSymbol) (*uint256.Int, bool)
	Log(topics []*uint256.Int, data []byte)
}

// LogEntry is a recorded event.
type LogEntry struct {
	Topics []*uint256.Int
	Data   []byte
}

// MemHost is an in-memory Host for tests and the CLI dry runner.
type MemHost struct {
	Storage   map[uint256.Int]uint256.Int
	Transient map[uint256.Int]uint256.Int
	Ctx       map[native.ContextKind]*uint256.Int
	Symbols   map[native.LinkSymbol]*uint256.Int
	Logs      []LogEntry
	Calls     []FarCallRequest
	// OnFarCall answers far calls; nil fails every call with empty output.
	OnFarCall func(req FarCallRequest) FarCallResult
}

// NewMemHost returns an empty host.
func NewMemHost() *MemHost {
	return &MemHost{
		Storage:   make(map[uint256.Int]uint256.Int),
		Transient: make(map[uint256.Int]uint256.Int),
		Ctx:       make(map[native.ContextKind]*uint256.Int),
		Symbols:   make(map[native.LinkSymbol]*uint256.Int),
	}
}

func (h *MemHost) SLoad(key *uint256.Int) *uint256.Int {
	v := h.Storage[*key]
	return &v
}

func (h *MemHost) SStore(key, val *uint256.Int) { h.Storage[*key] = *val }

func (h *MemHost) TLoad(key *uint256.Int) *uint256.Int {
	v := h.Transient[*key]
	return &v
}

func (h *MemHost) TStore(key, val *uint256.Int) { h.Transient[*key] = *val }

func (h *MemHost) Context(kind native.ContextKind) *uint256.Int {
	if v, ok := h.Ctx[kind]; ok {
		return new(uint256.Int).Set(v)
	}
	if kind == native.CtxGasLeft {
		return uint256.NewInt(1 << 32)
	}
	return new(uint256.Int)
}

func (h *MemHost) FarCall(req FarCallRequest) FarCallResult {
	h.Calls = append(h.Calls, req)
	if h.OnFarCall == nil {
		return FarCallResult{}
	}
	return h.OnFarCall(req)
}

func (h *MemHost) LinkSym(sym native.LinkSymbol) (*uint256.Int, bool) {
	v, ok := h.Symbols[sym]
	return v, ok
}

func (h *MemHost) Log(topics []*uint256.Int, data []byte) {
	h.Logs = append(h.Logs, LogEntry{Topics: topics, Data: append([]byte(nil), data...)})
}
