package evmla

import (
	"fmt"
	"strconv"
	"strings"
)

// Pseudo-instruction names of the legacy assembly.
const (
	NameTag               = "tag"
	NamePush              = "PUSH"
	NamePushTag           = "PUSH [tag]"
	NamePushData          = "PUSH [$]"
	NamePushDataSize      = "PUSH #[$]"
	NamePushLib           = "PUSHLIB"
	NamePushDeployAddress = "PUSHDEPLOYADDRESS"
	NamePushSize          = "PUSHSIZE"
	NamePushImmutable     = "PUSHIMMUTABLE"
	NameAssignImmutable   = "ASSIGNIMMUTABLE"
	NamePushDataBlob      = "PUSH data"
	NameJump              = "JUMP"
	NameJumpI             = "JUMPI"
	NameJumpDest          = "JUMPDEST"
)

// RuntimeKey is the data key of the runtime assembly inside deploy code.
const RuntimeKey = "0"

// Instruction is one legacy assembly item.
type Instruction struct {
	Name   string `json:"name"`
	Value  string `json:"value,omitempty"`
	Begin  int    `json:"begin"`
	End    int    `json:"end"`
	Source int    `json:"source"`
}

func (in Instruction) String() string {
	if in.Value == "" {
		return in.Name
	}
	return in.Name + " " + in.Value
}

// TagValue parses the tag number of tag / PUSH [tag] items.
func (in Instruction) TagValue() (uint64, error) {
	v, err := strconv.ParseUint(in.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tag %q: %w", in.Value, err)
	}
	return v, nil
}

// DataKey normalises the operand of PUSH [$] / PUSH #[$]: solc emits either
// a 64-digit hex index or, after dependency preprocessing, a full path.
func (in Instruction) DataKey() string {
	return NormalizeKey(in.Value)
}

// NormalizeKey turns a hex data index into its canonical form; anything that
// is not a hex index (a path) is returned unchanged.
func NormalizeKey(v string) string {
	if v == "" || strings.Contains(v, ":") {
		return v
	}
	trimmed := strings.TrimLeft(v, "0")
	if trimmed == "" {
		return RuntimeKey
	}
	n, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return v
	}
	return strconv.FormatUint(n, 16)
}
