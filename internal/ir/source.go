// Package ir holds the two source IRs a unit can arrive in.
package ir

import (
	"zkvmc/internal/ir/evmla"
	"zkvmc/internal/ir/yul"
)

// Pipeline selects the front-end of a unit.
type Pipeline uint8

const (
	PipelineYul Pipeline = iota
	PipelineEVMLA
)

func (p Pipeline) String() string {
	switch p {
	case PipelineYul:
		return "yul"
	case PipelineEVMLA:
		return "evmla"
	default:
		return "unknown"
	}
}

// ParsePipeline accepts "yul" and "evmla".
func ParsePipeline(s string) (Pipeline, bool) {
	switch s {
	case "yul", "Yul":
		return PipelineYul, true
	case "evmla", "EVMLA", "legacy":
		return PipelineEVMLA, true
	}
	return 0, false
}

// Source is a unit input: *YulSource or *EVMLASource.
type Source interface {
	Pipeline() Pipeline
	sealed()
}

// YulSource wraps a top-level Yul object.
type YulSource struct {
	Object *yul.Object
}

// EVMLASource wraps a deploy assembly whose Data["0"] is the runtime.
type EVMLASource struct {
	Assembly *evmla.Assembly
	// Text is the instruction listing the diagnostics spans index into.
	Text string
}

func (*YulSource) Pipeline() Pipeline   { return PipelineYul }
func (*EVMLASource) Pipeline() Pipeline { return PipelineEVMLA }

func (*YulSource) sealed()   {}
func (*EVMLASource) sealed() {}
