package ui

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"zkvmc/internal/buildpipeline"
)

func TestApplyEventTracksUnits(t *testing.T) {
	m := NewProgressModel("build", []string{"a.yul:A", "b.yul:B"}, "", nil).(*progressModel)

	m.applyEvent(buildpipeline.Event{Unit: "a.yul:A", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusWorking})
	if got := m.items[0].status; got != "lowering" {
		t.Fatalf("status = %q", got)
	}
	m.applyEvent(buildpipeline.Event{Unit: "a.yul:A", Stage: buildpipeline.StageAssemble, Status: buildpipeline.StatusDone})
	if got := m.items[0].status; got != "assembled" {
		t.Fatalf("status = %q", got)
	}
	m.applyEvent(buildpipeline.Event{Unit: "b.yul:B", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusError})
	m.applyEvent(buildpipeline.Event{Unit: "b.yul:B", Stage: buildpipeline.StageLink, Status: buildpipeline.StatusDone})
	if got := m.items[1].status; got != "error" {
		t.Fatalf("error must be final, got %q", got)
	}
	m.applyEvent(buildpipeline.Event{Stage: buildpipeline.StageLink, Status: buildpipeline.StatusWorking})
	if m.stageLabel != "linking" {
		t.Fatalf("stage label = %q", m.stageLabel)
	}
	m.applyEvent(buildpipeline.Event{Unit: "zzz", Stage: buildpipeline.StageLower, Status: buildpipeline.StatusWorking})

	view := m.View()
	if !strings.Contains(view, "a.yul:A") || !strings.Contains(view, "build (linking)") {
		t.Fatalf("view:\n%s", view)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 6); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdef", 3); got != "abc" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("src/contracts/token.yul:Token", 12); runewidth.StringWidth(got) != 12 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("контракт.yul", 8); got != "конта..." {
		t.Fatalf("truncate = %q", got)
	}
}
