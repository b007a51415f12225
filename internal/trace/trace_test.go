package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStreamTracerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)
	ctx := WithTracer(context.Background(), tr)

	ctx, stage := StartSpan(ctx, ScopePass, "lower")
	_, unit := StartSpan(ctx, ScopeModule, "unit:a.sol:A")
	unit.End("")
	stage.WithExtra("units", "1").End("ok")

	out := buf.String()
	if !strings.Contains(out, "→ lower") || !strings.Contains(out, "← lower (ok) {units=1}") {
		t.Fatalf("missing stage events:\n%s", out)
	}
	if strings.Contains(out, "unit:a.sol:A") {
		t.Fatalf("module scope must be filtered at phase level:\n%s", out)
	}
}

func TestStartSpanParenting(t *testing.T) {
	ring := NewRingTracer(8, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	ctx, outer := StartSpan(ctx, ScopeDriver, "build")
	_, inner := StartSpan(ctx, ScopePass, "link")
	inner.End("")
	outer.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[1].ParentID != outer.ID() {
		t.Fatalf("inner span parent %d, want %d", events[1].ParentID, outer.ID())
	}
}

func TestNopByDefault(t *testing.T) {
	if FromContext(context.Background()).Enabled() {
		t.Fatalf("expected nop tracer")
	}
	_, sp := StartSpan(context.Background(), ScopePass, "x")
	if sp.End("") != 0 {
		t.Fatalf("nop span must report zero duration")
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"off", "error", "phase", "detail", "debug"} {
		lvl, err := ParseLevel(s)
		if err != nil || lvl.String() != s {
			t.Fatalf("ParseLevel(%q) = %v, %v", s, lvl, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRingKeepsNewest(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for i := 0; i < 5; i++ {
		ring.Emit(&Event{Kind: KindPoint, Scope: ScopeNode, Name: string(rune('a' + i))})
	}
	events := ring.Snapshot()
	if ring.Len() != 3 || len(events) != 3 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].Name != "c" || events[2].Name != "e" {
		t.Fatalf("events = %v", events)
	}
}

func TestErrorLevelBuffersStages(t *testing.T) {
	tr, err := New(Config{Level: LevelError, Mode: ModeStream})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ring, ok := tr.(*RingTracer)
	if !ok {
		t.Fatalf("error level must use a ring, got %T", tr)
	}
	ring.Emit(&Event{Kind: KindPoint, Scope: ScopePass, Name: "link"})
	ring.Emit(&Event{Kind: KindPoint, Scope: ScopeModule, Name: "unit"})
	if ring.Len() != 1 {
		t.Fatalf("len = %d", ring.Len())
	}
}

func TestRingOfBothMode(t *testing.T) {
	var buf strings.Builder
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, Output: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ring := RingOf(tr)
	if ring == nil {
		t.Fatalf("both mode must expose its ring")
	}
	tr.Emit(&Event{Kind: KindPoint, Scope: ScopeDriver, Name: "build"})
	if ring.Len() != 1 || !strings.Contains(buf.String(), "build") {
		t.Fatalf("ring=%d stream=%q", ring.Len(), buf.String())
	}
	if RingOf(Nop) != nil {
		t.Fatalf("nop has no ring")
	}
}
