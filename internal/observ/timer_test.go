package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimerConcurrentAdd(t *testing.T) {
	tm := NewTimer()
	idx := tm.Begin("compile")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Add("lower", time.Millisecond)
		}()
	}
	wg.Wait()
	tm.End(idx, "16 units")

	rep := tm.Report()
	if len(rep.Phases) != 1 || rep.Phases[0].Note != "16 units" {
		t.Fatalf("unexpected phases: %+v", rep.Phases)
	}
	if len(rep.Units) != 1 || rep.Units[0].DurationMS < 16 {
		t.Fatalf("unexpected unit buckets: %+v", rep.Units)
	}
	if !strings.Contains(tm.Summary(), "unit/lower") {
		t.Fatalf("summary misses unit bucket:\n%s", tm.Summary())
	}
}

func TestCounters(t *testing.T) {
	before := Counters()[UnitsCompiled]
	Count(UnitsCompiled)
	CountN(UnitsCompiled, 2)
	if got := Counters()[UnitsCompiled]; got != before+3 {
		t.Fatalf("counter = %d, want %d", got, before+3)
	}
}
