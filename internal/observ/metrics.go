package observ

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codahale/metrics"
)

// Counter names published by the build pipeline.
const (
	UnitsCompiled   = "zkvmc.units.compiled"
	UnitsFailed     = "zkvmc.units.failed"
	UnitsCached     = "zkvmc.units.cached"
	BytesEmitted    = "zkvmc.bytes.emitted"
	LibrariesLinked = "zkvmc.libraries.linked"
	Placeholders    = "zkvmc.libraries.placeholders"
	Warnings        = "zkvmc.diagnostics.warnings"
)

// Count increments counter name by one.
func Count(name string) {
	metrics.Counter(name).Add()
}

// CountN increments counter name by n.
func CountN(name string, n uint64) {
	metrics.Counter(name).AddN(n)
}

// Counters returns a snapshot of the zkvmc.* counters.
func Counters() map[string]uint64 {
	counters, _ := metrics.Snapshot()
	out := make(map[string]uint64)
	for k, v := range counters {
		if strings.HasPrefix(k, "zkvmc.") {
			out[k] = v
		}
	}
	return out
}

// CountersSummary renders Counters sorted by name.
func CountersSummary() string {
	c := Counters()
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString("counters:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "  %-32s %d\n", k, c[k])
	}
	return sb.String()
}
