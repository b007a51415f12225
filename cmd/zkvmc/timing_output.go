package main

import (
	"fmt"
	"io"
	"time"

	"zkvmc/internal/buildpipeline"
	"zkvmc/internal/observ"
)

// printStageTimings prints the phase timer summary (or, without a timer,
// the recorded stage durations in pipeline order) and pipeline counters.
func printStageTimings(out io.Writer, timings buildpipeline.Timings, timer *observ.Timer) error {
	if out == nil {
		return nil
	}
	if timer != nil {
		if _, err := io.WriteString(out, timer.Summary()); err != nil {
			return err
		}
		_, err := io.WriteString(out, observ.CountersSummary())
		return err
	}
	for _, stage := range buildpipeline.Stages {
		if !timings.Has(stage) {
			continue
		}
		if _, err := fmt.Fprintf(out, "%-9s %8.1f ms\n", stage, toMillis(timings.Duration(stage))); err != nil {
			return err
		}
	}
	_, err := io.WriteString(out, observ.CountersSummary())
	return err
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
