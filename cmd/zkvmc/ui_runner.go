package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"zkvmc/internal/buildpipeline"
	"zkvmc/internal/ui"
)

type buildOutcome struct {
	result *buildpipeline.BuildResult
	err    error
}

// runBuildWithUI runs the build in a goroutine and renders its progress
// events until the build finishes.
func runBuildWithUI(ctx context.Context, title, baseDir string, req *buildpipeline.BuildRequest) (*buildpipeline.BuildResult, error) {
	if req == nil || req.Project == nil {
		return nil, fmt.Errorf("missing build request")
	}
	units := make([]string, len(req.Project.Units))
	for i, u := range req.Project.Units {
		units[i] = u.Name
	}
	events := make(chan buildpipeline.Event, 256)
	outcomeCh := make(chan buildOutcome, 1)

	go func() {
		reqCopy := *req
		reqCopy.Progress = buildpipeline.ChannelSink{Ch: events}
		res, err := buildpipeline.Build(ctx, &reqCopy)
		outcomeCh <- buildOutcome{result: res, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, units, baseDir, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	_, uiErr := program.Run()
	// the UI may quit early; keep workers from blocking on a full channel
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil {
		return outcome.result, uiErr
	}
	return outcome.result, outcome.err
}
