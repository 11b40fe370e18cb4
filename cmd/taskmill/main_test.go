package main

import (
	"context"
	"strings"
	"testing"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/scheduler"
)

func TestDemoPipelineRunsToCompletion(t *testing.T) {
	cfg := config.DefaultConfig()
	sched := scheduler.New(scheduler.Config{MaxWorkers: cfg.Scheduler.MaxWorkers})

	if err := buildDemoPipeline(sched, cfg); err != nil {
		t.Fatalf("buildDemoPipeline failed: %v", err)
	}
	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	counts := sched.Status()
	if counts.Failed != 0 || counts.Completed != counts.Total() {
		t.Fatalf("expected every task completed, got %+v", counts)
	}

	// The report folds in both fetches and the spawned validation subtask.
	report, _ := sched.Graph().Get("report")
	result, _ := report.Result.(string)
	for _, want := range []string{"42 users", "17 orders", "inputs ok"} {
		if !strings.Contains(result, want) {
			t.Errorf("report result %q missing %q", result, want)
		}
	}

	// The suggester wires archive behind report from its description alone.
	archive, _ := sched.Graph().Get("archive")
	if len(archive.DependsOn) != 1 || archive.DependsOn[0] != "report" {
		t.Errorf("expected archive to depend on report, got %v", archive.DependsOn)
	}
}
