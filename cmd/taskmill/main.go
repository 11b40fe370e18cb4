package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/taskmill/taskmill/internal/config"
	"github.com/taskmill/taskmill/internal/events"
	"github.com/taskmill/taskmill/internal/persistence"
	"github.com/taskmill/taskmill/internal/scheduler"
	"github.com/taskmill/taskmill/internal/tui"
)

func main() {
	// Signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewEventBus()
	defer bus.Close()

	// The hooks need the scheduler's status function, so bind through a
	// closure over the variable assigned just below.
	var sched *scheduler.Scheduler
	sched = scheduler.New(scheduler.Config{
		MaxWorkers:      cfg.Scheduler.MaxWorkers,
		Timeout:         time.Duration(cfg.Scheduler.TimeoutSeconds) * time.Second,
		CascadeFailures: cfg.Scheduler.CascadeFailures,
		Hooks: events.SchedulerHooks(bus, func() scheduler.Counts {
			return sched.Status()
		}),
	})

	if err := buildDemoPipeline(sched, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error building pipeline: %v\n", err)
		os.Exit(1)
	}

	// Run the scheduler alongside the dashboard.
	schedDone := sched.Start(ctx)

	p := tea.NewProgram(tui.New(bus), tea.WithAltScreen())
	tuiDone := make(chan error, 1)
	go func() {
		_, err := p.Run()
		tuiDone <- err
	}()

	select {
	case err := <-tuiDone:
		// User quit the dashboard; stop the scheduler cooperatively.
		sched.Stop()
		<-schedDone
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case <-ctx.Done():
		stop()
		log.Println("Shutdown signal received, cleaning up...")
		sched.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		select {
		case <-schedDone:
		case <-shutdownCtx.Done():
			log.Println("Shutdown timeout exceeded, forcing exit")
		}
		p.Quit()
		<-tuiDone
	}

	snapshot(cfg, sched)
	log.Println("Shutdown complete")
}

// snapshot persists the final task state when storage is configured.
func snapshot(cfg *config.Config, sched *scheduler.Scheduler) {
	if cfg.Storage.Path == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := persistence.NewSQLiteStore(ctx, cfg.Storage.Path)
	if err != nil {
		log.Printf("WARNING: failed to open snapshot store: %v", err)
		return
	}
	defer store.Close()

	if err := store.SaveSnapshot(ctx, sched.ExportState()); err != nil {
		log.Printf("WARNING: failed to save snapshot: %v", err)
	}
}

// buildDemoPipeline registers a small pipeline exercising explicit
// dependencies, runtime-spawned subtasks, and text-suggested edges.
func buildDemoPipeline(sched *scheduler.Scheduler, cfg *config.Config) error {
	work := func(d time.Duration, result string) scheduler.Executor {
		return func(ctx context.Context, tc *scheduler.TaskContext) (any, error) {
			select {
			case <-time.After(d):
				return result, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	if _, err := sched.AddTask("fetch-users", "Fetch user records", work(800*time.Millisecond, "42 users")); err != nil {
		return err
	}
	if _, err := sched.AddTask("fetch-orders", "Fetch order records", work(1200*time.Millisecond, "17 orders")); err != nil {
		return err
	}
	if _, err := sched.AddTask("report", "Build the daily report", reportExecutor(), "fetch-users", "fetch-orders"); err != nil {
		return err
	}
	if _, err := sched.AddTask("archive", "Archive artifacts once report completes", work(400*time.Millisecond, "archived")); err != nil {
		return err
	}

	if cfg.Suggester.Enabled {
		sug := scheduler.NewTextSuggester(cfg.Suggester.Threshold)
		applied := scheduler.ApplySuggestions(sched.Graph(), sug, "archive")
		for _, s := range applied {
			log.Printf("suggested dependency: %s -> %s (%.2f)", s.TaskID, s.DependsOn, s.Confidence)
		}
	}
	return nil
}

// reportExecutor demonstrates runtime dependency discovery: on first entry it
// spawns a validation subtask and suspends; on re-entry it folds the
// subtask's result into its own.
func reportExecutor() scheduler.Executor {
	return func(ctx context.Context, tc *scheduler.TaskContext) (any, error) {
		childID, _ := tc.LastCheckpoint().(string)
		if childID == "" {
			id, err := tc.SpawnSubtask("Validate report inputs", func(ctx context.Context, tc *scheduler.TaskContext) (any, error) {
				time.Sleep(300 * time.Millisecond)
				return "inputs ok", nil
			}, false)
			if err != nil {
				return nil, err
			}
			childID = id
			tc.Checkpoint(id)
			if err := tc.WaitFor(id); err != nil {
				return nil, err
			}
		}

		validation, _ := tc.Result(childID)
		users, _ := tc.Result("fetch-users")
		orders, _ := tc.Result("fetch-orders")
		return fmt.Sprintf("report: %v, %v (%v)", users, orders, validation), nil
	}
}
