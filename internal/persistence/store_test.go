package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskmill/taskmill/internal/scheduler"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "taskmill.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleSnapshots() []scheduler.TaskSnapshot {
	created := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	started := created.Add(time.Minute)
	completed := created.Add(2 * time.Minute)

	return []scheduler.TaskSnapshot{
		{
			ID:          "fetch",
			Description: "Fetch the inputs",
			State:       "completed",
			Progress:    1.0,
			Result:      "12 records",
			CreatedAt:   created,
			StartedAt:   &started,
			CompletedAt: &completed,
		},
		{
			ID:          "transform",
			Description: "Transform the inputs",
			State:       "failed",
			DependsOn:   []string{"fetch"},
			Error:       "schema mismatch",
			CreatedAt:   created,
			StartedAt:   &started,
			CompletedAt: &completed,
		},
		{
			ID:          "publish",
			Description: "Publish the outputs",
			State:       "pending",
			DependsOn:   []string{"fetch", "transform"},
			ParentID:    "transform",
			CreatedAt:   created,
		},
	}
}

func TestSaveLoadSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshots()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	got, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(got))
	}

	// Position preserves insertion order.
	for i, want := range []string{"fetch", "transform", "publish"} {
		if got[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}

	fetch := got[0]
	if fetch.State != "completed" || fetch.Result != "12 records" || fetch.Progress != 1.0 {
		t.Errorf("fetch fields lost in round trip: %+v", fetch)
	}
	if fetch.StartedAt == nil || fetch.CompletedAt == nil {
		t.Fatal("fetch timestamps lost in round trip")
	}
	if !fetch.CompletedAt.Equal(fetch.StartedAt.Add(time.Minute)) {
		t.Errorf("timestamps corrupted: started %v, completed %v", fetch.StartedAt, fetch.CompletedAt)
	}

	transform := got[1]
	if transform.Error != "schema mismatch" {
		t.Errorf("expected error string preserved, got %q", transform.Error)
	}

	publish := got[2]
	if publish.ParentID != "transform" {
		t.Errorf("expected parent id preserved, got %q", publish.ParentID)
	}
	if publish.StartedAt != nil || publish.CompletedAt != nil {
		t.Errorf("pending task should have nil timestamps: %+v", publish)
	}
	// Dependency ordinals preserve declaration order.
	if len(publish.DependsOn) != 2 || publish.DependsOn[0] != "fetch" || publish.DependsOn[1] != "transform" {
		t.Errorf("dependency order lost: %v", publish.DependsOn)
	}
}

func TestSaveSnapshotReplacesPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshots()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := store.SaveSnapshot(ctx, []scheduler.TaskSnapshot{
		{ID: "only", Description: "sole survivor", State: "pending", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("second SaveSnapshot failed: %v", err)
	}

	got, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "only" {
		t.Errorf("expected the second snapshot to replace the first, got %v", got)
	}
}

func TestLoadSnapshotFeedsImport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshots()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	snaps, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	g := scheduler.NewGraph()
	if err := g.Import(snaps); err != nil {
		t.Fatalf("Import of loaded snapshot failed: %v", err)
	}
	if g.Len() != 3 {
		t.Errorf("expected 3 restored tasks, got %d", g.Len())
	}
	task, ok := g.Get("fetch")
	if !ok || task.State != scheduler.TaskCompleted {
		t.Errorf("fetch should restore as completed, got %+v", task)
	}
}

func TestCheckpoints(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	defer store.Close()

	if err := store.SaveSnapshot(ctx, sampleSnapshots()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	if err := store.SaveCheckpoint(ctx, "transform", []byte(`{"row": 41}`)); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}
	// Upsert replaces the previous blob.
	if err := store.SaveCheckpoint(ctx, "transform", []byte(`{"row": 42}`)); err != nil {
		t.Fatalf("second SaveCheckpoint failed: %v", err)
	}

	data, err := store.GetCheckpoint(ctx, "transform")
	if err != nil {
		t.Fatalf("GetCheckpoint failed: %v", err)
	}
	if string(data) != `{"row": 42}` {
		t.Errorf("expected latest checkpoint, got %s", data)
	}

	if _, err := store.GetCheckpoint(ctx, "no-such-task"); err == nil {
		t.Error("expected an error for a missing checkpoint")
	}
}

func TestCheckpointsCascadeOnSnapshotReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveSnapshot(ctx, sampleSnapshots()); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if err := store.SaveCheckpoint(ctx, "transform", []byte("state")); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	// Replacing the snapshot deletes the old tasks; checkpoints follow via
	// the foreign key.
	if err := store.SaveSnapshot(ctx, []scheduler.TaskSnapshot{
		{ID: "fresh", State: "pending", CreatedAt: time.Now()},
	}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	if _, err := store.GetCheckpoint(ctx, "transform"); err == nil {
		t.Error("checkpoint should be gone after its task was replaced")
	}
}
