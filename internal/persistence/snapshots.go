package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskmill/taskmill/internal/scheduler"
)

const timeLayout = time.RFC3339Nano

// SaveSnapshot replaces the stored snapshot with the given one in a single
// transaction, so a crash mid-save never leaves a torn state. Snapshot order
// is preserved: the scheduler's readiness tie-break is insertion order, and
// a restore must reproduce it.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snaps []scheduler.TaskSnapshot) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// task_dependencies and checkpoints cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	for pos, snap := range snaps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, description, state, parent_id, progress, result, error, created_at, started_at, completed_at, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, snap.ID, snap.Description, snap.State, snap.ParentID, snap.Progress, snap.Result, snap.Error,
			snap.CreatedAt.Format(timeLayout), formatTimePtr(snap.StartedAt), formatTimePtr(snap.CompletedAt), pos)
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", snap.ID, err)
		}
	}

	// Dependencies go in after all tasks exist so foreign keys hold for
	// forward references.
	for _, snap := range snaps {
		for ordinal, depID := range snap.DependsOn {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO task_dependencies (task_id, depends_on_id, ordinal)
				VALUES (?, ?, ?)
			`, snap.ID, depID, ordinal)
			if err != nil {
				return fmt.Errorf("failed to insert dependency %s -> %s: %w", snap.ID, depID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot in its original insertion order,
// ready for ImportState.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]scheduler.TaskSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, state, parent_id, progress, result, error, created_at, started_at, completed_at
		FROM tasks
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var snaps []scheduler.TaskSnapshot
	for rows.Next() {
		var snap scheduler.TaskSnapshot
		var parentID, result, errorStr sql.NullString
		var createdAt string
		var startedAt, completedAt sql.NullString

		err := rows.Scan(&snap.ID, &snap.Description, &snap.State, &parentID, &snap.Progress,
			&result, &errorStr, &createdAt, &startedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		snap.ParentID = parentID.String
		snap.Result = result.String
		snap.Error = errorStr.String

		if snap.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for %s: %w", snap.ID, err)
		}
		if snap.StartedAt, err = parseTimePtr(startedAt); err != nil {
			return nil, fmt.Errorf("failed to parse started_at for %s: %w", snap.ID, err)
		}
		if snap.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, fmt.Errorf("failed to parse completed_at for %s: %w", snap.ID, err)
		}

		depRows, err := s.db.QueryContext(ctx, `
			SELECT depends_on_id
			FROM task_dependencies
			WHERE task_id = ?
			ORDER BY ordinal
		`, snap.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query dependencies for task %s: %w", snap.ID, err)
		}
		for depRows.Next() {
			var depID string
			if err := depRows.Scan(&depID); err != nil {
				depRows.Close()
				return nil, fmt.Errorf("failed to scan dependency: %w", err)
			}
			snap.DependsOn = append(snap.DependsOn, depID)
		}
		depRows.Close()
		if err := depRows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating dependencies: %w", err)
		}

		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return snaps, nil
}

// SaveCheckpoint stores a task's checkpoint blob, replacing any previous one.
// The task must already be in the stored snapshot.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, taskID string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (task_id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, taskID, data, time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint retrieves a task's checkpoint blob.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, taskID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM checkpoints WHERE task_id = ?
	`, taskID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint not found for task: %s", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	return data, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(timeLayout)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
