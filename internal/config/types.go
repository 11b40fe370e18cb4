package config

// SchedulerSettings tune the run loop and worker pool.
type SchedulerSettings struct {
	MaxWorkers      int  `json:"max_workers"`                // Concurrent task executions
	TimeoutSeconds  int  `json:"timeout_seconds,omitempty"`  // Wall-clock limit for a run; 0 disables
	CascadeFailures bool `json:"cascade_failures,omitempty"` // Fail dependents of a failed task
}

// SuggesterSettings control the text-based dependency suggester.
type SuggesterSettings struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold"` // Minimum similarity to accept a match
}

// StorageSettings locate the snapshot database.
type StorageSettings struct {
	Path string `json:"path"` // SQLite file; empty disables persistence
}

// Config is the top-level configuration.
type Config struct {
	Scheduler SchedulerSettings `json:"scheduler"`
	Suggester SuggesterSettings `json:"suggester"`
	Storage   StorageSettings   `json:"storage"`
}
