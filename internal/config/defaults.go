package config

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerSettings{
			MaxWorkers: 4,
		},
		Suggester: SuggesterSettings{
			Enabled:   true,
			Threshold: 0.7,
		},
		Storage: StorageSettings{
			Path: "", // Persistence off unless pointed at a file
		},
	}
}
