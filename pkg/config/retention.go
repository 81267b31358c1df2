package config

import "time"

// RetentionConfig controls data retention and cleanup behavior (spec §3
// Lifecycles: "Events are append-only, retained per configured retention,
// default 30 days for completed projects").
type RetentionConfig struct {
	// ProjectRetentionDays is how many days to keep completed/aborted
	// projects before soft-deleting them (setting deleted_at).
	ProjectRetentionDays int `yaml:"project_retention_days"`

	// EventTTL is the maximum age of events belonging to a completed
	// project before they are purged.
	EventTTL time.Duration `yaml:"event_ttl"`

	// CleanupInterval is how often the retention sweep runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		ProjectRetentionDays: 90,
		EventTTL:             30 * 24 * time.Hour,
		CleanupInterval:      12 * time.Hour,
	}
}
