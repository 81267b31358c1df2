package config

import "time"

// QueueConfig contains Task Queue and Scheduler worker-pool configuration.
// These values control how tasks are polled, claimed, dispatched, and
// watched for orphaning (spec §4.4, §4.6).
type QueueConfig struct {
	// WorkerCount is the number of dispatch goroutines per orchestrator
	// instance. Each worker independently peeks ready tasks and dispatches
	// them.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentTasks is the global limit of tasks simultaneously
	// IN_PROGRESS across all orchestrator instances, enforced by a
	// database COUNT(*) check (spec §5 "N concurrent task slots").
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// PollInterval is the base interval between peek_ready polls.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is random jitter added to PollInterval so that
	// multiple orchestrator instances don't poll in lockstep.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// TaskTimeout is the maximum time a dispatched task may run before the
	// scheduler marks it timed out and requeues or fails it (spec §4.6).
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// GracefulShutdownTimeout is the max time to wait for in-flight tasks to
	// finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// HeartbeatInterval is how often an IN_PROGRESS task updates its
	// heartbeat timestamp.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// OrphanDetectionInterval is how often the watchdog scans for
	// IN_PROGRESS tasks whose heartbeat has gone stale.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a task can go without a heartbeat before
	// it is considered orphaned and requeued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		MaxConcurrentTasks:      10,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		TaskTimeout:             15 * time.Minute,
		GracefulShutdownTimeout: 15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         5 * time.Minute,
	}
}
