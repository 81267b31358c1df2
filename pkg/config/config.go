package config

// Config is the umbrella configuration object returned by Initialize() and
// threaded through the State Store, Task Queue, Scheduler, Lock Service,
// Approval Gate, and Orchestrator façade.
type Config struct {
	configDir string

	Queue     *QueueConfig
	Retention *RetentionConfig
	Budget    *BudgetConfig
	Lock      *LockConfig
	Approval  *ApprovalConfig
	Notify    *NotifyConfig

	// EventTaskMap is the declarative Event→Task Mapper table (spec §4.5).
	EventTaskMap EventTaskMapConfig

	// TaskDefaults holds the per-task-type priority/assignee/cost defaults
	// the mapper applies when building a Task from a template.
	TaskDefaults TaskDefaultsConfig
}

// Initialize is defined in loader.go

// ConfigStats reports a few counts useful for a single post-boot log line.
type ConfigStats struct {
	EventTypesMapped int
	TaskTypes        int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		EventTypesMapped: len(c.EventTaskMap),
		TaskTypes:        len(c.TaskDefaults),
	}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// TaskTemplatesFor returns the task templates the mapper table produces for
// a given event type, or nil if the event type maps to nothing (a terminal
// or purely informational event).
func (c *Config) TaskTemplatesFor(eventType string) []TaskTemplateConfig {
	return c.EventTaskMap[eventType]
}

// TaskDefaultsFor returns the configured defaults for a task type, and
// whether an entry was found.
func (c *Config) TaskDefaultsFor(taskType string) (TaskTypeDefault, bool) {
	d, ok := c.TaskDefaults[taskType]
	return d, ok
}
