package config

// mergeEventTaskMap merges the built-in mapper table with user overrides.
// A user entry for an event type replaces the built-in entry for that event
// type wholesale (the table is data, not a patch format — spec §4.5).
func mergeEventTaskMap(builtin, user EventTaskMapConfig) EventTaskMapConfig {
	result := make(EventTaskMapConfig, len(builtin)+len(user))
	for eventType, templates := range builtin {
		result[eventType] = templates
	}
	for eventType, templates := range user {
		result[eventType] = templates
	}
	return result
}

// mergeTaskDefaults merges built-in and user-defined per-task-type defaults.
// User-defined entries override built-in entries with the same task type.
func mergeTaskDefaults(builtin, user TaskDefaultsConfig) TaskDefaultsConfig {
	result := make(TaskDefaultsConfig, len(builtin)+len(user))
	for taskType, def := range builtin {
		result[taskType] = def
	}
	for taskType, def := range user {
		result[taskType] = def
	}
	return result
}
