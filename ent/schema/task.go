package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for the `tasks` table (spec §3 Task,
// §4.4 Task Queue). Tasks are never destroyed, only transitioned — the table
// is the durable backing store for both the queue and the audit trail.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("task_id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("type").
			Comment("WRITE_SCRIPT, GENERATE_KEYFRAME, ... — driven by the configured mapper table, not a closed enum"),
		field.Enum("status").
			Values("PENDING", "READY", "IN_PROGRESS", "COMPLETED", "FAILED", "CANCELLED", "WAITING_APPROVAL").
			Default("PENDING"),
		field.String("assignee"),
		field.Int("priority").
			Comment("1-5, 5 highest"),
		field.JSON("dependencies", []string{}).
			Optional().
			Comment("task ids that must be COMPLETED first"),
		field.JSON("input", map[string]interface{}{}).
			Optional(),
		field.JSON("output", map[string]interface{}{}).
			Optional().
			Nillable(),
		field.Int("retry_count").
			Default(0),
		field.Int("max_retries").
			Default(3),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
		field.Time("heartbeat").
			Optional().
			Nillable().
			Comment("updated periodically while IN_PROGRESS; orphan-detection watchdog input"),
		field.Float("estimated_cost_amount").
			Default(0),
		field.Float("actual_cost_amount").
			Optional(),
		field.String("currency").
			Default("USD"),
		field.String("causation_event_id"),
		field.String("required_lock_key").
			Optional().
			Nillable(),
		field.String("pod_id").
			Optional().
			Nillable().
			Comment("multi-replica coordination marker"),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		// peek_ready ordering: priority desc, created_at asc, id asc for
		// tie-breaking (spec §4.4, §4.6 "Tie-breaking").
		index.Fields("project_id", "status", "priority", "created_at"),
		index.Fields("status", "heartbeat"),
		index.Fields("assignee", "status"),
	}
}
