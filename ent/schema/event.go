package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for the `events` table backing the
// Event Store's durable log (spec §4.1). Fanout to subscribers happens over
// Redis Streams (pkg/eventbus); this table is the source of truth for
// replay and causation-chain queries.
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.String("type").
			Immutable(),
		field.String("actor").
			Immutable().
			Comment("publishing agent"),
		field.String("causation_id").
			Optional().
			Nillable().
			Immutable().
			Comment("null for externally-triggered roots"),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.JSON("payload", map[string]interface{}{}).
			Optional().
			Immutable(),
		field.String("blackboard_pointer").
			Optional().
			Immutable().
			Comment("JSON-pointer-like string into the project aggregate"),
		field.Float("cost_amount").
			Optional().
			Immutable(),
		field.Int64("latency_ms").
			Optional().
			Immutable(),
		field.Int("retry_count").
			Optional().
			Immutable(),
	}
}

// Indexes of the Event.
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		// replay(project_id, types?, since?, until?)
		index.Fields("project_id", "timestamp"),
		index.Fields("project_id", "type", "timestamp"),
		index.Fields("causation_id"),
	}
}
