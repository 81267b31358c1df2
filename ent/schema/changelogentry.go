package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ChangeLogEntry holds the schema definition for the append-only
// `change_log_entries` table — the full history behind the Project
// aggregate's capped in-memory change log (spec §3, §4.2 "Change log
// semantics").
type ChangeLogEntry struct {
	ent.Schema
}

// Fields of the ChangeLogEntry.
func (ChangeLogEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.Int64("version").
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.String("actor").
			Immutable(),
		field.String("change_type").
			Immutable(),
		field.String("description").
			Immutable(),
		field.String("change_path").
			Immutable(),
		field.String("causation_id").
			Optional().
			Immutable(),
		field.Text("before_snapshot").
			Optional().
			Immutable().
			Comment("bounded to 4KB; larger diffs summarized"),
		field.Text("after_snapshot").
			Optional().
			Immutable(),
	}
}

// Indexes of the ChangeLogEntry.
func (ChangeLogEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "version"),
	}
}
