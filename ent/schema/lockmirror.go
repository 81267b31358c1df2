package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LockMirror holds the schema definition for the `locks_mirror` table — a
// best-effort, observability-only mirror of the Lock Service's Redis-backed
// state (spec §3 Locks, §4.3: "advisory mirror ... for observability"). The
// Lock Service, not this table, is the source of truth for mutual exclusion.
type LockMirror struct {
	ent.Schema
}

// Fields of the LockMirror.
func (LockMirror) Fields() []ent.Field {
	return []ent.Field{
		field.String("key").
			Unique().
			Immutable().
			Comment("e.g. project:{id}:shot:{shot_id}"),
		field.String("project_id").
			Immutable(),
		field.String("holder"),
		field.Time("acquired_at"),
		field.Time("expires_at"),
		field.JSON("metadata", map[string]string{}).
			Optional(),
	}
}

// Indexes of the LockMirror.
func (LockMirror) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id"),
		index.Fields("expires_at"),
	}
}
