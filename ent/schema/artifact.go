package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Artifact holds the schema definition for the `artifacts` metadata table
// (spec §3 "Artifact Index", §6 "artifacts-metadata table"). The core does
// not manage blob contents, only references (spec §6 "Blob store").
type Artifact struct {
	ent.Schema
}

// Fields of the Artifact.
func (Artifact) Fields() []ent.Field {
	return []ent.Field{
		field.String("uri").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.Int64("seed").
			Immutable(),
		field.String("model").
			Immutable(),
		field.String("model_version").
			Immutable(),
		field.Text("prompt").
			Immutable(),
		field.Float("cost_amount").
			Immutable(),
		field.String("currency").
			Default("USD").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Int("use_count").
			Default(0),
	}
}

// Indexes of the Artifact.
func (Artifact) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id"),
	}
}
