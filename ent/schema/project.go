package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Project holds the schema definition for the Project aggregate root (spec
// §3). It documents the shape of the `projects` table; the runtime read/write
// path is hand-written SQL over pgx (pkg/store), not a generated ent client —
// see DESIGN.md for why.
type Project struct {
	ent.Schema
}

// Fields of the Project.
func (Project) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("project_id").
			Unique().
			Immutable(),
		field.Int64("version").
			Default(1).
			Comment("Bumped on every successful mutation; optimistic-concurrency predicate"),
		field.Enum("status").
			Values("CREATED", "PLANNING", "RENDERING", "QA", "EDITING",
				"APPROVAL_PENDING", "DELIVERED", "ABORTED", "FAILED").
			Default("CREATED"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
		field.Time("deleted_at").
			Optional().
			Nillable().
			Comment("Soft delete for retention policy"),

		// Flexible, JSON-document fields — the fast-moving parts of the
		// aggregate (spec §4.2 "one row per project ... JSON-document column
		// for the flexible fields"). Each is addressed by its own JSON-path
		// so partial updates don't require a whole-row read-modify-write.
		field.JSON("spec", map[string]interface{}{}).
			Comment("GlobalSpec"),
		field.JSON("budget", map[string]interface{}{}).
			Comment("Budget: total, spent, breakdown"),
		field.JSON("dna_bank", map[string]interface{}{}).
			Optional().
			Comment("entity id -> DNAEntry"),
		field.JSON("shots", map[string]interface{}{}).
			Optional().
			Comment("shot id -> Shot"),
		field.JSON("locks_mirror", map[string]interface{}{}).
			Optional().
			Comment("advisory mirror of Lock Service state"),
		field.JSON("artifacts", map[string]interface{}{}).
			Optional().
			Comment("artifact uri -> ArtifactEntry"),
		field.JSON("error_log", []interface{}{}).
			Optional(),
		field.JSON("change_log", []interface{}{}).
			Optional().
			Comment("most-recent 100 entries only; full history in change_log_entries table"),
		field.JSON("pending_approvals", map[string]interface{}{}).
			Optional(),
	}
}

// Indexes of the Project.
func (Project) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("status", "updated_at"),
		index.Fields("deleted_at").
			Annotations(entsql.IndexWhere("deleted_at IS NOT NULL")),
	}
}
