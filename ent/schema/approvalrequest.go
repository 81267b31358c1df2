package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ApprovalRequest holds the schema definition for the `approval_requests`
// table, covering both the pending set and the resolved history (spec §3
// "Approval Requests / History", §4.7).
type ApprovalRequest struct {
	ent.Schema
}

// Fields of the ApprovalRequest.
func (ApprovalRequest) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("approval_id").
			Unique().
			Immutable(),
		field.String("project_id").
			Immutable(),
		field.Enum("status").
			Values("PENDING", "APPROVED", "REVISION_REQUESTED", "REJECTED", "TIMEOUT").
			Default("PENDING"),
		field.String("trigger_event_type").
			Immutable(),
		field.String("trigger_event_id").
			Immutable(),
		field.String("stage").
			Immutable(),
		field.Text("content_summary").
			Immutable(),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("resolved_at").
			Optional().
			Nillable(),
		field.String("prior_status").
			Immutable(),
		field.JSON("deferred_task_templates", []interface{}{}).
			Optional().
			Immutable(),
		field.String("decider").
			Optional().
			Nillable(),
		field.Text("notes").
			Optional().
			Nillable(),
		field.Text("revision_notes").
			Optional().
			Nillable(),
		field.Time("reminder_sent_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the ApprovalRequest.
func (ApprovalRequest) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("project_id", "status"),
		index.Fields("status", "created_at"),
	}
}
