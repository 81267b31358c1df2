// Package mapper implements the Event→Task Mapper: a pure function from an
// event plus the current project snapshot to a list of task templates,
// driven entirely by the declarative table in config.EventTaskMapConfig
// (spec §4.5). The table is data, not code — reloading config.Config
// reloads the mapper's behavior without a recompile.
package mapper

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/domain"
)

// Mapper maps events to task templates and task templates to Tasks using
// the configured declarative table and per-task-type defaults.
type Mapper struct {
	cfg *config.Config
}

// New builds a Mapper bound to cfg. Because cfg is just data, swapping in a
// reloaded *config.Config changes mapping behavior immediately.
func New(cfg *config.Config) *Mapper {
	return &Mapper{cfg: cfg}
}

// Map produces the task templates an event triggers, given the current
// project snapshot for evaluating conditions that need project state (e.g.
// "all_shots_done") (spec §4.5 "map(event) → list of task templates").
func (m *Mapper) Map(event *domain.Event, project *domain.Project) ([]domain.TaskTemplate, error) {
	entries := m.cfg.TaskTemplatesFor(event.Type)
	if len(entries) == 0 {
		return nil, nil
	}

	var out []domain.TaskTemplate
	for _, entry := range entries {
		if entry.Condition != "" && !evaluateCondition(entry.Condition, event, project) {
			continue
		}

		if entry.PerShot {
			for _, shotID := range shotIDsFromPayload(event, project) {
				out = append(out, domain.TaskTemplate{
					TaskType:         entry.TaskType,
					Input:            projectInput(event, shotID),
					CausationEventID: event.ID,
					ShotID:           shotID,
				})
			}
			continue
		}

		out = append(out, domain.TaskTemplate{
			TaskType:         entry.TaskType,
			Input:            projectInput(event, ""),
			CausationEventID: event.ID,
		})
	}
	return out, nil
}

// BuildTask fills in a Task from a template using the per-task-type
// defaults table (spec §4.5 "Task template → Task: the mapper fills in id,
// priority ..., assignee ..., causation event id, and input"). Dependencies
// are left nil — the Orchestrator populates those (spec §4.5).
func (m *Mapper) BuildTask(tmpl domain.TaskTemplate, projectID string) (*domain.Task, error) {
	defaults, ok := m.cfg.TaskDefaultsFor(tmpl.TaskType)
	if !ok {
		return nil, fmt.Errorf("mapper: no TaskDefaults configured for task type %q", tmpl.TaskType)
	}

	lockKey := ""
	if defaults.RequiredLockKeyTemplate != "" {
		lockKey = formatLockKey(defaults.RequiredLockKeyTemplate, projectID, tmpl.ShotID)
	}

	maxRetries := defaults.MaxRetries
	if maxRetries == 0 {
		maxRetries = domain.DefaultMaxRetries
	}

	return &domain.Task{
		ID:               uuid.NewString(),
		Type:             tmpl.TaskType,
		Status:           domain.TaskStatusPending,
		Assignee:         defaults.Assignee,
		Priority:         defaults.Priority,
		Input:            tmpl.Input,
		MaxRetries:       maxRetries,
		CausationEventID: tmpl.CausationEventID,
		RequiredLockKey:  lockKey,
		ProjectID:        projectID,
		EstimatedCost:    domain.NewMoney(defaults.EstimatedCost, "USD"),
	}, nil
}

func formatLockKey(tmpl, projectID, shotID string) string {
	// RequiredLockKeyTemplate carries exactly one or two %s verbs — one for
	// project id, optionally a second for shot id (spec §4.3 named lock
	// keys: "project:{id}:shot:{shot_id}" vs. "project:{id}:dna_bank").
	if countVerbs(tmpl) == 1 {
		return fmt.Sprintf(tmpl, projectID)
	}
	return fmt.Sprintf(tmpl, projectID, shotID)
}

func countVerbs(s string) int {
	n := 0
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' && s[i+1] == 's' {
			n++
		}
	}
	return n
}

// projectInput is the default per-type projection: the event payload,
// passed through, plus shot_id when the template is per-shot. Task types
// whose worker needs a richer projection read additional fields directly
// out of Input at dispatch time; the mapper's job ends at handing over the
// event's own payload.
func projectInput(event *domain.Event, shotID string) map[string]any {
	input := make(map[string]any, len(event.Payload)+1)
	for k, v := range event.Payload {
		input[k] = v
	}
	if shotID != "" {
		input["shot_id"] = shotID
	}
	return input
}

// shotIDsFromPayload returns the shot ids a per-shot template should fan
// out over: the event payload's own "shot_ids" list if present (e.g.
// SHOT_PLANNED carries the shots it just planned), falling back to every
// shot currently on the project.
func shotIDsFromPayload(event *domain.Event, project *domain.Project) []string {
	if raw, ok := event.Payload["shot_ids"]; ok {
		if list, ok := raw.([]any); ok {
			ids := make([]string, 0, len(list))
			for _, v := range list {
				if s, ok := v.(string); ok {
					ids = append(ids, s)
				}
			}
			if len(ids) > 0 {
				return ids
			}
		}
	}
	if project == nil {
		return nil
	}
	ids := make([]string, 0, len(project.Shots))
	for id := range project.Shots {
		ids = append(ids, id)
	}
	return ids
}
