package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/domain"
)

func newTestMapper() *Mapper {
	return New(&config.Config{
		EventTaskMap: config.DefaultEventTaskMap(),
		TaskDefaults: config.DefaultTaskDefaults(),
	})
}

func TestMapper_UnconditionalTemplate(t *testing.T) {
	m := newTestMapper()
	event := &domain.Event{ID: "evt-1", Type: domain.EventTypeProjectCreated, Payload: map[string]any{}}

	templates, err := m.Map(event, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "WRITE_SCRIPT", templates[0].TaskType)
	require.Equal(t, "evt-1", templates[0].CausationEventID)
}

func TestMapper_ConditionGatesOnPayload(t *testing.T) {
	m := newTestMapper()

	pass := &domain.Event{ID: "evt-2", Type: domain.EventTypeQAReport,
		Payload: map[string]any{"qa_status": "PASS", "subject": "image"}}
	templates, err := m.Map(pass, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "GENERATE_PREVIEW_VIDEO", templates[0].TaskType)

	fail := &domain.Event{ID: "evt-3", Type: domain.EventTypeQAReport,
		Payload: map[string]any{"qa_status": "FAIL"}}
	templates, err = m.Map(fail, nil)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "PROMPT_TUNING", templates[0].TaskType)
}

func TestMapper_PerShotExpandsFromPayload(t *testing.T) {
	m := newTestMapper()
	event := &domain.Event{ID: "evt-4", Type: domain.EventTypeShotPlanned,
		Payload: map[string]any{"shot_ids": []any{"shot-1", "shot-2"}}}

	templates, err := m.Map(event, nil)
	require.NoError(t, err)
	require.Len(t, templates, 2)
	require.Equal(t, "shot-1", templates[0].ShotID)
	require.Equal(t, "shot-2", templates[1].ShotID)
	for _, tmpl := range templates {
		require.Equal(t, "GENERATE_KEYFRAME", tmpl.TaskType)
	}
}

func TestMapper_AllShotsDonePredicateRequiresProjectState(t *testing.T) {
	m := newTestMapper()
	event := &domain.Event{ID: "evt-5", Type: domain.EventTypeFinalVideoReady, Payload: map[string]any{}}

	templates, err := m.Map(event, nil)
	require.NoError(t, err)
	require.Empty(t, templates)

	project := &domain.Project{Shots: map[string]domain.Shot{
		"shot-1": {Status: domain.ShotStatusFinalRendered},
		"shot-2": {Status: domain.ShotStatusApproved},
	}}
	templates, err = m.Map(event, project)
	require.NoError(t, err)

	var types []string
	for _, tmpl := range templates {
		types = append(types, tmpl.TaskType)
	}
	require.Contains(t, types, "ASSEMBLE_FINAL")
	require.Contains(t, types, "GENERATE_MUSIC")
	require.Contains(t, types, "GENERATE_VOICE")
}

func TestMapper_BuildTaskFillsDefaultsAndLeavesDependenciesNil(t *testing.T) {
	m := newTestMapper()
	tmpl := domain.TaskTemplate{TaskType: "GENERATE_KEYFRAME", ShotID: "shot-1", CausationEventID: "evt-6",
		Input: map[string]any{"shot_id": "shot-1"}}

	task, err := m.BuildTask(tmpl, "proj-1")
	require.NoError(t, err)
	require.Equal(t, "GENERATE_KEYFRAME", task.Type)
	require.Equal(t, "image-generator", task.Assignee)
	require.Equal(t, 3, task.Priority)
	require.Equal(t, "project:proj-1:shot:shot-1", task.RequiredLockKey)
	require.Equal(t, "evt-6", task.CausationEventID)
	require.Equal(t, domain.TaskStatusPending, task.Status)
	require.Nil(t, task.Dependencies)

	_, err = m.BuildTask(domain.TaskTemplate{TaskType: "NOT_CONFIGURED"}, "proj-1")
	require.Error(t, err)
}
