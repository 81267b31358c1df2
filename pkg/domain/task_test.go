package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBudget_PredictedFinal(t *testing.T) {
	b := Budget{Total: NewMoney(100, "USD"), Spent: NewMoney(25, "USD")}

	require.True(t, b.PredictedFinal(0).Amount.Equal(b.Spent.Amount))

	got := b.PredictedFinal(0.25)
	want := NewMoney(100, "USD")
	require.True(t, got.Amount.Equal(want.Amount), "want %s got %s", want.Amount, got.Amount)

	got = b.PredictedFinal(1.5) // clamps to 1
	require.True(t, got.Amount.Equal(b.Spent.Amount))
}

func TestProject_ProgressRatio(t *testing.T) {
	p := NewProject("p1", GlobalSpec{}, Budget{})
	require.Equal(t, 0.0, p.ProgressRatio())

	p.Shots["s1"] = Shot{Status: ShotStatusFinalRendered}
	p.Shots["s2"] = Shot{Status: ShotStatusFailed}
	p.Shots["s3"] = Shot{Status: ShotStatusKeyframeGenerated}
	p.Shots["s4"] = Shot{Status: ShotStatusInit}

	require.InDelta(t, 0.5, p.ProgressRatio(), 0.0001)
}

func TestTask_Deadline(t *testing.T) {
	now := time.Now()
	startedAt := now.Add(-10 * time.Minute)
	heartbeatAt := now.Add(-1 * time.Minute)

	tests := []struct {
		name    string
		task    Task
		timeout time.Duration
		want    time.Time
	}{
		{
			name:    "never started has no deadline",
			task:    Task{},
			timeout: 5 * time.Minute,
			want:    time.Time{},
		},
		{
			name:    "measures from heartbeat when present, not StartedAt",
			task:    Task{StartedAt: &startedAt, Heartbeat: &heartbeatAt},
			timeout: 5 * time.Minute,
			want:    heartbeatAt.Add(5 * time.Minute),
		},
		{
			name:    "falls back to StartedAt with no heartbeat yet",
			task:    Task{StartedAt: &startedAt},
			timeout: 5 * time.Minute,
			want:    startedAt.Add(5 * time.Minute),
		},
		{
			name:    "non-positive timeout falls back to the default",
			task:    Task{StartedAt: &startedAt, Heartbeat: &heartbeatAt},
			timeout: 0,
			want:    heartbeatAt.Add(DefaultTaskTimeout),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, tc.task.Deadline(tc.timeout).Equal(tc.want))
		})
	}
}
