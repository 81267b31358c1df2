package config

import "time"

// DefaultBudgetConfig returns the built-in budget-gate thresholds.
func DefaultBudgetConfig() *BudgetConfig {
	return &BudgetConfig{
		WarningThreshold:     0.8,
		CriticalThreshold:    1.0,
		ForceAbortMultiplier: 1.2,
	}
}

// DefaultLockConfig returns the built-in Lock Service defaults.
func DefaultLockConfig() *LockConfig {
	return &LockConfig{
		DefaultTTL:        30 * time.Second,
		BlockingPollEvery: 100 * time.Millisecond,
	}
}

// DefaultApprovalConfig returns the built-in Approval Gate defaults.
func DefaultApprovalConfig() *ApprovalConfig {
	return &ApprovalConfig{
		DefaultCheckpoints:    []string{"SCENE_WRITTEN", "SHOT_PLANNED", "PREVIEW_VIDEO_READY", "FINAL_VIDEO_READY"},
		DefaultTimeoutMinutes: 60,
		ReminderAtTimeout:     true,
		AutoApproveOnTimeout:  false,
		ScanInterval:          time.Minute,
	}
}

// DefaultNotifyConfig returns the built-in Slack notifier defaults
// (disabled until a token and channel are configured).
func DefaultNotifyConfig() *NotifyConfig {
	return &NotifyConfig{
		Enabled:  false,
		TokenEnv: "SLACK_BOT_TOKEN",
	}
}

// DefaultEventTaskMap returns the built-in Event→Task Mapper table — the
// illustrative entries named directly.
func DefaultEventTaskMap() EventTaskMapConfig {
	return EventTaskMapConfig{
		"PROJECT_CREATED": {
			{TaskType: "WRITE_SCRIPT"},
		},
		"SCENE_WRITTEN": {
			{TaskType: "PLAN_SHOTS"},
		},
		"SHOT_PLANNED": {
			{TaskType: "GENERATE_KEYFRAME", PerShot: true},
		},
		"IMAGE_GENERATED": {
			{TaskType: "EXTRACT_FEATURES"},
			{TaskType: "RUN_VISUAL_QA"},
		},
		"DNA_BANK_UPDATED": {
			{TaskType: "ADJUST_PROMPTS"},
		},
		"QA_REPORT": {
			{TaskType: "GENERATE_PREVIEW_VIDEO", Condition: "qa_status=PASS,subject=image"},
			{TaskType: "PROMPT_TUNING", Condition: "qa_status=FAIL"},
		},
		"PREVIEW_VIDEO_READY": {
			{TaskType: "RUN_VIDEO_QA"},
		},
		"SHOT_APPROVED": {
			{TaskType: "GENERATE_FINAL_VIDEO"},
		},
		"FINAL_VIDEO_READY": {
			{TaskType: "ASSEMBLE_FINAL", Condition: "all_shots_done"},
			{TaskType: "GENERATE_MUSIC", Condition: "all_shots_done,music_not_done"},
			{TaskType: "GENERATE_VOICE", Condition: "all_shots_done,voice_not_done"},
		},
		"HUMAN_GATE_TRIGGERED": {
			{TaskType: "HUMAN_REVIEW_REQUIRED"},
		},
	}
}

// DefaultTaskDefaults returns the built-in per-task-type priority, assignee,
// lock-key, retry, timeout, and estimated-cost defaults.
func DefaultTaskDefaults() TaskDefaultsConfig {
	return TaskDefaultsConfig{
		"WRITE_SCRIPT": {
			Priority: 5, Assignee: "scriptwriter", MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.50,
		},
		"PLAN_SHOTS": {
			Priority: 5, Assignee: "shot-planner", MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.25,
		},
		"GENERATE_KEYFRAME": {
			Priority: 3, Assignee: "image-generator", MaxRetries: 3,
			RequiredLockKeyTemplate: "project:%s:shot:%s",
			Timeout:                 5 * time.Minute, EstimatedCost: 0.08,
		},
		"EXTRACT_FEATURES": {
			Priority: 3, Assignee: "feature-extractor", MaxRetries: 2,
			Timeout: 2 * time.Minute, EstimatedCost: 0.02,
		},
		"RUN_VISUAL_QA": {
			Priority: 3, Assignee: "visual-qa", MaxRetries: 2,
			Timeout: 2 * time.Minute, EstimatedCost: 0.02,
		},
		"ADJUST_PROMPTS": {
			Priority: 4, Assignee: "prompt-tuner", MaxRetries: 1,
			RequiredLockKeyTemplate: "project:%s:dna_bank",
			Timeout:                 3 * time.Minute, EstimatedCost: 0.01,
		},
		"GENERATE_PREVIEW_VIDEO": {
			Priority: 2, Assignee: "video-generator", MaxRetries: 3,
			RequiredLockKeyTemplate: "project:%s:shot:%s",
			Timeout:                 10 * time.Minute, EstimatedCost: 0.30,
		},
		"PROMPT_TUNING": {
			Priority: 4, Assignee: "prompt-tuner", MaxRetries: 2,
			RequiredLockKeyTemplate: "project:%s:shot:%s",
			Timeout:                 3 * time.Minute, EstimatedCost: 0.01,
		},
		"RUN_VIDEO_QA": {
			Priority: 3, Assignee: "video-qa", MaxRetries: 2,
			Timeout: 3 * time.Minute, EstimatedCost: 0.03,
		},
		"GENERATE_FINAL_VIDEO": {
			Priority: 2, Assignee: "video-generator", MaxRetries: 3,
			RequiredLockKeyTemplate: "project:%s:shot:%s",
			Timeout:                 15 * time.Minute, EstimatedCost: 0.60,
		},
		"ASSEMBLE_FINAL": {
			Priority: 1, Assignee: "assembler", MaxRetries: 2,
			RequiredLockKeyTemplate: "project:%s:assembly",
			Timeout:                 15 * time.Minute, EstimatedCost: 0.10,
		},
		"GENERATE_MUSIC": {
			Priority: 2, Assignee: "music-generator", MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.20,
		},
		"GENERATE_VOICE": {
			Priority: 2, Assignee: "voice-generator", MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.15,
		},
		"HUMAN_REVIEW_REQUIRED": {
			Priority: 5, Assignee: "human", MaxRetries: 0,
			Timeout: 0, EstimatedCost: 0,
		},
		"REVISE_STAGE": {
			Priority: 4, MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.10,
		},
		"REDO_STAGE": {
			Priority: 4, MaxRetries: 2,
			Timeout: 10 * time.Minute, EstimatedCost: 0.10,
		},
	}
}
