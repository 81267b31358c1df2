package domain

import "time"

// Project is the aggregate root, one per pipeline run (spec §3). The State
// Store is the only component allowed to mutate it; everything else reads
// snapshots and proposes partial updates via RPC (spec §3 "Ownership").
type Project struct {
	ID        string        `json:"id"`
	Version   int64         `json:"version"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`

	Spec     GlobalSpec          `json:"spec"`
	Budget   Budget              `json:"budget"`
	DNABank  map[string]DNAEntry `json:"dna_bank"`
	Shots    map[string]Shot     `json:"shots"`
	Tasks    map[string]Task     `json:"tasks"`
	Locks    map[string]LockMirror `json:"locks"`
	Artifacts map[string]ArtifactEntry `json:"artifacts"`

	ErrorLog  []ErrorLogEntry  `json:"error_log"`
	ChangeLog []ChangeLogEntry `json:"change_log"` // capped at most-recent 100 in-aggregate

	PendingApprovals  map[string]ApprovalRequest `json:"pending_approvals"`
	ApprovalHistory   []ApprovalRequest          `json:"approval_history"`
}

// NewProject builds a freshly CREATED project with zeroed collections
// initialized, ready for the State Store to persist.
func NewProject(id string, spec GlobalSpec, budget Budget) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:               id,
		Version:          1,
		Status:           ProjectStatusCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
		Spec:             spec,
		Budget:           budget,
		DNABank:          make(map[string]DNAEntry),
		Shots:            make(map[string]Shot),
		Tasks:            make(map[string]Task),
		Locks:            make(map[string]LockMirror),
		Artifacts:        make(map[string]ArtifactEntry),
		ErrorLog:         nil,
		ChangeLog:        nil,
		PendingApprovals: make(map[string]ApprovalRequest),
		ApprovalHistory:  nil,
	}
}

// MaxChangeLogEntries bounds the in-aggregate change log (spec §3,§4.2 —
// full history lives in the separate change-log table).
const MaxChangeLogEntries = 100

// AppendChange appends a change-log entry, capping the in-aggregate slice at
// MaxChangeLogEntries (oldest entries drop off; full history persists
// separately via the State Store's change-log table).
func (p *Project) AppendChange(entry ChangeLogEntry) {
	p.ChangeLog = append(p.ChangeLog, entry)
	if len(p.ChangeLog) > MaxChangeLogEntries {
		p.ChangeLog = p.ChangeLog[len(p.ChangeLog)-MaxChangeLogEntries:]
	}
}

// ProgressRatio returns the fraction of shots that have reached a terminal,
// renderable status (FINAL_RENDERED or FAILED), for use as Budget's
// PredictedFinal extrapolation basis (spec §9). A project with no shots yet
// returns 0.
func (p *Project) ProgressRatio() float64 {
	if len(p.Shots) == 0 {
		return 0
	}
	var done int
	for _, shot := range p.Shots {
		if shot.Status == ShotStatusFinalRendered || shot.Status == ShotStatusFailed {
			done++
		}
	}
	return float64(done) / float64(len(p.Shots))
}

// GlobalSpec describes the creative and operational parameters of a project
// (spec §3).
type GlobalSpec struct {
	Title          string      `json:"title"`
	DurationSeconds int        `json:"duration_seconds"`
	AspectRatio    string      `json:"aspect_ratio"`
	QualityTier    QualityTier `json:"quality_tier"`
	Resolution     string      `json:"resolution"`
	FPS            int         `json:"fps"`
	Style          Style       `json:"style"`
	CharacterIDs   []string    `json:"character_ids"`
	MoodTag        string      `json:"mood_tag"`
	UserOptions    UserOptions `json:"user_options"`
}

// Style captures the visual-DNA-relevant parameters of the GlobalSpec.
type Style struct {
	Tone            string   `json:"tone"`
	Palette         []string `json:"palette"` // ordered list of hex colors
	VisualDNAVersion int     `json:"visual_dna_version"`
}

// UserOptions are the per-project controls over auto-mode and approvals
// (spec §3, §4.7).
type UserOptions struct {
	AutoMode                bool     `json:"auto_mode"`
	ApprovalCheckpoints     []string `json:"approval_checkpoints"` // event types gated
	ApprovalTimeoutMinutes  int      `json:"approval_timeout_minutes"`
	AudioPreference         AudioStrategy `json:"audio_preference"`
}

// LockMirror is an advisory, best-effort mirror of Lock Service state kept
// on the Project aggregate for observability (spec §3 — the Lock Service
// itself is the source of truth).
type LockMirror struct {
	Holder    string            `json:"holder"`
	AcquiredAt time.Time        `json:"acquired_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ArtifactEntry is one entry of the Project's Artifact Index (spec §3).
type ArtifactEntry struct {
	URI          string    `json:"uri"`
	Seed         int64     `json:"seed"`
	Model        string    `json:"model"`
	ModelVersion string    `json:"model_version"`
	Prompt       string    `json:"prompt"`
	Cost         Money     `json:"cost"`
	CreatedAt    time.Time `json:"created_at"`
	UseCount     int       `json:"use_count"`
}

// ErrorLogEntry is one append-only entry of the Project's Error Log (spec §3).
type ErrorLogEntry struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	Severity          ErrorSeverity `json:"severity"`
	Source            string        `json:"source"` // component/task type that raised it
	Message           string        `json:"message"`
	RecoveryAttempts  int           `json:"recovery_attempts"`
	FinalResolution   string        `json:"final_resolution,omitempty"`
}

// ChangeLogEntry is one append-only entry describing a single mutation
// (spec §3, §4.2 "Change log semantics").
type ChangeLogEntry struct {
	Version       int64     `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	Actor         string    `json:"actor"`
	ChangeType    string    `json:"change_type"`
	Description   string    `json:"description"`
	ChangePath    string    `json:"change_path"` // JSON-pointer-like
	CausationID   string    `json:"causation_id,omitempty"`
	Before        string    `json:"before,omitempty"` // bounded to 4KB; larger diffs summarized
	After         string    `json:"after,omitempty"`
}

// MaxChangeSnapshotBytes bounds before/after snapshots in a ChangeLogEntry
// (spec §4.2: "bounded to 4 KB each; larger diffs are summarized").
const MaxChangeSnapshotBytes = 4096

// SummarizeSnapshot truncates s to MaxChangeSnapshotBytes, appending a
// marker so the truncation is visible to a reader of the change log.
func SummarizeSnapshot(s string) string {
	if len(s) <= MaxChangeSnapshotBytes {
		return s
	}
	return s[:MaxChangeSnapshotBytes] + "...(truncated)"
}
