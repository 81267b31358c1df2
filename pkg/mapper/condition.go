package mapper

import (
	"fmt"
	"strings"

	"github.com/scenestack/pipeline/pkg/domain"
)

// evaluateCondition evaluates a TaskTemplateConfig.Condition string — a
// comma-separated list of clauses that must ALL hold (spec §4.5, e.g.
// "qa_status=PASS,subject=image"). Each clause is either "key=value",
// checked against the triggering event's payload, or a bare predicate name
// evaluated against the project snapshot (e.g. "all_shots_done").
func evaluateCondition(condition string, event *domain.Event, project *domain.Project) bool {
	for _, clause := range strings.Split(condition, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !evaluateClause(clause, event, project) {
			return false
		}
	}
	return true
}

func evaluateClause(clause string, event *domain.Event, project *domain.Project) bool {
	if key, value, ok := strings.Cut(clause, "="); ok {
		return payloadEquals(event, key, value)
	}
	return evaluatePredicate(clause, project)
}

// payloadEquals checks event.Payload[key] against value, stringified — the
// payload holds arbitrary JSON-decoded values (strings, numbers, bools).
func payloadEquals(event *domain.Event, key, value string) bool {
	raw, ok := event.Payload[key]
	if !ok {
		return false
	}
	return fmt.Sprint(raw) == value
}

// evaluatePredicate evaluates a named project-state predicate. Unknown
// predicate names never match — a misconfigured table entry simply never
// fires rather than panicking the scheduler.
func evaluatePredicate(name string, project *domain.Project) bool {
	if project == nil {
		return false
	}
	switch name {
	case "all_shots_done":
		return allShotsDone(project)
	case "music_not_done":
		return !audioStrategyDone(project, isMusicStrategy)
	case "voice_not_done":
		return !audioStrategyDone(project, isVoiceStrategy)
	default:
		return false
	}
}

func allShotsDone(project *domain.Project) bool {
	if len(project.Shots) == 0 {
		return false
	}
	for _, shot := range project.Shots {
		if shot.Status != domain.ShotStatusFinalRendered && shot.Status != domain.ShotStatusApproved {
			return false
		}
	}
	return true
}

// audioStrategyDone reports whether every shot using the given strategy
// already has its corresponding audio URI populated.
func audioStrategyDone(project *domain.Project, wants func(domain.AudioStrategy) bool) bool {
	for _, shot := range project.Shots {
		if !wants(shot.Audio.Strategy) {
			continue
		}
		if shot.Audio.MusicURI == "" && shot.Audio.VoiceURI == "" {
			return false
		}
	}
	return true
}

func isMusicStrategy(s domain.AudioStrategy) bool {
	return s == domain.AudioStrategyExternalFull || s == domain.AudioStrategyHybridOverlay ||
		s == domain.AudioStrategyExternalFullReplace
}

func isVoiceStrategy(s domain.AudioStrategy) bool {
	return s == domain.AudioStrategyExternalFull || s == domain.AudioStrategyHybridOverlay ||
		s == domain.AudioStrategyExternalFullReplace
}
