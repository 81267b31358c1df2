// Package masking redacts secret-shaped substrings (API keys, tokens,
// passwords, cloud credentials) from free-form text before it is written
// to the Project's Error Log or emitted to structured logs. Task output and
// upstream API error bodies are both free-form strings an agent doesn't
// control the shape of, so a credential embedded in either can otherwise
// leak straight into a persisted, widely-readable aggregate.
package masking

import (
	"log/slog"

	"github.com/scenestack/pipeline/pkg/domain"
)

// Service applies regex-based secret redaction. Created once at startup
// (singleton), thread-safe and stateless aside from its compiled patterns.
type Service struct {
	patterns map[string]*CompiledPattern
	log      *slog.Logger
}

// NewService compiles the builtin pattern set. Invalid patterns are logged
// and skipped rather than failing construction.
func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{patterns: compileBuiltinPatterns(log), log: log}
	s.log.Info("masking service initialized", "patterns", len(s.patterns))
	return s
}

// Mask redacts every builtin pattern match in text. Fail-open: masking never
// errors — a pattern that fails to compile was already dropped at startup,
// and ReplaceAllString cannot fail on a valid compiled regexp.
func (s *Service) Mask(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// MaskErrorLogEntry returns a copy of entry with Message redacted — the
// field most likely to carry a raw upstream error body.
func (s *Service) MaskErrorLogEntry(entry domain.ErrorLogEntry) domain.ErrorLogEntry {
	entry.Message = s.Mask(entry.Message)
	return entry
}
