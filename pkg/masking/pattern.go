package masking

import (
	"log/slog"
	"regexp"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPattern is the declarative (uncompiled) form of a CompiledPattern.
type builtinPattern struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the fixed set of secret shapes this service redacts
// from free-form text before it's written to the Error Log or logged —
// task output, upstream API error bodies, and model prompts can all carry
// credentials the agent that produced them never meant to leak.
var builtinPatterns = map[string]builtinPattern{
	"api_key": {
		pattern:     `(?i)(?:api[_-]?key|apikey|key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-]{20,})["\']?`,
		replacement: `"api_key": "[MASKED_API_KEY]"`,
		description: "API keys",
	},
	"password": {
		pattern:     `(?i)(?:password|pwd|pass)["\']?\s*[:=]\s*["\']?([^"\'\s\n]{6,})["\']?`,
		replacement: `"password": "[MASKED_PASSWORD]"`,
		description: "Passwords",
	},
	"token": {
		pattern:     `(?i)(?:token|bearer|jwt)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
		replacement: `"token": "[MASKED_TOKEN]"`,
		description: "Access tokens",
	},
	"secret_key": {
		pattern:     `(?i)(?:secret[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9_\-\.]{20,})["\']?`,
		replacement: `"secret_key": "[MASKED_SECRET_KEY]"`,
		description: "Secret keys",
	},
	"aws_access_key": {
		pattern:     `(?i)(?:aws[_-]?access[_-]?key[_-]?id)["\']?\s*[:=]\s*["\']?(AKIA[A-Z0-9]{16})["\']?`,
		replacement: `"aws_access_key_id": "[MASKED_AWS_KEY]"`,
		description: "AWS access keys",
	},
	"aws_secret_key": {
		pattern:     `(?i)(?:aws[_-]?secret[_-]?access[_-]?key)["\']?\s*[:=]\s*["\']?([A-Za-z0-9/+=]{40})["\']?`,
		replacement: `"aws_secret_access_key": "[MASKED_AWS_SECRET]"`,
		description: "AWS secret keys",
	},
	"github_token": {
		pattern:     `(?i)(?:github[_-]?token|gh[ps]_[A-Za-z0-9_]{36,255})`,
		replacement: `[MASKED_GITHUB_TOKEN]`,
		description: "GitHub tokens",
	},
	"slack_token": {
		pattern:     `(?i)xox[baprs]-[A-Za-z0-9-]{10,72}`,
		replacement: `[MASKED_SLACK_TOKEN]`,
		description: "Slack tokens",
	},
}

// compileBuiltinPatterns compiles every builtin pattern. An invalid pattern
// is logged and skipped rather than failing construction.
func compileBuiltinPatterns(log *slog.Logger) map[string]*CompiledPattern {
	out := make(map[string]*CompiledPattern, len(builtinPatterns))
	for name, p := range builtinPatterns {
		compiled, err := regexp.Compile(p.pattern)
		if err != nil {
			log.Error("masking: failed to compile builtin pattern, skipping", "pattern", name, "error", err)
			continue
		}
		out[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: p.replacement,
			Description: p.description,
		}
	}
	return out
}
