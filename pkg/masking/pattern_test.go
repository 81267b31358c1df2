package masking

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	patterns := compileBuiltinPatterns(slog.Default())

	assert.Equal(t, len(builtinPatterns), len(patterns), "every builtin pattern should compile")

	for name, cp := range patterns {
		assert.NotNil(t, cp.Regex, "pattern %s should have a compiled regex", name)
		assert.NotEmpty(t, cp.Replacement, "pattern %s should have a replacement", name)
	}
}
