package observability

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run("level "+tt.level, func(t *testing.T) {
			cfg := DefaultLoggingConfig()
			cfg.Level = tt.level
			logger := NewLogger(cfg)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	cfg := DefaultLoggingConfig()
	cfg.Format = "console"

	// Must not panic and must produce a usable logger.
	logger := NewLogger(cfg)
	logger.Debug().Msg("console output smoke test")
}

func TestContextHelpers(t *testing.T) {
	base := NewLogger(DefaultLoggingConfig())

	// The helpers return derived loggers; the originals are unchanged.
	l1 := WithRunContext(base, "run-1", "RAG")
	l2 := WithPaperContext(base, "2301.12345")

	assert.NotNil(t, l1)
	assert.NotNil(t, l2)
}
