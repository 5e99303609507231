package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_LevelResolution(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want zapcore.Level
	}{
		{"production default", Config{Environment: EnvironmentProduction}, zapcore.InfoLevel},
		{"development default", Config{Environment: EnvironmentDevelopment}, zapcore.DebugLevel},
		{"explicit level wins", Config{Environment: EnvironmentLocal, Level: "warn"}, zapcore.WarnLevel},
		{"console", Config{Environment: EnvironmentLocal, Level: "error", Console: true}, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, level, err := New(tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.Equal(t, tt.want, level.Level())
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(Config{Environment: "staging-ish"})
	assert.Error(t, err)

	_, _, err = New(Config{Environment: EnvironmentProduction, Level: "loud"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
