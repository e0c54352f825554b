package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/user-auth-api/config"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.ObservabilityConfig
		level   zapcore.Level
		wantErr bool
	}{
		{name: "json info", cfg: config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"}, level: zapcore.InfoLevel},
		{name: "console debug", cfg: config.ObservabilityConfig{LogLevel: "debug", LogFormat: "console"}, level: zapcore.DebugLevel},
		{name: "format defaults to json", cfg: config.ObservabilityConfig{LogLevel: "WARN"}, level: zapcore.WarnLevel},
		{name: "bad level", cfg: config.ObservabilityConfig{LogLevel: "loud"}, wantErr: true},
		{name: "bad format", cfg: config.ObservabilityConfig{LogLevel: "info", LogFormat: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				return
			}
			require.NoError(t, err)
			defer func() { _ = logger.Sync() }()

			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.level-1))
		})
	}
}
