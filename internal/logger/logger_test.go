package logger

import (
	"testing"

	"github.com/smallbiznis/invoicedesk/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		name    string
		level   string
		enabled zapcore.Level
		wantErr bool
	}{
		{name: "default is warn", level: "", enabled: zapcore.WarnLevel},
		{name: "debug", level: "debug", enabled: zapcore.DebugLevel},
		{name: "bad level", level: "loud", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			log, err := New(tc.level)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tc.enabled))
			assert.False(t, log.Core().Enabled(tc.enabled-1))
		})
	}
}

func TestDecorateKeepsInfoQuiet(t *testing.T) {
	log, err := decorate(observability.Config{LogLevel: "info"}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))

	debug, err := decorate(observability.Config{LogLevel: "DEBUG"}, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, debug.Core().Enabled(zapcore.DebugLevel))
}
