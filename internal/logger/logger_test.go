package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	require.Equal(t, zapcore.WarnLevel, ParseLevel(" warn "))
	require.Equal(t, zapcore.InfoLevel, ParseLevel(""))
	require.Equal(t, zapcore.InfoLevel, ParseLevel("loud"))
}

func TestNew(t *testing.T) {
	l := New("error")
	require.False(t, l.Core().Enabled(zapcore.InfoLevel))
	require.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}
