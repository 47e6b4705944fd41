package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"":        zapcore.InfoLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		logger, err := New(Options{Level: "debug", Format: format})
		require.NoError(t, err, format)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestFor_NamesChildAndToleratesNil(t *testing.T) {
	assert.NotNil(t, For(nil, CategoryGate))

	core, logs := observer.New(zapcore.DebugLevel)
	For(zap.New(core), CategoryWorkflow).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "workflow", logs.All()[0].LoggerName)
}

func TestTimer_StopWithThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	timer := StartTimer(zap.New(core), "embed")

	time.Sleep(2 * time.Millisecond)
	timer.StopWithThreshold(time.Nanosecond)

	require.Equal(t, 1, logs.FilterMessage("slow operation").Len())
}
