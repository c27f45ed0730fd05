package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	atomicLevel := zap.NewAtomicLevelAt(level)
	core, logs := observer.New(atomicLevel)

	return &Logger{SugaredLogger: zap.New(core).Sugar(), atomicLevel: atomicLevel}, logs
}

func TestLogger_WithNamespace(t *testing.T) {
	root, logs := newObservedLogger(zapcore.InfoLevel)

	mainnet := root.WithComponent("indexer").WithNamespace("mainnet")
	sepolia := root.WithComponent("indexer").WithNamespace("sepolia")

	mainnet.Infow("block indexed", "height", 100)
	sepolia.Infow("block indexed", "height", 7)

	entries := logs.All()
	require.Len(t, entries, 2)

	require.Equal(t, map[string]any{"component": "indexer", "namespace": "mainnet", "height": int64(100)},
		entries[0].ContextMap())
	require.Equal(t, "sepolia", entries[1].ContextMap()["namespace"])
	require.Equal(t, "indexer", mainnet.GetComponent())
}

func TestLogger_SetLevel(t *testing.T) {
	tests := []struct {
		name      string
		newLevel  string
		wantErr   bool
		wantLevel string
		wantDebug bool
	}{
		{name: "lower to debug", newLevel: "debug", wantLevel: "debug", wantDebug: true},
		{name: "raise to error", newLevel: " error ", wantLevel: "error"},
		{name: "invalid level keeps current", newLevel: "verbose", wantErr: true, wantLevel: "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, logs := newObservedLogger(zapcore.InfoLevel)
			child := root.WithComponent("dispatcher").WithNamespace("mainnet")

			err := root.SetLevel(tt.newLevel)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			// children share the parent's level
			require.Equal(t, tt.wantLevel, child.GetLevel())

			child.Debugw("dispatching", "height", 1)
			require.Equal(t, tt.wantDebug, logs.Len() == 1)
		})
	}
}

type levelsStub map[string]string

func (s levelsStub) GetComponentLevel(component string) string {
	if level, ok := s[component]; ok {
		return level
	}
	return s.GetDefaultLevel()
}

func (levelsStub) GetDefaultLevel() string { return "warn" }
func (levelsStub) IsDevelopment() bool     { return false }

func TestNewComponentLoggerFromConfig(t *testing.T) {
	cfg := levelsStub{"rpc-client": "debug"}

	rpc := NewComponentLoggerFromConfig("rpc-client", cfg)
	require.Equal(t, "rpc-client", rpc.GetComponent())
	require.Equal(t, "debug", rpc.GetLevel())

	require.Equal(t, "warn", NewComponentLoggerFromConfig("storage", cfg).GetLevel())
	require.Equal(t, "info", NewComponentLoggerFromConfig("storage", nil).GetLevel())

	require.Panics(t, func() {
		NewComponentLoggerFromConfig("api", levelsStub{"api": "loud"})
	})
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	l, err := NewLogger("loud", false)
	require.Error(t, err)
	require.Nil(t, l)
}
