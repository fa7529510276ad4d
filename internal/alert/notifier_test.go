package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNoOpNotifier(t *testing.T) {
	n := NewNoOpNotifier()
	assert.NoError(t, n.Send("anything"))
	assert.NoError(t, n.Close())
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	assert.NoError(t, n.Send("run abc finished"))
	assert.NoError(t, n.Send("run def failed"))

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "run abc finished", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "alert", entries[0].LoggerName)
		assert.Equal(t, int64(2), entries[1].ContextMap()["seq"])
	}

	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())
	assert.ErrorIs(t, n.Send("late"), ErrClosed)
}

func TestNotifiers_ImplementNotifier(t *testing.T) {
	assert.Implements(t, (*Notifier)(nil), new(NoOpNotifier))
	assert.Implements(t, (*Notifier)(nil), new(LogNotifier))
}
