package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reckon/internal/alert"
)

func TestLogNotifier_LevelsByChange(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	n := NewLogNotifier(logger)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	event := alert.Event{
		Key:             alert.SLOKey("parity-within-tolerance"),
		Kind:            alert.KindSLO,
		State:           alert.StateActive,
		FirstSeenAt:     now,
		LastSeenAt:      now,
		OccurrenceCount: 1,
	}

	require.NoError(t, n.Notify(context.Background(), alert.Transition{Event: event, Change: alert.ChangeCreated}))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "slo:parity-within-tolerance")

	buf.Reset()
	event.State = alert.StateClear
	require.NoError(t, n.Notify(context.Background(), alert.Transition{Event: event, Change: alert.ChangeResolved}))
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "alert resolved")

	require.NoError(t, n.Close())
}

func TestNewLogNotifier_NilLoggerDefaults(t *testing.T) {
	n := NewLogNotifier(nil)
	require.NotNil(t, n.logger)
}
