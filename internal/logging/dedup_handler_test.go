package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDedupFixture(t *testing.T, cfg DedupConfig) (*slog.Logger, *bytes.Buffer, *DedupHandler) {
	t.Helper()
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h := NewDedupHandler(inner, cfg)
	t.Cleanup(func() { _ = h.Close() })
	return slog.New(h), &buf, h
}

func TestDedupHandler_CollapsesRepeats(t *testing.T) {
	logger, buf, h := newDedupFixture(t, DedupConfig{FlushTimeout: time.Hour})

	for i := 0; i < 5; i++ {
		logger.Warn("publish failed", "subject", "catalog.updated")
	}
	require.NoError(t, h.Close())

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "publish failed"))
	assert.Contains(t, out, "repeated_count=5")
}

func TestDedupHandler_DistinctRecordsPassThrough(t *testing.T) {
	logger, buf, h := newDedupFixture(t, DedupConfig{FlushTimeout: time.Hour})

	logger.Info("publish failed", "subject", "catalog.updated")
	logger.Info("publish failed", "subject", "catalog.withdrawn")
	require.NoError(t, h.Close())

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "publish failed"))
	assert.NotContains(t, out, "repeated_count")
}

func TestDedupHandler_FlushesOnBatchSize(t *testing.T) {
	logger, buf, _ := newDedupFixture(t, DedupConfig{BatchSize: 2, FlushTimeout: time.Hour})

	logger.Info("first")
	logger.Info("second")

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "first") && strings.Contains(buf.String(), "second")
	}, time.Second, 10*time.Millisecond)
}

func TestDedupHandler_FlushesOnTimer(t *testing.T) {
	logger, buf, _ := newDedupFixture(t, DedupConfig{FlushTimeout: 20 * time.Millisecond})

	logger.Info("timed out of the buffer")

	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "timed out of the buffer")
	}, time.Second, 10*time.Millisecond)
}

func TestDedupHandler_AttributedLoggersStaySeparate(t *testing.T) {
	logger, buf, h := newDedupFixture(t, DedupConfig{FlushTimeout: time.Hour})

	logger.With("component", "registry").Info("started")
	logger.With("component", "gateway").Info("started")
	require.NoError(t, h.Close())

	out := buf.String()
	assert.Contains(t, out, "component=registry")
	assert.Contains(t, out, "component=gateway")
	assert.NotContains(t, out, "repeated_count")
}

func TestDedupHandler_CloseIsIdempotent(t *testing.T) {
	_, _, h := newDedupFixture(t, DedupConfig{})
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
}
