package logring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Hikita1337/crashfeed/internal/entity"
)

func entry(msg string) entity.LogEntry {
	return entity.LogEntry{Message: msg, Line: msg}
}

func TestRing_EntryCap(t *testing.T) {
	ring := New(3, 1024)

	for _, msg := range []string{"a", "b", "c", "d"} {
		ring.Append(entry(msg))
	}

	assert.Equal(t, 3, ring.Len())

	recent := ring.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "d", recent[0].Message)
	assert.Equal(t, "b", recent[2].Message)
}

func TestRing_ByteCap(t *testing.T) {
	ring := New(100, 10)

	ring.Append(entry("aaaa"))
	ring.Append(entry("bbbb"))
	assert.Equal(t, 8, ring.Bytes())

	// pushes over the byte cap: oldest goes
	ring.Append(entry("cccc"))
	assert.Equal(t, 2, ring.Len())
	assert.Equal(t, 8, ring.Bytes())

	recent := ring.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, "cccc", recent[0].Message)
	assert.Equal(t, "bbbb", recent[1].Message)
}

func TestRing_OversizedEntry(t *testing.T) {
	ring := New(10, 8)

	ring.Append(entry("aa"))
	ring.Append(entry(strings.Repeat("x", 100)))

	// the line is truncated to the byte cap; both caps hold afterwards
	assert.Equal(t, 1, ring.Len())
	assert.Equal(t, strings.Repeat("x", 8), ring.Recent(1)[0].Line)
	assert.LessOrEqual(t, ring.Bytes(), 8)
}

func TestCore_TeesIntoRing(t *testing.T) {
	ring := New(10, 64*1024)
	log := zap.New(NewCore(ring, zapcore.InfoLevel))

	log.Info("collected", zap.Int("count", 7))
	log.Debug("filtered out")
	log.Warn("rate limited")

	assert.Equal(t, 2, ring.Len())

	recent := ring.Recent(2)
	assert.Equal(t, "rate limited", recent[0].Message)
	assert.Equal(t, "collected", recent[1].Message)
	assert.Contains(t, recent[1].Line, `"count":7`)
	assert.Equal(t, "info", recent[1].Level)
}

func TestCore_WithFields(t *testing.T) {
	ring := New(10, 64*1024)
	log := zap.New(NewCore(ring, zapcore.InfoLevel)).With(zap.String("run_id", "r1"))

	log.Info("progress")

	recent := ring.Recent(1)
	require.Len(t, recent, 1)
	assert.Contains(t, recent[0].Line, `"run_id":"r1"`)
}
