package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesServiceMetadataAndTraceID(t *testing.T) {
	var buf bytes.Buffer
	traceID := func(context.Context) string { return "abc" }

	log := NewWithMetadata(&buf, LevelInfo, "sitehealth", traceID, Events{}, map[string]string{
		"hostname": "host-1",
		"pod":      "",
	})
	log.With("component", "test").Info(context.Background(), "hello", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "sitehealth", line["service"])
	assert.Equal(t, "host-1", line["hostname"])
	assert.Equal(t, "test", line["component"])
	assert.Equal(t, "abc", line["trace_id"])
	assert.NotContains(t, line, "pod")
}

func TestLoggerRespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "svc", nil)

	log.Info(context.Background(), "dropped")
	assert.Zero(t, buf.Len())

	log.Warn(context.Background(), "kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestErrorEventFires(t *testing.T) {
	var got Record
	log := NewWithEvents(&bytes.Buffer{}, LevelDebug, "svc", nil, Events{
		Error: func(_ context.Context, r Record) { got = r },
	})

	log.Error(context.Background(), "boom", "run_id", "r1")

	assert.Equal(t, "boom", got.Message)
	assert.Equal(t, "r1", got.Attributes["run_id"])
}

func TestLoggerContextAccumulates(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLoggerContext(New(&buf, LevelDebug, "svc", nil))
	lc.Add("run_id", "r1")
	lc.Info(context.Background(), "batch")

	assert.Contains(t, buf.String(), `"run_id":"r1"`)
}

func TestNoopDiscards(t *testing.T) {
	log := Noop().With("a", "b")
	log.Error(context.Background(), "ignored")
	NewLoggerContext(log).Warn(context.Background(), "ignored")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}
