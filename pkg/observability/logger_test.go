package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

// records decodes all captured log lines.
func (h *testHandler) records(t *testing.T) []map[string]any {
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(h.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestEnrichLogger(t *testing.T) {
	handler := newTestHandler()
	logger := slog.New(handler)

	enriched := EnrichLogger(logger, "run-123", "analyze", 2)
	enriched.Info("working")

	recs := handler.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "run-123", recs[0]["run_id"])
	assert.Equal(t, "analyze", recs[0]["stage"])
	assert.Equal(t, float64(2), recs[0]["pass"])
}

func TestEnrichLogger_NilLogger(t *testing.T) {
	assert.Nil(t, EnrichLogger(nil, "run-1", "analyze", 1))
}

func TestLogRunLifecycle(t *testing.T) {
	handler := newTestHandler()
	logger := slog.New(handler)

	LogRunStart(logger, "run-1", "the future of ai")
	LogRunSuspended(logger, "run-1", 1)
	LogRunComplete(logger, "run-1", 120.5, 7)

	recs := handler.records(t)
	require.Len(t, recs, 3)
	assert.Equal(t, "run starting", recs[0]["msg"])
	assert.Equal(t, "the future of ai", recs[0]["topic"])
	assert.Equal(t, "run suspended awaiting review", recs[1]["msg"])
	assert.Equal(t, "run completed", recs[2]["msg"])
	assert.Equal(t, float64(7), recs[2]["stages_executed"])
}

func TestLogRunError(t *testing.T) {
	handler := newTestHandler()
	logger := slog.New(handler)

	LogRunError(logger, "run-1", errors.New("boom"), "generate_image")

	recs := handler.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "ERROR", recs[0]["level"])
	assert.Equal(t, "boom", recs[0]["error"])
	assert.Equal(t, "generate_image", recs[0]["last_stage"])
}

func TestLogStageEvents(t *testing.T) {
	handler := newTestHandler()
	logger := slog.New(handler)

	LogStageStart(logger, "generate_linkedin")
	LogStageComplete(logger, "generate_linkedin", 42.0)
	LogStageSkipped(logger, "generate_instagram")
	LogStageError(logger, "generate_wordpress", errors.New("nope"))

	recs := handler.records(t)
	require.Len(t, recs, 4)
	assert.Equal(t, "stage starting", recs[0]["msg"])
	assert.Equal(t, "stage completed", recs[1]["msg"])
	assert.Equal(t, "stage skipped, prior output kept", recs[2]["msg"])
	assert.Equal(t, "generate_instagram", recs[2]["stage"])
	assert.Equal(t, "ERROR", recs[3]["level"])
}

func TestLogModelEvents(t *testing.T) {
	handler := newTestHandler()
	logger := slog.New(handler)

	LogModelAttempt(logger, "primary/model", 1, errors.New("rate limited"))
	LogModelAttempt(logger, "primary/model", 2, nil)
	LogModelFallback(logger, "primary/model", "backup/model")

	recs := handler.records(t)
	require.Len(t, recs, 3)
	assert.Equal(t, "WARN", recs[0]["level"])
	assert.Equal(t, "rate limited", recs[0]["error"])
	assert.Equal(t, "DEBUG", recs[1]["level"])
	assert.Equal(t, "falling back to next model", recs[2]["msg"])
	assert.Equal(t, "backup/model", recs[2]["to"])
}

func TestNilLoggersAreSafe(t *testing.T) {
	// All helpers must tolerate a nil logger.
	LogRunStart(nil, "r", "t")
	LogRunSuspended(nil, "r", 1)
	LogRunComplete(nil, "r", 0, 0)
	LogRunError(nil, "r", errors.New("x"), "s")
	LogStageStart(nil, "s")
	LogStageComplete(nil, "s", 0)
	LogStageSkipped(nil, "s")
	LogStageError(nil, "s", errors.New("x"))
	LogCheckpoint(nil, "r", 0)
	LogModelAttempt(nil, "m", 0, nil)
	LogModelFallback(nil, "a", "b")
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	elapsed := done()
	assert.GreaterOrEqual(t, elapsed, float64(1))
}
