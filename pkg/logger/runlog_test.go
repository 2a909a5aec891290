package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu     sync.Mutex
	events []RunEvent
}

func (s *memorySink) Publish(e RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func TestRunLogger(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	sink := &memorySink{}

	run := NewRunLogger(NewWithWriter(&buf, "debug"), "eod_signals", sink)
	_, err := uuid.Parse(run.RunID())
	require.NoError(t, err)

	run.With("model_version", "signals_v1")
	run.Started("start")
	run.OK("stored", map[string]interface{}{"signals": 5})
	run.Warn("nothing stored", nil)
	run.Exception(errors.New("boom"), "failed")

	require.Len(t, sink.events, 4)
	assert.Equal(t, RunStarted, sink.events[0].Status)
	assert.Equal(t, RunOK, sink.events[1].Status)
	assert.Equal(t, 5, sink.events[1].Context["signals"])
	assert.Equal(t, "signals_v1", sink.events[1].Context["model_version"])
	assert.Equal(t, RunWarn, sink.events[2].Status)
	assert.Equal(t, RunError, sink.events[3].Status)
	assert.Equal(t, "boom", sink.events[3].Error)

	var levels []string
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		assert.Equal(t, "eod_signals", entry["job_name"])
		assert.Equal(t, run.RunID(), entry["run_id"])
		levels = append(levels, entry["level"].(string))
	}
	assert.Equal(t, []string{"info", "info", "warn", "error"}, levels)
}

func TestRunLogger_NilSink(t *testing.T) {
	run := NewRunLogger(Nop(), "dq_checks", nil)
	assert.NotPanics(t, func() { run.OK("done", nil) })
	assert.NotEqual(t, run.RunID(), NewRunLogger(Nop(), "dq_checks", nil).RunID())
}
