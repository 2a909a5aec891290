package logger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state written by a RunLogger
type RunStatus string

const (
	RunStarted RunStatus = "STARTED"
	RunOK      RunStatus = "OK"
	RunWarn    RunStatus = "WARN"
	RunError   RunStatus = "ERROR"
)

// RunEvent is one structured entry of a job run
type RunEvent struct {
	JobName   string                 `json:"job_name"`
	RunID     string                 `json:"run_id"`
	Status    RunStatus              `json:"status"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RunSink receives every run event (websocket hub, tests)
type RunSink interface {
	Publish(event RunEvent)
}

// RunLogger tags every entry of one job execution with job_name and run_id
// ⭐ SSOT: 파이프라인 실행 로그는 이 타입으로만 기록
type RunLogger struct {
	log     *Logger
	sink    RunSink
	jobName string
	runID   string

	mu      sync.Mutex
	context map[string]interface{}
}

// NewRunLogger starts a run with a fresh uuid; sink may be nil
func NewRunLogger(log *Logger, jobName string, sink RunSink) *RunLogger {
	return &RunLogger{
		log:     log,
		sink:    sink,
		jobName: jobName,
		runID:   uuid.NewString(),
		context: make(map[string]interface{}),
	}
}

// RunID returns the run identifier
func (r *RunLogger) RunID() string {
	return r.runID
}

// JobName returns the job name
func (r *RunLogger) JobName() string {
	return r.jobName
}

// With adds a context field carried by every subsequent entry
func (r *RunLogger) With(key string, value interface{}) *RunLogger {
	r.mu.Lock()
	r.context[key] = value
	r.mu.Unlock()
	return r
}

// Started records the STARTED status
func (r *RunLogger) Started(msg string) {
	r.emit(RunStarted, msg, nil, nil)
}

// OK records a successful completion
func (r *RunLogger) OK(msg string, fields map[string]interface{}) {
	r.emit(RunOK, msg, fields, nil)
}

// Warn records a completion that needs attention
func (r *RunLogger) Warn(msg string, fields map[string]interface{}) {
	r.emit(RunWarn, msg, fields, nil)
}

// Error records a failure without an error value
func (r *RunLogger) Error(msg string, fields map[string]interface{}) {
	r.emit(RunError, msg, fields, nil)
}

// Exception records a failure caused by err
func (r *RunLogger) Exception(err error, msg string) {
	r.emit(RunError, msg, nil, err)
}

func (r *RunLogger) emit(status RunStatus, msg string, fields map[string]interface{}, err error) {
	r.mu.Lock()
	merged := make(map[string]interface{}, len(r.context)+len(fields))
	for k, v := range r.context {
		merged[k] = v
	}
	r.mu.Unlock()
	for k, v := range fields {
		merged[k] = v
	}

	entry := r.log.WithFields(map[string]interface{}{
		"job_name": r.jobName,
		"run_id":   r.runID,
		"status":   string(status),
	}).WithFields(merged)

	event := RunEvent{
		JobName:   r.jobName,
		RunID:     r.runID,
		Status:    status,
		Message:   msg,
		Context:   merged,
		Timestamp: time.Now().UTC(),
	}

	switch status {
	case RunError:
		if err != nil {
			entry = entry.WithError(err)
			event.Error = err.Error()
		}
		entry.Error(msg)
	case RunWarn:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}

	if r.sink != nil {
		r.sink.Publish(event)
	}
}
