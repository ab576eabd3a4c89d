// Package session records review sessions on disk: one directory per
// session holding a metadata record, exactly one terminal record, and an
// optional incremental transcript. Terminal writes are atomic so a crash
// never leaves a half-written result.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reldo-dev/reldo/internal/logging"
)

// Session status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Record is the indexable summary of a session.
type Record struct {
	ID           string
	StartedAt    time.Time
	CompletedAt  time.Time
	Status       string
	Prompt       string
	TotalTokens  int64
	TotalCostUSD float64
	DurationMS   int64
	Error        string
}

// Index receives session records as they begin and finalize.
// Implemented by history.Store.
type Index interface {
	InsertSession(rec Record) error
	UpdateSession(rec Record) error
}

// Metrics is implemented by results that carry usage numbers for the index.
type Metrics interface {
	SessionMetrics() (totalTokens int64, costUSD float64, durationMS int64)
}

// RecorderConfig controls where and whether sessions are written.
type RecorderConfig struct {
	Enabled   bool
	OutputDir string // base directory, sessions go under <OutputDir>/sessions
	Verbose   bool   // append transcript.log
}

// Recorder creates and finalizes session records.
type Recorder struct {
	cfg    RecorderConfig
	index  Index
	logger *logging.Logger
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithIndex attaches a session index updated on begin and finalize.
func WithIndex(idx Index) Option {
	return func(r *Recorder) {
		r.index = idx
	}
}

// WithLogger sets the recorder logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a Recorder.
func NewRecorder(cfg RecorderConfig, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		logger: logging.Component("session"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle identifies one recorded session. A handle finalizes at most once;
// later Complete/Fail calls are no-ops.
type Handle struct {
	id        string
	dir       string
	startedAt time.Time
	prompt    string
	enabled   bool

	mu         sync.Mutex
	transcript *os.File
	finalized  bool
}

// ID returns the session identifier.
func (h *Handle) ID() string { return h.id }

// Dir returns the session directory, empty when recording is disabled.
func (h *Handle) Dir() string { return h.dir }

// NewID returns a sortable session id: a UTC timestamp plus a random
// suffix so concurrent sessions in the same second stay distinct.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102T150405") + "-" + suffix
}

type startRecord struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	Prompt    string         `json:"prompt"`
	Config    map[string]any `json:"config"`
	Status    string         `json:"status"`
}

type terminalRecord struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Begin opens a session: creates its directory, writes session.json with
// status running, and inserts it into the index. When recording is
// disabled it returns a valid in-memory handle and touches nothing.
func (r *Recorder) Begin(snapshot map[string]any, prompt string) (*Handle, error) {
	started := r.now()
	h := &Handle{
		id:        NewID(started),
		startedAt: started,
		prompt:    prompt,
		enabled:   r.cfg.Enabled,
	}
	if !r.cfg.Enabled {
		return h, nil
	}

	h.dir = filepath.Join(r.cfg.OutputDir, "sessions", h.id)
	if err := os.MkdirAll(h.dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}

	rec := startRecord{
		ID:        h.id,
		StartedAt: started,
		Prompt:    prompt,
		Config:    snapshot,
		Status:    StatusRunning,
	}
	if err := writeJSONAtomic(filepath.Join(h.dir, "session.json"), rec); err != nil {
		return nil, fmt.Errorf("writing session record: %w", err)
	}

	if r.cfg.Verbose {
		f, err := os.OpenFile(filepath.Join(h.dir, "transcript.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			r.logger.Err(err).Str("session", h.id).Msg("opening transcript")
		} else {
			h.transcript = f
		}
	}

	if r.index != nil {
		err := r.index.InsertSession(Record{
			ID:        h.id,
			StartedAt: started,
			Status:    StatusRunning,
			Prompt:    prompt,
		})
		if err != nil {
			r.logger.Err(err).Str("session", h.id).Msg("indexing session")
		}
	}

	return h, nil
}

// AppendTranscript appends one line to the session transcript. No-op when
// recording is disabled or verbose transcripts are off.
func (r *Recorder) AppendTranscript(h *Handle, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.transcript == nil {
		return
	}
	if _, err := h.transcript.WriteString(line + "\n"); err != nil {
		r.logger.Err(err).Str("session", h.id).Msg("appending transcript")
	}
}

// Complete finalizes the session as completed with the given result.
func (r *Recorder) Complete(h *Handle, result any) error {
	return r.finalize(h, StatusCompleted, result, nil)
}

// Fail finalizes the session as failed, keeping any partial result.
func (r *Recorder) Fail(h *Handle, cause error, partial any) error {
	return r.finalize(h, StatusFailed, partial, cause)
}

func (r *Recorder) finalize(h *Handle, status string, result any, cause error) error {
	h.mu.Lock()
	if h.finalized {
		h.mu.Unlock()
		return nil
	}
	h.finalized = true
	transcript := h.transcript
	h.transcript = nil
	h.mu.Unlock()

	if transcript != nil {
		_ = transcript.Close()
	}

	completed := r.now()
	rec := Record{
		ID:          h.id,
		StartedAt:   h.startedAt,
		CompletedAt: completed,
		Status:      status,
		Prompt:      h.prompt,
	}
	if m, ok := result.(Metrics); ok && m != nil {
		rec.TotalTokens, rec.TotalCostUSD, rec.DurationMS = m.SessionMetrics()
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	var writeErr error
	if h.enabled {
		terminal := terminalRecord{
			ID:          h.id,
			Status:      status,
			CompletedAt: completed,
			Result:      result,
			Error:       rec.Error,
		}
		name := "result.json"
		if status == StatusFailed {
			name = "error.json"
		}
		writeErr = writeJSONAtomic(filepath.Join(h.dir, name), terminal)

		if r.index != nil {
			if err := r.index.UpdateSession(rec); err != nil {
				r.logger.Err(err).Str("session", h.id).Msg("updating session index")
			}
		}
	}

	if writeErr != nil {
		return fmt.Errorf("finalizing session %s: %w", h.id, writeErr)
	}
	return nil
}

// writeJSONAtomic writes v as indented JSON via a temp file and rename,
// so readers never observe a partial record.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
