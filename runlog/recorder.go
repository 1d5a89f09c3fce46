package runlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunRecord is the operator-facing trace of one pipeline run. Metrics
// hold the degraded-record counters; a failed run keeps its error text.
type RunRecord struct {
	ID          string           `json:"id"`
	RunAt       time.Time        `json:"run_at"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Metrics     map[string]int64 `json:"metrics,omitempty"`
}

type Recorder struct {
	dir string
	now func() time.Time
}

func NewRecorder(dir string) *Recorder {
	return &Recorder{
		dir: dir,
		now: time.Now,
	}
}

func (r *Recorder) Start(runAt time.Time) (*RunRecord, error) {
	if r == nil {
		return nil, errors.New("runlog: recorder is nil")
	}
	if r.dir == "" {
		return nil, errors.New("runlog: directory is required")
	}

	if runAt.IsZero() {
		runAt = r.now()
	}
	record := &RunRecord{
		ID:        uuid.NewString(),
		RunAt:     runAt,
		StartedAt: r.now(),
		Status:    StatusStarted,
	}
	if err := r.write(record); err != nil {
		return nil, err
	}
	return record, nil
}

func (r *Recorder) Finish(record *RunRecord, metrics map[string]int64, runErr error) error {
	if r == nil {
		return errors.New("runlog: recorder is nil")
	}
	if record == nil {
		return errors.New("runlog: record is nil")
	}
	record.CompletedAt = r.now()
	record.Metrics = metrics
	if runErr != nil {
		record.Status = StatusFailed
		record.Error = runErr.Error()
	} else {
		record.Status = StatusCompleted
		record.Error = ""
	}
	return r.write(record)
}

func (r *Recorder) write(record *RunRecord) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return err
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("run-%s-%s.json", record.RunAt.Format("20060102T150405"), record.ID)
	return os.WriteFile(filepath.Join(r.dir, name), append(payload, '\n'), 0o644)
}
