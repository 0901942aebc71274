package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job is one pipeline run. Params are fixed at creation; status, output
// folder and error only move forward through the state machine.
type Job struct {
	ID        string
	Params    Params
	CreatedAt time.Time

	mu           sync.RWMutex
	status       Status
	outputFolder string
	errMsg       string
	updatedAt    time.Time
	finishedAt   time.Time
	now          func() time.Time
}

// New creates a pending job with a fresh ID.
func New(params Params) *Job {
	return newJob(uuid.NewString(), params, time.Now)
}

func newJob(id string, params Params, now func() time.Time) *Job {
	created := now()
	return &Job{
		ID:        id,
		Params:    params,
		CreatedAt: created,
		status:    StatusPending,
		updatedAt: created,
		now:       now,
	}
}

// ShortID is the prefix used in folder names.
func (j *Job) ShortID() string {
	if len(j.ID) > 8 {
		return j.ID[:8]
	}
	return j.ID
}

func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Transition moves the job to next, rejecting moves the state machine forbids.
func (j *Job) Transition(next Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(next)
}

// Complete marks the job done with its output folder.
func (j *Job) Complete(outputFolder string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusDone); err != nil {
		return err
	}
	j.outputFolder = outputFolder
	return nil
}

// Fail marks the job failed with message.
func (j *Job) Fail(message string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.errMsg = message
	return nil
}

// Cancel marks the job cancelled.
func (j *Job) Cancel() error {
	return j.Transition(StatusCancelled)
}

func (j *Job) transitionLocked(next Status) error {
	if err := checkTransition(j.status, next); err != nil {
		return err
	}
	j.status = next
	j.updatedAt = j.now()
	if next.IsTerminal() {
		j.finishedAt = j.updatedAt
	}
	return nil
}

// Record returns a copy of the job's current state.
func (j *Job) Record() Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rec := Record{
		ID:             j.ID,
		SourceURL:      j.Params.SourceURL,
		LocalPath:      j.Params.LocalPath,
		TargetLanguage: j.Params.TargetLanguage.String(),
		Service:        j.Params.Service.String(),
		UseGPU:         j.Params.UseGPU,
		Status:         j.status,
		OutputFolder:   j.outputFolder,
		Error:          j.errMsg,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.updatedAt,
	}
	if !j.finishedAt.IsZero() {
		finished := j.finishedAt
		rec.FinishedAt = &finished
	}
	return rec
}
