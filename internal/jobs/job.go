// Package jobs tracks translation and layout jobs from submission to removal.
package jobs

import (
	"time"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition can happen
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job kinds
const (
	KindTranslate   = "translate"
	KindCrop        = "crop"
	KindCropCompare = "crop-compare"
	KindCompare     = "compare"
)

// Payload describes the input of a job
type Payload struct {
	FileName string `json:"fileName"`
	Engine   string `json:"engine,omitempty"`
	Service  string `json:"service,omitempty"`
}

// Job is a snapshot of one job. Values returned by the registry are copies.
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Payload     Payload    `json:"payload"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	TotalPages  int        `json:"totalPages,omitempty"`
	Result      []string   `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorKind   string     `json:"errorKind,omitempty"`
	ExitCode    *int       `json:"exitCode,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (j Job) clone() Job {
	if j.Result != nil {
		j.Result = append([]string(nil), j.Result...)
	}
	if j.ExitCode != nil {
		code := *j.ExitCode
		j.ExitCode = &code
	}
	if j.CompletedAt != nil {
		at := *j.CompletedAt
		j.CompletedAt = &at
	}
	return j
}

// Elapsed is the time since creation, or the total run time once finished
func (j Job) Elapsed(now time.Time) time.Duration {
	if j.CompletedAt != nil {
		return j.CompletedAt.Sub(j.CreatedAt)
	}
	return now.Sub(j.CreatedAt)
}

// Patch is a partial update applied by the job's worker. Nil fields are
// left unchanged.
type Patch struct {
	Progress   *int
	Message    *string
	TotalPages *int
}

// WithProgress returns a copy of p that sets the progress
func (p Patch) WithProgress(pct int) Patch {
	p.Progress = &pct
	return p
}

// WithMessage returns a copy of p that sets the status message
func (p Patch) WithMessage(msg string) Patch {
	p.Message = &msg
	return p
}

// WithTotalPages returns a copy of p that sets the page count
func (p Patch) WithTotalPages(n int) Patch {
	p.TotalPages = &n
	return p
}

// HistoryEntry is the immutable record of a finished job
type HistoryEntry struct {
	ID        string    `json:"id"`
	FileName  string    `json:"fileName"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Engine    string    `json:"engine,omitempty"`
	Service   string    `json:"service,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	FileList  []string  `json:"fileList,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// history statuses
const (
	HistorySuccess = "success"
	HistoryFailed  = "failed"
)

func historyEntry(j Job) HistoryEntry {
	e := HistoryEntry{
		ID:        j.ID,
		FileName:  j.Payload.FileName,
		Kind:      j.Kind,
		Engine:    j.Payload.Engine,
		Service:   j.Payload.Service,
		StartTime: j.CreatedAt,
		EndTime:   j.UpdatedAt,
	}
	if j.Status == StatusCompleted {
		e.Status = HistorySuccess
		e.FileList = append([]string(nil), j.Result...)
	} else {
		e.Status = HistoryFailed
		e.Error = j.Error
	}
	return e
}

// ErrorDetails is implemented by errors that carry a process outcome
type ErrorDetails interface {
	ErrorKind() string
	ExitStatus() int
}

// Reasoner is implemented by errors with a user-facing message that differs
// from Error()
type Reasoner interface {
	Reason() string
}
