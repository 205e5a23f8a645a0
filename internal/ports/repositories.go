package ports

import (
	"context"

	"gonephishing/internal/domain"
)

// JobProgress counts a job's tasks by state.
type JobProgress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Done       int `json:"done"`
	Error      int `json:"error"`
	Findings   int `json:"findings"`
}

// Complete reports whether every task has reached a terminal state.
func (p JobProgress) Complete() bool { return p.Total > 0 && p.Done+p.Error == p.Total }

// ScanRepository is the read side used by the API and export tooling.
type ScanRepository interface {
	GetJob(ctx context.Context, jobID int64) (domain.ScanJob, error)
	ListTasks(ctx context.Context, jobID int64) ([]domain.CandidateTask, error)
	ListFindings(ctx context.Context, jobID int64) ([]domain.RiskFinding, error)
	Progress(ctx context.Context, jobID int64) (JobProgress, error)
}

// Store is what the storage adapters implement.
type Store interface {
	TaskStore
	ScanRepository
	Close()
}

// ErrNotFound is returned by the read side for unknown job ids.
var ErrNotFound = errString("not found")

type errString string

func (e errString) Error() string { return string(e) }
