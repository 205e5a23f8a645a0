package ports

import (
	"context"
	"time"

	"gonephishing/internal/domain"
)

// TaskStore is the only shared mutable state of the pipeline. ClaimNextPending
// must be a single atomic compare-and-set of state pending -> processing so
// that concurrent workers never hold the same task.
type TaskStore interface {
	CreateJob(ctx context.Context, owner string, seeds []string) (jobID int64, err error)
	CreateTasks(ctx context.Context, jobID int64, tasks []domain.NewTask) (created int, err error)
	ClaimNextPending(ctx context.Context, workerID string) (task domain.CandidateTask, found bool, err error)
	SaveTaskResult(ctx context.Context, task domain.CandidateTask) error
	AppendFinding(ctx context.Context, finding domain.RiskFinding) (findingID int64, err error)
	// RequeueStale returns tasks stuck in processing since before cutoff to
	// pending, or to error once they have been claimed maxAttempts times.
	RequeueStale(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued, failed int, err error)
}

// ErrNotProcessing is returned by SaveTaskResult when the task is no longer
// held by the claim it was read under: already terminal, requeued by the
// sweeper, or reclaimed by another worker.
var ErrNotProcessing = errString("task is not in processing state")
