package ports

import (
	"context"
	"time"

	"gonephishing/internal/domain"
)

// Scanner accepts seed submissions and exposes job status.
type Scanner interface {
	Submit(ctx context.Context, owner string, seeds []string) (domain.ScanJob, error)
	Job(ctx context.Context, jobID int64) (domain.ScanJob, JobProgress, error)
	Tasks(ctx context.Context, jobID int64) ([]domain.CandidateTask, error)
	Findings(ctx context.Context, jobID int64) ([]domain.RiskFinding, error)
}

// HostResolver resolves a host name to its A and AAAA addresses.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ASLookup maps an IP to its autonomous-system signature. Failures are
// reported as ok=false, never as an error.
type ASLookup interface {
	Lookup(ctx context.Context, ip string) (sig domain.ASSignature, ok bool)
}

// ReportItem is a single candidate submitted to an abuse endpoint.
type ReportItem struct {
	CandidateDomain string
	Reasons         []string
}

// ReportSink delivers findings to a third party. Delivery is best-effort and
// never affects task state.
type ReportSink interface {
	Report(ctx context.Context, items []ReportItem) error
}

// TaskUpdate is published whenever a task reaches a terminal state.
type TaskUpdate struct {
	JobID           int64               `json:"job_id"`
	TaskID          int64               `json:"task_id"`
	CandidateDomain string              `json:"candidate_domain"`
	State           domain.TaskState    `json:"state"`
	LookupStatus    domain.LookupStatus `json:"lookup_status"`
	RiskScore       int                 `json:"risk_score"`
	RiskReasons     []string            `json:"risk_reasons,omitempty"`
	ProcessedAt     time.Time           `json:"processed_at"`
}

// TaskEvents fans task updates out to live subscribers.
type TaskEvents interface {
	Publish(update TaskUpdate)
}
