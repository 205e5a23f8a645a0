package domain

import (
	"strings"
	"time"
)

// Core domain models for the scan pipeline. Storage adapters map these onto
// their own schemas; keep them free of driver types.

// TaskState is the lifecycle of a candidate task. Transitions are monotonic:
// pending -> processing -> done|error.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskProcessing TaskState = "processing"
	TaskDone       TaskState = "done"
	TaskError      TaskState = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s TaskState) Terminal() bool { return s == TaskDone || s == TaskError }

// LookupStatus is the outcome recorded for a candidate while it is processed.
type LookupStatus string

const (
	LookupUnknown       LookupStatus = "unknown"
	LookupNoIP          LookupStatus = "no_ip"
	LookupOwnedByOrigin LookupStatus = "owned_by_origin"
	LookupSafe          LookupStatus = "safe"
	LookupSuspicious    LookupStatus = "suspicious"
	LookupDanger        LookupStatus = "danger"
	LookupError         LookupStatus = "error"
)

type ScanJob struct {
	ID          int64
	Owner       string
	CreatedAt   time.Time
	SeedDomains []string
	TaskCount   int
}

// NewTask is the input for creating a pending candidate task.
type NewTask struct {
	SeedDomain      string
	CandidateDomain string
}

type CandidateTask struct {
	ID              int64
	JobID           int64
	SeedDomain      string
	CandidateDomain string
	State           TaskState
	LookupStatus    LookupStatus
	IPAddresses     []string

	HTTPStatus       *int
	HTTPReason       string
	RedirectLocation string
	FinalURL         string
	PageTitle        string

	RiskScore   int
	RiskReasons []string

	Error       string
	Attempts    int
	ClaimedBy   string
	ClaimedAt   *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
}

// Finish moves a processing task to done with the given lookup status.
func (t *CandidateTask) Finish(status LookupStatus, now time.Time) {
	t.State = TaskDone
	t.LookupStatus = status
	t.ProcessedAt = &now
}

// Fail moves a processing task to error and records the diagnostic.
func (t *CandidateTask) Fail(msg string, now time.Time) {
	t.State = TaskError
	t.LookupStatus = LookupError
	t.Error = msg
	t.ProcessedAt = &now
}

// RiskFinding is an append-only record of a candidate that crossed the
// danger threshold.
type RiskFinding struct {
	ID              int64
	JobID           int64
	TaskID          int64
	CandidateDomain string
	Score           int
	Reasons         []string
	CreatedAt       time.Time
}

// ASSignature identifies the autonomous system an address is announced from.
type ASSignature struct {
	ASN      string `json:"asn"`
	ASDomain string `json:"as_domain"`
	ASName   string `json:"as_name"`
}

// Fields returns the non-empty fields, lower-cased, for set comparison.
func (s ASSignature) Fields() []string {
	var out []string
	for _, v := range []string{s.ASN, s.ASDomain, s.ASName} {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
