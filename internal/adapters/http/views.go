package httpadapter

import (
	"time"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
)

type submitRequest struct {
	Owner string   `json:"owner"`
	Seeds []string `json:"seeds"`
}

type jobView struct {
	ID          int64             `json:"id"`
	Owner       string            `json:"owner"`
	CreatedAt   time.Time         `json:"created_at"`
	SeedDomains []string          `json:"seed_domains"`
	TaskCount   int               `json:"task_count"`
	Progress    ports.JobProgress `json:"progress"`
	Complete    bool              `json:"complete"`
}

func newJobView(j domain.ScanJob, p ports.JobProgress) jobView {
	return jobView{
		ID:          j.ID,
		Owner:       j.Owner,
		CreatedAt:   j.CreatedAt,
		SeedDomains: j.SeedDomains,
		TaskCount:   j.TaskCount,
		Progress:    p,
		Complete:    p.Complete(),
	}
}

type taskView struct {
	ID               int64      `json:"id"`
	SeedDomain       string     `json:"seed_domain"`
	CandidateDomain  string     `json:"candidate_domain"`
	State            string     `json:"state"`
	LookupStatus     string     `json:"lookup_status"`
	IPAddresses      []string   `json:"ip_addresses,omitempty"`
	HTTPStatus       *int       `json:"http_status,omitempty"`
	HTTPReason       string     `json:"http_reason,omitempty"`
	RedirectLocation string     `json:"redirect_location,omitempty"`
	FinalURL         string     `json:"final_url,omitempty"`
	PageTitle        string     `json:"page_title,omitempty"`
	RiskScore        int        `json:"risk_score"`
	RiskReasons      []string   `json:"risk_reasons,omitempty"`
	Error            string     `json:"error,omitempty"`
	Attempts         int        `json:"attempts"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

func newTaskView(t domain.CandidateTask) taskView {
	return taskView{
		ID:               t.ID,
		SeedDomain:       t.SeedDomain,
		CandidateDomain:  t.CandidateDomain,
		State:            string(t.State),
		LookupStatus:     string(t.LookupStatus),
		IPAddresses:      t.IPAddresses,
		HTTPStatus:       t.HTTPStatus,
		HTTPReason:       t.HTTPReason,
		RedirectLocation: t.RedirectLocation,
		FinalURL:         t.FinalURL,
		PageTitle:        t.PageTitle,
		RiskScore:        t.RiskScore,
		RiskReasons:      t.RiskReasons,
		Error:            t.Error,
		Attempts:         t.Attempts,
		ProcessedAt:      t.ProcessedAt,
	}
}

type findingView struct {
	ID              int64     `json:"id"`
	TaskID          int64     `json:"task_id"`
	CandidateDomain string    `json:"candidate_domain"`
	Score           int       `json:"score"`
	Reasons         []string  `json:"reasons"`
	CreatedAt       time.Time `json:"created_at"`
}

// streamEvent is one websocket frame: a progress snapshot or a task update.
type streamEvent struct {
	Type     string             `json:"type"`
	Progress *ports.JobProgress `json:"progress,omitempty"`
	Task     *ports.TaskUpdate  `json:"task,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}
