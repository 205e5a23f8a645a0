package scanrunner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/brand"
	"gonephishing/internal/services/fetcher"
	"gonephishing/internal/services/ownership"
	"gonephishing/internal/services/scoring"
)

// Reason recorded when neither scheme produced a response.
const noResponse = "no response"

// OwnershipStage decides whether a candidate is live and foreign to the seed.
type OwnershipStage interface {
	Resolve(ctx context.Context, seed, candidate string) (ownership.Result, error)
}

// FetchStage retrieves the candidate's landing page.
type FetchStage interface {
	Fetch(ctx context.Context, seed, candidate string) (*fetcher.Page, error)
}

// ScoreStage scores fetched markup.
type ScoreStage interface {
	Score(in scoring.Input) scoring.Result
}

// Deps wires the runner to its store and pipeline stages. Reports and Events
// are optional.
type Deps struct {
	Store     ports.TaskStore
	Ownership OwnershipStage
	Fetcher   FetchStage
	Scorer    ScoreStage
	Reports   ports.ReportSink
	Events    ports.TaskEvents
}

type Options struct {
	Workers        int
	PollInterval   time.Duration
	PersistTimeout time.Duration

	// Recovery sweep. A zero SweepInterval disables it.
	SweepInterval time.Duration
	StaleAfter    time.Duration
	MaxAttempts   int
}

// Runner claims candidate tasks and drives each one to a terminal state.
type Runner struct {
	deps Deps
	opts Options
	log  *logrus.Entry
	now  func() time.Time
}

func New(deps Deps, opts Options, log *logrus.Entry) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if deps.Reports == nil {
		deps.Reports = noopReports{}
	}
	if deps.Events == nil {
		deps.Events = noopEvents{}
	}
	return &Runner{deps: deps, opts: opts, log: log.WithField("component", "scanrunner"), now: time.Now}
}

// Run starts the worker loops and the recovery sweeper and blocks until ctx
// is cancelled and every loop has returned. A task claimed before
// cancellation is finished and persisted first.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		id := uuid.NewString()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, id)
		}()
	}
	if r.opts.SweepInterval > 0 && r.opts.StaleAfter > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.sweepLoop(ctx)
		}()
	}
	r.log.WithField("workers", r.opts.Workers).Info("scan workers started")
	wg.Wait()
	r.log.Info("scan workers stopped")
}

func (r *Runner) loop(ctx context.Context, workerID string) {
	log := r.log.WithField("worker_id", workerID)
	for ctx.Err() == nil {
		processed, err := r.RunOnce(ctx, workerID)
		if err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("claim failed")
		}
		if processed {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.opts.PollInterval):
		}
	}
}

// RunOnce claims the oldest pending task and processes it. It reports
// whether a task was processed; the error is only ever a claim failure.
func (r *Runner) RunOnce(ctx context.Context, workerID string) (bool, error) {
	task, found, err := r.deps.Store.ClaimNextPending(ctx, workerID)
	if err != nil {
		return false, fmt.Errorf("claim next task: %w", err)
	}
	if !found {
		return false, nil
	}
	// Once claimed, the task runs to completion regardless of shutdown; each
	// stage carries its own timeout.
	r.handle(context.WithoutCancel(ctx), task)
	return true, nil
}

func (r *Runner) handle(ctx context.Context, task domain.CandidateTask) {
	log := r.log.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"job_id":    task.JobID,
		"candidate": task.CandidateDomain,
	})
	// A panic in the store or event sink must not end the claim loop.
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("persisting task panicked")
		}
	}()
	out := r.process(ctx, task, log)
	r.persist(ctx, out, log)
}

// process runs the pipeline stages for task and always returns it in a
// terminal state. Stage errors and panics become the error state.
func (r *Runner) process(ctx context.Context, task domain.CandidateTask, log *logrus.Entry) (out domain.CandidateTask) {
	out = task
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("task panicked")
			out.Fail(fmt.Sprintf("panic: %v", p), r.now())
		}
	}()
	if err := r.analyze(ctx, &out); err != nil {
		log.WithError(err).Warn("task failed")
		out.Fail(err.Error(), r.now())
	}
	return out
}

func (r *Runner) analyze(ctx context.Context, t *domain.CandidateTask) error {
	owner, err := r.deps.Ownership.Resolve(ctx, t.SeedDomain, t.CandidateDomain)
	if err != nil {
		return fmt.Errorf("ownership: %w", err)
	}
	t.IPAddresses = owner.IPs
	if owner.Status == domain.LookupNoIP || owner.Status == domain.LookupOwnedByOrigin {
		t.Finish(owner.Status, r.now())
		return nil
	}

	page, err := r.deps.Fetcher.Fetch(ctx, t.SeedDomain, t.CandidateDomain)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	if !page.Responded {
		t.HTTPReason = noResponse
		t.Finish(domain.LookupUnknown, r.now())
		return nil
	}
	status := page.HTTPStatus
	t.HTTPStatus = &status
	t.HTTPReason = page.HTTPReason
	t.RedirectLocation = page.RedirectLocation
	t.FinalURL = page.FinalURL

	res := r.deps.Scorer.Score(scoring.Input{
		HTML:                    page.Body,
		BaseDomain:              brand.BaseDomain(t.SeedDomain),
		FinalURL:                page.FinalURL,
		RedirectLocation:        page.RedirectLocation,
		UnexpectedOAuthRedirect: page.UnexpectedOAuthRedirect,
	})
	t.PageTitle = res.Title
	t.RiskScore = res.Score
	t.RiskReasons = res.Reasons
	t.Finish(res.Band, r.now())
	return nil
}

func (r *Runner) persist(ctx context.Context, t domain.CandidateTask, log *logrus.Entry) {
	pctx, cancel := context.WithTimeout(ctx, r.opts.PersistTimeout)
	defer cancel()

	if err := r.deps.Store.SaveTaskResult(pctx, t); err != nil {
		if errors.Is(err, ports.ErrNotProcessing) {
			log.Warn("task no longer held by this worker; result dropped")
		} else {
			log.WithError(err).Error("saving task result")
		}
		return
	}
	log.WithFields(logrus.Fields{"state": t.State, "status": t.LookupStatus, "score": t.RiskScore}).Info("task processed")

	if t.LookupStatus == domain.LookupDanger {
		finding := domain.RiskFinding{
			JobID:           t.JobID,
			TaskID:          t.ID,
			CandidateDomain: t.CandidateDomain,
			Score:           t.RiskScore,
			Reasons:         t.RiskReasons,
			CreatedAt:       *t.ProcessedAt,
		}
		if _, err := r.deps.Store.AppendFinding(pctx, finding); err != nil {
			log.WithError(err).Error("appending finding")
		}
		r.report(ctx, t, log)
	}

	r.deps.Events.Publish(ports.TaskUpdate{
		JobID:           t.JobID,
		TaskID:          t.ID,
		CandidateDomain: t.CandidateDomain,
		State:           t.State,
		LookupStatus:    t.LookupStatus,
		RiskScore:       t.RiskScore,
		RiskReasons:     t.RiskReasons,
		ProcessedAt:     *t.ProcessedAt,
	})
}

func (r *Runner) report(ctx context.Context, t domain.CandidateTask, log *logrus.Entry) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("report sink panicked")
		}
	}()
	err := r.deps.Reports.Report(ctx, []ports.ReportItem{{CandidateDomain: t.CandidateDomain, Reasons: t.RiskReasons}})
	if err != nil {
		log.WithError(err).Warn("abuse report not delivered")
	}
}

type noopReports struct{}

func (noopReports) Report(context.Context, []ports.ReportItem) error { return nil }

type noopEvents struct{}

func (noopEvents) Publish(ports.TaskUpdate) {}
