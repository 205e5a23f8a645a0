// Package storetest is a conformance suite for ports.Store implementations.
package storetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
)

// Run exercises store against the task store contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	t.Run("CreateAndRead", func(t *testing.T) { testCreateAndRead(t, newStore(t)) })
	t.Run("ClaimOrder", func(t *testing.T) { testClaimOrder(t, newStore(t)) })
	t.Run("ConcurrentClaims", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("SaveResult", func(t *testing.T) { testSaveResult(t, newStore(t)) })
	t.Run("Findings", func(t *testing.T) { testFindings(t, newStore(t)) })
	t.Run("RequeueStale", func(t *testing.T) { testRequeueStale(t, newStore(t)) })
	t.Run("SaveAfterReclaim", func(t *testing.T) { testSaveAfterReclaim(t, newStore(t)) })
	t.Run("UnknownJob", func(t *testing.T) { testUnknownJob(t, newStore(t)) })
}

func seedJob(t *testing.T, s ports.Store, candidates ...string) int64 {
	t.Helper()
	ctx := context.Background()
	jobID, err := s.CreateJob(ctx, "tester", []string{"example.com"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	tasks := make([]domain.NewTask, len(candidates))
	for i, c := range candidates {
		tasks[i] = domain.NewTask{SeedDomain: "example.com", CandidateDomain: c}
	}
	n, err := s.CreateTasks(ctx, jobID, tasks)
	if err != nil {
		t.Fatalf("CreateTasks: %v", err)
	}
	if n != len(candidates) {
		t.Fatalf("CreateTasks created %d, want %d", n, len(candidates))
	}
	return jobID
}

func testCreateAndRead(t *testing.T, s ports.Store) {
	ctx := context.Background()
	jobID := seedJob(t, s, "exampl.com", "exmaple.com", "example.net")

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Owner != "tester" || job.TaskCount != 3 || len(job.SeedDomains) != 1 || job.SeedDomains[0] != "example.com" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}

	tasks, err := s.ListTasks(ctx, jobID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for _, task := range tasks {
		if task.State != domain.TaskPending || task.LookupStatus != domain.LookupUnknown {
			t.Fatalf("new task not pending/unknown: %+v", task)
		}
		if task.ProcessedAt != nil || task.ClaimedAt != nil {
			t.Fatalf("new task has timestamps set: %+v", task)
		}
	}

	p, err := s.Progress(ctx, jobID)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Total != 3 || p.Pending != 3 || p.Complete() {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func testClaimOrder(t *testing.T, s ports.Store) {
	ctx := context.Background()
	seedJob(t, s, "b.com", "a.com", "c.com")

	var got []string
	for {
		task, found, err := s.ClaimNextPending(ctx, "w1")
		if err != nil {
			t.Fatalf("ClaimNextPending: %v", err)
		}
		if !found {
			break
		}
		if task.State != domain.TaskProcessing || task.ClaimedBy != "w1" || task.Attempts != 1 || task.ClaimedAt == nil {
			t.Fatalf("claimed task not marked: %+v", task)
		}
		got = append(got, task.CandidateDomain)
	}
	want := []string{"b.com", "a.com", "c.com"}
	if len(got) != len(want) {
		t.Fatalf("claimed %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claim order %v, want creation order %v", got, want)
		}
	}
}

func testConcurrentClaims(t *testing.T, s ports.Store) {
	ctx := context.Background()
	var candidates []string
	for i := 0; i < 40; i++ {
		candidates = append(candidates, string(rune('a'+i%26))+string(rune('a'+i/26))+".com")
	}
	seedJob(t, s, candidates...)

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, found, err := s.ClaimNextPending(ctx, "worker")
				if err != nil {
					t.Errorf("ClaimNextPending: %v", err)
					return
				}
				if !found {
					return
				}
				mu.Lock()
				claimed[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != len(candidates) {
		t.Fatalf("claimed %d distinct tasks, want %d", len(claimed), len(candidates))
	}
	for id, n := range claimed {
		if n != 1 {
			t.Fatalf("task %d claimed %d times", id, n)
		}
	}
}

func testSaveResult(t *testing.T, s ports.Store) {
	ctx := context.Background()
	jobID := seedJob(t, s, "exampl.com")
	task, found, err := s.ClaimNextPending(ctx, "w1")
	if err != nil || !found {
		t.Fatalf("claim: found=%v err=%v", found, err)
	}

	status := 200
	task.IPAddresses = []string{"192.0.2.10", "2001:db8::1"}
	task.HTTPStatus = &status
	task.HTTPReason = "OK"
	task.RedirectLocation = "https://evil.net/"
	task.FinalURL = "http://exampl.com/"
	task.PageTitle = "Example"
	task.RiskScore = 135
	task.RiskReasons = []string{"impersonatingTitle", "hasCredentialForm", "formPostsThirdParty"}
	task.Finish(domain.LookupDanger, time.Now())
	if err := s.SaveTaskResult(ctx, task); err != nil {
		t.Fatalf("SaveTaskResult: %v", err)
	}

	tasks, err := s.ListTasks(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	got := tasks[0]
	if got.State != domain.TaskDone || got.LookupStatus != domain.LookupDanger || got.ProcessedAt == nil {
		t.Fatalf("terminal state not persisted: %+v", got)
	}
	if got.HTTPStatus == nil || *got.HTTPStatus != 200 || got.RiskScore != 135 || len(got.RiskReasons) != 3 {
		t.Fatalf("result fields not persisted: %+v", got)
	}
	ips := append([]string(nil), got.IPAddresses...)
	sort.Strings(ips)
	if len(ips) != 2 || ips[0] != "192.0.2.10" {
		t.Fatalf("ip addresses = %v", got.IPAddresses)
	}

	// terminal rows are never rewritten
	task.Fail("late write", time.Now())
	if err := s.SaveTaskResult(ctx, task); !errors.Is(err, ports.ErrNotProcessing) {
		t.Fatalf("expected ErrNotProcessing, got %v", err)
	}

	p, _ := s.Progress(ctx, jobID)
	if !p.Complete() || p.Done != 1 {
		t.Fatalf("unexpected progress: %+v", p)
	}
}

func testFindings(t *testing.T, s ports.Store) {
	ctx := context.Background()
	jobID := seedJob(t, s, "exampl.com")
	task, _, err := s.ClaimNextPending(ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.AppendFinding(ctx, domain.RiskFinding{
		JobID:           jobID,
		TaskID:          task.ID,
		CandidateDomain: task.CandidateDomain,
		Score:           135,
		Reasons:         []string{"hasCredentialForm"},
		CreatedAt:       time.Now(),
	})
	if err != nil || id == 0 {
		t.Fatalf("AppendFinding: id=%d err=%v", id, err)
	}
	findings, err := s.ListFindings(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || findings[0].CandidateDomain != "exampl.com" || findings[0].Reasons[0] != "hasCredentialForm" {
		t.Fatalf("unexpected findings: %+v", findings)
	}
	p, _ := s.Progress(ctx, jobID)
	if p.Findings != 1 {
		t.Fatalf("progress findings = %d, want 1", p.Findings)
	}
}

func testRequeueStale(t *testing.T, s ports.Store) {
	ctx := context.Background()
	jobID := seedJob(t, s, "a.com", "b.com")

	// first pass: both claimed and abandoned
	for i := 0; i < 2; i++ {
		if _, found, err := s.ClaimNextPending(ctx, "crashed"); err != nil || !found {
			t.Fatalf("claim: found=%v err=%v", found, err)
		}
	}
	future := time.Now().Add(time.Hour)
	requeued, failed, err := s.RequeueStale(ctx, future, 2)
	if err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	if requeued != 2 || failed != 0 {
		t.Fatalf("requeued=%d failed=%d, want 2/0", requeued, failed)
	}

	// second pass: only a.com is abandoned again and hits the attempt limit
	task, _, _ := s.ClaimNextPending(ctx, "crashed")
	if task.CandidateDomain != "a.com" || task.Attempts != 2 {
		t.Fatalf("unexpected reclaim: %+v", task)
	}
	requeued, failed, err = s.RequeueStale(ctx, future, 2)
	if err != nil {
		t.Fatal(err)
	}
	if requeued != 0 || failed != 1 {
		t.Fatalf("requeued=%d failed=%d, want 0/1", requeued, failed)
	}

	tasks, _ := s.ListTasks(ctx, jobID)
	for _, tk := range tasks {
		switch tk.CandidateDomain {
		case "a.com":
			if tk.State != domain.TaskError || tk.ProcessedAt == nil {
				t.Fatalf("a.com should be error: %+v", tk)
			}
		case "b.com":
			if tk.State != domain.TaskPending || tk.ProcessedAt != nil {
				t.Fatalf("b.com should be pending: %+v", tk)
			}
		}
	}

	// a recent claim is left alone
	if _, _, err := s.ClaimNextPending(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	requeued, failed, _ = s.RequeueStale(ctx, time.Now().Add(-time.Hour), 2)
	if requeued != 0 || failed != 0 {
		t.Fatalf("fresh claim was swept: requeued=%d failed=%d", requeued, failed)
	}
}

func testUnknownJob(t *testing.T, s ports.Store) {
	if _, err := s.GetJob(context.Background(), 9999); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSaveAfterReclaim(t *testing.T, s ports.Store) {
	ctx := context.Background()
	jobID := seedJob(t, s, "exampl.com")

	first, found, err := s.ClaimNextPending(ctx, "worker-a")
	if err != nil || !found {
		t.Fatalf("claim a: found=%v err=%v", found, err)
	}
	if _, _, err := s.RequeueStale(ctx, time.Now().Add(time.Hour), 3); err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}
	second, found, err := s.ClaimNextPending(ctx, "worker-b")
	if err != nil || !found {
		t.Fatalf("claim b: found=%v err=%v", found, err)
	}
	if second.ID != first.ID || second.Attempts != 2 {
		t.Fatalf("unexpected reclaim: %+v", second)
	}

	first.Finish(domain.LookupSafe, time.Now())
	if err := s.SaveTaskResult(ctx, first); !errors.Is(err, ports.ErrNotProcessing) {
		t.Fatalf("stale claim saved: %v", err)
	}

	second.RiskScore = 135
	second.Finish(domain.LookupDanger, time.Now())
	if err := s.SaveTaskResult(ctx, second); err != nil {
		t.Fatalf("current claim rejected: %v", err)
	}
	tasks, err := s.ListTasks(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if got := tasks[0]; got.LookupStatus != domain.LookupDanger || got.RiskScore != 135 {
		t.Fatalf("persisted result = %+v", got)
	}
}
