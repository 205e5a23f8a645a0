package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/xuri/excelize/v2"

	"gonephishing/internal/adapters/sqlite"
	"gonephishing/internal/domain"
	"gonephishing/internal/logging"
	"gonephishing/internal/ports"
	"gonephishing/internal/services/scanner"
	"gonephishing/internal/services/variants"
)

type testEnv struct {
	store *sqlite.DB
	hub   *Hub
	ts    *httptest.Server
}

func newTestEnv(t *testing.T, maxVariants int) *testEnv {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(store.Close)
	log := logging.Discard()
	svc := scanner.New(store, store, variants.New(variants.Options{MaxVariants: maxVariants}), log)
	hub := NewHub(log)
	ts := httptest.NewServer(New(svc, hub, log).Routes())
	t.Cleanup(ts.Close)
	return &testEnv{store: store, hub: hub, ts: ts}
}

func (e *testEnv) submit(t *testing.T, body string) (*http.Response, jobView) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+"/scans", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var view jobView
	if resp.StatusCode == http.StatusAccepted {
		if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
			t.Fatal(err)
		}
	}
	return resp, view
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, 10)
	var body map[string]string
	if code := getJSON(t, env.ts.URL+"/healthz", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", code, body)
	}
}

func TestSubmitAndRead(t *testing.T) {
	env := newTestEnv(t, 10)

	resp, job := env.submit(t, `{"owner":"soc","seeds":["https://example.com/login"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc == "" || !strings.HasSuffix(loc, "/1") {
		t.Errorf("Location = %q", loc)
	}
	if job.Owner != "soc" || job.TaskCount != 10 || job.Progress.Pending != 10 || job.Complete {
		t.Fatalf("job = %+v", job)
	}

	var got jobView
	if code := getJSON(t, env.ts.URL+"/scans/1", &got); code != http.StatusOK || got.ID != job.ID {
		t.Fatalf("get job = %d %+v", code, got)
	}
	var tasks []taskView
	if code := getJSON(t, env.ts.URL+"/scans/1/tasks", &tasks); code != http.StatusOK || len(tasks) != 10 {
		t.Fatalf("tasks = %d, %d entries", code, len(tasks))
	}
	if tasks[0].State != "pending" || tasks[0].SeedDomain != "example.com" {
		t.Errorf("first task = %+v", tasks[0])
	}
	var findings []findingView
	if code := getJSON(t, env.ts.URL+"/scans/1/findings", &findings); code != http.StatusOK || len(findings) != 0 {
		t.Fatalf("findings = %d %v", code, findings)
	}
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t, 10)

	tests := []struct {
		name   string
		do     func() (*http.Response, error)
		status int
	}{
		{"malformed body", func() (*http.Response, error) {
			return http.Post(env.ts.URL+"/scans", "application/json", strings.NewReader("{"))
		}, http.StatusBadRequest},
		{"no usable seeds", func() (*http.Response, error) {
			return http.Post(env.ts.URL+"/scans", "application/json", strings.NewReader(`{"seeds":["localhost"]}`))
		}, http.StatusBadRequest},
		{"non-numeric id", func() (*http.Response, error) { return http.Get(env.ts.URL + "/scans/abc") }, http.StatusBadRequest},
		{"unknown job", func() (*http.Response, error) { return http.Get(env.ts.URL + "/scans/999") }, http.StatusNotFound},
		{"unknown job tasks", func() (*http.Response, error) { return http.Get(env.ts.URL + "/scans/999/tasks") }, http.StatusNotFound},
		{"unknown job stream", func() (*http.Response, error) { return http.Get(env.ts.URL + "/scans/999/ws") }, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := tc.do()
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
				t.Fatalf("error body = %+v, %v", body, err)
			}
		})
	}
}

func TestExportFindings(t *testing.T) {
	env := newTestEnv(t, 3)
	env.submit(t, `{"seeds":["example.com"]}`)

	resp, err := http.Get(env.ts.URL + "/scans/1/findings.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != xlsxMediaType {
		t.Fatalf("status = %d, type = %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("not a workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Tasks")
	if err != nil || len(rows) != 4 {
		t.Fatalf("task rows = %d, %v", len(rows), err)
	}
}

func TestStreamJob(t *testing.T) {
	env := newTestEnv(t, 1)
	env.submit(t, `{"seeds":["example.com"]}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(env.ts.URL, "http")+"/scans/1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow()

	var ev streamEvent
	if err := wsjson.Read(ctx, c, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "progress" || ev.Progress.Pending != 1 {
		t.Fatalf("first event = %+v", ev)
	}

	task, found, err := env.store.ClaimNextPending(ctx, "worker-1")
	if err != nil || !found {
		t.Fatalf("claim: %v %v", found, err)
	}
	task.Finish(domain.LookupSafe, time.Now())
	if err := env.store.SaveTaskResult(ctx, task); err != nil {
		t.Fatal(err)
	}
	env.hub.Publish(ports.TaskUpdate{
		JobID: task.JobID, TaskID: task.ID, CandidateDomain: task.CandidateDomain,
		State: task.State, LookupStatus: task.LookupStatus, ProcessedAt: *task.ProcessedAt,
	})

	if err := wsjson.Read(ctx, c, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "task" || ev.Task.TaskID != task.ID || ev.Task.LookupStatus != domain.LookupSafe {
		t.Fatalf("task event = %+v", ev)
	}
	if err := wsjson.Read(ctx, c, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != "progress" || !ev.Progress.Complete() {
		t.Fatalf("final progress = %+v", ev.Progress)
	}
	_, _, err = c.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure, got %v", err)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub(logging.Discard())
	ch := hub.Subscribe(7)
	for i := 0; i < subscriberBuffer+10; i++ {
		hub.Publish(ports.TaskUpdate{JobID: 7, TaskID: int64(i)})
	}
	hub.Publish(ports.TaskUpdate{JobID: 8})
	if len(ch) != subscriberBuffer {
		t.Fatalf("buffered = %d, want %d", len(ch), subscriberBuffer)
	}
	hub.Unsubscribe(7, ch)
	hub.Unsubscribe(7, ch)
	if hub.subscribers(7) != 0 {
		t.Fatal("subscriber not removed")
	}
}

func (h *Hub) subscribers(jobID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
