package xlsxexport

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"gonephishing/internal/domain"
)

func TestWrite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	status := 200
	tasks := []domain.CandidateTask{
		{ID: 1, SeedDomain: "example.com", CandidateDomain: "exampl.com", State: domain.TaskDone,
			LookupStatus: domain.LookupDanger, HTTPStatus: &status, RiskScore: 135,
			RiskReasons: []string{"hasCredentialForm", "formPostsThirdParty"}, IPAddresses: []string{"203.0.113.7"},
			FinalURL: "http://exampl.com/", ProcessedAt: &now},
		{ID: 2, SeedDomain: "example.com", CandidateDomain: "exampel.com", State: domain.TaskDone,
			LookupStatus: domain.LookupNoIP, ProcessedAt: &now},
		{ID: 3, SeedDomain: "example.com", CandidateDomain: "examp1e.com", State: domain.TaskPending,
			LookupStatus: domain.LookupUnknown},
	}
	findings := []domain.RiskFinding{
		{ID: 1, JobID: 7, TaskID: 1, CandidateDomain: "exampl.com", Score: 135,
			Reasons: []string{"hasCredentialForm", "formPostsThirdParty"}, CreatedAt: now},
	}
	job := domain.ScanJob{ID: 7, Owner: "soc", SeedDomains: []string{"example.com"}}

	var buf bytes.Buffer
	if err := Write(&buf, job, tasks, findings); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(findingsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("findings rows = %d, want 2", len(rows))
	}
	if rows[1][0] != "exampl.com" || rows[1][1] != "135" || rows[1][3] != "203.0.113.7" {
		t.Fatalf("finding row = %v", rows[1])
	}

	rows, err = f.GetRows(tasksSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("task rows = %d, want 4", len(rows))
	}
	if rows[2][3] != "no_ip" || rows[3][2] != "pending" {
		t.Fatalf("task rows = %v", rows[1:])
	}
}
