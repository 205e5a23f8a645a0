package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
)

func (db *DB) GetJob(ctx context.Context, jobID int64) (domain.ScanJob, error) {
	var (
		j         domain.ScanJob
		seeds     string
		createdAt int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, owner, seed_domains, task_count, created_at FROM scan_jobs WHERE id = ?`, jobID,
	).Scan(&j.ID, &j.Owner, &seeds, &j.TaskCount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return j, ports.ErrNotFound
	}
	if err != nil {
		return j, fmt.Errorf("get job: %w", err)
	}
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.SeedDomains, err = decodeList(seeds)
	return j, err
}

func (db *DB) ListTasks(ctx context.Context, jobID int64) ([]domain.CandidateTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+` FROM candidate_tasks WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.CandidateTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) ListFindings(ctx context.Context, jobID int64) ([]domain.RiskFinding, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, job_id, task_id, candidate_domain, score, reasons, created_at
		FROM risk_findings WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []domain.RiskFinding
	for rows.Next() {
		var (
			f         domain.RiskFinding
			reasons   string
			createdAt int64
		)
		if err := rows.Scan(&f.ID, &f.JobID, &f.TaskID, &f.CandidateDomain, &f.Score, &reasons, &createdAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.CreatedAt = time.UnixMilli(createdAt).UTC()
		if f.Reasons, err = decodeList(reasons); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (db *DB) Progress(ctx context.Context, jobID int64) (ports.JobProgress, error) {
	var p ports.JobProgress
	err := db.QueryRowContext(ctx, `
		SELECT
			count(*),
			coalesce(sum(state = 'pending'), 0),
			coalesce(sum(state = 'processing'), 0),
			coalesce(sum(state = 'done'), 0),
			coalesce(sum(state = 'error'), 0),
			(SELECT count(*) FROM risk_findings WHERE job_id = ?)
		FROM candidate_tasks WHERE job_id = ?`, jobID, jobID,
	).Scan(&p.Total, &p.Pending, &p.Processing, &p.Done, &p.Error, &p.Findings)
	if err != nil {
		return p, fmt.Errorf("job progress: %w", err)
	}
	return p, nil
}
