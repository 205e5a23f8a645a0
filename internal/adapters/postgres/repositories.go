package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
)

func (db *DB) GetJob(ctx context.Context, jobID int64) (domain.ScanJob, error) {
	var j domain.ScanJob
	err := db.Pool.QueryRow(ctx, `
		SELECT id, owner, seed_domains, task_count, created_at FROM scan_jobs WHERE id = $1
	`, jobID).Scan(&j.ID, &j.Owner, &j.SeedDomains, &j.TaskCount, &j.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return j, ports.ErrNotFound
	}
	return j, err
}

func (db *DB) ListTasks(ctx context.Context, jobID int64) ([]domain.CandidateTask, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+taskColumns+` FROM candidate_tasks WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CandidateTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (db *DB) ListFindings(ctx context.Context, jobID int64) ([]domain.RiskFinding, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, job_id, task_id, candidate_domain, score, reasons, created_at
		FROM risk_findings WHERE job_id = $1 ORDER BY id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RiskFinding
	for rows.Next() {
		var f domain.RiskFinding
		if err := rows.Scan(&f.ID, &f.JobID, &f.TaskID, &f.CandidateDomain, &f.Score, &f.Reasons, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (db *DB) Progress(ctx context.Context, jobID int64) (ports.JobProgress, error) {
	var p ports.JobProgress
	err := db.Pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE state = 'pending'),
			count(*) FILTER (WHERE state = 'processing'),
			count(*) FILTER (WHERE state = 'done'),
			count(*) FILTER (WHERE state = 'error'),
			(SELECT count(*) FROM risk_findings WHERE job_id = $1)
		FROM candidate_tasks WHERE job_id = $1
	`, jobID).Scan(&p.Total, &p.Pending, &p.Processing, &p.Done, &p.Error, &p.Findings)
	return p, err
}
