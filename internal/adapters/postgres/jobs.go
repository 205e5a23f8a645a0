package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"gonephishing/internal/domain"
	"gonephishing/internal/ports"
)

const taskColumns = `id, job_id, seed_domain, candidate_domain, state, lookup_status, ip_addresses,
	http_status, http_reason, redirect_location, final_url, page_title, risk_score, risk_reasons,
	error, attempts, claimed_by, claimed_at, processed_at, created_at`

func scanTask(row pgx.Row) (domain.CandidateTask, error) {
	var t domain.CandidateTask
	var state, status string
	err := row.Scan(&t.ID, &t.JobID, &t.SeedDomain, &t.CandidateDomain, &state, &status, &t.IPAddresses,
		&t.HTTPStatus, &t.HTTPReason, &t.RedirectLocation, &t.FinalURL, &t.PageTitle, &t.RiskScore, &t.RiskReasons,
		&t.Error, &t.Attempts, &t.ClaimedBy, &t.ClaimedAt, &t.ProcessedAt, &t.CreatedAt)
	t.State = domain.TaskState(state)
	t.LookupStatus = domain.LookupStatus(status)
	return t, err
}

func (db *DB) CreateJob(ctx context.Context, owner string, seeds []string) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO scan_jobs (owner, seed_domains) VALUES ($1, $2) RETURNING id
	`, owner, nonNil(seeds)).Scan(&id)
	return id, err
}

// CreateTasks bulk-inserts pending tasks and records the count on the job in
// one transaction.
func (db *DB) CreateTasks(ctx context.Context, jobID int64, tasks []domain.NewTask) (n int, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"candidate_tasks"},
		[]string{"job_id", "seed_domain", "candidate_domain"},
		pgx.CopyFromSlice(len(tasks), func(i int) ([]any, error) {
			return []any{jobID, tasks[i].SeedDomain, tasks[i].CandidateDomain}, nil
		}),
	)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `UPDATE scan_jobs SET task_count = task_count + $2 WHERE id = $1`, jobID, copied)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ports.ErrNotFound
	}
	return int(copied), nil
}

// ClaimNextPending moves the lowest-id pending task to processing in a single
// statement; SKIP LOCKED lets concurrent claimants pass over each other.
func (db *DB) ClaimNextPending(ctx context.Context, workerID string) (domain.CandidateTask, bool, error) {
	task, err := scanTask(db.Pool.QueryRow(ctx, `
		UPDATE candidate_tasks
		SET state = 'processing', claimed_by = $1, claimed_at = now(), attempts = attempts + 1
		WHERE id = (
			SELECT id FROM candidate_tasks
			WHERE state = 'pending'
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns, workerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CandidateTask{}, false, nil
	}
	if err != nil {
		return domain.CandidateTask{}, false, err
	}
	return task, true, nil
}

// SaveTaskResult writes a terminal task. The row must still be held by the
// same claim (worker and attempt), so neither a terminal row nor a task that
// was swept and reclaimed is overwritten.
func (db *DB) SaveTaskResult(ctx context.Context, t domain.CandidateTask) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE candidate_tasks SET
			state = $2, lookup_status = $3, ip_addresses = $4, http_status = $5, http_reason = $6,
			redirect_location = $7, final_url = $8, page_title = $9, risk_score = $10, risk_reasons = $11,
			error = $12, processed_at = $13
		WHERE id = $1 AND state = 'processing' AND claimed_by = $14 AND attempts = $15
	`, t.ID, string(t.State), string(t.LookupStatus), nonNil(t.IPAddresses), t.HTTPStatus, t.HTTPReason,
		t.RedirectLocation, t.FinalURL, t.PageTitle, t.RiskScore, nonNil(t.RiskReasons),
		t.Error, t.ProcessedAt, t.ClaimedBy, t.Attempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotProcessing
	}
	return nil
}

func (db *DB) AppendFinding(ctx context.Context, f domain.RiskFinding) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO risk_findings (job_id, task_id, candidate_domain, score, reasons)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, f.JobID, f.TaskID, f.CandidateDomain, f.Score, nonNil(f.Reasons)).Scan(&id)
	return id, err
}

func (db *DB) RequeueStale(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued, failed int, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE candidate_tasks
		SET state = 'error', lookup_status = 'error', error = 'abandoned in processing too many times',
			processed_at = now()
		WHERE state = 'processing' AND claimed_at < $1 AND attempts >= $2
	`, cutoff, maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	failed = int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE candidate_tasks
		SET state = 'pending', claimed_by = '', claimed_at = NULL
		WHERE state = 'processing' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, 0, err
	}
	return int(tag.RowsAffected()), failed, nil
}
