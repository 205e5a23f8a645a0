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

const taskColumns = `id, job_id, seed_domain, candidate_domain, state, lookup_status, ip_addresses,
	http_status, http_reason, redirect_location, final_url, page_title, risk_score, risk_reasons,
	error, attempts, claimed_by, claimed_at, processed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.CandidateTask, error) {
	var (
		t                    domain.CandidateTask
		state, status        string
		ips, reasons         string
		httpStatus           sql.NullInt64
		claimedAt, processed sql.NullInt64
		createdAt            int64
	)
	err := row.Scan(&t.ID, &t.JobID, &t.SeedDomain, &t.CandidateDomain, &state, &status, &ips,
		&httpStatus, &t.HTTPReason, &t.RedirectLocation, &t.FinalURL, &t.PageTitle, &t.RiskScore, &reasons,
		&t.Error, &t.Attempts, &t.ClaimedBy, &claimedAt, &processed, &createdAt)
	if err != nil {
		return t, err
	}
	t.State = domain.TaskState(state)
	t.LookupStatus = domain.LookupStatus(status)
	if httpStatus.Valid {
		code := int(httpStatus.Int64)
		t.HTTPStatus = &code
	}
	t.ClaimedAt = fromMillis(claimedAt)
	t.ProcessedAt = fromMillis(processed)
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	if t.IPAddresses, err = decodeList(ips); err != nil {
		return t, err
	}
	t.RiskReasons, err = decodeList(reasons)
	return t, err
}

func (db *DB) CreateJob(ctx context.Context, owner string, seeds []string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO scan_jobs (owner, seed_domains, created_at) VALUES (?, ?, ?)`,
		owner, encodeList(seeds), millis(db.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return res.LastInsertId()
}

func (db *DB) CreateTasks(ctx context.Context, jobID int64, tasks []domain.NewTask) (n int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO candidate_tasks (job_id, seed_domain, candidate_domain, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := millis(db.now())
	for _, t := range tasks {
		if _, err = stmt.ExecContext(ctx, jobID, t.SeedDomain, t.CandidateDomain, now); err != nil {
			return 0, fmt.Errorf("insert task %s: %w", t.CandidateDomain, err)
		}
	}
	res, err := tx.ExecContext(ctx, `UPDATE scan_jobs SET task_count = task_count + ? WHERE id = ?`, len(tasks), jobID)
	if err != nil {
		return 0, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, ports.ErrNotFound
	}
	return len(tasks), nil
}

// ClaimNextPending is a single UPDATE ... RETURNING; the state guard in the
// WHERE clause makes it a compare-and-set even across processes.
func (db *DB) ClaimNextPending(ctx context.Context, workerID string) (domain.CandidateTask, bool, error) {
	task, err := scanTask(db.QueryRowContext(ctx, `
		UPDATE candidate_tasks
		SET state = 'processing', claimed_by = ?, claimed_at = ?, attempts = attempts + 1
		WHERE id = (SELECT min(id) FROM candidate_tasks WHERE state = 'pending')
		  AND state = 'pending'
		RETURNING `+taskColumns, workerID, millis(db.now())))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CandidateTask{}, false, nil
	}
	if err != nil {
		return domain.CandidateTask{}, false, fmt.Errorf("claim task: %w", err)
	}
	return task, true, nil
}

func (db *DB) SaveTaskResult(ctx context.Context, t domain.CandidateTask) error {
	var httpStatus, processed sql.NullInt64
	if t.HTTPStatus != nil {
		httpStatus = sql.NullInt64{Int64: int64(*t.HTTPStatus), Valid: true}
	}
	if t.ProcessedAt != nil {
		processed = sql.NullInt64{Int64: millis(*t.ProcessedAt), Valid: true}
	}
	res, err := db.ExecContext(ctx, `
		UPDATE candidate_tasks SET
			state = ?, lookup_status = ?, ip_addresses = ?, http_status = ?, http_reason = ?,
			redirect_location = ?, final_url = ?, page_title = ?, risk_score = ?, risk_reasons = ?,
			error = ?, processed_at = ?
		WHERE id = ? AND state = 'processing' AND claimed_by = ? AND attempts = ?`,
		string(t.State), string(t.LookupStatus), encodeList(t.IPAddresses), httpStatus, t.HTTPReason,
		t.RedirectLocation, t.FinalURL, t.PageTitle, t.RiskScore, encodeList(t.RiskReasons),
		t.Error, processed, t.ID, t.ClaimedBy, t.Attempts,
	)
	if err != nil {
		return fmt.Errorf("save task %d: %w", t.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ports.ErrNotProcessing
	}
	return nil
}

func (db *DB) AppendFinding(ctx context.Context, f domain.RiskFinding) (int64, error) {
	created := f.CreatedAt
	if created.IsZero() {
		created = db.now()
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO risk_findings (job_id, task_id, candidate_domain, score, reasons, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		f.JobID, f.TaskID, f.CandidateDomain, f.Score, encodeList(f.Reasons), millis(created),
	)
	if err != nil {
		return 0, fmt.Errorf("insert finding: %w", err)
	}
	return res.LastInsertId()
}

func (db *DB) RequeueStale(ctx context.Context, cutoff time.Time, maxAttempts int) (requeued, failed int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE candidate_tasks
		SET state = 'error', lookup_status = 'error', error = 'abandoned in processing too many times',
			processed_at = ?
		WHERE state = 'processing' AND claimed_at < ? AND attempts >= ?`,
		millis(db.now()), millis(cutoff), maxAttempts)
	if err != nil {
		return 0, 0, err
	}
	f, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		UPDATE candidate_tasks
		SET state = 'pending', claimed_by = '', claimed_at = NULL
		WHERE state = 'processing' AND claimed_at < ?`,
		millis(cutoff))
	if err != nil {
		return 0, 0, err
	}
	r, _ := res.RowsAffected()
	return int(r), int(f), nil
}
