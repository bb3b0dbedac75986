package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const jobColumns = `id, type, session_id, payload_json, status, attempts, max_attempts,
	run_after, created_at, updated_at, last_error`

// maxRetryDelay caps the exponential backoff between attempts.
const maxRetryDelay = 5 * time.Minute

func retryDelay(attempt int) time.Duration {
	if attempt >= 9 {
		return maxRetryDelay
	}
	return min(time.Second<<attempt, maxRetryDelay)
}

func scanJob(r rowScanner) (Job, error) {
	var j Job
	var runAfter, created, updated string
	var lastError sql.NullString
	err := r.Scan(&j.ID, &j.Type, &j.SessionID, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &created, &updated, &lastError)
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String
	for _, f := range []struct {
		dst  *time.Time
		col  string
		text string
	}{
		{&j.RunAfter, "run_after", runAfter},
		{&j.CreatedAt, "created_at", created},
		{&j.UpdatedAt, "updated_at", updated},
	} {
		if *f.dst, err = parseStamp(f.col, f.text); err != nil {
			return Job{}, fmt.Errorf("job %s: %w", j.ID, err)
		}
	}
	return j, nil
}

// EnqueueJob inserts a pending job. A zero MaxAttempts means a single
// attempt, and a zero RunAfter means now.
func (s *Store) EnqueueJob(job Job) error {
	now := time.Now()
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = 1
	}
	if job.PayloadJSON == "" {
		job.PayloadJSON = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, session_id, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.SessionID, job.PayloadJSON, JobPending, job.MaxAttempts,
		stamp(job.RunAfter), stamp(now), stamp(now))
	if err != nil {
		return fmt.Errorf("enqueueing %s job: %w", job.Type, err)
	}
	return nil
}

// ClaimNextJob atomically moves the oldest due pending job of one of types
// to running and returns it. It returns nil, nil when nothing is due.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}
	now := nowStamp()
	args := []any{JobRunning, now, JobPending, now}
	for _, t := range types {
		args = append(args, t)
	}

	row := s.db.QueryRow(`
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND run_after <= ? AND type IN (?`+strings.Repeat(", ?", len(types)-1)+`)
			ORDER BY run_after, created_at
			LIMIT 1
		)
		RETURNING `+jobColumns, args...)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming job: %w", err)
	}
	return &j, nil
}

func (s *Store) GetJob(id string) (Job, error) {
	j, err := scanJob(s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

func (s *Store) CompleteJob(id string) error {
	return s.setStatus(id, JobCompleted)
}

func (s *Store) setStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`, status, nowStamp(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. A job with attempts left goes back to
// pending after an exponential delay; otherwise it is marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var attempts, maxAttempts int
		err := tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		attempts++
		now := time.Now()
		status, runAfter := JobFailed, now
		if attempts < maxAttempts {
			status, runAfter = JobPending, now.Add(retryDelay(attempts))
		}
		_, err = tx.Exec(`
			UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ?
			WHERE id = ?`,
			status, attempts, errMsg, stamp(runAfter), stamp(now), id)
		return err
	})
}

// AbandonUnfinishedJobs fails every pending or running job, typically ones
// left behind by a previous process, and reports how many it touched.
func (s *Store) AbandonUnfinishedJobs(reason string) (int, error) {
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, last_error = ?, updated_at = ?
		WHERE status IN (?, ?)`,
		JobFailed, reason, nowStamp(), JobPending, JobRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
