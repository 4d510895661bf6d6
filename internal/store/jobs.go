package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const jobColumns = `id, case_id, document_id, status, attempts, max_attempts,
	last_error, leased_at, created_at, updated_at`

// EnqueueJob creates a queued processing job for a document.
func (s *Store) EnqueueJob(ctx context.Context, caseUUID, documentID string, maxAttempts int) (*ProcessingJob, error) {
	var j ProcessingJob
	err := s.db.GetContext(ctx, &j, `
		INSERT INTO document_processing_jobs (case_id, document_id, status, max_attempts)
		VALUES ($1, $2, $3, $4)
		RETURNING `+jobColumns,
		caseUUID, documentID, JobQueued, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return &j, nil
}

// LeaseNextJob takes an at-most-once lease on the oldest queued job.
// Returns nil when the queue is empty. The SKIP LOCKED subquery keeps
// concurrent workers from handing out the same job twice.
func (s *Store) LeaseNextJob(ctx context.Context) (*ProcessingJob, error) {
	var j ProcessingJob
	err := s.db.GetContext(ctx, &j, `
		UPDATE document_processing_jobs SET
			status = 'processing',
			attempts = attempts + 1,
			leased_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM document_processing_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}
	return &j, nil
}

// CompleteJob records the terminal done state.
func (s *Store) CompleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_processing_jobs SET status = 'done', last_error = NULL, updated_at = NOW()
		WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob records a processing failure. When the attempt budget is exhausted
// the job goes terminal-failed; otherwise it returns to the queue.
func (s *Store) FailJob(ctx context.Context, jobID string, cause string) (terminal bool, err error) {
	var status JobStatus
	err = s.db.GetContext(ctx, &status, `
		UPDATE document_processing_jobs SET
			status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'queued' END,
			last_error = $2,
			updated_at = NOW()
		WHERE id = $1
		RETURNING status`, jobID, cause)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return status == JobFailed, nil
}

// JobCounts summarizes the job states for a case.
type JobCounts struct {
	Queued     int `db:"queued"`
	Processing int `db:"processing"`
	Done       int `db:"done"`
	Failed     int `db:"failed"`
}

// CountJobs returns the per-status job counts for a case UUID.
func (s *Store) CountJobs(ctx context.Context, caseUUID string) (JobCounts, error) {
	var counts JobCounts
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'queued') AS queued,
			COUNT(*) FILTER (WHERE status = 'processing') AS processing,
			COUNT(*) FILTER (WHERE status = 'done') AS done,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed
		FROM document_processing_jobs WHERE case_id = $1`, caseUUID)
	if err != nil {
		return counts, fmt.Errorf("failed to count jobs: %w", err)
	}
	return counts, nil
}
