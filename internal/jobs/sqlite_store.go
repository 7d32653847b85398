package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the job database at path.
// Use ":memory:" for an ephemeral store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access; WAL so
	// readers do not block the writer.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	// A single connection serializes writes, which is what gives
	// dequeue its claim-once guarantee.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		status TEXT NOT NULL,
		current_stage TEXT NOT NULL DEFAULT '',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL DEFAULT 3,
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active
		ON jobs(book_id, job_type) WHERE status IN ('pending', 'running');
	CREATE INDEX IF NOT EXISTS idx_jobs_dequeue
		ON jobs(status, priority, created_at);

	CREATE TABLE IF NOT EXISTS stage_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		book_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		stage TEXT NOT NULL,
		status TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 1,
		artifact_ref TEXT NOT NULL DEFAULT '',
		error_detail TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_stage_results_latest
		ON stage_results(book_id, job_type, stage, id);
	CREATE INDEX IF NOT EXISTS idx_stage_results_job
		ON stage_results(job_id, id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

const jobColumns = `id, book_id, job_type, priority, status, current_stage,
	attempt_count, max_attempts, cancel_requested, last_error,
	created_at, updated_at, started_at, completed_at`

// CreateJob persists a new pending job.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return errors.New("job with ID is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, book_id, job_type, priority, status, current_stage,
			attempt_count, max_attempts, cancel_requested, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.BookID, job.JobType, int(job.Priority), string(job.Status),
		job.CurrentStage, job.AttemptCount, job.MaxAttempts,
		boolToInt(job.CancelRequested), job.LastError,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: book=%s type=%s", ErrJobExists, job.BookID, job.JobType)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns a job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, err
}

// ListJobs returns jobs matching the filter, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter ListFilter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}
	if filter.BookID != "" {
		query += ` AND book_id = ?`
		args = append(args, filter.BookID)
	}
	if filter.JobType != "" {
		query += ` AND job_type = ?`
		args = append(args, filter.JobType)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// DequeueJob atomically claims the highest-priority pending job.
func (s *SQLiteStore) DequeueJob(ctx context.Context) (*Job, error) {
	for {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin dequeue tx: %w", err)
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+jobColumns+` FROM jobs WHERE status = ?
			 ORDER BY priority DESC, created_at ASC, rowid ASC LIMIT 1`,
			string(StatusPending))
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			_ = tx.Rollback()
			return nil, nil
		}
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(StatusRunning), formatTime(now), formatTime(now),
			job.ID, string(StatusPending))
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("claim job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if n == 0 {
			// Lost the race to another worker; try the next candidate.
			_ = tx.Rollback()
			continue
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit dequeue: %w", err)
		}

		job.Status = StatusRunning
		job.StartedAt = &now
		job.UpdatedAt = now
		return job, nil
	}
}

// UpdateJobStatus applies a validated status transition.
func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id string, status Status, lastError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return err
	}

	if !Status(current).CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrIllegalTransition, current, status, id)
	}

	now := time.Now().UTC()
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(status), formatTime(now)}
	if status == StatusRunning {
		sets = append(sets, "started_at = ?")
		args = append(args, formatTime(now))
	}
	if status.Terminal() {
		sets = append(sets, "completed_at = ?")
		args = append(args, formatTime(now))
	}
	if lastError != "" {
		sets = append(sets, "last_error = ?")
		args = append(args, lastError)
	}
	args = append(args, id)

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return tx.Commit()
}

// SetCurrentStage records the stage and attempt the job is working on.
func (s *SQLiteStore) SetCurrentStage(ctx context.Context, id, stage string, attempt int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current_stage = ?, attempt_count = ?, updated_at = ? WHERE id = ?`,
		stage, attempt, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set current stage: %w", err)
	}
	return requireRow(res, id)
}

// RequestCancel sets the cooperative cancellation flag.
func (s *SQLiteStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		formatTime(time.Now().UTC()), id,
		string(StatusPending), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either missing or already terminal.
		if _, err := s.GetJob(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: job %s is terminal", ErrIllegalTransition, id)
	}
	return nil
}

// AppendStageResult appends one stage execution attempt record.
func (s *SQLiteStore) AppendStageResult(ctx context.Context, result *StageResult) error {
	if result == nil {
		return errors.New("stage result is required")
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = time.Now().UTC()
	}

	var completed any
	if result.CompletedAt != nil {
		completed = formatTime(*result.CompletedAt)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_results (job_id, book_id, job_type, stage, status,
			method, attempt, artifact_ref, error_detail, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.JobID, result.BookID, result.JobType, result.Stage,
		string(result.Status), result.Method, result.Attempt,
		result.ArtifactRef, result.ErrorDetail,
		formatTime(result.StartedAt), completed,
	)
	if err != nil {
		return fmt.Errorf("insert stage result: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		result.ID = id
	}
	return nil
}

const stageResultColumns = `id, job_id, book_id, job_type, stage, status,
	method, attempt, artifact_ref, error_detail, started_at, completed_at`

// LatestStageResults returns the most recent result per stage for a
// (book_id, job_type) pair.
func (s *SQLiteStore) LatestStageResults(ctx context.Context, bookID, jobType string) (map[string]*StageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageResultColumns+` FROM stage_results
		 WHERE id IN (
			SELECT MAX(id) FROM stage_results
			WHERE book_id = ? AND job_type = ? GROUP BY stage
		 )`, bookID, jobType)
	if err != nil {
		return nil, fmt.Errorf("latest stage results: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]*StageResult)
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return nil, err
		}
		latest[result.Stage] = result
	}
	return latest, rows.Err()
}

// StageResults returns the full attempt history for one job.
func (s *SQLiteStore) StageResults(ctx context.Context, jobID string) ([]*StageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stageResultColumns+` FROM stage_results
		 WHERE job_id = ? ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("stage results: %w", err)
	}
	defer rows.Close()

	var results []*StageResult
	for rows.Next() {
		result, err := scanStageResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Stats aggregates job counts by status and priority.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[Status]int),
		ByPriority: make(map[Priority]int),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, priority, COUNT(*) FROM jobs GROUP BY status, priority`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var priority, count int
		if err := rows.Scan(&status, &priority, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[Status(status)] += count
		stats.ByPriority[Priority(priority)] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

// PurgeTerminal removes terminal jobs completed before now-olderThan.
func (s *SQLiteStore) PurgeTerminal(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := formatTime(time.Now().UTC().Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stage_results WHERE job_id IN (
			SELECT id FROM jobs
			WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
		 )`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled), cutoff); err != nil {
		return 0, fmt.Errorf("purge stage results: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM jobs
		 WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?`,
		string(StatusCompleted), string(StatusFailed), string(StatusCancelled), cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*Job, error) {
	var (
		job                    Job
		priority, cancelFlag   int
		status                 string
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)
	err := sc.Scan(
		&job.ID, &job.BookID, &job.JobType, &priority, &status,
		&job.CurrentStage, &job.AttemptCount, &job.MaxAttempts,
		&cancelFlag, &job.LastError,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Priority = Priority(priority)
	job.Status = Status(status)
	job.CancelRequested = cancelFlag != 0
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)
	return &job, nil
}

func scanStageResult(sc scanner) (*StageResult, error) {
	var (
		result      StageResult
		status      string
		startedAt   string
		completedAt sql.NullString
	)
	err := sc.Scan(
		&result.ID, &result.JobID, &result.BookID, &result.JobType,
		&result.Stage, &status, &result.Method, &result.Attempt,
		&result.ArtifactRef, &result.ErrorDetail, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	result.Status = StageStatus(status)
	result.StartedAt = parseTime(startedAt)
	result.CompletedAt = parseNullTime(completedAt)
	return &result, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// timeLayout is RFC3339 with a fixed-width fractional second so that
// lexicographic string comparison in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

var _ Store = (*SQLiteStore)(nil)
