package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eargollo/orgest/internal/pipeline"
)

// ErrNotFound is returned by Get for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// maxItemErrors caps the per-item errors returned by Get.
const maxItemErrors = 500

// Record is one row of the job history.
type Record struct {
	ID          string                 `json:"id"`
	Root        string                 `json:"root"`
	Stages      []string               `json:"stages"`
	TriggeredBy string                 `json:"triggered_by"`
	Status      pipeline.Status        `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	DurationMS  *int64                 `json:"duration_ms,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Results     []pipeline.StageResult `json:"results,omitempty"`
	ItemErrors  []ItemError            `json:"item_errors,omitempty"`
}

// ItemError is a per-file failure recorded while a stage kept going.
type ItemError struct {
	Stage      string    `json:"stage"`
	Path       string    `json:"path"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

func insertJob(db *sql.DB, rec Record) error {
	_, err := db.Exec(`
		INSERT INTO jobs (id, root, stages, triggered_by, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Root, strings.Join(rec.Stages, ","), rec.TriggeredBy, string(rec.Status), rec.StartedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// finishJob stores the final status and the per-stage results in one
// transaction.
func finishJob(db *sql.DB, st pipeline.State) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	finished := st.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	var errText sql.NullString
	if st.Error != "" {
		errText = sql.NullString{String: st.Error, Valid: true}
	}
	if _, err := tx.Exec(`
		UPDATE jobs SET status = ?, finished_at = ?, duration_ms = ?, error = ?
		WHERE id = ?`,
		string(st.Status), finished.Unix(), finished.Sub(st.StartedAt).Milliseconds(), errText, st.JobID); err != nil {
		return fmt.Errorf("update job: %w", err)
	}

	for _, r := range st.Results {
		counts, err := json.Marshal(r.Counts)
		if err != nil {
			return err
		}
		var stageErr sql.NullString
		if r.Error != "" {
			stageErr = sql.NullString{String: r.Error, Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO job_stages (job_id, idx, name, outcome, counts_json, error)
			VALUES (?, ?, ?, ?, ?, ?)`,
			st.JobID, r.Index, r.Name, r.Outcome, string(counts), stageErr); err != nil {
			return fmt.Errorf("insert stage result: %w", err)
		}
	}
	return tx.Commit()
}

func insertItemError(db *sql.DB, jobID, stage, path, msg string) error {
	_, err := db.Exec(`
		INSERT INTO job_errors (job_id, stage, path, error, occurred_at)
		VALUES (?, ?, ?, ?, ?)`,
		jobID, stage, path, msg, time.Now().Unix())
	return err
}

const jobColumns = `id, root, stages, triggered_by, status, started_at, finished_at, duration_ms, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec        Record
		stages     string
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
		duration   sql.NullInt64
		errText    sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Root, &stages, &rec.TriggeredBy, &status, &startedAt, &finishedAt, &duration, &errText); err != nil {
		return rec, err
	}
	if stages != "" {
		rec.Stages = strings.Split(stages, ",")
	}
	rec.Status = pipeline.Status(status)
	rec.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0)
		rec.FinishedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		rec.DurationMS = &d
	}
	rec.Error = errText.String
	return rec, nil
}

// List returns jobs newest first together with the total row count.
func List(ctx context.Context, db *sql.DB, limit, offset int) ([]Record, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

// Get returns one job with its stage results and item errors.
func Get(ctx context.Context, db *sql.DB, id string) (*Record, error) {
	rec, err := scanRecord(db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT idx, name, outcome, counts_json, error FROM job_stages
		WHERE job_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("get job stages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			r       pipeline.StageResult
			counts  string
			errText sql.NullString
		)
		if err := rows.Scan(&r.Index, &r.Name, &r.Outcome, &counts, &errText); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
			return nil, fmt.Errorf("decode counts of stage %d: %w", r.Index, err)
		}
		r.Error = errText.String
		rec.Results = append(rec.Results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := db.QueryContext(ctx, `
		SELECT stage, path, error, occurred_at FROM job_errors
		WHERE job_id = ? ORDER BY id LIMIT ?`, id, maxItemErrors)
	if err != nil {
		return nil, fmt.Errorf("get job errors: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var (
			e  ItemError
			at int64
		)
		if err := erows.Scan(&e.Stage, &e.Path, &e.Error, &at); err != nil {
			return nil, err
		}
		e.OccurredAt = time.Unix(at, 0)
		rec.ItemErrors = append(rec.ItemErrors, e)
	}
	return &rec, erows.Err()
}

// LastFinished returns the most recently finished job, or nil when none
// has finished yet.
func LastFinished(ctx context.Context, db *sql.DB) (*Record, error) {
	rec, err := scanRecord(db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status != 'running'
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last finished job: %w", err)
	}
	return &rec, nil
}

// MarkStaleJobsFailed marks any job still in 'running' state as failed.
// Call it once at startup in case a previous process died mid-job.
func MarkStaleJobsFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE jobs
		SET status = 'failed', finished_at = ?, error = 'interrupted'
		WHERE status = 'running'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark stale jobs failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale jobs as failed", "count", n)
	}
	return nil
}
