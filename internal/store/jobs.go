package store

import (
	"context"
	"database/sql"
	"time"
)

// JobRun is one audit row for a worker cycle.
type JobRun struct {
	ID         int64
	JobName    string
	WorkerID   string
	StartedAt  time.Time
	FinishedAt *time.Time
	OK         *bool
	Error      *string
	MetaJSON   *string
}

// StartJobRun records the beginning of a worker cycle.
func (s *Store) StartJobRun(ctx context.Context, jobName, workerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO job_runs (job_name, worker_id, started_at) VALUES (?,?,?)
`, jobName, workerID, fmtTime(time.Now()))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishJobRun closes out a cycle's audit row.
func (s *Store) FinishJobRun(ctx context.Context, runID int64, ok bool, errMsg, metaJSON *string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE job_runs SET finished_at=?, ok=?, error=?, meta_json=? WHERE id=?
`, fmtTime(time.Now()), boolToInt(ok), errMsg, metaJSON, runID)
	return err
}

// ListJobRuns returns recent cycles, newest first.
func (s *Store) ListJobRuns(ctx context.Context, limit int) ([]JobRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, job_name, worker_id, started_at, finished_at, ok, error, meta_json
FROM job_runs ORDER BY started_at DESC LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var (
			j          JobRun
			startedAt  string
			finishedAt sql.NullString
			okVal      sql.NullInt64
			errStr     sql.NullString
			meta       sql.NullString
		)
		if err := rows.Scan(&j.ID, &j.JobName, &j.WorkerID, &startedAt, &finishedAt, &okVal, &errStr, &meta); err != nil {
			return nil, err
		}
		j.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			t := parseTime(finishedAt.String)
			j.FinishedAt = &t
		}
		if okVal.Valid {
			v := okVal.Int64 != 0
			j.OK = &v
		}
		if errStr.Valid {
			v := errStr.String
			j.Error = &v
		}
		if meta.Valid {
			v := meta.String
			j.MetaJSON = &v
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
