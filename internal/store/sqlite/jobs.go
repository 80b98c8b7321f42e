package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/jobboard/internal/board"
)

const jobColumns = "id, title, description, requirements, location, salary_range, status, created_at"

func (s *Store) CreateJob(ctx context.Context, job *board.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	job.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (title, description, requirements, location, salary_range, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.Title, job.Description, job.Requirements, job.Location, job.SalaryRange, job.Status, job.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "insert job")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "job id")
	}
	job.ID = id
	return nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (*board.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(board.ErrNotFound, "job %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get job %d", id)
	}
	return job, nil
}

func (s *Store) ListJobs(ctx context.Context, activeOnly bool) ([]board.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var args []any
	if activeOnly {
		query += " WHERE status = ?"
		args = append(args, board.JobStatusActive)
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	jobs := []board.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, errors.Wrap(rows.Err(), "iterate jobs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*board.Job, error) {
	var job board.Job
	err := row.Scan(&job.ID, &job.Title, &job.Description, &job.Requirements,
		&job.Location, &job.SalaryRange, &job.Status, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
