package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/jobboard/internal/board"
)

const applicationSelect = `SELECT a.id, a.job_id, a.full_name, a.email, a.phone, a.resume_path, a.status,
	a.ai_score, a.ai_feedback, a.created_at, a.updated_at, COALESCE(j.title, ''), COALESCE(j.location, '')
	FROM applications a LEFT JOIN jobs j ON j.id = a.job_id`

func (s *Store) CreateApplication(ctx context.Context, app *board.Application) error {
	now := time.Now().UTC()
	app.Status = board.StatusPending
	app.AIScore = nil
	app.AIFeedback = nil
	app.CreatedAt = now
	app.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (job_id, full_name, email, phone, resume_path, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		app.JobID, app.FullName, app.Email, app.Phone, app.ResumePath, app.Status, now, now,
	)
	if err != nil {
		return errors.Wrap(err, "insert application")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "application id")
	}
	app.ID = id
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*board.Application, error) {
	row := s.db.QueryRowContext(ctx, applicationSelect+" WHERE a.id = ?", id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(board.ErrNotFound, "application %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get application %d", id)
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, filter board.ApplicationFilter) ([]board.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.JobID > 0 {
		where = append(where, "a.job_id = ?")
		args = append(args, filter.JobID)
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		where = append(where, "LOWER(a.email) = LOWER(?)")
		args = append(args, email)
	}

	query := applicationSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at DESC, a.id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list applications")
	}
	defer rows.Close()

	apps := []board.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan application")
		}
		apps = append(apps, *app)
	}
	return apps, errors.Wrap(rows.Err(), "iterate applications")
}

func (s *Store) ClaimForEvaluation(ctx context.Context, id int64) (*board.Application, error) {
	err := s.conditionalUpdate(ctx, id,
		"UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		board.StatusEvaluating, time.Now().UTC(), id, board.StatusPending,
	)
	if err != nil {
		return nil, errors.Wrap(err, "claim application")
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) ReclaimStale(ctx context.Context, id int64, claimedBefore time.Time) (*board.Application, error) {
	err := s.conditionalUpdate(ctx, id,
		"UPDATE applications SET updated_at = ? WHERE id = ? AND status = ? AND updated_at < ?",
		time.Now().UTC(), id, board.StatusEvaluating, claimedBefore.UTC(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "reclaim application")
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) ReleaseClaim(ctx context.Context, id int64) error {
	err := s.conditionalUpdate(ctx, id,
		"UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		board.StatusPending, time.Now().UTC(), id, board.StatusEvaluating,
	)
	return errors.Wrap(err, "release application")
}

func (s *Store) CompleteEvaluation(ctx context.Context, id int64, outcome board.Outcome) (*board.Application, error) {
	if err := board.CheckTransition(board.StatusEvaluating, outcome.Status, board.ActorSystem); err != nil {
		return nil, err
	}

	var score any
	if outcome.Score != nil {
		score = board.ClampScore(*outcome.Score)
	}
	var feedback any
	if outcome.Feedback != nil {
		feedback = *outcome.Feedback
	}

	err := s.conditionalUpdate(ctx, id,
		`UPDATE applications SET status = ?, ai_score = ?, ai_feedback = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		outcome.Status, score, feedback, time.Now().UTC(), id, board.StatusEvaluating,
	)
	if err != nil {
		return nil, errors.Wrap(err, "complete evaluation")
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, to board.Status, actor board.Actor) (*board.Application, error) {
	current, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := board.CheckTransition(current.Status, to, actor); err != nil {
		return nil, err
	}

	err = s.conditionalUpdate(ctx, id,
		"UPDATE applications SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		to, time.Now().UTC(), id, current.Status,
	)
	if err != nil {
		return nil, errors.Wrap(err, "update status")
	}
	return s.GetApplication(ctx, id)
}

func (s *Store) Stats(ctx context.Context) (*board.Stats, error) {
	stats := &board.Stats{ByStatus: make(map[board.Status]int, len(board.Statuses()))}
	for _, status := range board.Statuses() {
		stats.ByStatus[status] = 0
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM applications GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(err, "count applications")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scan status count")
		}
		stats.ByStatus[board.Status(status)] = count
		stats.TotalApplications += count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate status counts")
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM jobs),
		        (SELECT COUNT(*) FROM jobs WHERE status = ?),
		        (SELECT AVG(ai_score) FROM applications WHERE ai_score IS NOT NULL)`,
		board.JobStatusActive,
	).Scan(&stats.TotalJobs, &stats.ActiveJobs, &avg)
	if err != nil {
		return nil, errors.Wrap(err, "job stats")
	}
	if avg.Valid {
		stats.AverageAIScore = &avg.Float64
	}

	return stats, nil
}

// conditionalUpdate runs a guarded UPDATE. No affected rows means the record
// is missing or no longer in the expected status.
func (s *Store) conditionalUpdate(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM applications WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(board.ErrNotFound, "application %d", id)
	}
	if err != nil {
		return err
	}
	return errors.WithDetailf(board.ErrStale, "application %d is %s", id, status)
}

func scanApplication(row scanner) (*board.Application, error) {
	var (
		app      board.Application
		status   string
		score    sql.NullInt64
		feedback sql.NullString
	)
	err := row.Scan(&app.ID, &app.JobID, &app.FullName, &app.Email, &app.Phone, &app.ResumePath,
		&status, &score, &feedback, &app.CreatedAt, &app.UpdatedAt, &app.JobTitle, &app.JobLocation)
	if err != nil {
		return nil, err
	}

	app.Status = board.Status(status)
	if score.Valid {
		v := int(score.Int64)
		app.AIScore = &v
	}
	if feedback.Valid {
		v := feedback.String
		app.AIFeedback = &v
	}
	return &app, nil
}
