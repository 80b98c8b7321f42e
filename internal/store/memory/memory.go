// Package memory is an in-process store used by tests and throwaway runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/store"
)

type Store struct {
	mu      sync.Mutex
	jobs    map[int64]board.Job
	apps    map[int64]board.Application
	nextJob int64
	nextApp int64
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		jobs: make(map[int64]board.Job),
		apps: make(map[int64]board.Application),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateJob(_ context.Context, job *board.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJob++
	job.ID = s.nextJob
	job.CreatedAt = s.now()
	s.jobs[job.ID] = *job
	return nil
}

func (s *Store) GetJob(_ context.Context, id int64) (*board.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.Wrapf(board.ErrNotFound, "job %d", id)
	}
	return &job, nil
}

func (s *Store) ListJobs(_ context.Context, activeOnly bool) ([]board.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := []board.Job{}
	for _, job := range s.jobs {
		if activeOnly && !job.Active() {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID > jobs[j].ID })
	return jobs, nil
}

func (s *Store) CreateApplication(_ context.Context, app *board.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[app.JobID]; !ok {
		return errors.Wrapf(board.ErrNotFound, "job %d", app.JobID)
	}

	s.nextApp++
	now := s.now()
	app.ID = s.nextApp
	app.Status = board.StatusPending
	app.AIScore = nil
	app.AIFeedback = nil
	app.CreatedAt = now
	app.UpdatedAt = now
	s.apps[app.ID] = *app
	return nil
}

func (s *Store) GetApplication(_ context.Context, id int64) (*board.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) ListApplications(_ context.Context, filter board.ApplicationFilter) ([]board.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.TrimSpace(filter.Email)
	apps := []board.Application{}
	for id := range s.apps {
		app, _ := s.getLocked(id)
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.JobID > 0 && app.JobID != filter.JobID {
			continue
		}
		if email != "" && !strings.EqualFold(app.Email, email) {
			continue
		}
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].ID > apps[j].ID })
	return apps, nil
}

func (s *Store) ClaimForEvaluation(_ context.Context, id int64) (*board.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(id, board.StatusPending); err != nil {
		return nil, errors.Wrap(err, "claim application")
	}
	return s.setLocked(id, func(app *board.Application) {
		app.Status = board.StatusEvaluating
	}), nil
}

func (s *Store) ReclaimStale(_ context.Context, id int64, claimedBefore time.Time) (*board.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(id, board.StatusEvaluating); err != nil {
		return nil, errors.Wrap(err, "reclaim application")
	}
	if claimedAt := s.apps[id].UpdatedAt; !claimedAt.Before(claimedBefore) {
		return nil, errors.WithDetailf(board.ErrStale, "application %d was claimed at %s", id, claimedAt.Format(time.RFC3339Nano))
	}
	return s.setLocked(id, func(*board.Application) {}), nil
}

func (s *Store) ReleaseClaim(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(id, board.StatusEvaluating); err != nil {
		return errors.Wrap(err, "release application")
	}
	s.setLocked(id, func(app *board.Application) {
		app.Status = board.StatusPending
	})
	return nil
}

func (s *Store) CompleteEvaluation(_ context.Context, id int64, outcome board.Outcome) (*board.Application, error) {
	if err := board.CheckTransition(board.StatusEvaluating, outcome.Status, board.ActorSystem); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guardLocked(id, board.StatusEvaluating); err != nil {
		return nil, errors.Wrap(err, "complete evaluation")
	}
	return s.setLocked(id, func(app *board.Application) {
		app.Status = outcome.Status
		app.AIScore = nil
		app.AIFeedback = nil
		if outcome.Score != nil {
			score := board.ClampScore(*outcome.Score)
			app.AIScore = &score
		}
		if outcome.Feedback != nil {
			feedback := *outcome.Feedback
			app.AIFeedback = &feedback
		}
	}), nil
}

func (s *Store) UpdateStatus(_ context.Context, id int64, to board.Status, actor board.Actor) (*board.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.getLocked(id)
	if err != nil {
		return nil, err
	}
	if err := board.CheckTransition(current.Status, to, actor); err != nil {
		return nil, err
	}
	return s.setLocked(id, func(app *board.Application) {
		app.Status = to
	}), nil
}

func (s *Store) Stats(_ context.Context) (*board.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &board.Stats{ByStatus: make(map[board.Status]int, len(board.Statuses()))}
	for _, status := range board.Statuses() {
		stats.ByStatus[status] = 0
	}

	var (
		scored int
		sum    int
	)
	for _, app := range s.apps {
		stats.TotalApplications++
		stats.ByStatus[app.Status]++
		if app.AIScore != nil {
			scored++
			sum += *app.AIScore
		}
	}
	for _, job := range s.jobs {
		stats.TotalJobs++
		if job.Active() {
			stats.ActiveJobs++
		}
	}
	if scored > 0 {
		avg := float64(sum) / float64(scored)
		stats.AverageAIScore = &avg
	}
	return stats, nil
}

func (s *Store) getLocked(id int64) (*board.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, errors.Wrapf(board.ErrNotFound, "application %d", id)
	}
	if app.AIScore != nil {
		score := *app.AIScore
		app.AIScore = &score
	}
	if app.AIFeedback != nil {
		feedback := *app.AIFeedback
		app.AIFeedback = &feedback
	}
	if job, ok := s.jobs[app.JobID]; ok {
		app.JobTitle = job.Title
		app.JobLocation = job.Location
	}
	return &app, nil
}

func (s *Store) guardLocked(id int64, allowed ...board.Status) error {
	app, ok := s.apps[id]
	if !ok {
		return errors.Wrapf(board.ErrNotFound, "application %d", id)
	}
	for _, status := range allowed {
		if app.Status == status {
			return nil
		}
	}
	return errors.WithDetailf(board.ErrStale, "application %d is %s", id, app.Status)
}

func (s *Store) setLocked(id int64, mutate func(app *board.Application)) *board.Application {
	app := s.apps[id]
	mutate(&app)
	app.UpdatedAt = s.now()
	s.apps[id] = app
	out, _ := s.getLocked(id)
	return out
}
