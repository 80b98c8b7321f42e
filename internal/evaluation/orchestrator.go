// Package evaluation drives an application from pending to a decided status.
package evaluation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/ai"
	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/logger"
)

const (
	DefaultScoreThreshold = 5
	DefaultTimeout        = 45 * time.Second

	leaseGrace = 30 * time.Second
)

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	GetJob(ctx context.Context, id int64) (*board.Job, error)
	GetApplication(ctx context.Context, id int64) (*board.Application, error)
	ListApplications(ctx context.Context, filter board.ApplicationFilter) ([]board.Application, error)
	ClaimForEvaluation(ctx context.Context, id int64) (*board.Application, error)
	ReclaimStale(ctx context.Context, id int64, claimedBefore time.Time) (*board.Application, error)
	ReleaseClaim(ctx context.Context, id int64) error
	CompleteEvaluation(ctx context.Context, id int64, outcome board.Outcome) (*board.Application, error)
}

// Dispatcher schedules Run for an application in the background.
type Dispatcher interface {
	Dispatch(ctx context.Context, applicationID int64) error
}

type Config struct {
	// ScoreThreshold is the lowest score that still reaches HR.
	ScoreThreshold int
	// Timeout bounds a single evaluation including upload and generation.
	Timeout time.Duration
	// FailOpenWithoutKey sends applications to HR when no AI credential is set.
	// Otherwise they stay pending until one is configured.
	FailOpenWithoutKey bool
	// ClaimLease is how long an evaluating record belongs to the run that
	// claimed it. Only older claims are taken over. It never drops below Timeout.
	ClaimLease time.Duration
}

func (c *Config) Validate() error {
	if c.ScoreThreshold == 0 {
		c.ScoreThreshold = DefaultScoreThreshold
	}
	if c.ScoreThreshold < board.MinScore || c.ScoreThreshold > board.MaxScore {
		return errors.WithHintf(
			errors.Newf("score threshold %d is out of range", c.ScoreThreshold),
			"use a value between %d and %d", board.MinScore, board.MaxScore,
		)
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ClaimLease <= c.Timeout {
		c.ClaimLease = c.Timeout + leaseGrace
	}
	return nil
}

type Orchestrator struct {
	store     Store
	evaluator ai.Evaluator
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func New(store Store, evaluator ai.Evaluator, cfg Config, log *zap.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		store:     store,
		evaluator: evaluator,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}, nil
}

func (o *Orchestrator) Threshold() int { return o.cfg.ScoreThreshold }

func (o *Orchestrator) ClaimLease() time.Duration { return o.cfg.ClaimLease }

// Run evaluates one application. It is safe to call more than once: settled
// applications are left untouched, a live claim held by another run is left
// alone and only one completion is ever written.
func (o *Orchestrator) Run(ctx context.Context, applicationID int64) error {
	app, err := o.store.GetApplication(ctx, applicationID)
	if err != nil {
		return errors.Wrapf(err, "load application %d", applicationID)
	}

	log := logger.ForApplication(o.logger, app.ID, app.JobID)

	if app.Status.Settled() {
		log.Debug("application already evaluated", zap.String("status", app.Status.String()))
		return nil
	}

	available := ai.Available(o.evaluator)
	if !available && !o.cfg.FailOpenWithoutKey {
		if app.Status == board.StatusEvaluating {
			return o.release(ctx, app, log)
		}
		log.Info("ai service is not configured, application stays pending")
		return nil
	}

	job, err := o.store.GetJob(ctx, app.JobID)
	if err != nil {
		return errors.Wrapf(err, "load job %d", app.JobID)
	}

	if err := o.claim(ctx, app); err != nil {
		if errors.Is(err, board.ErrStale) {
			log.Debug("application is being evaluated elsewhere", zap.Error(err))
			return nil
		}
		return errors.Wrap(err, "claim application")
	}

	log.Info("evaluating application")

	var (
		result  *ai.Result
		evalErr error
	)
	if available {
		result, evalErr = o.evaluate(ctx, app.ResumePath, job)
	} else {
		evalErr = ai.ErrServiceUnavailable
	}

	if ctx.Err() != nil {
		// Shutting down: the record stays evaluating and is picked up by Recover.
		return errors.Wrap(ctx.Err(), "evaluation interrupted")
	}

	if errors.Is(evalErr, ai.ErrServiceUnavailable) && !o.cfg.FailOpenWithoutKey {
		log.Info("ai service is not configured, application returns to pending")
		return errors.Wrap(o.store.ReleaseClaim(ctx, app.ID), "release application")
	}

	outcome := o.decide(result, evalErr, log)

	completed, err := o.store.CompleteEvaluation(ctx, app.ID, outcome)
	if err != nil {
		if errors.Is(err, board.ErrStale) {
			log.Warn("evaluation outcome discarded, application changed concurrently", zap.Error(err))
			return nil
		}
		return errors.Wrap(err, "store evaluation outcome")
	}

	fields := []zap.Field{zap.String("status", completed.Status.String())}
	if completed.AIScore != nil {
		fields = append(fields, zap.Int("score", *completed.AIScore), zap.Int("threshold", o.cfg.ScoreThreshold))
	}
	log.Info("evaluation complete", fields...)
	return nil
}

// claim takes a pending record, or an evaluating one whose claim outlived the lease.
func (o *Orchestrator) claim(ctx context.Context, app *board.Application) error {
	var err error
	if app.Status == board.StatusEvaluating {
		_, err = o.store.ReclaimStale(ctx, app.ID, o.leaseCutoff())
	} else {
		_, err = o.store.ClaimForEvaluation(ctx, app.ID)
	}
	return err
}

// release returns an abandoned evaluating record to pending when no
// credential is configured, so it waits there instead of looping through recovery.
func (o *Orchestrator) release(ctx context.Context, app *board.Application, log *zap.Logger) error {
	if err := o.claim(ctx, app); err != nil {
		if errors.Is(err, board.ErrStale) {
			log.Debug("application is being evaluated elsewhere", zap.Error(err))
			return nil
		}
		return errors.Wrap(err, "reclaim application")
	}

	log.Info("ai service is not configured, abandoned evaluation returns to pending")
	return errors.Wrap(o.store.ReleaseClaim(ctx, app.ID), "release application")
}

func (o *Orchestrator) leaseCutoff() time.Time {
	return o.now().Add(-o.cfg.ClaimLease)
}

func (o *Orchestrator) claimExpired(app *board.Application) bool {
	return app.UpdatedAt.Before(o.leaseCutoff())
}

func (o *Orchestrator) evaluate(ctx context.Context, resumePath string, job *board.Job) (*ai.Result, error) {
	evalCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	result, err := o.evaluator.Evaluate(evalCtx, resumePath, job)
	if err == nil && result == nil {
		err = ai.Fail(nil, ai.ErrEmptyResponse)
	}
	return result, err
}

// decide turns a verdict into an outcome. Any client failure fails open.
func (o *Orchestrator) decide(result *ai.Result, evalErr error, log *zap.Logger) board.Outcome {
	if evalErr != nil {
		log.Warn("AI evaluation failed, sending application to review",
			zap.String("kind", ai.Kind(evalErr)),
			zap.Error(evalErr),
		)
		return board.Outcome{Status: board.StatusUnderReview}
	}

	score := board.ClampScore(result.Score)
	feedback := result.Feedback

	status := board.StatusRejected
	if score >= o.cfg.ScoreThreshold {
		status = board.StatusUnderReview
	}

	return board.Outcome{Status: status, Score: &score, Feedback: &feedback}
}

// Reevaluate re-dispatches an application that never finished evaluation.
func (o *Orchestrator) Reevaluate(ctx context.Context, applicationID int64, d Dispatcher) error {
	app, err := o.store.GetApplication(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != board.StatusPending && app.Status != board.StatusEvaluating {
		return errors.WithDetailf(board.ErrInvalidTransition,
			"application %d is %s and cannot be evaluated again", app.ID, app.Status)
	}
	if app.Status == board.StatusEvaluating && !o.claimExpired(app) {
		return errors.WithDetailf(board.ErrStale,
			"application %d is being evaluated since %s", app.ID, app.UpdatedAt.Format(time.RFC3339))
	}
	return errors.Wrap(d.Dispatch(ctx, app.ID), "dispatch evaluation")
}

// Recover re-dispatches applications left behind by a crash or by a missing
// credential. Evaluating records are picked up once their claim outlived the
// lease; pending ones only when an evaluation can actually make progress.
func (o *Orchestrator) Recover(ctx context.Context, d Dispatcher) (int, error) {
	statuses := []board.Status{board.StatusEvaluating}
	if ai.Available(o.evaluator) || o.cfg.FailOpenWithoutKey {
		statuses = append(statuses, board.StatusPending)
	}

	dispatched := 0
	for _, status := range statuses {
		apps, err := o.store.ListApplications(ctx, board.ApplicationFilter{Status: status})
		if err != nil {
			return dispatched, errors.Wrapf(err, "list %s applications", status)
		}

		for _, app := range apps {
			if app.Status == board.StatusEvaluating && !o.claimExpired(&app) {
				o.logger.Debug("evaluation still within its lease",
					zap.Int64(logger.FieldApplication, app.ID),
					zap.Time("claimed_at", app.UpdatedAt),
				)
				continue
			}
			if err := d.Dispatch(ctx, app.ID); err != nil {
				return dispatched, errors.Wrapf(err, "dispatch application %d", app.ID)
			}
			dispatched++
		}
	}

	if dispatched > 0 {
		o.logger.Info("recovered unfinished evaluations", zap.Int("count", dispatched))
	}
	return dispatched, nil
}
