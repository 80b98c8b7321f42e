package evaluation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobboard/internal/ai"
	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/store/memory"
)

type stubEvaluator struct {
	result      *ai.Result
	err         error
	unavailable bool
	block       bool
	calls       atomic.Int32
}

func (s *stubEvaluator) Evaluate(ctx context.Context, _ string, _ *board.Job) (*ai.Result, error) {
	s.calls.Add(1)
	if s.block {
		<-ctx.Done()
		return nil, ai.Fail(ctx.Err(), ai.ErrEvaluationFailed)
	}
	return s.result, s.err
}

func (s *stubEvaluator) Available() bool { return !s.unavailable }

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []int64
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

func setup(t *testing.T, eval ai.Evaluator, cfg Config) (*Orchestrator, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()

	s := memory.New()
	job := &board.Job{Title: "Backend Engineer", Description: "APIs", Requirements: "Go", Location: "Remote"}
	require.NoError(t, s.CreateJob(ctx, job))
	app := &board.Application{JobID: job.ID, FullName: "Ada", Email: "ada@example.com", ResumePath: "uploads/cv.pdf"}
	require.NoError(t, s.CreateApplication(ctx, app))

	o, err := New(s, eval, cfg, zap.NewNop())
	require.NoError(t, err)
	return o, s, app.ID
}

// expireClaims moves the orchestrator clock past the claim lease.
func expireClaims(o *Orchestrator) {
	lease := o.ClaimLease()
	o.now = func() time.Time { return time.Now().Add(2 * lease) }
}

func verdict(score int, feedback string) *stubEvaluator {
	return &stubEvaluator{result: &ai.Result{Score: score, Feedback: feedback}}
}

func load(t *testing.T, s *memory.Store, id int64) *board.Application {
	t.Helper()
	app, err := s.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app
}

func TestRunHighScoreGoesToReview(t *testing.T) {
	o, s, id := setup(t, verdict(8, "Strong match."), Config{})

	require.NoError(t, o.Run(context.Background(), id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	require.NotNil(t, app.AIScore)
	assert.Equal(t, 8, *app.AIScore)
	require.NotNil(t, app.AIFeedback)
	assert.Equal(t, "Strong match.", *app.AIFeedback)
}

func TestRunLowScoreIsRejected(t *testing.T) {
	o, s, id := setup(t, verdict(3, "Not enough experience."), Config{})

	require.NoError(t, o.Run(context.Background(), id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusRejected, app.Status)
	require.NotNil(t, app.AIScore)
	assert.Equal(t, 3, *app.AIScore)
	assert.Equal(t, "Not enough experience.", *app.AIFeedback)
}

func TestRunThresholdBoundary(t *testing.T) {
	tests := []struct {
		score     int
		threshold int
		want      board.Status
	}{
		{score: 5, threshold: 5, want: board.StatusUnderReview},
		{score: 4, threshold: 5, want: board.StatusRejected},
		{score: 7, threshold: 8, want: board.StatusRejected},
		{score: 1, threshold: 1, want: board.StatusUnderReview},
		{score: 10, threshold: 10, want: board.StatusUnderReview},
	}

	for _, tt := range tests {
		o, s, id := setup(t, verdict(tt.score, "x"), Config{ScoreThreshold: tt.threshold})
		require.NoError(t, o.Run(context.Background(), id))
		assert.Equal(t, tt.want, load(t, s, id).Status, "score %d threshold %d", tt.score, tt.threshold)
	}
}

func TestRunClampsOutOfRangeScore(t *testing.T) {
	o, s, id := setup(t, verdict(13, "x"), Config{})
	require.NoError(t, o.Run(context.Background(), id))
	assert.Equal(t, board.MaxScore, *load(t, s, id).AIScore)

	o, s, id = setup(t, verdict(0, "x"), Config{})
	require.NoError(t, o.Run(context.Background(), id))
	app := load(t, s, id)
	assert.Equal(t, board.MinScore, *app.AIScore)
	assert.Equal(t, board.StatusRejected, app.Status)
}

func TestRunFailsOpen(t *testing.T) {
	for _, kind := range []error{ai.ErrUploadFailed, ai.ErrEmptyResponse, ai.ErrParse, ai.ErrEvaluationFailed} {
		eval := &stubEvaluator{err: ai.Fail(errors.New("boom"), kind)}
		o, s, id := setup(t, eval, Config{})

		require.NoError(t, o.Run(context.Background(), id))

		app := load(t, s, id)
		assert.Equal(t, board.StatusUnderReview, app.Status, "kind %v", kind)
		assert.Nil(t, app.AIScore)
		assert.Nil(t, app.AIFeedback)
	}
}

func TestRunNilResultFailsOpen(t *testing.T) {
	o, s, id := setup(t, &stubEvaluator{}, Config{})

	require.NoError(t, o.Run(context.Background(), id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	assert.Nil(t, app.AIScore)
}

func TestRunTimeoutFailsOpen(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)
	eval := &stubEvaluator{block: true}
	o, s, id := setup(t, eval, Config{Timeout: 10 * time.Millisecond})
	o.logger = zap.New(core)

	require.NoError(t, o.Run(context.Background(), id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	assert.Nil(t, app.AIScore)

	entries := observed.FilterMessage("AI evaluation failed, sending application to review").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "timeout", entries[0].ContextMap()["kind"])
}

func TestRunWithoutCredentialStaysPending(t *testing.T) {
	eval := &stubEvaluator{unavailable: true}
	o, s, id := setup(t, eval, Config{})

	require.NoError(t, o.Run(context.Background(), id))

	assert.Equal(t, board.StatusPending, load(t, s, id).Status)
	assert.Zero(t, eval.calls.Load(), "no call may be attempted without a credential")
}

func TestRunWithoutEvaluatorStaysPending(t *testing.T) {
	o, s, id := setup(t, nil, Config{})

	require.NoError(t, o.Run(context.Background(), id))
	assert.Equal(t, board.StatusPending, load(t, s, id).Status)
}

func TestRunWithoutCredentialFailOpenPolicy(t *testing.T) {
	eval := &stubEvaluator{unavailable: true}
	o, s, id := setup(t, eval, Config{FailOpenWithoutKey: true})

	require.NoError(t, o.Run(context.Background(), id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	assert.Nil(t, app.AIScore)
	assert.Zero(t, eval.calls.Load())
}

func TestRunServiceUnavailableReleasesClaim(t *testing.T) {
	eval := &stubEvaluator{err: ai.ErrServiceUnavailable}
	o, s, id := setup(t, eval, Config{})

	require.NoError(t, o.Run(context.Background(), id))
	assert.Equal(t, board.StatusPending, load(t, s, id).Status)
}

func TestRunIsIdempotent(t *testing.T) {
	eval := verdict(9, "Great.")
	o, s, id := setup(t, eval, Config{})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, id))
	first := load(t, s, id)

	eval.result = &ai.Result{Score: 2, Feedback: "changed"}
	require.NoError(t, o.Run(ctx, id))

	second := load(t, s, id)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, *first.AIScore, *second.AIScore)
	assert.Equal(t, *first.AIFeedback, *second.AIFeedback)
	assert.Equal(t, int32(1), eval.calls.Load())
}

func TestRunLeavesHRDecisionAlone(t *testing.T) {
	eval := verdict(9, "Great.")
	o, s, id := setup(t, eval, Config{})
	ctx := context.Background()

	require.NoError(t, o.Run(ctx, id))
	_, err := s.UpdateStatus(ctx, id, board.StatusAccepted, board.ActorHR)
	require.NoError(t, err)

	require.NoError(t, o.Run(ctx, id))
	assert.Equal(t, board.StatusAccepted, load(t, s, id).Status)
	assert.Equal(t, int32(1), eval.calls.Load())
}

func TestRunConcurrentlyCompletesOnce(t *testing.T) {
	eval := verdict(6, "ok")
	o, s, id := setup(t, eval, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Run(context.Background(), id))
		}()
	}
	wg.Wait()

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	assert.Equal(t, 6, *app.AIScore)
	assert.Equal(t, int32(1), eval.calls.Load(), "the model must be asked once")
}

func TestRunDoesNotTakeOverLiveEvaluation(t *testing.T) {
	eval := &stubEvaluator{block: true}
	o, s, id := setup(t, eval, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx, id) }()

	require.Eventually(t, func() bool { return eval.calls.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, board.StatusEvaluating, load(t, s, id).Status)

	// A redelivery or an HR re-evaluation while the first run is still busy.
	err := o.Reevaluate(context.Background(), id, &recordingDispatcher{})
	assert.True(t, errors.Is(err, board.ErrStale), "expected in-progress conflict, got %v", err)
	require.NoError(t, o.Run(context.Background(), id))
	assert.Equal(t, int32(1), eval.calls.Load())

	cancel()
	require.Error(t, <-done)
}

func TestRunTakesOverExpiredClaim(t *testing.T) {
	eval := verdict(7, "Recovered.")
	o, s, id := setup(t, eval, Config{})
	ctx := context.Background()

	_, err := s.ClaimForEvaluation(ctx, id)
	require.NoError(t, err)

	require.NoError(t, o.Run(ctx, id))
	assert.Equal(t, board.StatusEvaluating, load(t, s, id).Status)
	assert.Zero(t, eval.calls.Load())

	expireClaims(o)
	require.NoError(t, o.Run(ctx, id))

	app := load(t, s, id)
	assert.Equal(t, board.StatusUnderReview, app.Status)
	assert.Equal(t, 7, *app.AIScore)
	assert.Equal(t, int32(1), eval.calls.Load())
}

func TestRunWithoutCredentialReleasesAbandonedClaim(t *testing.T) {
	eval := &stubEvaluator{unavailable: true}
	o, s, id := setup(t, eval, Config{})
	ctx := context.Background()

	_, err := s.ClaimForEvaluation(ctx, id)
	require.NoError(t, err)

	require.NoError(t, o.Run(ctx, id))
	assert.Equal(t, board.StatusEvaluating, load(t, s, id).Status, "a live claim is left alone")

	expireClaims(o)
	require.NoError(t, o.Run(ctx, id))
	assert.Equal(t, board.StatusPending, load(t, s, id).Status)
	assert.Zero(t, eval.calls.Load())

	d := &recordingDispatcher{}
	n, err := o.Recover(ctx, d)
	require.NoError(t, err)
	assert.Zero(t, n, "pending records wait for a credential")
}

func TestRunInterruptedStaysEvaluating(t *testing.T) {
	eval := &stubEvaluator{block: true}
	o, s, id := setup(t, eval, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := o.Run(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, board.StatusEvaluating, load(t, s, id).Status)

	d := &recordingDispatcher{}
	n, err := o.Recover(context.Background(), d)
	require.NoError(t, err)
	assert.Zero(t, n, "claim is still within its lease")

	expireClaims(o)
	n, err = o.Recover(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{id}, d.ids)
}

func TestRecoverSkipsPendingWithoutCredential(t *testing.T) {
	o, s, id := setup(t, &stubEvaluator{unavailable: true}, Config{})
	ctx := context.Background()

	stuck := &board.Application{JobID: 1, FullName: "Grace", Email: "g@example.com", ResumePath: "g.pdf"}
	require.NoError(t, s.CreateApplication(ctx, stuck))
	_, err := s.ClaimForEvaluation(ctx, stuck.ID)
	require.NoError(t, err)
	expireClaims(o)

	d := &recordingDispatcher{}
	n, err := o.Recover(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{stuck.ID}, d.ids)
	assert.NotContains(t, d.ids, id)
}

func TestRecoverIncludesPendingWhenConfigured(t *testing.T) {
	o, _, id := setup(t, verdict(7, "x"), Config{})

	d := &recordingDispatcher{}
	n, err := o.Recover(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{id}, d.ids)
}

func TestReevaluate(t *testing.T) {
	o, _, id := setup(t, verdict(7, "x"), Config{})
	ctx := context.Background()
	d := &recordingDispatcher{}

	require.NoError(t, o.Reevaluate(ctx, id, d))
	assert.Equal(t, []int64{id}, d.ids)

	require.NoError(t, o.Run(ctx, id))
	err := o.Reevaluate(ctx, id, d)
	assert.True(t, errors.Is(err, board.ErrInvalidTransition))

	err = o.Reevaluate(ctx, 404, d)
	assert.True(t, errors.Is(err, board.ErrNotFound))
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultScoreThreshold, cfg.ScoreThreshold)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultTimeout+leaseGrace, cfg.ClaimLease)

	cfg = Config{Timeout: time.Minute, ClaimLease: time.Second}
	require.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.ClaimLease, cfg.Timeout)

	for _, threshold := range []int{-1, 11} {
		cfg := Config{ScoreThreshold: threshold}
		assert.Error(t, cfg.Validate(), "threshold %d", threshold)
	}
}
