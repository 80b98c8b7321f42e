package ai

import (
	"context"

	"github.com/spigell/jobboard/internal/board"
)

// Result is the parsed model verdict for one resume. Score is already clamped.
type Result struct {
	Score    int
	Feedback string
	Raw      string
}

// Evaluator scores a stored resume against a job.
type Evaluator interface {
	Evaluate(ctx context.Context, resumePath string, job *board.Job) (*Result, error)
}

// Available reports whether e can reach a model. Evaluators that do not say
// otherwise are assumed to be configured.
func Available(e Evaluator) bool {
	if e == nil {
		return false
	}
	if a, ok := e.(interface{ Available() bool }); ok {
		return a.Available()
	}
	return true
}
