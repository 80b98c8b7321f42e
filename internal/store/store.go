// Package store defines the persistence contract shared by the sqlite and memory backends.
package store

import (
	"context"
	"time"

	"github.com/spigell/jobboard/internal/board"
)

// Jobs persists job postings.
type Jobs interface {
	CreateJob(ctx context.Context, job *board.Job) error
	GetJob(ctx context.Context, id int64) (*board.Job, error)
	ListJobs(ctx context.Context, activeOnly bool) ([]board.Job, error)
}

// Applications persists applications. Every status change is a conditional
// update on the current status, so concurrent writers cannot skip an edge.
type Applications interface {
	CreateApplication(ctx context.Context, app *board.Application) error
	GetApplication(ctx context.Context, id int64) (*board.Application, error)
	ListApplications(ctx context.Context, filter board.ApplicationFilter) ([]board.Application, error)

	// ClaimForEvaluation moves pending to evaluating. Any other status,
	// including evaluating, yields board.ErrStale. While a record is
	// evaluating its UpdatedAt is the claim time.
	ClaimForEvaluation(ctx context.Context, id int64) (*board.Application, error)
	// ReclaimStale takes over an evaluating record claimed before
	// claimedBefore and renews the claim. A fresher claim yields board.ErrStale.
	ReclaimStale(ctx context.Context, id int64, claimedBefore time.Time) (*board.Application, error)
	// ReleaseClaim returns an evaluating record to pending when nothing could be sent.
	ReleaseClaim(ctx context.Context, id int64) error
	// CompleteEvaluation writes the outcome of an evaluating record.
	CompleteEvaluation(ctx context.Context, id int64, outcome board.Outcome) (*board.Application, error)
	// UpdateStatus applies a transition taken by actor.
	UpdateStatus(ctx context.Context, id int64, to board.Status, actor board.Actor) (*board.Application, error)

	Stats(ctx context.Context) (*board.Stats, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	Jobs
	Applications
	Close() error
}
