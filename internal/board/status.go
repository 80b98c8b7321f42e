package board

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPending     Status = "pending"
	StatusEvaluating  Status = "evaluating"
	StatusUnderReview Status = "under_review"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
)

// Actor identifies who is allowed to take a transition.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorHR     Actor = "hr"
)

type edge struct {
	from Status
	to   Status
}

// transitions is the complete list of legal edges. Anything not listed here is rejected.
var transitions = map[edge]Actor{
	{StatusPending, StatusEvaluating}:     ActorSystem,
	{StatusEvaluating, StatusUnderReview}: ActorSystem,
	{StatusEvaluating, StatusRejected}:    ActorSystem,
	{StatusUnderReview, StatusAccepted}:   ActorHR,
	{StatusUnderReview, StatusRejected}:   ActorHR,
}

var allStatuses = []Status{
	StatusPending,
	StatusEvaluating,
	StatusUnderReview,
	StatusAccepted,
	StatusRejected,
}

// Statuses returns every known status in lifecycle order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a known status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", errors.Wrapf(ErrInvalidStatus, "%q", raw)
	}
	return s, nil
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Settled reports whether the orchestrator has nothing left to do for the status.
func (s Status) Settled() bool {
	return s == StatusUnderReview || s == StatusAccepted || s == StatusRejected
}

func (s Status) String() string { return string(s) }

// CanTransition reports whether actor may move an application from one status to another.
func CanTransition(from, to Status, actor Actor) bool {
	allowed, ok := transitions[edge{from, to}]
	return ok && allowed == actor
}

// CheckTransition is CanTransition returning a descriptive error.
func CheckTransition(from, to Status, actor Actor) error {
	if CanTransition(from, to, actor) {
		return nil
	}
	return errors.WithDetail(
		errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to),
		fmt.Sprintf("actor: %s", actor),
	)
}

// Targets lists the statuses actor may move an application to from the given status.
func Targets(from Status, actor Actor) []Status {
	var out []Status
	for _, to := range allStatuses {
		if CanTransition(from, to, actor) {
			out = append(out, to)
		}
	}
	return out
}
