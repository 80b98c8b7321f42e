package ai

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrServiceUnavailable means no credential is configured and nothing was sent.
	ErrServiceUnavailable = errors.New("ai service is not configured")

	// ErrEvaluationFailed is the umbrella every other failure kind is marked with.
	ErrEvaluationFailed = errors.New("evaluation failed")

	ErrUploadFailed  = errors.New("resume upload failed")
	ErrEmptyResponse = errors.New("empty response from model")
	ErrParse         = errors.New("unparseable model response")
)

// Fail marks err as an evaluation failure of the given kind.
func Fail(err error, kind error) error {
	if err == nil {
		err = kind
	}
	err = errors.Mark(err, kind)
	if kind != ErrEvaluationFailed {
		err = errors.Mark(err, ErrEvaluationFailed)
	}
	return err
}

// Kind names the most specific failure kind for logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrParse):
		return "parse_error"
	default:
		return "evaluation_failed"
	}
}
