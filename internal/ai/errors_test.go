package ai

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestFailMarksKindAndUmbrella(t *testing.T) {
	t.Parallel()

	for _, kind := range []error{ErrUploadFailed, ErrEmptyResponse, ErrParse, ErrEvaluationFailed} {
		err := Fail(errors.New("boom"), kind)
		if !errors.Is(err, kind) {
			t.Fatalf("expected %v to be marked with its kind", kind)
		}
		if !errors.Is(err, ErrEvaluationFailed) {
			t.Fatalf("expected %v to collapse into ErrEvaluationFailed", kind)
		}
	}

	if errors.Is(ErrServiceUnavailable, ErrEvaluationFailed) {
		t.Fatalf("service unavailable must not count as an evaluation failure")
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrServiceUnavailable, "service_unavailable"},
		{Fail(nil, ErrUploadFailed), "upload_failed"},
		{Fail(errors.New("x"), ErrEmptyResponse), "empty_response"},
		{Fail(errors.New("x"), ErrParse), "parse_error"},
		{Fail(errors.Wrap(context.DeadlineExceeded, "generate"), ErrEvaluationFailed), "timeout"},
		{Fail(errors.New("503"), ErrEvaluationFailed), "evaluation_failed"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Fatalf("Kind(%v): expected %q, got %q", tt.err, tt.want, got)
		}
	}
}

func TestMIMEType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"/uploads/cv.pdf":     "application/pdf",
		"/uploads/CV.DOC":     "application/msword",
		"resume.docx":         "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"resume.rtf":          DefaultMIMEType,
		"no-extension-at-all": DefaultMIMEType,
	}

	for path, want := range tests {
		if got := MIMEType(path); got != want {
			t.Fatalf("MIMEType(%q): expected %q, got %q", path, want, got)
		}
	}
}
