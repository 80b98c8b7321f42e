package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStringFieldsSkipsBlanks(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  status ", Value: " under_review "},
		StringField{Key: "resume", Value: "   "},
		StringField{Key: "  ", Value: "orphan"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != "status" || fields[0].String != "under_review" {
		t.Fatalf("unexpected field: %+v", fields[0])
	}

	if got := StringFields(); len(got) != 0 {
		t.Fatalf("expected no fields, got %d", len(got))
	}
}

func TestWithFieldsNilLogger(t *testing.T) {
	l := WithFields(nil, zap.String("k", "v"))
	if l == nil {
		t.Fatal("expected fallback logger")
	}
	l.Info("does not panic")
}

func TestWithCommonFields(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	WithCommonFields(zap.New(core), "gemini", "gemini-1.5-flash").Info("ai ping")
	WithCommonFields(zap.New(core), "", "").Info("ai disabled")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldProvider] != "gemini" || ctx[FieldModel] != "gemini-1.5-flash" {
		t.Fatalf("unexpected fields: %+v", ctx)
	}

	if len(entries[1].Context) != 0 {
		t.Fatalf("expected empty provider and model to be skipped, got %+v", entries[1].Context)
	}
}

func TestForApplication(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	ForApplication(zap.New(core), 12, 3).Info("evaluating")
	ForApplication(zap.New(core), 12, 0).Info("no job")

	entries := observed.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldApplication] != int64(12) || ctx[FieldJob] != int64(3) {
		t.Fatalf("unexpected fields: %+v", ctx)
	}

	if _, ok := entries[1].ContextMap()[FieldJob]; ok {
		t.Fatal("expected zero job id to be skipped")
	}
}
