package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "truncates and adds ellipsis",
			input:  "hello world",
			limit:  5,
			expect: "hello...",
		},
		{
			name:   "trims surrounding whitespace",
			input:  "  spaced  ",
			limit:  5,
			expect: "space...",
		},
		{
			name:   "model feedback preview",
			input:  `{"score": 8, "feedback": "Strong Go and SQL background."}`,
			limit:  24,
			expect: `{"score": 8, "feedback":...`,
		},
		{
			name:   "counts runes of non latin resume text",
			input:  "Résumé: Zoë Łukasiewicz, ingénieure",
			limit:  13,
			expect: "Résumé: Zoë Ł...",
		},
		{
			name:   "exact limit keeps prompt intact",
			input:  "Job Title: Backend Engineer",
			limit:  27,
			expect: "Job Title: Backend Engineer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
