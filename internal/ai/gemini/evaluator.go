package gemini

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/ai"
	"github.com/spigell/jobboard/internal/board"
	"github.com/spigell/jobboard/internal/utils"
)

type backend interface {
	UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error)
	GenerateWithFile(ctx context.Context, fileURI, mimeType, prompt string) (string, error)
}

// Evaluator scores resumes with Gemini. A nil backend means no API key was
// configured and every call fails with ai.ErrServiceUnavailable.
type Evaluator struct {
	backend   backend
	logger    *zap.Logger
	maxLogLen int
	open      func(name string) (io.ReadCloser, error)
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

type verdict struct {
	Score    float64 `mapstructure:"score"`
	Feedback string  `mapstructure:"feedback"`
}

func NewEvaluator(b backend, logger *zap.Logger, maxLogLength int) *Evaluator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		backend:   b,
		logger:    logger,
		maxLogLen: maxLogLength,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
}

// Evaluate uploads the resume, asks the model for a verdict and returns it with a clamped score.
func (e *Evaluator) Evaluate(ctx context.Context, resumePath string, job *board.Job) (*ai.Result, error) {
	if e == nil || e.backend == nil {
		return nil, ai.ErrServiceUnavailable
	}
	if job == nil {
		return nil, ai.Fail(errors.New("job is required"), ai.ErrEvaluationFailed)
	}

	mimeType := ai.MIMEType(resumePath)

	f, err := e.open(resumePath)
	if err != nil {
		return nil, ai.Fail(errors.Wrap(err, "open resume"), ai.ErrUploadFailed)
	}
	defer f.Close()

	e.logger.Debug("uploading resume",
		zap.Int64("job_id", job.ID),
		zap.String("resume", filepath.Base(resumePath)),
		zap.String("mime_type", mimeType),
	)

	fileURI, err := e.backend.UploadFile(ctx, f, filepath.Base(resumePath), mimeType)
	if err != nil {
		return nil, ai.Fail(err, ai.ErrEvaluationFailed)
	}
	if fileURI == "" {
		return nil, ai.Fail(errors.New("file upload did not return a uri"), ai.ErrUploadFailed)
	}

	prompt := BuildPrompt(job)

	e.logger.Debug("gemini generate content request",
		zap.Int64("job_id", job.ID),
		zap.String("file_uri", fileURI),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.backend.GenerateWithFile(ctx, fileURI, mimeType, prompt)
	if err != nil {
		return nil, ai.Fail(err, ai.ErrEvaluationFailed)
	}

	e.logger.Debug("gemini generate content response",
		zap.Int64("job_id", job.ID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	if strings.TrimSpace(raw) == "" {
		return nil, ai.Fail(nil, ai.ErrEmptyResponse)
	}

	result, err := parseResponse(raw)
	if err != nil {
		return nil, ai.Fail(err, ai.ErrParse)
	}

	return result, nil
}

// Available reports whether a backend is configured.
func (e *Evaluator) Available() bool {
	return e != nil && e.backend != nil
}

// BuildPrompt renders the evaluation prompt for a job. The output depends only on the job fields.
func BuildPrompt(job *board.Job) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job Title: {{JOB_TITLE}}\nRequirements: {{JOB_REQUIREMENTS}}\nDescription: {{JOB_DESCRIPTION}}\nLocation: {{JOB_LOCATION}}\n\nJSON Response:"
	}

	replacer := strings.NewReplacer(
		"{{JOB_TITLE}}", strings.TrimSpace(job.Title),
		"{{JOB_REQUIREMENTS}}", strings.TrimSpace(job.Requirements),
		"{{JOB_DESCRIPTION}}", strings.TrimSpace(job.Description),
		"{{JOB_LOCATION}}", strings.TrimSpace(job.Location),
	)
	return replacer.Replace(template)
}

func parseResponse(raw string) (*ai.Result, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, errors.Wrap(err, "parse gemini response")
	}

	if err := checkShape(data); err != nil {
		return nil, err
	}

	var v verdict
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &v,
	})
	if err != nil {
		return nil, errors.Wrap(err, "build decoder")
	}
	if err := decoder.Decode(data); err != nil {
		return nil, errors.Wrap(err, "decode gemini response")
	}

	if math.IsNaN(v.Score) || math.IsInf(v.Score, 0) {
		return nil, errors.New("gemini response score is not a number")
	}

	return &ai.Result{
		Score:    clampScore(v.Score),
		Feedback: v.Feedback,
		Raw:      raw,
	}, nil
}

// checkShape accepts a numeric score, or a string holding one, and a string feedback.
func checkShape(data map[string]any) error {
	for _, key := range []string{"score", "feedback"} {
		if value, ok := data[key]; !ok || value == nil {
			return errors.Newf("gemini response is missing %q", key)
		}
	}

	switch score := data["score"].(type) {
	case float64:
	case string:
		if _, err := strconv.ParseFloat(score, 64); err != nil {
			return errors.Newf("gemini response score %q is not a number", score)
		}
	default:
		return errors.Newf("gemini response score has type %T", score)
	}

	if _, ok := data["feedback"].(string); !ok {
		return errors.Newf("gemini response feedback has type %T", data["feedback"])
	}
	return nil
}

func clampScore(score float64) int {
	score = math.Max(math.Min(math.Round(score), math.MaxInt32), math.MinInt32)
	return board.ClampScore(int(score))
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
