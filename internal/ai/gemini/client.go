package gemini

import (
	"context"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/spigell/jobboard/internal/utils"
)

const (
	defaultModel       = "gemini-1.5-flash"
	defaultTemperature = 0.3
	jsonMIMEType       = "application/json"

	baseRetryDelay = time.Second
	maxRetryDelay  = 30 * time.Second
)

var wait = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*s`)

type fileUploader interface {
	Upload(ctx context.Context, r io.Reader, config *genai.UploadFileConfig) (*genai.File, error)
}

type contentModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config describes how to reach the Gemini API.
type Config struct {
	APIKey            string
	Model             string
	Temperature       float32
	MaxRetries        int
	RequestsPerMinute int
}

// Client talks to the Gemini Files and Models endpoints.
type Client struct {
	files       fileUploader
	models      contentModels
	model       string
	temperature float32
	maxRetries  int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewClient creates a Client configured for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	return newClient(client.Files, client.Models, cfg, logger), nil
}

func newClient(files fileUploader, models contentModels, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}

	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Client{
		files:       files,
		models:      models,
		model:       model,
		temperature: temperature,
		maxRetries:  retries,
		limiter:     limiter,
		logger:      logger,
	}
}

// UploadFile stores the document with the Files API and returns its URI.
func (c *Client) UploadFile(ctx context.Context, r io.Reader, displayName, mimeType string) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", err
	}

	file, err := c.files.Upload(ctx, r, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return "", errors.Wrap(err, "upload file")
	}
	if file == nil {
		return "", nil
	}

	if uri := strings.TrimSpace(file.URI); uri != "" {
		return uri, nil
	}
	return strings.TrimSpace(file.Name), nil
}

// GenerateWithFile asks the model to answer prompt about the uploaded file, expecting JSON.
// Transient API errors are retried with exponential backoff.
func (c *Client) GenerateWithFile(ctx context.Context, fileURI, mimeType, prompt string) (string, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{FileData: &genai.FileData{FileURI: fileURI, MIMEType: mimeType}},
			{Text: prompt},
		},
	}}

	temperature := c.temperature
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: jsonMIMEType,
	}

	return c.generate(ctx, contents, config)
}

// Ping sends a tiny prompt to check the key and model.
func (c *Client) Ping(ctx context.Context) (string, error) {
	temperature := float32(0.7)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: 50,
	}
	return c.generate(ctx, genai.Text(`Say "Gemini is working!" in a friendly way.`), config)
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Client) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.throttle(ctx); err != nil {
			return "", err
		}

		resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
		if err == nil {
			return responseText(resp), nil
		}
		lastErr = err

		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == c.maxRetries {
			break
		}

		c.logger.Warn("gemini request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return "", errors.Wrap(err, "waiting before retry")
		}
	}

	return "", errors.Wrap(lastErr, "generate content")
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return errors.Wrap(c.limiter.Wait(ctx), "rate limit")
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

// retryDelay decides whether err is worth another attempt and how long to wait first.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	code, message, ok := apiErrorDetails(err)
	if !ok {
		return 0, false
	}

	if code != http.StatusTooManyRequests && code < http.StatusInternalServerError {
		return 0, false
	}

	backoff := time.Duration(float64(baseRetryDelay) * math.Pow(2, float64(attempt)))

	if match := retryAfterPattern.FindStringSubmatch(message); len(match) == 2 {
		seconds, parseErr := strconv.ParseFloat(match[1], 64)
		if parseErr == nil {
			requested := time.Duration(seconds * float64(time.Second))
			if requested > maxRetryDelay {
				return 0, false
			}
			if requested > backoff {
				backoff = requested
			}
		}
	}

	if backoff > maxRetryDelay {
		backoff = maxRetryDelay
	}
	return backoff, true
}

func apiErrorDetails(err error) (int, string, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Message, true
	}
	return 0, "", false
}
