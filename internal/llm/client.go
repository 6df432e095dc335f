// Package llm sends single-turn, non-streaming chat completions to an
// OpenAI-compatible endpoint (Groq by default) through langchaingo, with
// client-side rate limiting and retries on transient failures.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/codematrix/internal/config"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 1 * time.Second
	defaultBurst       = 5
)

var (
	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyCompletion is returned when the model produced no choices.
	ErrEmptyCompletion = errors.New("empty response from model")
)

// Completer produces a completion for a prompt.
type Completer interface {
	// Complete sends system framing and a user prompt as one request and
	// returns the model's text verbatim.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds client settings.
type Config struct {
	BaseURL           string
	Model             string
	APIKey            config.Secret
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
	RequestsPerMinute int
	MaxRetries        int
}

// FromSettings converts the loaded configuration section.
func FromSettings(s config.LLMConfig) Config {
	return Config{
		BaseURL:           s.BaseURL,
		Model:             s.Model,
		APIKey:            s.APIKey,
		Temperature:       s.Temperature,
		MaxTokens:         s.MaxTokens,
		Timeout:           s.Timeout.Duration(),
		RequestsPerMinute: s.RequestsPerMinute,
		MaxRetries:        s.MaxRetries,
	}
}

// Client implements Completer on top of a langchaingo model.
type Client struct {
	model       llms.Model
	config      Config
	limiter     *rate.Limiter
	baseBackoff time.Duration
	metrics     *Metrics
	logger      *zap.Logger
}

// New creates a client for the OpenAI-compatible API described by cfg.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey.Value()),
		openai.WithModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating openai client: %w", err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &Client{
		model:       model,
		config:      cfg,
		limiter:     rate.NewLimiter(limit, defaultBurst),
		baseBackoff: defaultBaseBackoff,
		metrics:     NewMetrics(logger),
		logger:      logger,
	}
}

func tracer() trace.Tracer { return otel.Tracer("codematrix.llm") }

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, system, prompt string) (text string, err error) {
	ctx, span := tracer().Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.config.Model),
		attribute.Int("llm.prompt_chars", len(system)+len(prompt)),
	)

	start := time.Now()
	defer func() {
		c.metrics.RecordCompletion(ctx, c.config.Model, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}

	messages := make([]llms.MessageContent, 0, 2)
	if system != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(c.config.Temperature)}
	if c.config.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(c.config.MaxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.baseBackoff * time.Duration(1<<(attempt-1))
			span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			c.logger.Debug("retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		resp, err := c.model.GenerateContent(ctx, messages, callOpts...)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", ErrEmptyCompletion
			}
			return resp.Choices[0].Content, nil
		}

		lastErr = err
		if !isRetryable(ctx, err) {
			return "", fmt.Errorf("completion failed: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable reports rate limiting, server errors and network failures.
func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "status code: 429") {
		return true
	}
	return strings.Contains(msg, "status code: 5")
}
