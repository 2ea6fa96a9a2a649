package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/postpilot/postpilot/pkg/observability"
)

// Sentinel errors for model routing.
var (
	// ErrChainExhausted indicates every model in the fallback chain failed.
	ErrChainExhausted = errors.New("all models in fallback chain failed")

	// ErrEmptyChain indicates the router was constructed without models.
	ErrEmptyChain = errors.New("model chain is empty")
)

// SchemaError indicates model output that failed schema validation.
// It is treated like any other call failure for retry/fallback purposes.
type SchemaError struct {
	Model    string
	Problems []string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("model %s output failed schema validation: %s",
		e.Model, strings.Join(e.Problems, "; "))
}

// Request describes a generation request.
// Temperature and MaxTokens override the router defaults when set.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Router issues generation requests against an ordered model chain:
// one primary model followed by fallbacks. Each model is attempted up to
// maxRetries times with exponential backoff; the first success wins.
// The router holds no per-call state and is safe for concurrent use.
type Router struct {
	backend     Backend
	chain       []string
	temperature float64
	maxTokens   int
	maxRetries  int
	backoffUnit time.Duration
	logger      *slog.Logger
	metrics     observability.MetricsRecorder

	// sleep is replaceable in tests to assert backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithTemperature sets the default generation temperature.
// Default: 0.7
func WithTemperature(t float64) RouterOption {
	return func(r *Router) {
		r.temperature = t
	}
}

// WithMaxTokens sets the default token limit.
// Default: 2000
func WithMaxTokens(n int) RouterOption {
	return func(r *Router) {
		r.maxTokens = n
	}
}

// WithBackoffUnit sets the backoff time unit. Attempt n sleeps 2^n units
// after failing. Default: 1s.
func WithBackoffUnit(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.backoffUnit = d
		}
	}
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithRouterMetrics sets the metrics recorder.
func WithRouterMetrics(m observability.MetricsRecorder) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// maxRetries is fixed: three attempts per model before advancing the chain.
const maxRetries = 3

// NewRouter creates a router over the given chain (primary first).
func NewRouter(backend Backend, chain []string, opts ...RouterOption) (*Router, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	r := &Router{
		backend:     backend,
		chain:       append([]string(nil), chain...),
		temperature: 0.7,
		maxTokens:   2000,
		maxRetries:  maxRetries,
		backoffUnit: time.Second,
		logger:      slog.Default(),
		metrics:     observability.NoopMetrics{},
	}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Chain returns a copy of the configured model chain.
func (r *Router) Chain() []string {
	return append([]string(nil), r.chain...)
}

// Generate produces free text for the request, walking the fallback chain.
func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	var result string
	err := r.run(ctx, req, func(_ string, raw string) error {
		result = raw
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// GenerateStructured produces a value validated against the caller's JSON
// Schema and unmarshals it into out. A validation failure counts as a call
// failure: the attempt is retried and, eventually, the next model is tried.
func (r *Router) GenerateStructured(ctx context.Context, req Request, schema []byte, out any) error {
	schemaLoader := gojsonschema.NewBytesLoader(schema)

	return r.run(ctx, req, func(model string, raw string) error {
		doc := extractJSON(raw)

		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(doc))
		if err != nil {
			return &SchemaError{Model: model, Problems: []string{err.Error()}}
		}
		if !result.Valid() {
			problems := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				problems = append(problems, desc.String())
			}
			return &SchemaError{Model: model, Problems: problems}
		}

		if err := json.Unmarshal([]byte(doc), out); err != nil {
			return &SchemaError{Model: model, Problems: []string{err.Error()}}
		}
		return nil
	})
}

// run walks the chain, retrying each model and applying accept to raw output.
// An error from accept is indistinguishable from a transport failure.
func (r *Router) run(ctx context.Context, req Request, accept func(model, raw string) error) error {
	var lastErr error

	for i, model := range r.chain {
		if i > 0 {
			observability.LogModelFallback(r.logger, r.chain[i-1], model)
		}

		err := r.callWithRetry(ctx, model, req, accept)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("model chain aborted: %w", ctx.Err())
		}
	}

	return fmt.Errorf("%w (last error: %v)", ErrChainExhausted, lastErr)
}

// callWithRetry attempts a single model up to maxRetries times.
// After failed attempt n (0-indexed) it sleeps 2^n backoff units;
// there is no sleep after the final attempt.
func (r *Router) callWithRetry(ctx context.Context, model string, req Request, accept func(model, raw string) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		raw, err := r.backend.Complete(ctx, r.resolve(model, req))
		if err == nil {
			err = accept(model, raw)
		}

		observability.LogModelAttempt(r.logger, model, attempt+1, err)
		r.metrics.RecordModelAttempt(ctx, model, err == nil)

		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < r.maxRetries-1 {
			backoff := r.backoffUnit * (1 << attempt)
			if sleepErr := r.sleep(ctx, backoff); sleepErr != nil {
				return fmt.Errorf("backoff interrupted: %w", sleepErr)
			}
		}
	}

	return lastErr
}

// resolve builds the backend request, applying router defaults.
func (r *Router) resolve(model string, req Request) ModelRequest {
	temperature := r.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := r.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})

	return ModelRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
}

// extractJSON strips markdown code fences that models often wrap around
// JSON output.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
