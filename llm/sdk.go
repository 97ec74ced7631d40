package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/llmsdk/config"
	"github.com/gaborage/llmsdk/httpclient"
	"github.com/gaborage/llmsdk/logger"
	"github.com/gaborage/llmsdk/observability"
)

// DefaultTimeout bounds a whole call, retries and backoff waits included
const DefaultTimeout = 30 * time.Second

// SDK dispatches request descriptors: it adds bearer auth, applies the call
// timeout, sends through the transport client and classifies the response.
// It holds no mutable state and is safe for concurrent use.
type SDK struct {
	client  httpclient.Doer
	token   string
	timeout time.Duration
	logger  logger.Logger
	metrics *callMetrics

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an SDK
type Option func(*SDK)

// WithTimeout overrides DefaultTimeout
func WithTimeout(d time.Duration) Option {
	return func(s *SDK) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMeterProvider records per-call counts and durations.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *SDK) {
		s.meterProvider = mp
	}
}

// WithObservability takes both providers from p. NewFromConfig also hands
// them to the transport client it builds, so spans and retry counters flow too.
func WithObservability(p observability.Provider) Option {
	return func(s *SDK) {
		if p == nil {
			return
		}
		s.tracerProvider = p.TracerProvider()
		s.meterProvider = p.MeterProvider()
	}
}

// New creates an SDK over client. An empty token sends no Authorization header.
func New(client httpclient.Doer, token string, log logger.Logger, opts ...Option) *SDK {
	s := newSDK(token, log, opts)
	s.client = client
	return s
}

func newSDK(token string, log logger.Logger, opts []Option) *SDK {
	if log == nil {
		log = logger.NewNop()
	}
	s := &SDK{
		token:   token,
		timeout: DefaultTimeout,
		logger:  log,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newCallMetrics(s.meterProvider, s.logger)
	return s
}

// NewFromConfig builds the transport client and SDK from loaded configuration.
// opts are applied after the configured timeout.
func NewFromConfig(cfg *config.Config, log logger.Logger, opts ...Option) (*SDK, error) {
	if cfg == nil {
		return nil, httpclient.NewValidationError("configuration cannot be nil", "config")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	s := newSDK(cfg.API.Token, log, append([]Option{WithTimeout(cfg.API.Timeout)}, opts...))

	builder := httpclient.NewBuilder(s.logger).
		WithBaseURL(cfg.API.BaseURL).
		WithRetries(cfg.API.Retry.Max).
		WithBackoff(cfg.API.Retry.Initial, cfg.API.Retry.Ceiling).
		WithPayloadLogging(cfg.Log.Payloads, cfg.Log.MaxPayloadBytes).
		WithW3CTrace(cfg.API.TraceContext)
	if s.tracerProvider != nil {
		builder = builder.WithTracerProvider(s.tracerProvider)
	}
	if s.meterProvider != nil {
		builder = builder.WithMeterProvider(s.meterProvider)
	}
	s.client = builder.Build()

	return s, nil
}

// Timeout returns the per-call deadline
func (s *SDK) Timeout() time.Duration {
	return s.timeout
}

// ChatCompletion sends a chat completion request.
func (s *SDK) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (_ *ChatCompletionResponse, err error) {
	if req == nil {
		return nil, httpclient.NewValidationError("request cannot be nil", "request")
	}
	defer s.observe(ctx, *req, time.Now(), &err)
	body, err := s.dispatch(ctx, *req)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ChatCompletionResponse](body)
}

// CreateImage generates images from a prompt.
func (s *SDK) CreateImage(ctx context.Context, req *ImageRequest) (_ *ImageResponse, err error) {
	if req == nil {
		return nil, httpclient.NewValidationError("request cannot be nil", "request")
	}
	defer s.observe(ctx, *req, time.Now(), &err)
	body, err := s.dispatch(ctx, *req)
	if err != nil {
		return nil, err
	}
	return decodeJSON[ImageResponse](body)
}

// Speech synthesizes audio and returns the raw bytes in the requested format.
func (s *SDK) Speech(ctx context.Context, req *SpeechRequest) (_ []byte, err error) {
	if req == nil {
		return nil, httpclient.NewValidationError("request cannot be nil", "request")
	}
	defer s.observe(ctx, *req, time.Now(), &err)
	return s.dispatch(ctx, *req)
}

// Whisper transcribes or translates audio. Only the json format is decoded;
// any other format is returned verbatim in WhisperResponse.Text.
func (s *SDK) Whisper(ctx context.Context, req *WhisperRequest) (_ *WhisperResponse, err error) {
	if req == nil {
		return nil, httpclient.NewValidationError("request cannot be nil", "request")
	}
	defer s.observe(ctx, *req, time.Now(), &err)
	body, err := s.dispatch(ctx, *req)
	if err != nil {
		return nil, err
	}
	if req.decodesJSON() {
		return decodeJSON[WhisperResponse](body)
	}
	return &WhisperResponse{Text: string(body)}, nil
}

// Embedding computes embedding vectors for the input.
func (s *SDK) Embedding(ctx context.Context, req *EmbeddingRequest) (_ *EmbeddingResponse, err error) {
	if req == nil {
		return nil, httpclient.NewValidationError("request cannot be nil", "request")
	}
	defer s.observe(ctx, *req, time.Now(), &err)
	body, err := s.dispatch(ctx, *req)
	if err != nil {
		return nil, err
	}
	return decodeJSON[EmbeddingResponse](body)
}

// validatable is implemented by every descriptor
type validatable interface {
	Validate() error
}

// observe records a finished call. It runs deferred so decode failures and
// decode time are part of the observation.
func (s *SDK) observe(ctx context.Context, descriptor IntoRequest, start time.Time, err *error) {
	s.metrics.record(ctx, operationName(descriptor), time.Since(start), *err)
}

// dispatch runs one logical call and returns the body of a non-error response.
func (s *SDK) dispatch(ctx context.Context, descriptor IntoRequest) ([]byte, error) {
	if v, ok := descriptor.(validatable); ok {
		if err := v.Validate(); err != nil {
			return nil, httpclient.WrapValidationError("invalid request", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := descriptor.BuildRequest(ctx, s.client.BaseURL())
	if err != nil {
		return nil, err
	}
	if s.token != "" {
		req.Header.Set(httpclient.HeaderAuthorization, "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, httpclient.NewTimeoutError("reading response body", s.timeout)
		}
		return nil, httpclient.NewNetworkError("failed to read response body", err)
	}

	if httpclient.IsErrorStatus(resp.StatusCode) {
		text := string(body)
		s.logger.Error().
			Int("status", resp.StatusCode).
			Str("path", req.URL.Path).
			Str("body", text).
			Msg("API request failed")
		return nil, httpclient.NewHTTPError(text, resp.StatusCode, body)
	}
	return body, nil
}

func decodeJSON[T any](body []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, httpclient.NewDecodeError(fmt.Sprintf("%T", out), body, err)
	}
	return &out, nil
}

var (
	_ IntoRequest     = ChatCompletionRequest{}
	_ IntoRequest     = ImageRequest{}
	_ IntoRequest     = SpeechRequest{}
	_ IntoRequest     = WhisperRequest{}
	_ IntoRequest     = EmbeddingRequest{}
	_ httpclient.Doer = (*httpclient.Client)(nil)
)

// ErrorSummary renders a failed call for humans: status line and body for HTTP errors
func ErrorSummary(err error) string {
	if code, body, ok := httpclient.HTTPStatus(err); ok {
		return fmt.Sprintf("%d %s: %s", code, http.StatusText(code), body)
	}
	return err.Error()
}
