package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/gaborage/llmsdk/config"
	"github.com/gaborage/llmsdk/httpclient"
	"github.com/gaborage/llmsdk/logger"
	obtest "github.com/gaborage/llmsdk/observability/testing"
)

const testToken = "sk-test-token"

// syncBuffer lets the logger and assertions share a buffer across goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type capturedRequest struct {
	method string
	path   string
	header http.Header
	body   []byte
}

// apiServer answers every request with handler and records what it received.
type apiServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	hits     atomic.Int32
}

func newAPIServer(t *testing.T, handler http.HandlerFunc) *apiServer {
	t.Helper()
	s := &apiServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.requests = append(s.requests, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			header: r.Header.Clone(),
			body:   body,
		})
		s.mu.Unlock()
		s.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) last(t *testing.T) capturedRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.requests, "server received no requests")
	return s.requests[len(s.requests)-1]
}

func respondJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func newTestSDK(t *testing.T, srv *apiServer, token string, maxRetries int, log logger.Logger, opts ...Option) *SDK {
	t.Helper()
	if log == nil {
		log = logger.NewNop()
	}
	client := httpclient.NewBuilder(log).
		WithBaseURL(srv.URL).
		WithRetries(maxRetries).
		WithBackoff(time.Millisecond, 2*time.Millisecond).
		Build()
	return New(client, token, log, opts...)
}

const embeddingBody = `{
	"object": "list",
	"data": [{"object": "embedding", "index": 0, "embedding": [0.5, -0.5]}],
	"model": "text-embedding-ada-002",
	"usage": {"prompt_tokens": 1, "total_tokens": 1}
}`

func TestSDKEmbedding(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, embeddingBody))
	sdk := newTestSDK(t, srv, testToken, 0, nil)

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	resp, err := sdk.Embedding(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, Vector{0.5, -0.5}, resp.Data[0].Embedding)

	got := srv.last(t)
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, PathEmbeddings, got.path)
	assert.Equal(t, "Bearer "+testToken, got.header.Get(httpclient.HeaderAuthorization))
	assert.Equal(t, "application/json", got.header.Get(httpclient.HeaderContentType))
	assert.Equal(t, `{"input":"hello","model":"text-embedding-ada-002"}`, string(got.body))
}

func TestSDKEmptyTokenSendsNoAuthorization(t *testing.T) {
	audio := []byte("ID3-fake-mp3-bytes")
	srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(audio)
	})
	sdk := newTestSDK(t, srv, "", 0, nil)

	req, err := NewSpeechRequest("The quick brown fox jumped over the lazy dog.")
	require.NoError(t, err)

	out, err := sdk.Speech(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, audio, out)

	got := srv.last(t)
	assert.Equal(t, PathAudioSpeech, got.path)
	_, present := got.header[httpclient.HeaderAuthorization]
	assert.False(t, present, "no Authorization header without a token")
	assert.ElementsMatch(t, []string{"model", "input", "voice", "response_format"}, jsonKeys(t, got.body))
}

func TestSDKChatCompletion(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o-mini",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`))
	sdk := newTestSDK(t, srv, testToken, 0, nil)

	req, err := NewChatCompletionRequestBuilder("").AddMessage(RoleUser, "Hello").Build()
	require.NoError(t, err)

	resp, err := sdk.ChatCompletion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", resp.Content())
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, PathChatCompletions, srv.last(t).path)
}

func TestSDKCreateImage(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, `{
		"created": 1700000000,
		"data": [{"url": "https://images.example.com/otter.png", "revised_prompt": "An otter"}]
	}`))
	sdk := newTestSDK(t, srv, testToken, 0, nil)

	req, err := NewImageRequestBuilder("A cute baby sea otter").Build()
	require.NoError(t, err)

	resp, err := sdk.CreateImage(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "https://images.example.com/otter.png", resp.Data[0].URL)
	assert.Equal(t, `{"prompt":"A cute baby sea otter","model":"dall-e-3"}`, string(srv.last(t).body))
}

func TestSDKErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{name: "client error", status: http.StatusBadRequest},
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "server error", status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const body = `{"error":{"message":"nope","type":"invalid_request_error"}}`
			srv := newAPIServer(t, respondJSON(tt.status, body))

			var logs syncBuffer
			log := logger.NewWithWriter(&logs, "debug", false, nil)
			sdk := newTestSDK(t, srv, testToken, 0, log)

			req, err := NewEmbeddingRequest("hello")
			require.NoError(t, err)

			resp, err := sdk.Embedding(context.Background(), req)
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.True(t, httpclient.IsHTTPStatusError(err, tt.status))

			code, raw, ok := httpclient.HTTPStatus(err)
			require.True(t, ok)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, body, string(raw))

			output := logs.String()
			assert.Contains(t, output, `"level":"error"`)
			assert.Contains(t, output, "API request failed")
			assert.NotContains(t, output, testToken)
		})
	}
}

func TestSDKWhisperContentNegotiation(t *testing.T) {
	t.Run("json is decoded", func(t *testing.T) {
		srv := newAPIServer(t, respondJSON(http.StatusOK, `{"text":"hello world"}`))
		sdk := newTestSDK(t, srv, testToken, 0, nil)

		req, err := NewTranscriptionRequestBuilder([]byte("audio")).Build()
		require.NoError(t, err)

		resp, err := sdk.Whisper(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "hello world", resp.Text)

		got := srv.last(t)
		assert.Equal(t, PathAudioTranscriptions, got.path)
		assert.True(t, strings.HasPrefix(got.header.Get(httpclient.HeaderContentType), "multipart/form-data"))
	})

	t.Run("other formats are returned raw", func(t *testing.T) {
		const srt = "1\n00:00:00,000 --> 00:00:01,000\nhello world\n"
		srv := newAPIServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, srt)
		})
		sdk := newTestSDK(t, srv, testToken, 0, nil)

		for _, format := range []WhisperResponseFormat{WhisperFormatText, WhisperFormatSRT, WhisperFormatVerboseJSON} {
			req, err := NewTranslationRequestBuilder([]byte("audio")).WithResponseFormat(format).Build()
			require.NoError(t, err)

			resp, err := sdk.Whisper(context.Background(), req)
			require.NoError(t, err, string(format))
			assert.Equal(t, srt, resp.Text, string(format))
		}
		assert.Equal(t, PathAudioTranslations, srv.last(t).path)
	})
}

func TestSDKRetryGatedOnContentType(t *testing.T) {
	const maxRetries = 2

	t.Run("multipart is sent once", func(t *testing.T) {
		srv := newAPIServer(t, respondJSON(http.StatusInternalServerError, `{"error":"boom"}`))
		sdk := newTestSDK(t, srv, testToken, maxRetries, nil)

		req, err := NewTranscriptionRequestBuilder([]byte("audio")).Build()
		require.NoError(t, err)

		_, err = sdk.Whisper(context.Background(), req)
		assert.True(t, httpclient.IsHTTPStatusError(err, http.StatusInternalServerError))
		assert.Equal(t, int32(1), srv.hits.Load())
	})

	t.Run("json is retried", func(t *testing.T) {
		srv := newAPIServer(t, respondJSON(http.StatusInternalServerError, `{"error":"boom"}`))
		sdk := newTestSDK(t, srv, testToken, maxRetries, nil)

		req, err := NewEmbeddingRequest("hello")
		require.NoError(t, err)

		_, err = sdk.Embedding(context.Background(), req)
		assert.True(t, httpclient.IsHTTPStatusError(err, http.StatusInternalServerError))
		assert.Equal(t, int32(maxRetries+1), srv.hits.Load())
	})

	t.Run("json recovers after a 429", func(t *testing.T) {
		var calls atomic.Int32
		srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				respondJSON(http.StatusTooManyRequests, `{"error":"slow down"}`)(w, r)
				return
			}
			respondJSON(http.StatusOK, embeddingBody)(w, r)
		})
		sdk := newTestSDK(t, srv, testToken, maxRetries, nil)

		req, err := NewEmbeddingRequest("hello")
		require.NoError(t, err)

		resp, err := sdk.Embedding(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, resp.Data, 1)
		assert.Equal(t, int32(2), srv.hits.Load())

		// the retried attempt carries the full body
		assert.Equal(t, `{"input":"hello","model":"text-embedding-ada-002"}`, string(srv.last(t).body))
	})
}

func TestSDKDecodeError(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, `{"data": "not-a-list"`))
	sdk := newTestSDK(t, srv, testToken, 0, nil)

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	_, err = sdk.Embedding(context.Background(), req)
	require.Error(t, err)
	assert.True(t, httpclient.IsErrorType(err, httpclient.DecodeError))
	assert.False(t, httpclient.IsErrorType(err, httpclient.HTTPError))
}

func TestSDKTimeout(t *testing.T) {
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		respondJSON(http.StatusOK, embeddingBody)(w, r)
	})
	sdk := newTestSDK(t, srv, testToken, 0, nil, WithTimeout(50*time.Millisecond))
	assert.Equal(t, 50*time.Millisecond, sdk.Timeout())

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	start := time.Now()
	_, err = sdk.Embedding(context.Background(), req)
	require.Error(t, err)
	assert.True(t, httpclient.IsErrorType(err, httpclient.TimeoutError), "got %v", err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSDKRejectsBeforeSending(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, `{}`))
	sdk := newTestSDK(t, srv, testToken, 0, nil)
	ctx := context.Background()

	_, err := sdk.ChatCompletion(ctx, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))
	_, err = sdk.CreateImage(ctx, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))
	_, err = sdk.Speech(ctx, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))
	_, err = sdk.Whisper(ctx, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))
	_, err = sdk.Embedding(ctx, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))

	// descriptors built without their builder are validated on dispatch
	_, err = sdk.Speech(ctx, &SpeechRequest{Input: "hi"})
	require.Error(t, err)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.True(t, ve.HasField("model"))

	assert.Equal(t, int32(0), srv.hits.Load())
}

func TestSDKConcurrentCalls(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, embeddingBody))
	sdk := newTestSDK(t, srv, testToken, 1, nil)

	const calls = 16
	g, ctx := errgroup.WithContext(context.Background())
	for i := range calls {
		g.Go(func() error {
			req, err := NewEmbeddingRequest(fmt.Sprintf("input-%d", i))
			if err != nil {
				return err
			}
			_, err = sdk.Embedding(ctx, req)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(calls), srv.hits.Load())
}

func TestNewFromConfig(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, embeddingBody))

	cfg, err := config.LoadFromBytes([]byte(fmt.Sprintf(`
api:
  baseurl: %s/
  token: %s
  timeout: 5s
  retry:
    max: 1
    initial: 1ms
    ceiling: 2ms
`, srv.URL, testToken)))
	require.NoError(t, err)

	sdk, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, sdk.Timeout())

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)
	_, err = sdk.Embedding(context.Background(), req)
	require.NoError(t, err)

	got := srv.last(t)
	assert.Equal(t, PathEmbeddings, got.path)
	assert.Equal(t, "Bearer "+testToken, got.header.Get(httpclient.HeaderAuthorization))
	assert.NotEmpty(t, got.header.Get(httpclient.HeaderXRequestID))
}

func TestNewFromConfigRejectsInvalidConfig(t *testing.T) {
	_, err := NewFromConfig(nil, nil)
	assert.True(t, httpclient.IsErrorType(err, httpclient.ValidationError))

	cfg, err := config.LoadFromBytes([]byte("api:\n  baseurl: https://api.example.com/v1\n"))
	require.NoError(t, err)
	cfg.API.Timeout = 0

	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}

func TestSDKCallMetrics(t *testing.T) {
	var calls atomic.Int32
	srv := newAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			respondJSON(http.StatusOK, embeddingBody)(w, r)
			return
		}
		respondJSON(http.StatusBadRequest, `{"error":"bad"}`)(w, r)
	})
	mp := obtest.NewTestMeterProvider()
	sdk := newTestSDK(t, srv, testToken, 0, nil, WithMeterProvider(mp))

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	_, err = sdk.Embedding(context.Background(), req)
	require.NoError(t, err)
	_, err = sdk.Embedding(context.Background(), req)
	require.Error(t, err)

	rm := mp.Collect(t)
	obtest.AssertMetricValue(t, rm, metricCalls, 2)
	count, err := obtest.GetMetricHistogramCount(rm, metricCallDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestSDKCallMetricsCountDecodeFailure(t *testing.T) {
	srv := newAPIServer(t, respondJSON(http.StatusOK, `not json`))
	mp := obtest.NewTestMeterProvider()
	sdk := newTestSDK(t, srv, testToken, 0, nil, WithMeterProvider(mp))

	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	_, err = sdk.Embedding(context.Background(), req)
	require.True(t, httpclient.IsErrorType(err, httpclient.DecodeError))

	rm := mp.Collect(t)
	m := obtest.FindMetric(rm, metricCalls)
	require.NotNil(t, m)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)

	dp := sum.DataPoints[0]
	assert.Equal(t, int64(1), dp.Value)
	outcome, ok := dp.Attributes.Value(attribute.Key(attrOutcome))
	require.True(t, ok)
	assert.Equal(t, outcomeDecode, outcome.AsString())
	op, ok := dp.Attributes.Value(attribute.Key(attrOperation))
	require.True(t, ok)
	assert.Equal(t, "embeddings", op.AsString())
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, outcomeSuccess, outcomeOf(nil))
	assert.Equal(t, outcomeHTTPError, outcomeOf(httpclient.NewHTTPError("bad", 400, nil)))
	assert.Equal(t, outcomeDecode, outcomeOf(httpclient.NewDecodeError("EmbeddingResponse", nil, io.EOF)))
	assert.Equal(t, outcomeError, outcomeOf(httpclient.NewNetworkError("down", io.EOF)))
}

func TestOperationName(t *testing.T) {
	assert.Equal(t, "chat.completions", operationName(ChatCompletionRequest{}))
	assert.Equal(t, "images.generations", operationName(ImageRequest{}))
	assert.Equal(t, "audio.speech", operationName(SpeechRequest{}))
	assert.Equal(t, "audio.transcriptions", operationName(WhisperRequest{Type: WhisperTranscription}))
	assert.Equal(t, "audio.translations", operationName(WhisperRequest{Type: WhisperTranslation}))
	assert.Equal(t, "embeddings", operationName(EmbeddingRequest{}))
}

func TestErrorSummary(t *testing.T) {
	err := httpclient.NewHTTPError("ignored", http.StatusTooManyRequests, []byte(`{"error":"slow"}`))
	assert.Equal(t, `429 Too Many Requests: {"error":"slow"}`, ErrorSummary(err))

	plain := errors.New("connection refused")
	assert.Equal(t, "connection refused", ErrorSummary(plain))
}
