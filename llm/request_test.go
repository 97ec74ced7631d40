package llm

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://api.example.com/v1"

func readBody(t *testing.T, req *http.Request) []byte {
	t.Helper()
	require.NotNil(t, req.Body)
	b, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	return b
}

func jsonKeys(t *testing.T, body []byte) []string {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

type formPart struct {
	name        string
	filename    string
	contentType string
	content     string
}

// multipartParts decodes the form parts of req in wire order.
func multipartParts(t *testing.T, req *http.Request) []formPart {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	reader := multipart.NewReader(strings.NewReader(string(readBody(t, req))), params["boundary"])
	var parts []formPart
	for {
		p, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(p)
		require.NoError(t, err)
		parts = append(parts, formPart{
			name:        p.FormName(),
			filename:    p.FileName(),
			contentType: p.Header.Get("Content-Type"),
			content:     string(content),
		})
	}
	return parts
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1/embeddings", endpoint(testBaseURL, PathEmbeddings))
	assert.Equal(t, "https://api.example.com/v1/embeddings", endpoint(testBaseURL+"/", PathEmbeddings))
}

func TestEmbeddingBuildRequest(t *testing.T) {
	req, err := NewEmbeddingRequest("hello")
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.True(t, strings.HasSuffix(httpReq.URL.Path, "/embeddings"))
	assert.Equal(t, "application/json", httpReq.Header.Get("Content-Type"))
	assert.Equal(t, `{"input":"hello","model":"text-embedding-ada-002"}`, string(readBody(t, httpReq)))
	assert.NotNil(t, httpReq.GetBody, "JSON bodies must be rewindable")
}

func TestEmbeddingBatchBuildRequest(t *testing.T) {
	req, err := NewEmbeddingRequestBuilder(BatchInput("a", "b")).
		WithModel("text-embedding-3-small").
		WithEncodingFormat(EncodingFormatBase64).
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"input":["a","b"],"model":"text-embedding-3-small","encoding_format":"base64"}`,
		string(readBody(t, httpReq)))
}

func TestImageBuildRequest(t *testing.T) {
	req, err := NewImageRequestBuilder("A cute baby sea otter").Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)

	assert.Equal(t, testBaseURL+PathImageGenerations, httpReq.URL.String())
	assert.Equal(t, `{"prompt":"A cute baby sea otter","model":"dall-e-3"}`, string(readBody(t, httpReq)))
}

func TestImageBuildRequestOptionalFields(t *testing.T) {
	req, err := NewImageRequestBuilder("otter").
		WithN(1).
		WithQuality(ImageQualityHD).
		WithSize(ImageSize1792x1024).
		WithStyle(ImageStyleNatural).
		WithResponseFormat(ImageResponseFormatB64JSON).
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"prompt":"otter","model":"dall-e-3","n":1,"quality":"hd",
		"response_format":"b64_json","size":"1792x1024","style":"natural"
	}`, string(readBody(t, httpReq)))
}

func TestSpeechBuildRequest(t *testing.T) {
	req, err := NewSpeechRequest("The quick brown fox jumped over the lazy dog.")
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)

	body := readBody(t, httpReq)
	assert.ElementsMatch(t, []string{"model", "input", "voice", "response_format"}, jsonKeys(t, body))
	assert.JSONEq(t, `{
		"model":"tts-1","input":"The quick brown fox jumped over the lazy dog.",
		"voice":"nova","response_format":"mp3"
	}`, string(body))
	assert.Equal(t, testBaseURL+PathAudioSpeech, httpReq.URL.String())
}

func TestChatBuildRequest(t *testing.T) {
	req, err := NewChatCompletionRequestBuilder("").
		WithSystemPrompt("You are terse.").
		AddMessage(RoleUser, "Hello").
		WithTemperature(0).
		WithMaxTokens(16).
		WithJSONResponse().
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)

	assert.Equal(t, testBaseURL+PathChatCompletions, httpReq.URL.String())
	assert.JSONEq(t, `{
		"model":"gpt-4o-mini",
		"messages":[{"role":"system","content":"You are terse."},{"role":"user","content":"Hello"}],
		"temperature":0,
		"max_tokens":16,
		"response_format":{"type":"json_object"}
	}`, string(readBody(t, httpReq)))
}

func TestChatBuildRequestWithTools(t *testing.T) {
	params := json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)
	req, err := NewChatCompletionRequestBuilder("gpt-4o").
		AddMessage(RoleUser, "Weather in Paris?").
		WithTools(NewFunctionTool("get_weather", "Current weather", params)).
		WithToolChoice("auto").
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)

	var decoded ChatCompletionRequest
	require.NoError(t, json.Unmarshal(readBody(t, httpReq), &decoded))
	require.Len(t, decoded.Tools, 1)
	assert.Equal(t, "function", decoded.Tools[0].Type)
	assert.Equal(t, "get_weather", decoded.Tools[0].Function.Name)
	assert.JSONEq(t, string(params), string(decoded.Tools[0].Function.Parameters))
	assert.Equal(t, "auto", decoded.ToolChoice)
}

func TestWhisperBuildRequestTranscription(t *testing.T) {
	audio := []byte("ID3\x00fake-mp3")
	req, err := NewTranscriptionRequestBuilder(audio).
		WithLanguage("en").
		WithPrompt("names: Ada").
		WithTemperature(0.2).
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+PathAudioTranscriptions, httpReq.URL.String())

	parts := multipartParts(t, httpReq)
	require.Len(t, parts, 6)
	assert.Equal(t, formPart{name: "file", filename: "file", contentType: "audio/mp3", content: string(audio)}, parts[0])
	assert.Equal(t, "model", parts[1].name)
	assert.Equal(t, DefaultWhisperModel, parts[1].content)
	assert.Equal(t, "response_format", parts[2].name)
	assert.Equal(t, "json", parts[2].content)
	assert.Equal(t, "language", parts[3].name)
	assert.Equal(t, "en", parts[3].content)
	assert.Equal(t, "prompt", parts[4].name)
	assert.Equal(t, "temperature", parts[5].name)
	assert.Equal(t, "0.2", parts[5].content)
}

func TestWhisperBuildRequestTranslationDropsLanguage(t *testing.T) {
	req, err := NewTranslationRequestBuilder([]byte("audio")).
		WithLanguage("de").
		WithResponseFormat(WhisperFormatText).
		Build()
	require.NoError(t, err)

	httpReq, err := req.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+PathAudioTranslations, httpReq.URL.String())

	names := make([]string, 0)
	for _, p := range multipartParts(t, httpReq) {
		names = append(names, p.name)
	}
	assert.Equal(t, []string{"file", "model", "response_format"}, names)
}

func TestBuildRequestIsIdempotent(t *testing.T) {
	speech, err := NewSpeechRequest("hi")
	require.NoError(t, err)
	embedding, err := NewEmbeddingRequest("hi")
	require.NoError(t, err)
	image, err := NewImageRequestBuilder("otter").Build()
	require.NoError(t, err)
	chat, err := NewChatCompletionRequestBuilder("").AddMessage(RoleUser, "hi").Build()
	require.NoError(t, err)

	descriptors := map[string]IntoRequest{
		"speech":    *speech,
		"embedding": *embedding,
		"image":     *image,
		"chat":      *chat,
	}
	for name, d := range descriptors {
		t.Run(name, func(t *testing.T) {
			first, err := d.BuildRequest(context.Background(), testBaseURL)
			require.NoError(t, err)
			second, err := d.BuildRequest(context.Background(), testBaseURL)
			require.NoError(t, err)

			assert.Equal(t, first.URL.String(), second.URL.String())
			assert.Equal(t, first.Header, second.Header)
			assert.Equal(t, readBody(t, first), readBody(t, second))
		})
	}

	t.Run("whisper", func(t *testing.T) {
		w, err := NewTranscriptionRequestBuilder([]byte("audio")).Build()
		require.NoError(t, err)
		first, err := w.BuildRequest(context.Background(), testBaseURL)
		require.NoError(t, err)
		second, err := w.BuildRequest(context.Background(), testBaseURL)
		require.NoError(t, err)

		assert.Equal(t, first.URL.String(), second.URL.String())
		assert.Equal(t, first.Header, second.Header)
		assert.Equal(t, readBody(t, first), readBody(t, second))
	})

	t.Run("whisper boundary follows content", func(t *testing.T) {
		a, err := NewTranscriptionRequestBuilder([]byte("audio")).Build()
		require.NoError(t, err)
		b, err := NewTranscriptionRequestBuilder([]byte("other audio")).Build()
		require.NoError(t, err)

		first, err := a.BuildRequest(context.Background(), testBaseURL)
		require.NoError(t, err)
		second, err := b.BuildRequest(context.Background(), testBaseURL)
		require.NoError(t, err)

		assert.NotEqual(t, first.Header.Get(headerContentType), second.Header.Get(headerContentType))
		assert.Len(t, multipartParts(t, first), len(multipartParts(t, second)))
	})
}

func TestBuildRequestDoesNotValidate(t *testing.T) {
	// An invalid descriptor still produces a request; validation is the dispatcher's job.
	httpReq, err := SpeechRequest{Input: "hi"}.BuildRequest(context.Background(), testBaseURL)
	require.NoError(t, err)
	assert.Contains(t, string(readBody(t, httpReq)), `"model":""`)
}
