package llm

import (
	"context"
	"net/http"
	"strconv"
)

const (
	DefaultWhisperModel = "whisper-1"

	whisperFileField    = "file"
	whisperFileName     = "file"
	whisperFileMIMEType = "audio/mp3"
)

// WhisperRequestType selects transcription (same language) or translation (to English)
type WhisperRequestType string

const (
	WhisperTranscription WhisperRequestType = "transcription"
	WhisperTranslation   WhisperRequestType = "translation"
)

// WhisperResponseFormat is the output format of a transcription or translation
type WhisperResponseFormat string

const (
	WhisperFormatJSON        WhisperResponseFormat = "json"
	WhisperFormatText        WhisperResponseFormat = "text"
	WhisperFormatSRT         WhisperResponseFormat = "srt"
	WhisperFormatVerboseJSON WhisperResponseFormat = "verbose_json"
	WhisperFormatVTT         WhisperResponseFormat = "vtt"
)

// WhisperRequest is the multipart descriptor for POST /audio/transcriptions and
// /audio/translations. Multipart requests are never retried.
type WhisperRequest struct {
	File           []byte                `json:"file" validate:"required,min=1"`
	Model          string                `json:"model" validate:"required"`
	Language       string                `json:"language,omitempty" validate:"omitempty,min=2,max=3"`
	Prompt         string                `json:"prompt,omitempty"`
	ResponseFormat WhisperResponseFormat `json:"response_format" validate:"required,oneof=json text srt verbose_json vtt"`
	Temperature    *float64              `json:"temperature,omitempty" validate:"omitempty,min=0,max=1"`
	Type           WhisperRequestType    `json:"-" validate:"required,oneof=transcription translation"`
}

// Validate checks field constraints.
func (r WhisperRequest) Validate() error {
	return validateStruct(r)
}

// Path returns the endpoint for the request type
func (r WhisperRequest) Path() string {
	if r.Type == WhisperTranslation {
		return PathAudioTranslations
	}
	return PathAudioTranscriptions
}

// decodesJSON reports whether the response body is a JSON object
func (r WhisperRequest) decodesJSON() bool {
	return r.ResponseFormat == WhisperFormatJSON || r.ResponseFormat == ""
}

// BuildRequest implements IntoRequest. Language is not sent for translations.
func (r WhisperRequest) BuildRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	format := r.ResponseFormat
	if format == "" {
		format = WhisperFormatJSON
	}
	fields := []formField{
		{name: "model", value: r.Model},
		{name: "response_format", value: string(format)},
	}
	if r.Language != "" && r.Type != WhisperTranslation {
		fields = append(fields, formField{name: "language", value: r.Language})
	}
	if r.Prompt != "" {
		fields = append(fields, formField{name: "prompt", value: r.Prompt})
	}
	if r.Temperature != nil {
		fields = append(fields, formField{name: "temperature", value: strconv.FormatFloat(*r.Temperature, 'f', -1, 64)})
	}

	file := formFile{
		field:       whisperFileField,
		filename:    whisperFileName,
		contentType: whisperFileMIMEType,
		data:        r.File,
	}
	return newMultipartRequest(ctx, baseURL, r.Path(), file, fields)
}

// WhisperRequestBuilder assembles a WhisperRequest.
type WhisperRequestBuilder struct {
	req WhisperRequest
}

// NewTranscriptionRequestBuilder starts a transcription of audio
func NewTranscriptionRequestBuilder(audio []byte) *WhisperRequestBuilder {
	return newWhisperRequestBuilder(audio, WhisperTranscription)
}

// NewTranslationRequestBuilder starts a translation of audio into English
func NewTranslationRequestBuilder(audio []byte) *WhisperRequestBuilder {
	return newWhisperRequestBuilder(audio, WhisperTranslation)
}

func newWhisperRequestBuilder(audio []byte, typ WhisperRequestType) *WhisperRequestBuilder {
	return &WhisperRequestBuilder{req: WhisperRequest{
		File:           audio,
		Model:          DefaultWhisperModel,
		ResponseFormat: WhisperFormatJSON,
		Type:           typ,
	}}
}

func (b *WhisperRequestBuilder) WithModel(model string) *WhisperRequestBuilder {
	b.req.Model = model
	return b
}

// WithLanguage sets the ISO-639-1 input language. Ignored for translations.
func (b *WhisperRequestBuilder) WithLanguage(lang string) *WhisperRequestBuilder {
	b.req.Language = lang
	return b
}

func (b *WhisperRequestBuilder) WithPrompt(prompt string) *WhisperRequestBuilder {
	b.req.Prompt = prompt
	return b
}

func (b *WhisperRequestBuilder) WithResponseFormat(f WhisperResponseFormat) *WhisperRequestBuilder {
	b.req.ResponseFormat = f
	return b
}

func (b *WhisperRequestBuilder) WithTemperature(t float64) *WhisperRequestBuilder {
	b.req.Temperature = &t
	return b
}

// Build validates and returns the descriptor.
func (b *WhisperRequestBuilder) Build() (*WhisperRequest, error) {
	req := b.req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// WhisperResponse holds the transcript. For formats other than json the raw
// response body (text, srt, vtt or verbose json) is stored in Text.
type WhisperResponse struct {
	Text string `json:"text"`
}
