package llm

import (
	"context"
	"net/http"
)

const (
	SpeechModelTTS1   = "tts-1"
	SpeechModelTTS1HD = "tts-1-hd"
)

// Voice selects the speaker
type Voice string

const (
	VoiceAlloy   Voice = "alloy"
	VoiceEcho    Voice = "echo"
	VoiceFable   Voice = "fable"
	VoiceOnyx    Voice = "onyx"
	VoiceNova    Voice = "nova"
	VoiceShimmer Voice = "shimmer"
)

// AudioFormat is the encoding of generated speech
type AudioFormat string

const (
	AudioFormatMP3  AudioFormat = "mp3"
	AudioFormatOpus AudioFormat = "opus"
	AudioFormatAAC  AudioFormat = "aac"
	AudioFormatFLAC AudioFormat = "flac"
)

// SpeechRequest is the descriptor for POST /audio/speech. The response is raw audio bytes.
type SpeechRequest struct {
	Model          string      `json:"model" validate:"required,oneof=tts-1 tts-1-hd"`
	Input          string      `json:"input" validate:"required,max=4096"`
	Voice          Voice       `json:"voice" validate:"required,oneof=alloy echo fable onyx nova shimmer"`
	ResponseFormat AudioFormat `json:"response_format" validate:"required,oneof=mp3 opus aac flac"`
	Speed          *float64    `json:"speed,omitempty" validate:"omitempty,min=0.25,max=4"`
}

// Validate checks field constraints.
func (r SpeechRequest) Validate() error {
	return validateStruct(r)
}

// BuildRequest implements IntoRequest.
func (r SpeechRequest) BuildRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return newJSONRequest(ctx, baseURL, PathAudioSpeech, r)
}

// SpeechRequestBuilder assembles a SpeechRequest with tts-1, nova and mp3 defaults.
type SpeechRequestBuilder struct {
	req SpeechRequest
}

func NewSpeechRequestBuilder(input string) *SpeechRequestBuilder {
	return &SpeechRequestBuilder{req: SpeechRequest{
		Model:          SpeechModelTTS1,
		Input:          input,
		Voice:          VoiceNova,
		ResponseFormat: AudioFormatMP3,
	}}
}

func (b *SpeechRequestBuilder) WithModel(model string) *SpeechRequestBuilder {
	b.req.Model = model
	return b
}

func (b *SpeechRequestBuilder) WithVoice(v Voice) *SpeechRequestBuilder {
	b.req.Voice = v
	return b
}

func (b *SpeechRequestBuilder) WithResponseFormat(f AudioFormat) *SpeechRequestBuilder {
	b.req.ResponseFormat = f
	return b
}

func (b *SpeechRequestBuilder) WithSpeed(speed float64) *SpeechRequestBuilder {
	b.req.Speed = &speed
	return b
}

// Build validates and returns the descriptor.
func (b *SpeechRequestBuilder) Build() (*SpeechRequest, error) {
	req := b.req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// NewSpeechRequest builds a request with the default model, voice and format
func NewSpeechRequest(input string) (*SpeechRequest, error) {
	return NewSpeechRequestBuilder(input).Build()
}
