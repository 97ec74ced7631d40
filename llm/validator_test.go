package llm

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	require.Error(t, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected *ValidationError, got %T", err)
	return ve
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name   string
		build  func() (*ChatCompletionRequest, error)
		fields []string
	}{
		{
			name:   "no messages",
			build:  NewChatCompletionRequestBuilder("").Build,
			fields: []string{"messages"},
		},
		{
			name:   "bad role",
			build:  NewChatCompletionRequestBuilder("").AddMessage("robot", "hi").Build,
			fields: []string{"messages[0].role"},
		},
		{
			name:   "temperature out of range",
			build:  NewChatCompletionRequestBuilder("").AddMessage(RoleUser, "hi").WithTemperature(2.5).Build,
			fields: []string{"temperature"},
		},
		{
			name: "several failures",
			build: NewChatCompletionRequestBuilder("").
				AddMessage(RoleUser, "hi").
				WithTopP(1.5).
				WithN(0).
				WithToolChoice("always").
				WithStop("a", "b", "c", "d", "e").
				Build,
			fields: []string{"top_p", "n", "tool_choice", "stop"},
		},
		{
			name: "tool without name",
			build: NewChatCompletionRequestBuilder("").
				AddMessage(RoleUser, "hi").
				WithTools(NewFunctionTool("", "", nil)).
				Build,
			fields: []string{"tools[0].function.name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.build()
			assert.Nil(t, req)
			ve := requireValidationError(t, err)
			for _, f := range tt.fields {
				assert.True(t, ve.HasField(f), "expected %s in %v", f, ve.Errors)
			}
			assert.Len(t, ve.Errors, len(tt.fields))
		})
	}
}

func TestSpeechValidation(t *testing.T) {
	_, err := NewSpeechRequestBuilder("hi").WithModel("tts-2").WithVoice("robot").WithSpeed(5).Build()
	ve := requireValidationError(t, err)

	assert.True(t, ve.HasField("model"))
	assert.True(t, ve.HasField("voice"))
	assert.True(t, ve.HasField("speed"))

	_, err = NewSpeechRequest("")
	ve = requireValidationError(t, err)
	assert.Equal(t, "validation failed: input is required", ve.Error())

	_, err = NewSpeechRequest(strings.Repeat("a", 4097))
	ve = requireValidationError(t, err)
	assert.Equal(t, "input must be at most 4096 characters", ve.Errors[0].Message)
	assert.True(t, strings.HasSuffix(ve.Errors[0].Value, "..."), "long values are truncated")
}

func TestImageValidation(t *testing.T) {
	_, err := NewImageRequestBuilder("").WithSize("640x480").WithN(11).Build()
	ve := requireValidationError(t, err)

	assert.True(t, ve.HasField("prompt"))
	assert.True(t, ve.HasField("size"))
	assert.True(t, ve.HasField("n"))
	assert.Contains(t, ve.Error(), "3 errors")
}

func TestWhisperValidation(t *testing.T) {
	_, err := NewTranscriptionRequestBuilder(nil).WithResponseFormat("docx").Build()
	ve := requireValidationError(t, err)

	assert.True(t, ve.HasField("file"))
	assert.True(t, ve.HasField("response_format"))
	for _, fe := range ve.Errors {
		if fe.Field == "file" {
			assert.Empty(t, fe.Value, "binary payloads are never echoed")
		}
	}
}

func TestWhisperValidationRejectsEmptyFile(t *testing.T) {
	_, err := NewTranscriptionRequestBuilder([]byte{}).Build()
	ve := requireValidationError(t, err)
	assert.True(t, ve.HasField("file"))
	assert.False(t, ve.HasField("response_format"))
}

func TestWhisperValidationRequiresType(t *testing.T) {
	err := WhisperRequest{File: []byte("a"), Model: DefaultWhisperModel, ResponseFormat: WhisperFormatJSON}.Validate()
	ve := requireValidationError(t, err)
	assert.Len(t, ve.Errors, 1)
	assert.Equal(t, "Type", ve.Errors[0].Field)
}

func TestEmbeddingValidation(t *testing.T) {
	_, err := NewEmbeddingRequest("")
	ve := requireValidationError(t, err)
	assert.True(t, ve.HasField("input[0]"))

	_, err = NewEmbeddingRequestBuilder(BatchInput()).Build()
	ve = requireValidationError(t, err)
	assert.True(t, ve.HasField("input"))

	_, err = NewEmbeddingRequestBuilder(SingleInput("ok")).WithEncodingFormat("hex").Build()
	ve = requireValidationError(t, err)
	assert.True(t, ve.HasField("encoding_format"))
}

func TestValidationErrorMessages(t *testing.T) {
	assert.Equal(t, "validation failed", (&ValidationError{}).Error())
	assert.False(t, (&ValidationError{}).HasField("model"))
}
