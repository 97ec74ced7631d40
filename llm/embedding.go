package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
)

const DefaultEmbeddingModel = "text-embedding-ada-002"

// EncodingFormat selects how embedding vectors are returned
type EncodingFormat string

const (
	EncodingFormatFloat  EncodingFormat = "float"
	EncodingFormatBase64 EncodingFormat = "base64"
)

// EmbeddingInput is a single string or a batch of strings. A single input is
// encoded as a JSON string, a batch as an array.
type EmbeddingInput struct {
	values []string
	batch  bool
}

// SingleInput wraps one string
func SingleInput(s string) EmbeddingInput {
	return EmbeddingInput{values: []string{s}}
}

// BatchInput wraps several strings; they are always sent as an array
func BatchInput(s ...string) EmbeddingInput {
	return EmbeddingInput{values: append([]string(nil), s...), batch: true}
}

// Values returns a copy of the input strings
func (in EmbeddingInput) Values() []string {
	return append([]string(nil), in.values...)
}

func (in EmbeddingInput) MarshalJSON() ([]byte, error) {
	if !in.batch && len(in.values) == 1 {
		return json.Marshal(in.values[0])
	}
	if in.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(in.values)
}

func (in *EmbeddingInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		in.batch = true
		return json.Unmarshal(data, &in.values)
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	in.values, in.batch = []string{s}, false
	return nil
}

// EmbeddingRequest is the descriptor for POST /embeddings.
type EmbeddingRequest struct {
	Input          EmbeddingInput `json:"input" validate:"required,max=2048,dive,required"`
	Model          string         `json:"model" validate:"required"`
	EncodingFormat EncodingFormat `json:"encoding_format,omitempty" validate:"omitempty,oneof=float base64"`
	User           string         `json:"user,omitempty"`
}

// NewEmbeddingRequest builds a request for one string with the default model
func NewEmbeddingRequest(input string) (*EmbeddingRequest, error) {
	return NewEmbeddingRequestBuilder(SingleInput(input)).Build()
}

// Validate checks field constraints.
func (r EmbeddingRequest) Validate() error {
	return validateStruct(r)
}

// BuildRequest implements IntoRequest.
func (r EmbeddingRequest) BuildRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return newJSONRequest(ctx, baseURL, PathEmbeddings, r)
}

// EmbeddingRequestBuilder assembles an EmbeddingRequest.
type EmbeddingRequestBuilder struct {
	req EmbeddingRequest
}

func NewEmbeddingRequestBuilder(input EmbeddingInput) *EmbeddingRequestBuilder {
	return &EmbeddingRequestBuilder{req: EmbeddingRequest{Input: input, Model: DefaultEmbeddingModel}}
}

func (b *EmbeddingRequestBuilder) WithModel(model string) *EmbeddingRequestBuilder {
	b.req.Model = model
	return b
}

func (b *EmbeddingRequestBuilder) WithEncodingFormat(f EncodingFormat) *EmbeddingRequestBuilder {
	b.req.EncodingFormat = f
	return b
}

func (b *EmbeddingRequestBuilder) WithUser(user string) *EmbeddingRequestBuilder {
	b.req.User = user
	return b
}

// Build validates and returns the descriptor.
func (b *EmbeddingRequestBuilder) Build() (*EmbeddingRequest, error) {
	req := b.req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// EmbeddingResponse is the decoded body of POST /embeddings.
type EmbeddingResponse struct {
	Object string         `json:"object"`
	Data   []Embedding    `json:"data"`
	Model  string         `json:"model"`
	Usage  EmbeddingUsage `json:"usage"`
}

// Embedding is the vector for the input at Index.
type Embedding struct {
	Index     int    `json:"index"`
	Embedding Vector `json:"embedding"`
	Object    string `json:"object"`
}

// EmbeddingUsage reports token consumption.
type EmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Vector decodes either a JSON float array or the base64 little-endian
// float32 encoding returned for encoding_format=base64.
type Vector []float32

func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("decode base64 embedding: %w", err)
		}
		if len(raw)%4 != 0 {
			return fmt.Errorf("decode base64 embedding: %d bytes is not a multiple of 4", len(raw))
		}
		out := make(Vector, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		*v = out
		return nil
	}
	var floats []float32
	if err := json.Unmarshal(data, &floats); err != nil {
		return err
	}
	*v = floats
	return nil
}
