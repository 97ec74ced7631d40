package llm

import (
	"context"
	"net/http"
)

const DefaultImageModel = "dall-e-3"

type ImageQuality string

const (
	ImageQualityStandard ImageQuality = "standard"
	ImageQualityHD       ImageQuality = "hd"
)

type ImageResponseFormat string

const (
	ImageResponseFormatURL     ImageResponseFormat = "url"
	ImageResponseFormatB64JSON ImageResponseFormat = "b64_json"
)

type ImageSize string

const (
	ImageSize1024x1024 ImageSize = "1024x1024"
	ImageSize1792x1024 ImageSize = "1792x1024"
	ImageSize1024x1792 ImageSize = "1024x1792"
)

type ImageStyle string

const (
	ImageStyleVivid   ImageStyle = "vivid"
	ImageStyleNatural ImageStyle = "natural"
)

// ImageRequest is the descriptor for POST /images/generations.
// Unset optional fields are omitted from the body.
type ImageRequest struct {
	Prompt         string              `json:"prompt" validate:"required,max=4000"`
	Model          string              `json:"model" validate:"required"`
	N              *int                `json:"n,omitempty" validate:"omitempty,min=1,max=10"`
	Quality        ImageQuality        `json:"quality,omitempty" validate:"omitempty,oneof=standard hd"`
	ResponseFormat ImageResponseFormat `json:"response_format,omitempty" validate:"omitempty,oneof=url b64_json"`
	Size           ImageSize           `json:"size,omitempty" validate:"omitempty,oneof=1024x1024 1792x1024 1024x1792"`
	Style          ImageStyle          `json:"style,omitempty" validate:"omitempty,oneof=vivid natural"`
	User           string              `json:"user,omitempty"`
}

// Validate checks field constraints.
func (r ImageRequest) Validate() error {
	return validateStruct(r)
}

// BuildRequest implements IntoRequest.
func (r ImageRequest) BuildRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return newJSONRequest(ctx, baseURL, PathImageGenerations, r)
}

// ImageRequestBuilder assembles an ImageRequest.
type ImageRequestBuilder struct {
	req ImageRequest
}

// NewImageRequestBuilder starts a dall-e-3 request for prompt
func NewImageRequestBuilder(prompt string) *ImageRequestBuilder {
	return &ImageRequestBuilder{req: ImageRequest{Prompt: prompt, Model: DefaultImageModel}}
}

func (b *ImageRequestBuilder) WithModel(model string) *ImageRequestBuilder {
	b.req.Model = model
	return b
}

func (b *ImageRequestBuilder) WithN(n int) *ImageRequestBuilder {
	b.req.N = &n
	return b
}

func (b *ImageRequestBuilder) WithQuality(q ImageQuality) *ImageRequestBuilder {
	b.req.Quality = q
	return b
}

func (b *ImageRequestBuilder) WithResponseFormat(f ImageResponseFormat) *ImageRequestBuilder {
	b.req.ResponseFormat = f
	return b
}

func (b *ImageRequestBuilder) WithSize(s ImageSize) *ImageRequestBuilder {
	b.req.Size = s
	return b
}

func (b *ImageRequestBuilder) WithStyle(s ImageStyle) *ImageRequestBuilder {
	b.req.Style = s
	return b
}

func (b *ImageRequestBuilder) WithUser(user string) *ImageRequestBuilder {
	b.req.User = user
	return b
}

// Build validates and returns the descriptor.
func (b *ImageRequestBuilder) Build() (*ImageRequest, error) {
	req := b.req
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ImageResponse lists generated images.
type ImageResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

// ImageData holds either a URL or base64 image content, depending on the requested format.
type ImageData struct {
	B64JSON       string `json:"b64_json,omitempty"`
	URL           string `json:"url,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}
