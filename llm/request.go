// Package llm contains the typed request descriptors and the SDK that dispatches them
// to an OpenAI-compatible API.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// API paths relative to the base URL
const (
	PathChatCompletions     = "/chat/completions"
	PathImageGenerations    = "/images/generations"
	PathAudioSpeech         = "/audio/speech"
	PathAudioTranscriptions = "/audio/transcriptions"
	PathAudioTranslations   = "/audio/translations"
	PathEmbeddings          = "/embeddings"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

// IntoRequest is implemented by every request descriptor. BuildRequest is pure:
// calling it twice yields equivalent requests, and it never validates field values.
type IntoRequest interface {
	BuildRequest(ctx context.Context, baseURL string) (*http.Request, error)
}

// endpoint joins the base URL and a descriptor path
func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// newJSONRequest encodes payload as the body of a POST request
func newJSONRequest(ctx context.Context, baseURL, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	// bytes.Reader bodies get GetBody, so the request can be resent
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, path), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	return req, nil
}

// formFile is the binary part of a multipart body
type formFile struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

// formField is a string part of a multipart body
type formField struct {
	name  string
	value string
}

// formBoundary derives the multipart boundary from the parts, so equal
// descriptors produce byte-identical requests.
func formBoundary(file formFile, fields []formField) string {
	h := sha256.New()
	for _, s := range []string{file.field, file.filename, file.contentType} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write(file.data)
	for _, f := range fields {
		h.Write([]byte{0})
		h.Write([]byte(f.name))
		h.Write([]byte{0})
		h.Write([]byte(f.value))
	}
	return hex.EncodeToString(h.Sum(nil))[:60]
}

// newMultipartRequest writes the file part followed by fields in order
func newMultipartRequest(ctx context.Context, baseURL, path string, file formFile, fields []formField) (*http.Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(formBoundary(file, fields)); err != nil {
		return nil, fmt.Errorf("set %s boundary: %w", path, err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.filename))
	h.Set(headerContentType, file.contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create %s file part: %w", path, err)
	}
	if _, err := part.Write(file.data); err != nil {
		return nil, fmt.Errorf("write %s file part: %w", path, err)
	}

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("write %s field %s: %w", path, f.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close %s multipart body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, path), bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set(headerContentType, w.FormDataContentType())
	return req, nil
}
