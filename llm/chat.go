package llm

import (
	"context"
	"encoding/json"
	"net/http"
)

// DefaultChatModel is used when the builder is given no model
const DefaultChatModel = "gpt-4o-mini"

// Role identifies the author of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role       Role       `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool declares a function the model may call.
type Tool struct {
	Type     string             `json:"type" validate:"required,oneof=function"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a callable function. Parameters is a JSON schema.
type FunctionDefinition struct {
	Name        string          `json:"name" validate:"required,max=64"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NewFunctionTool declares a function tool
func NewFunctionTool(name, description string, parameters json.RawMessage) Tool {
	return Tool{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}
}

// ResponseFormat selects plain text or JSON-object output.
type ResponseFormat struct {
	Type string `json:"type" validate:"required,oneof=text json_object"`
}

// ChatCompletionRequest is the descriptor for POST /chat/completions.
type ChatCompletionRequest struct {
	Model            string          `json:"model" validate:"required"`
	Messages         []ChatMessage   `json:"messages" validate:"required,min=1,dive"`
	Temperature      *float64        `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	TopP             *float64        `json:"top_p,omitempty" validate:"omitempty,min=0,max=1"`
	N                *int            `json:"n,omitempty" validate:"omitempty,min=1,max=128"`
	MaxTokens        *int            `json:"max_tokens,omitempty" validate:"omitempty,min=1"`
	Stop             []string        `json:"stop,omitempty" validate:"max=4"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty" validate:"omitempty,min=-2,max=2"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty" validate:"omitempty,min=-2,max=2"`
	Seed             *int64          `json:"seed,omitempty"`
	User             string          `json:"user,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
	Tools            []Tool          `json:"tools,omitempty" validate:"dive"`
	ToolChoice       string          `json:"tool_choice,omitempty" validate:"omitempty,oneof=none auto required"`
}

// Validate checks field constraints.
func (r ChatCompletionRequest) Validate() error {
	return validateStruct(r)
}

// BuildRequest implements IntoRequest.
func (r ChatCompletionRequest) BuildRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return newJSONRequest(ctx, baseURL, PathChatCompletions, r)
}

// ChatCompletionRequestBuilder assembles a ChatCompletionRequest.
type ChatCompletionRequestBuilder struct {
	req ChatCompletionRequest
}

// NewChatCompletionRequestBuilder starts a request for model (DefaultChatModel when empty)
func NewChatCompletionRequestBuilder(model string) *ChatCompletionRequestBuilder {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatCompletionRequestBuilder{req: ChatCompletionRequest{Model: model}}
}

// AddMessage appends a message
func (b *ChatCompletionRequestBuilder) AddMessage(role Role, content string) *ChatCompletionRequestBuilder {
	b.req.Messages = append(b.req.Messages, ChatMessage{Role: role, Content: content})
	return b
}

// AddToolResult appends the output of a tool call
func (b *ChatCompletionRequestBuilder) AddToolResult(toolCallID, content string) *ChatCompletionRequestBuilder {
	b.req.Messages = append(b.req.Messages, ChatMessage{Role: RoleTool, Content: content, ToolCallID: toolCallID})
	return b
}

// WithSystemPrompt is AddMessage(RoleSystem, prompt)
func (b *ChatCompletionRequestBuilder) WithSystemPrompt(prompt string) *ChatCompletionRequestBuilder {
	return b.AddMessage(RoleSystem, prompt)
}

func (b *ChatCompletionRequestBuilder) WithTemperature(t float64) *ChatCompletionRequestBuilder {
	b.req.Temperature = &t
	return b
}

func (b *ChatCompletionRequestBuilder) WithTopP(p float64) *ChatCompletionRequestBuilder {
	b.req.TopP = &p
	return b
}

func (b *ChatCompletionRequestBuilder) WithN(n int) *ChatCompletionRequestBuilder {
	b.req.N = &n
	return b
}

func (b *ChatCompletionRequestBuilder) WithMaxTokens(n int) *ChatCompletionRequestBuilder {
	b.req.MaxTokens = &n
	return b
}

func (b *ChatCompletionRequestBuilder) WithStop(stop ...string) *ChatCompletionRequestBuilder {
	b.req.Stop = stop
	return b
}

func (b *ChatCompletionRequestBuilder) WithPresencePenalty(p float64) *ChatCompletionRequestBuilder {
	b.req.PresencePenalty = &p
	return b
}

func (b *ChatCompletionRequestBuilder) WithFrequencyPenalty(p float64) *ChatCompletionRequestBuilder {
	b.req.FrequencyPenalty = &p
	return b
}

func (b *ChatCompletionRequestBuilder) WithSeed(seed int64) *ChatCompletionRequestBuilder {
	b.req.Seed = &seed
	return b
}

func (b *ChatCompletionRequestBuilder) WithUser(user string) *ChatCompletionRequestBuilder {
	b.req.User = user
	return b
}

// WithJSONResponse asks the model for a JSON object
func (b *ChatCompletionRequestBuilder) WithJSONResponse() *ChatCompletionRequestBuilder {
	b.req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	return b
}

func (b *ChatCompletionRequestBuilder) WithTools(tools ...Tool) *ChatCompletionRequestBuilder {
	b.req.Tools = append(b.req.Tools, tools...)
	return b
}

// WithToolChoice sets none, auto or required
func (b *ChatCompletionRequestBuilder) WithToolChoice(choice string) *ChatCompletionRequestBuilder {
	b.req.ToolChoice = choice
	return b
}

// Build validates and returns the descriptor.
func (b *ChatCompletionRequestBuilder) Build() (*ChatCompletionRequest, error) {
	req := b.req
	req.Messages = append([]ChatMessage(nil), b.req.Messages...)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ChatCompletionResponse is the decoded body of a chat completion.
type ChatCompletionResponse struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	Model             string       `json:"model"`
	SystemFingerprint string       `json:"system_fingerprint,omitempty"`
	Choices           []ChatChoice `json:"choices"`
	Usage             Usage        `json:"usage"`
}

// ChatChoice is one generated alternative.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// Content returns the first choice's message content, or "" when there are no choices
func (r *ChatCompletionResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
