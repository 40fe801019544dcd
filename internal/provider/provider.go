// Package provider defines the upstream adapters the console forwards to.
//
// There are two kinds of upstream. A ChatProvider speaks the
// OpenAI-compatible protocol and covers plain and vision chat completions,
// image generation and the model listing. A StreamProvider speaks Google's
// GenAI protocol and covers token-streamed generation with optional
// extended reasoning and search grounding.
//
// Handlers never touch SDK types; they work with the unified request and
// response shapes in this file, and every adapter converts its SDK's error
// type into *Error so the rest of the console sees one error shape.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
)

// ChatProvider is the OpenAI-compatible upstream.
type ChatProvider interface {
	// Name returns the provider identifier used in logs.
	Name() string

	// ChatCompletion sends a non-streaming chat request. Cancelling ctx
	// aborts the upstream call.
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// GenerateImages asks the upstream for req.Count images and returns
	// their URLs in upstream order.
	GenerateImages(ctx context.Context, req *ImageRequest) (*ImageResponse, error)

	// ListModels returns the upstream model listing. Entries keep the
	// upstream order.
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// StreamProvider is the streaming multimodal upstream.
type StreamProvider interface {
	Name() string

	// ChatCompletionStream starts a streamed generation. Failures the
	// upstream reports before the first chunk are returned as the error,
	// so the caller can still pick an HTTP status. Failures after that
	// arrive as a StreamChunk with Err set, after which the channel is
	// closed.
	//
	// The channel is always closed eventually. If ctx is cancelled the
	// adapter stops pulling from the upstream, releases the connection
	// and closes the channel.
	ChatCompletionStream(ctx context.Context, req *StreamRequest) (<-chan StreamChunk, error)
}

// ---------------------------------------------------------------------------
// Unified request types
// ---------------------------------------------------------------------------

// Message is one chat message. ImageURL, when set, turns a user message
// into a two-part (text + image reference) message.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatRequest is a non-streaming chat completion request.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// ImageRequest is an image generation request. Seed is nil when the caller
// did not send one, in which case it is left out of the upstream body.
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
	Count  int
	Seed   *int64
}

// StreamRequest is a streamed generation request. Thinking and Search are
// decided by capability gating before the request is built; adapters just
// honour them.
type StreamRequest struct {
	Model    string
	Prompt   string
	Thinking bool
	Search   bool
}

// ---------------------------------------------------------------------------
// Unified response types
// ---------------------------------------------------------------------------

// ChatResponse is a complete chat completion.
type ChatResponse struct {
	ID      string
	Model   string
	Content string
	Usage   Usage

	// Raw is the upstream body as received, for routes that pass the
	// upstream shape straight through.
	Raw json.RawMessage
}

// Usage holds token counts reported by the upstream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ImageResponse holds generated image URLs in upstream order.
type ImageResponse struct {
	URLs []string
}

// ModelInfo is one entry of an upstream model listing, reduced to the
// fields the default image model heuristic looks at.
type ModelInfo struct {
	ID       string
	Default  bool // any of default / is_default / isDefault
	Type     string
	Category string
	Tags     []string

	InputModalities  []string
	OutputModalities []string

	// ImageCapable is set when the upstream flags image support
	// explicitly (capabilities.image or capabilities.image_generation).
	ImageCapable bool
}

// StreamChunk is one piece of a streamed response. Either Delta carries
// text, or Err carries the failure that ended the stream.
type StreamChunk struct {
	Delta string
	Err   error
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// Error is an upstream failure with the HTTP status the upstream returned.
type Error struct {
	Provider   string
	StatusCode int
	Message    string

	// Body is the raw upstream error body when it was available.
	Body string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (status=%d)", e.Provider, e.Message, e.StatusCode)
}

// HTTPStatus returns the upstream status.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// UpstreamMessage returns the upstream's message without the provider
// prefix.
func (e *Error) UpstreamMessage() string { return e.Message }
