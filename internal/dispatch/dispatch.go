// Package dispatch routes validated requests to the right upstream call and
// shapes the results.
//
// The Dispatcher is the only place that knows which upstream serves which
// route, which optional features a model may switch on, and when an image
// call deserves its one retry.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/apiconsole/internal/apierr"
	"github.com/howard-nolan/apiconsole/internal/models"
	"github.com/howard-nolan/apiconsole/internal/provider"
	"github.com/howard-nolan/apiconsole/internal/request"
)

// DefaultSystemPrompt is the instruction placed before every /ask prompt.
const DefaultSystemPrompt = "Kamu adalah Local AI Assistant untuk API Console internal. " +
	"Jawab dalam Bahasa Indonesia, ringkas, jelas, dan sesuai kebutuhan developer. " +
	"Jika ditanya identitas, jelaskan bahwa kamu asisten lokal untuk pengujian API dan dokumentasi."

var invalidModelPattern = regexp.MustCompile(`(?i)invalid model`)

// ImageModelResolver resolves the default image model.
type ImageModelResolver interface {
	Resolve(ctx context.Context, forceRefresh bool) string
	Invalidate()
}

// Options configures a Dispatcher.
type Options struct {
	SystemPrompt string

	// ChatCredential and StreamCredential name the environment variables
	// that hold each provider's key. They only appear in error messages.
	ChatCredential   string
	StreamCredential string

	Logger zerolog.Logger
}

// Dispatcher forwards requests to upstream providers. A nil provider means
// its credential is not configured; routes that need it fail with
// MissingCredential before any network call.
type Dispatcher struct {
	chat     provider.ChatProvider
	stream   provider.StreamProvider
	registry *models.Registry
	images   ImageModelResolver
	opts     Options
}

// New creates a Dispatcher.
func New(
	reg *models.Registry,
	chat provider.ChatProvider,
	stream provider.StreamProvider,
	images ImageModelResolver,
	opts Options,
) *Dispatcher {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.ChatCredential == "" {
		opts.ChatCredential = "LLM7_API_KEY"
	}
	if opts.StreamCredential == "" {
		opts.StreamCredential = "GEMINI_API_KEY"
	}
	return &Dispatcher{
		chat:     chat,
		stream:   stream,
		registry: reg,
		images:   images,
		opts:     opts,
	}
}

// RequireChat fails when the chat provider has no credential.
func (d *Dispatcher) RequireChat() error {
	if d.chat == nil {
		return apierr.MissingCredential(d.opts.ChatCredential)
	}
	return nil
}

// RequireStream fails when the streaming provider has no credential.
func (d *Dispatcher) RequireStream() error {
	if d.stream == nil {
		return apierr.MissingCredential(d.opts.StreamCredential)
	}
	return nil
}

// AskResult is a completed text exchange.
type AskResult struct {
	Text  string
	Model string
}

// Ask sends the fixed system instruction plus the prompt. An empty answer
// is an EmptyUpstreamResponse.
func (d *Dispatcher) Ask(ctx context.Context, req *request.ProxyRequest) (*AskResult, error) {
	if err := d.RequireChat(); err != nil {
		return nil, err
	}
	resp, err := d.chat.ChatCompletion(ctx, &provider.ChatRequest{
		Model: req.Model,
		Messages: []provider.Message{
			{Role: "system", Content: d.opts.SystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Content == "" {
		return nil, apierr.EmptyUpstreamResponse()
	}
	return &AskResult{Text: resp.Content, Model: req.Model}, nil
}

// Vision sends the prompt and image reference as one two-part user message
// and returns the upstream body unchanged.
func (d *Dispatcher) Vision(ctx context.Context, req *request.ProxyRequest) (json.RawMessage, error) {
	if err := d.RequireChat(); err != nil {
		return nil, err
	}
	resp, err := d.chat.ChatCompletion(ctx, &provider.ChatRequest{
		Model:    req.Model,
		Messages: []provider.Message{{Role: "user", Content: req.Prompt, ImageURL: req.ImageURL}},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Raw) == 0 {
		return nil, apierr.EmptyUpstreamResponse()
	}
	return resp.Raw, nil
}

// Stream starts a streamed generation with thinking and search switched on
// only for models whose registry entry allows them.
func (d *Dispatcher) Stream(ctx context.Context, req *request.ProxyRequest) (<-chan provider.StreamChunk, error) {
	if err := d.RequireStream(); err != nil {
		return nil, err
	}
	caps := d.registry.Gate(req.Model)
	return d.stream.ChatCompletionStream(ctx, &provider.StreamRequest{
		Model:    req.Model,
		Prompt:   req.Prompt,
		Thinking: caps.Thinking,
		Search:   caps.Search,
	})
}

// ImageResult is a completed image generation.
type ImageResult struct {
	URLs  []string
	Model string
	Size  string
	Count int
	Seed  *int64
}

// Images generates images. With no explicit model the default is resolved
// first. If the upstream rejects the model as invalid, the cached default
// is dropped, a fresh one is resolved, and the call is retried once; the
// outcome of that retry is final.
func (d *Dispatcher) Images(ctx context.Context, req *request.ImageRequest) (*ImageResult, error) {
	if err := d.RequireChat(); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = d.images.Resolve(ctx, false)
	}

	resp, err := d.chat.GenerateImages(ctx, imageParams(req, model))
	if err != nil && IsInvalidModel(err) {
		d.opts.Logger.Warn().Err(err).Str("model", model).Msg("upstream rejected image model, refreshing default")
		d.images.Invalidate()
		model = d.images.Resolve(ctx, true)
		resp, err = d.chat.GenerateImages(ctx, imageParams(req, model))
	}
	if err != nil {
		return nil, err
	}
	if len(resp.URLs) == 0 {
		return nil, apierr.NoImagesReturned()
	}

	return &ImageResult{
		URLs:  resp.URLs,
		Model: model,
		Size:  req.Size,
		Count: req.Count,
		Seed:  req.Seed,
	}, nil
}

// IsInvalidModel reports whether err is an upstream 400 saying the model is
// invalid.
func IsInvalidModel(err error) bool {
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.StatusCode != 400 {
		return false
	}
	return invalidModelPattern.MatchString(pe.Message) || invalidModelPattern.MatchString(pe.Body)
}

func imageParams(req *request.ImageRequest, model string) *provider.ImageRequest {
	return &provider.ImageRequest{
		Model:  model,
		Prompt: req.Prompt,
		Size:   req.Size,
		Count:  req.Count,
		Seed:   req.Seed,
	}
}
