package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/apiconsole/internal/apierr"
	"github.com/howard-nolan/apiconsole/internal/models"
	"github.com/howard-nolan/apiconsole/internal/provider"
	"github.com/howard-nolan/apiconsole/internal/request"
)

// fakeChat records calls and answers from scripted functions.
type fakeChat struct {
	mu         sync.Mutex
	chatReqs   []*provider.ChatRequest
	imageReqs  []*provider.ImageRequest
	chatFn     func(*provider.ChatRequest) (*provider.ChatResponse, error)
	imageFn    func(call int, req *provider.ImageRequest) (*provider.ImageResponse, error)
	modelsList []provider.ModelInfo
}

func (f *fakeChat) Name() string { return "fake" }

func (f *fakeChat) ChatCompletion(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.chatReqs = append(f.chatReqs, req)
	f.mu.Unlock()
	return f.chatFn(req)
}

func (f *fakeChat) GenerateImages(_ context.Context, req *provider.ImageRequest) (*provider.ImageResponse, error) {
	f.mu.Lock()
	f.imageReqs = append(f.imageReqs, req)
	call := len(f.imageReqs)
	f.mu.Unlock()
	return f.imageFn(call, req)
}

func (f *fakeChat) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return f.modelsList, nil
}

// fakeResolver hands out ids in sequence and records what was asked.
type fakeResolver struct {
	ids         []string
	resolves    []bool // forceRefresh of each call
	invalidated int
}

func (r *fakeResolver) Resolve(_ context.Context, force bool) string {
	r.resolves = append(r.resolves, force)
	id := r.ids[0]
	if len(r.ids) > 1 {
		r.ids = r.ids[1:]
	}
	return id
}

func (r *fakeResolver) Invalidate() { r.invalidated++ }

type fakeStream struct {
	got *provider.StreamRequest
}

func (f *fakeStream) Name() string { return "fake-stream" }

func (f *fakeStream) ChatCompletionStream(_ context.Context, req *provider.StreamRequest) (<-chan provider.StreamChunk, error) {
	f.got = req
	ch := make(chan provider.StreamChunk)
	close(ch)
	return ch, nil
}

func invalidModelErr() error {
	return &provider.Error{Provider: "fake", StatusCode: 400, Message: "Invalid model: flux-old"}
}

func newDispatcher(chat provider.ChatProvider, stream provider.StreamProvider, res ImageModelResolver) *Dispatcher {
	return New(models.Default(), chat, stream, res, Options{Logger: zerolog.Nop()})
}

func imageReq(model string) *request.ImageRequest {
	return &request.ImageRequest{Prompt: "a cat", Model: model, Size: "1024x1024", Count: 2}
}

func TestImages_RetriesOnceWithFreshModel(t *testing.T) {
	chat := &fakeChat{imageFn: func(call int, req *provider.ImageRequest) (*provider.ImageResponse, error) {
		if call == 1 {
			return nil, invalidModelErr()
		}
		return &provider.ImageResponse{URLs: []string{"https://img/1.png"}}, nil
	}}
	res := &fakeResolver{ids: []string{"flux-old", "flux-new"}}
	d := newDispatcher(chat, nil, res)

	out, err := d.Images(context.Background(), imageReq(""))
	require.NoError(t, err)

	assert.Equal(t, []string{"https://img/1.png"}, out.URLs)
	assert.Equal(t, "flux-new", out.Model)
	require.Len(t, chat.imageReqs, 2)
	assert.Equal(t, "flux-old", chat.imageReqs[0].Model)
	assert.Equal(t, "flux-new", chat.imageReqs[1].Model)
	assert.Equal(t, []bool{false, true}, res.resolves)
	assert.Equal(t, 1, res.invalidated)
}

func TestImages_SecondFailureReturnedVerbatim(t *testing.T) {
	second := &provider.Error{Provider: "fake", StatusCode: 400, Message: "invalid model again"}
	chat := &fakeChat{imageFn: func(call int, req *provider.ImageRequest) (*provider.ImageResponse, error) {
		if call == 1 {
			return nil, invalidModelErr()
		}
		return nil, second
	}}
	res := &fakeResolver{ids: []string{"a", "b", "c"}}
	d := newDispatcher(chat, nil, res)

	_, err := d.Images(context.Background(), imageReq(""))
	require.Error(t, err)
	assert.Same(t, second, err)
	assert.Len(t, chat.imageReqs, 2, "no third attempt")
	assert.Equal(t, 1, res.invalidated)
}

func TestImages_OtherErrorsNotRetried(t *testing.T) {
	for _, upstream := range []error{
		&provider.Error{StatusCode: 400, Message: "size too large"},
		&provider.Error{StatusCode: 500, Message: "invalid model"},
		errors.New("invalid model"),
	} {
		chat := &fakeChat{imageFn: func(int, *provider.ImageRequest) (*provider.ImageResponse, error) {
			return nil, upstream
		}}
		res := &fakeResolver{ids: []string{"flux"}}
		d := newDispatcher(chat, nil, res)

		_, err := d.Images(context.Background(), imageReq(""))
		assert.Equal(t, upstream, err)
		assert.Len(t, chat.imageReqs, 1)
		assert.Zero(t, res.invalidated)
	}
}

func TestImages_InvalidModelInBody(t *testing.T) {
	assert.True(t, IsInvalidModel(&provider.Error{StatusCode: 400, Message: "Bad Request", Body: `{"detail":"Invalid Model"}`}))
	assert.False(t, IsInvalidModel(&provider.Error{StatusCode: 404, Message: "invalid model"}))
}

func TestImages_ExplicitModelSkipsResolution(t *testing.T) {
	chat := &fakeChat{imageFn: func(int, *provider.ImageRequest) (*provider.ImageResponse, error) {
		return &provider.ImageResponse{URLs: []string{"u"}}, nil
	}}
	res := &fakeResolver{ids: []string{"unused"}}
	d := newDispatcher(chat, nil, res)

	seed := int64(9)
	req := imageReq("turbo")
	req.Seed = &seed

	out, err := d.Images(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "turbo", out.Model)
	assert.Empty(t, res.resolves)
	assert.Equal(t, &seed, chat.imageReqs[0].Seed)
	assert.Equal(t, 2, chat.imageReqs[0].Count)
}

func TestImages_NoURLs(t *testing.T) {
	chat := &fakeChat{imageFn: func(int, *provider.ImageRequest) (*provider.ImageResponse, error) {
		return &provider.ImageResponse{}, nil
	}}
	d := newDispatcher(chat, nil, &fakeResolver{ids: []string{"flux"}})

	_, err := d.Images(context.Background(), imageReq(""))
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.KindNoImagesReturned, e.Kind)
	assert.Equal(t, 502, e.Status)
}

func TestAsk_BuildsTwoMessages(t *testing.T) {
	chat := &fakeChat{chatFn: func(req *provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Content: "jawaban"}, nil
	}}
	d := New(models.Default(), chat, nil, nil, Options{SystemPrompt: "be helpful", Logger: zerolog.Nop()})

	out, err := d.Ask(context.Background(), &request.ProxyRequest{Prompt: "halo", Model: "gemma-3-4b"})
	require.NoError(t, err)
	assert.Equal(t, &AskResult{Text: "jawaban", Model: "gemma-3-4b"}, out)

	require.Len(t, chat.chatReqs, 1)
	got := chat.chatReqs[0]
	assert.Equal(t, "gemma-3-4b", got.Model)
	assert.Equal(t, []provider.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "halo"},
	}, got.Messages)
}

func TestAsk_EmptyResponse(t *testing.T) {
	chat := &fakeChat{chatFn: func(*provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{}, nil
	}}
	d := newDispatcher(chat, nil, nil)

	_, err := d.Ask(context.Background(), &request.ProxyRequest{Prompt: "x", Model: "m"})
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apierr.KindEmptyUpstreamResponse, e.Kind)
	assert.Equal(t, 502, e.Status)
}

func TestAsk_UpstreamErrorForwardedUnmapped(t *testing.T) {
	upstream := &provider.Error{StatusCode: 429, Message: "slow down"}
	chat := &fakeChat{chatFn: func(*provider.ChatRequest) (*provider.ChatResponse, error) {
		return nil, upstream
	}}
	d := newDispatcher(chat, nil, nil)

	_, err := d.Ask(context.Background(), &request.ProxyRequest{Prompt: "x", Model: "m"})
	assert.Same(t, upstream, err)
}

func TestVision_PassesRawThrough(t *testing.T) {
	raw := json.RawMessage(`{"id":"c1","choices":[]}`)
	chat := &fakeChat{chatFn: func(*provider.ChatRequest) (*provider.ChatResponse, error) {
		return &provider.ChatResponse{Raw: raw}, nil
	}}
	d := newDispatcher(chat, nil, nil)

	got, err := d.Vision(context.Background(), &request.ProxyRequest{Prompt: "what", ImageURL: "https://i/x.png", Model: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(got))

	msg := chat.chatReqs[0].Messages
	require.Len(t, msg, 1)
	assert.Equal(t, provider.Message{Role: "user", Content: "what", ImageURL: "https://i/x.png"}, msg[0])
}

func TestStream_CapabilityGating(t *testing.T) {
	cases := map[string]provider.StreamRequest{
		"gemini-3-flash-preview": {Model: "gemini-3-flash-preview", Prompt: "p", Thinking: true, Search: true},
		"gemini-2.5-flash":       {Model: "gemini-2.5-flash", Prompt: "p", Search: true},
		"gemma-3-27b":            {Model: "gemma-3-27b", Prompt: "p"},
	}
	for model, want := range cases {
		s := &fakeStream{}
		d := newDispatcher(nil, s, nil)

		_, err := d.Stream(context.Background(), &request.ProxyRequest{Prompt: "p", Model: model})
		require.NoError(t, err)
		assert.Equal(t, want, *s.got, model)
	}
}

func TestMissingCredentials(t *testing.T) {
	d := newDispatcher(nil, nil, nil)

	for _, err := range []error{
		d.RequireChat(),
		d.RequireStream(),
		func() error { _, err := d.Ask(context.Background(), &request.ProxyRequest{}); return err }(),
		func() error { _, err := d.Images(context.Background(), &request.ImageRequest{}); return err }(),
		func() error { _, err := d.Stream(context.Background(), &request.ProxyRequest{}); return err }(),
	} {
		var e *apierr.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, apierr.KindMissingCredential, e.Kind)
		assert.Equal(t, 500, e.Status)
	}

	assert.Contains(t, d.RequireChat().Error(), "LLM7_API_KEY")
	assert.Contains(t, d.RequireStream().Error(), "GEMINI_API_KEY")
}
