package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

// GoogleProvider implements StreamProvider on top of the GenAI SDK.
type GoogleProvider struct {
	client *genai.Client
}

// NewGoogleProvider creates a GoogleProvider. baseURL is optional; when set
// it may carry an API version segment (".../v1beta"), which is split off and
// passed to the SDK separately.
func NewGoogleProvider(ctx context.Context, apiKey, baseURL string, httpClient *http.Client) (*GoogleProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		base, version := splitBaseURLAndVersion(baseURL)
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base, APIVersion: version}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GoogleProvider{client: client}, nil
}

// Name returns the provider identifier.
func (g *GoogleProvider) Name() string { return "multimodal" }

// ChatCompletionStream starts a streamed generation.
//
// The SDK hands back a lazy iterator, so nothing goes over the wire until
// it is pulled. We pull the first element here, before returning, so an
// upstream rejection (bad key, quota, unknown model) becomes a normal error
// the handler can map to a status code. Everything after the first element
// is pulled by a goroutine and forwarded on the channel.
func (g *GoogleProvider) ChatCompletionStream(ctx context.Context, req *StreamRequest) (<-chan StreamChunk, error) {
	seq := g.client.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.Prompt), buildStreamConfig(req))

	// iter.Pull2 turns the push-style iterator into next()/stop(). stop
	// must always be called, it is what releases the upstream response
	// body when we bail out early.
	next, stop := iter.Pull2(seq)

	first, err, ok := next()
	if ok && err != nil {
		stop()
		return nil, g.toProviderError(err)
	}

	ch := make(chan StreamChunk)

	go func() {
		defer close(ch)
		defer stop()

		send := func(c StreamChunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp := first
		for ok {
			if err != nil {
				send(StreamChunk{Err: g.toProviderError(err)})
				return
			}
			if text := candidateText(resp); text != "" {
				if !send(StreamChunk{Delta: text}) {
					return
				}
			}
			resp, err, ok = next()
		}
	}()

	return ch, nil
}

// buildStreamConfig switches on extended reasoning and search grounding
// only when the request says the model supports them.
func buildStreamConfig(req *StreamRequest) *genai.GenerateContentConfig {
	if !req.Thinking && !req.Search {
		return nil
	}
	cfg := &genai.GenerateContentConfig{}
	if req.Thinking {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingLevel: genai.ThinkingLevelHigh}
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return cfg
}

// candidateText joins the visible text parts of the first candidate.
// Thought summaries are not part of the answer and are dropped.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func (g *GoogleProvider) toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   g.Name(),
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("%s: %w", g.Name(), err)
}

// splitBaseURLAndVersion splits "https://host/v1beta" into
// ("https://host/", "v1beta"). A URL without a version segment is returned
// with a trailing slash and an empty version.
func splitBaseURLAndVersion(raw string) (string, string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	var version string
	if path != "" {
		parts := strings.Split(path, "/")
		last := parts[len(parts)-1]
		if len(last) >= 2 && last[0] == 'v' && last[1] >= '0' && last[1] <= '9' {
			version = last
			parts = parts[:len(parts)-1]
		}
		path = strings.Join(parts, "/")
	}

	u.Path = ""
	if path != "" {
		u.Path = "/" + path
	}
	base := u.String()
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base, version
}
