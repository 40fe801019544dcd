package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
)

// DefaultChatBaseURL is the OpenAI-compatible endpoint the console talks to
// when none is configured.
const DefaultChatBaseURL = "https://api.llm7.io/v1"

// maxModelListBytes caps how much of a model listing we are willing to read.
const maxModelListBytes = 4 << 20

// OpenAIProvider implements ChatProvider for any OpenAI-compatible API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
	client  openai.Client
}

// NewOpenAIProvider creates a provider. A nil httpClient means
// http.DefaultClient. SDK-level retries are switched off: the dispatcher
// owns the only retry in the request path.
func NewOpenAIProvider(apiKey, baseURL string, httpClient *http.Client) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultChatBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    httpClient,
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL+"/"),
			option.WithHTTPClient(httpClient),
			option.WithMaxRetries(0),
		),
	}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return "chat" }

// ChatCompletion sends the messages and returns the first choice's text.
// An empty text is not an error here; callers decide whether it is one.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, toSDKMessage(m))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: msgs,
	})
	if err != nil {
		return nil, p.toProviderError(err)
	}

	out := &ChatResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	if raw := resp.RawJSON(); raw != "" {
		out.Raw = []byte(raw)
	}
	return out, nil
}

// GenerateImages calls the images endpoint. The upstream accepts two
// non-standard body fields: "seed" (only sent when set) and "nologo".
func (p *OpenAIProvider) GenerateImages(ctx context.Context, req *ImageRequest) (*ImageResponse, error) {
	params := openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(req.Model),
		N:      openai.Int(int64(req.Count)),
		Size:   openai.ImageGenerateParamsSize(req.Size),
	}

	opts := []option.RequestOption{option.WithJSONSet("nologo", true)}
	if req.Seed != nil {
		opts = append(opts, option.WithJSONSet("seed", *req.Seed))
	}

	resp, err := p.client.Images.Generate(ctx, params, opts...)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	out := &ImageResponse{}
	for _, img := range resp.Data {
		if img.URL != "" {
			out.URLs = append(out.URLs, img.URL)
		}
	}
	return out, nil
}

// ListModels fetches GET {baseURL}/models. The listing's shape varies
// between OpenAI-compatible hosts (bare array vs {"data": [...]}, extra
// capability fields), so it is read as raw JSON rather than through the
// SDK's typed Model.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	httpResp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxModelListBytes))
	if err != nil {
		return nil, fmt.Errorf("reading model list: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &Error{
			Provider:   p.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("models request failed (%d)", httpResp.StatusCode),
			Body:       string(body),
		}
	}
	return ParseModelList(body), nil
}

// ParseModelList reads a model listing that is either a bare array or an
// object with a "data" array. Anything else yields an empty listing.
func ParseModelList(body []byte) []ModelInfo {
	doc := gjson.ParseBytes(body)
	list := doc
	if !doc.IsArray() {
		list = doc.Get("data")
	}
	if !list.IsArray() {
		return nil
	}

	var out []ModelInfo
	list.ForEach(func(_, m gjson.Result) bool {
		if !m.IsObject() {
			return true
		}
		info := ModelInfo{
			Default: m.Get("default").Bool() ||
				m.Get("is_default").Bool() ||
				m.Get("isDefault").Bool(),
			Type:     stringField(m.Get("type")),
			Category: stringField(m.Get("category")),
			Tags:     stringList(m.Get("tags")),
		}
		if id := m.Get("id"); id.Type == gjson.String {
			info.ID = id.String()
		}

		mods := m.Get("modalities")
		info.OutputModalities = stringList(firstExisting(mods, "output", "outputs"))
		info.InputModalities = stringList(firstExisting(mods, "input", "inputs"))

		caps := m.Get("capabilities")
		info.ImageCapable = caps.Get("image").Bool() || caps.Get("image_generation").Bool()

		out = append(out, info)
		return true
	})
	return out
}

func toSDKMessage(m Message) openai.ChatCompletionMessageParamUnion {
	switch strings.ToLower(m.Role) {
	case "system":
		return openai.SystemMessage(m.Content)
	case "assistant":
		return openai.AssistantMessage(m.Content)
	}
	if m.ImageURL != "" {
		return openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(m.Content),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: m.ImageURL,
			}),
		})
	}
	return openai.UserMessage(m.Content)
}

func (p *OpenAIProvider) toProviderError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}
	raw := apiErr.RawJSON()
	msg := apiErr.Message
	if msg == "" {
		msg = raw
	}
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &Error{
		Provider:   p.Name(),
		StatusCode: apiErr.StatusCode,
		Message:    msg,
		Body:       raw,
	}
}

func stringField(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return v.String()
}

// stringList stringifies every element of an array; non-arrays give nil.
func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, item := range v.Array() {
		out = append(out, item.String())
	}
	return out
}

func firstExisting(v gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
