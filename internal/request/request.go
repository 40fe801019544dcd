// Package request turns untyped inbound JSON bodies into validated requests.
//
// Every Parse function is pure: it looks only at the body bytes plus the
// registry or catalog it is given, and either returns a request that is safe
// to dispatch or an *apierr.Error describing the first rule that failed.
package request

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/howard-nolan/apiconsole/internal/apierr"
	"github.com/howard-nolan/apiconsole/internal/models"
)

// MaxImages is the upper bound for ImageRequest.Count.
const MaxImages = 4

// MinImageConfigPrompt is the shortest prompt the image config route takes.
const MinImageConfigPrompt = 5

var sizePattern = regexp.MustCompile(`^\d+x\d+$`)

// ProxyRequest is a validated text, vision or streaming request.
type ProxyRequest struct {
	Prompt   string
	Model    string
	ImageURL string // vision only
}

// ImageRequest is a validated image generation request. Model is empty when
// the caller did not name one and the default must be resolved.
type ImageRequest struct {
	Prompt string
	Model  string
	Size   string
	Count  int
	Seed   *int64
}

// ImageConfigRequest is a validated image config request.
type ImageConfigRequest struct {
	Prompt  string
	Model   string
	Quality string
}

// ParseAsk validates a text completion body.
func ParseAsk(body []byte, reg *models.Registry, defaultModel string) (*ProxyRequest, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	prompt := trimmedString(doc.Get("prompt"))
	if prompt == "" {
		return nil, apierr.MissingField("prompt", "Prompt is required.")
	}
	model, err := resolveModel(doc.Get("model"), reg, defaultModel)
	if err != nil {
		return nil, err
	}
	return &ProxyRequest{Prompt: prompt, Model: model}, nil
}

// ParseGenerate validates a streaming generation body. The rules are the
// same as ParseAsk; only the default model differs.
func ParseGenerate(body []byte, reg *models.Registry, defaultModel string) (*ProxyRequest, error) {
	return ParseAsk(body, reg, defaultModel)
}

// ParseVision validates a vision body; imageUrl is required alongside prompt.
func ParseVision(body []byte, reg *models.Registry, defaultModel string) (*ProxyRequest, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	prompt := trimmedString(doc.Get("prompt"))
	imageURL := trimmedString(doc.Get("imageUrl"))
	switch {
	case prompt == "":
		return nil, apierr.MissingField("prompt", "prompt and imageUrl are required.")
	case imageURL == "":
		return nil, apierr.MissingField("imageUrl", "prompt and imageUrl are required.")
	}
	model, err := resolveModel(doc.Get("model"), reg, defaultModel)
	if err != nil {
		return nil, err
	}
	return &ProxyRequest{Prompt: prompt, Model: model, ImageURL: imageURL}, nil
}

// ParseImage validates an image generation body. A missing or blank size
// becomes defaultSize. Count is clamped to [1, MaxImages] and floored rather
// than rejected; "n" is accepted as an alias for "count".
func ParseImage(body []byte, defaultSize string) (*ImageRequest, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	prompt := trimmedString(doc.Get("prompt"))
	if prompt == "" {
		return nil, apierr.MissingField("prompt", "prompt is required.")
	}

	size := trimmedString(doc.Get("size"))
	if size == "" {
		size = defaultSize
	}
	if !ValidSize(size) {
		return nil, apierr.InvalidSize()
	}

	countRes := doc.Get("count")
	if !countRes.Exists() {
		countRes = doc.Get("n")
	}

	req := &ImageRequest{
		Prompt: prompt,
		Model:  imageModel(doc.Get("model")),
		Size:   size,
		Count:  ClampCount(countRes),
	}

	if seed := doc.Get("seed"); seed.Type == gjson.Number {
		if s, ok := clampSeed(seed.Float()); ok {
			req.Seed = &s
		}
	}
	return req, nil
}

// ValidSize reports whether size is WIDTHxHEIGHT with both sides positive.
func ValidSize(size string) bool {
	if !sizePattern.MatchString(size) {
		return false
	}
	w, h, _ := strings.Cut(size, "x")
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return false
	}
	height, err := strconv.Atoi(h)
	return err == nil && height > 0
}

// clampSeed floors f and clamps it to the int64 range. float64(math.MaxInt64)
// rounds up to 2^63, so the upper bound is checked with >=.
func clampSeed(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	f = math.Floor(f)
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64, true
	case f <= math.MinInt64:
		return math.MinInt64, true
	}
	return int64(f), true
}

// ParseImageConfig validates an image config body against catalog.
func ParseImageConfig(body []byte, catalog *models.ImageCatalog) (*ImageConfigRequest, error) {
	doc, err := parseObject(body)
	if err != nil {
		return nil, err
	}
	prompt := trimmedString(doc.Get("prompt"))
	if len([]rune(prompt)) < MinImageConfigPrompt {
		return nil, apierr.MissingField("prompt", "prompt is required and must be at least 5 characters.")
	}

	model := trimmedString(doc.Get("model"))
	if model == "" {
		model = models.DefaultImageConfigModel
	}
	if !catalog.Has(model) {
		return nil, apierr.UnsupportedModel(model, "")
	}

	quality := trimmedString(doc.Get("quality"))
	if quality != "" && !catalog.AllowsQuality(model, quality) {
		return nil, apierr.UnsupportedQuality()
	}
	return &ImageConfigRequest{Prompt: prompt, Model: model, Quality: quality}, nil
}

// ClampCount normalizes an image count: non-numbers become 1, numbers are
// floored and clamped to [1, MaxImages].
func ClampCount(v gjson.Result) int {
	if v.Type != gjson.Number {
		return 1
	}
	f := v.Float()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	n := math.Floor(f)
	return int(math.Max(1, math.Min(MaxImages, n)))
}

func parseObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, apierr.MalformedInput("Invalid JSON payload.")
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return gjson.Result{}, apierr.MalformedInput("Invalid JSON payload.")
	}
	return doc, nil
}

// trimmedString returns the trimmed value when v is a JSON string, "" for
// anything else (absent, null, numbers, objects).
func trimmedString(v gjson.Result) string {
	if v.Type != gjson.String {
		return ""
	}
	return strings.TrimSpace(v.String())
}

func resolveModel(v gjson.Result, reg *models.Registry, defaultModel string) (string, error) {
	id := trimmedString(v)
	if id == "" {
		return defaultModel, nil
	}
	def, ok := reg.Lookup(id)
	if !ok {
		return "", apierr.UnknownModel(id)
	}
	if !def.Supported {
		return "", apierr.UnsupportedModel(id, def.UnsupportedReason)
	}
	return id, nil
}

// imageModel accepts a string or a finite number; the image provider's model
// list is dynamic, so there is no registry check here.
func imageModel(v gjson.Result) string {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.String())
	case gjson.Number:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	default:
		return ""
	}
}
