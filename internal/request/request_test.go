package request

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/howard-nolan/apiconsole/internal/apierr"
	"github.com/howard-nolan/apiconsole/internal/models"
)

func requireKind(t *testing.T, err error, kind apierr.Kind) *apierr.Error {
	t.Helper()
	require.Error(t, err)
	var e *apierr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, kind, e.Kind)
	return e
}

func TestParseAsk_MissingPrompt(t *testing.T) {
	reg := models.Default()
	bodies := []string{
		`{}`,
		`{"prompt":null}`,
		`{"prompt":""}`,
		`{"prompt":"   \n\t"}`,
		`{"prompt":42}`,
		`{"prompt":["hi"]}`,
	}
	for _, b := range bodies {
		_, err := ParseAsk([]byte(b), reg, models.DefaultChatModel)
		e := requireKind(t, err, apierr.KindMissingField)
		assert.Equal(t, "prompt", e.Field, b)
		assert.Equal(t, 400, e.Status)
	}
}

func TestParseAsk_Malformed(t *testing.T) {
	reg := models.Default()
	for _, b := range []string{``, `not json`, `{"prompt":`, `"just a string"`, `[1,2]`, `null`} {
		_, err := ParseAsk([]byte(b), reg, models.DefaultChatModel)
		requireKind(t, err, apierr.KindMalformedInput)
	}
}

func TestParseAsk_DefaultModel(t *testing.T) {
	req, err := ParseAsk([]byte(`{"prompt":"  hello  "}`), models.Default(), "gemma-3-4b")
	require.NoError(t, err)
	assert.Equal(t, "hello", req.Prompt)
	assert.Equal(t, "gemma-3-4b", req.Model)

	req, err = ParseAsk([]byte(`{"prompt":"hello","model":"  "}`), models.Default(), "gemma-3-4b")
	require.NoError(t, err)
	assert.Equal(t, "gemma-3-4b", req.Model)
}

func TestParseAsk_ModelChecks(t *testing.T) {
	reg := models.Default()

	_, err := ParseAsk([]byte(`{"prompt":"hi","model":"gpt-unknown"}`), reg, models.DefaultChatModel)
	requireKind(t, err, apierr.KindUnknownModel)

	_, err = ParseAsk([]byte(`{"prompt":"hi","model":"gemini-2.5-flash-tts"}`), reg, models.DefaultChatModel)
	e := requireKind(t, err, apierr.KindUnsupportedModel)
	assert.Contains(t, e.Message, "TTS only")

	req, err := ParseAsk([]byte(`{"prompt":"hi","model":"gemini-2.5-flash"}`), reg, models.DefaultChatModel)
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", req.Model)
}

func TestParseAsk_PromptCheckedBeforeModel(t *testing.T) {
	_, err := ParseAsk([]byte(`{"model":"nope"}`), models.Default(), models.DefaultChatModel)
	requireKind(t, err, apierr.KindMissingField)
}

func TestParseVision(t *testing.T) {
	reg := models.Default()

	_, err := ParseVision([]byte(`{"prompt":"what is this"}`), reg, models.DefaultChatModel)
	e := requireKind(t, err, apierr.KindMissingField)
	assert.Equal(t, "imageUrl", e.Field)

	_, err = ParseVision([]byte(`{"imageUrl":"https://x/y.png"}`), reg, models.DefaultChatModel)
	e = requireKind(t, err, apierr.KindMissingField)
	assert.Equal(t, "prompt", e.Field)

	req, err := ParseVision([]byte(`{"prompt":"what","imageUrl":" https://x/y.png "}`), reg, models.DefaultChatModel)
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", req.ImageURL)
	assert.Equal(t, models.DefaultChatModel, req.Model)
}

func TestParseImage_Size(t *testing.T) {
	accepted := []string{"1024x1024", "1x1", "512x768", "0512x512"}
	for _, s := range accepted {
		req, err := ParseImage([]byte(`{"prompt":"cat","size":"`+s+`"}`), "1024x1024")
		require.NoError(t, err, s)
		assert.Equal(t, s, req.Size)
	}

	rejected := []string{"abc", "1024", "1024x", "x1024", "-1x5", "10x-5", "1024X1024", "1024 x 1024", "1.5x2", "0x0", "0x512", "512x0", "000x512", "99999999999999999999x1"}
	for _, s := range rejected {
		_, err := ParseImage([]byte(`{"prompt":"cat","size":"`+s+`"}`), "1024x1024")
		requireKind(t, err, apierr.KindInvalidSize)
	}

	req, err := ParseImage([]byte(`{"prompt":"cat"}`), "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, "1024x1024", req.Size)
}

func TestParseImage_CountClamped(t *testing.T) {
	cases := map[string]int{
		`0`:     1,
		`7`:     4,
		`2.5`:   2,
		`-3`:    1,
		`4`:     4,
		`"3"`:   1,
		`null`:  1,
		`1e300`: 4,
	}
	for raw, want := range cases {
		req, err := ParseImage([]byte(`{"prompt":"cat","count":`+raw+`}`), "1024x1024")
		require.NoError(t, err, raw)
		assert.Equal(t, want, req.Count, raw)
	}
}

func TestParseImage_CountAlias(t *testing.T) {
	req, err := ParseImage([]byte(`{"prompt":"cat","n":3}`), "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, 3, req.Count)

	req, err = ParseImage([]byte(`{"prompt":"cat","n":3,"count":2}`), "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, 2, req.Count)
}

func TestParseImage_Seed(t *testing.T) {
	req, err := ParseImage([]byte(`{"prompt":"cat","seed":42.9}`), "1024x1024")
	require.NoError(t, err)
	require.NotNil(t, req.Seed)
	assert.Equal(t, int64(42), *req.Seed)

	req, err = ParseImage([]byte(`{"prompt":"cat","seed":-1.5}`), "1024x1024")
	require.NoError(t, err)
	require.NotNil(t, req.Seed)
	assert.Equal(t, int64(-2), *req.Seed)

	req, err = ParseImage([]byte(`{"prompt":"cat","seed":"7"}`), "1024x1024")
	require.NoError(t, err)
	assert.Nil(t, req.Seed)
}

func TestParseImage_SeedOutOfRange(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{`1e300`, math.MaxInt64},
		{`9223372036854775808`, math.MaxInt64},
		{`-1e300`, math.MinInt64},
		{`-9223372036854775809`, math.MinInt64},
		{`9007199254740992`, 9007199254740992},
	}
	for _, tc := range cases {
		req, err := ParseImage([]byte(`{"prompt":"cat","seed":`+tc.raw+`}`), "1024x1024")
		require.NoError(t, err, tc.raw)
		require.NotNil(t, req.Seed, tc.raw)
		assert.Equal(t, tc.want, *req.Seed, tc.raw)
	}
}

func TestParseImage_Model(t *testing.T) {
	req, err := ParseImage([]byte(`{"prompt":"cat","model":" flux "}`), "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, "flux", req.Model)

	req, err = ParseImage([]byte(`{"prompt":"cat","model":3}`), "1024x1024")
	require.NoError(t, err)
	assert.Equal(t, "3", req.Model)

	req, err = ParseImage([]byte(`{"prompt":"cat"}`), "1024x1024")
	require.NoError(t, err)
	assert.Empty(t, req.Model)
}

func TestParseImageConfig(t *testing.T) {
	cat := models.DefaultImageCatalog()

	_, err := ParseImageConfig([]byte(`{"prompt":"cat"}`), cat)
	requireKind(t, err, apierr.KindMissingField)

	req, err := ParseImageConfig([]byte(`{"prompt":"a red cat"}`), cat)
	require.NoError(t, err)
	assert.Equal(t, "gpt-image-1", req.Model)
	assert.Empty(t, req.Quality)

	_, err = ParseImageConfig([]byte(`{"prompt":"a red cat","model":"flux"}`), cat)
	requireKind(t, err, apierr.KindUnsupportedModel)

	_, err = ParseImageConfig([]byte(`{"prompt":"a red cat","model":"gemini-2.5-flash-image-preview","quality":"hd"}`), cat)
	requireKind(t, err, apierr.KindUnsupportedQuality)

	req, err = ParseImageConfig([]byte(`{"prompt":"a red cat","model":"dall-e-3","quality":"hd"}`), cat)
	require.NoError(t, err)
	assert.Equal(t, "hd", req.Quality)
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, 1, ClampCount(gjson.Result{}))
	assert.Equal(t, 3, ClampCount(gjson.Parse("3.99")))
}
