package apierr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// QuotaExceededMessage replaces whatever text an upstream sends with a 429.
// Upstream 429 bodies differ between providers and are often empty.
const QuotaExceededMessage = "Quota exceeded. Check your plan and usage limits: https://ai.google.dev/gemini-api/docs/rate-limits"

// GenericUpstreamMessage is used when nothing better can be extracted.
const GenericUpstreamMessage = "Upstream provider error."

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// Coder is implemented by errors that carry a numeric code instead of a
// status. It is only consulted when no status is present.
type Coder interface {
	ErrorCode() int
}

// Messager is implemented by errors that expose the upstream's own message,
// separate from the wrapped Error() text.
type Messager interface {
	UpstreamMessage() string
}

// Normalize maps any upstream failure to a status in [400,599] and a
// message. It never panics and always returns a usable pair; a nil error
// yields 500 and the generic message.
func Normalize(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, GenericUpstreamMessage
	}

	var status int
	var sc StatusCoder
	var cd Coder
	switch {
	case errors.As(err, &sc):
		status = sc.HTTPStatus()
	case errors.As(err, &cd):
		status = cd.ErrorCode()
	}

	var message string
	var m Messager
	if errors.As(err, &m) {
		message = m.UpstreamMessage()
	}

	// Some SDKs stuff the raw upstream body into the message, e.g.
	// {"error":{"code":404,"message":"not found"}}.
	raw := message
	if raw == "" {
		raw = err.Error()
	}
	if code, msg, ok := parseEmbeddedError(raw); ok {
		if status == 0 && code != 0 {
			status = code
		}
		if msg != "" {
			message = msg
		}
	}

	if message == "" {
		message = strings.TrimSpace(err.Error())
	}
	if message == "" {
		message = GenericUpstreamMessage
	}

	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	if status == http.StatusTooManyRequests {
		message = QuotaExceededMessage
	}
	return status, message
}

// parseEmbeddedError extracts error.code / error.message from s when s,
// trimmed, is a JSON object.
func parseEmbeddedError(s string) (int, string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") || !gjson.Valid(s) {
		return 0, "", false
	}
	res := gjson.Parse(s)
	codeRes := res.Get("error.code")
	msgRes := res.Get("error.message")
	if !codeRes.Exists() && !msgRes.Exists() {
		return 0, "", false
	}

	var code int
	if codeRes.Type == gjson.Number {
		code = int(codeRes.Int())
	}
	var msg string
	if msgRes.Type == gjson.String {
		msg = msgRes.String()
	}
	return code, msg, true
}
