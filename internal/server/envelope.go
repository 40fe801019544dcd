package server

import (
	"encoding/json"
	"net/http"
)

// Envelope selects the JSON body shape every route answers with.
//
// Plain bodies carry only the route's own fields. Coded bodies add a
// numeric "code" equal to the HTTP status, and /ask additionally names who
// answered in "cost", the shape the browser console reads.
type Envelope string

const (
	EnvelopePlain Envelope = "plain"
	EnvelopeCoded Envelope = "coded"
)

// askCost is the /ask "cost" value in coded mode.
const askCost = "Local AI Assistant"

// wrap returns body with the envelope fields added. body is modified in
// place.
func (e Envelope) wrap(status int, body map[string]any) map[string]any {
	if e == EnvelopeCoded {
		body["code"] = status
	}
	return body
}

// ask shapes the /ask success body.
func (e Envelope) ask(text, model string) map[string]any {
	body := map[string]any{"text": text, "model": model}
	if e == EnvelopeCoded {
		body["cost"] = askCost
	}
	return e.wrap(http.StatusOK, body)
}

// failure shapes an error body.
func (e Envelope) failure(status int, msg string) map[string]any {
	return e.wrap(status, map[string]any{"error": msg})
}

// writeJSON writes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here can only
	// mean the client went away.
	_ = json.NewEncoder(w).Encode(v)
}
