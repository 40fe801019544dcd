package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/howard-nolan/apiconsole/internal/apierr"
	"github.com/howard-nolan/apiconsole/internal/request"
	"github.com/howard-nolan/apiconsole/internal/stream"
)

// healthTimeFormat matches JavaScript's Date.toISOString.
const healthTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// imageConfigInstructions tells the browser how to render the image itself.
const imageConfigInstructions = "Use puter.ai.txt2img(prompt, { model, quality }) in the client."

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// handleHealth is a liveness probe. It touches no upstream.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.envelope.wrap(http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   s.cfg.Server.ServiceName,
		"timestamp": s.now().UTC().Format(healthTimeFormat),
	}))
}

// handleModels lists the model table so the UI can build its pickers.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.envelope.wrap(http.StatusOK, map[string]any{
		"models":       s.registry.All(),
		"defaultModel": s.cfg.Defaults.StreamModel,
	}))
}

// handleAsk handles POST /ask: one completion with the console's system
// prompt in front.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	// The credential check comes first so a misconfigured server answers
	// 500 no matter what the body looks like.
	if err := s.dispatch.RequireChat(); err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := request.ParseAsk(body, s.registry, s.cfg.Defaults.AskModel)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.dispatch.Ask(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.envelope.ask(res.Text, res.Model))
}

// handleVision handles POST /vision and returns the upstream completion
// unchanged under "data".
func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatch.RequireChat(); err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := request.ParseVision(body, s.registry, s.cfg.Defaults.VisionModel)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	raw, err := s.dispatch.Vision(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.envelope.wrap(http.StatusOK, map[string]any{"data": raw}))
}

// handleImage handles POST /image.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatch.RequireChat(); err != nil {
		s.fail(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := request.ParseImage(body, s.cfg.Image.DefaultSize)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.dispatch.Images(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := map[string]any{
		"images": res.URLs,
		"model":  res.Model,
		"size":   res.Size,
		"count":  res.Count,
	}
	if res.Seed != nil {
		out["seed"] = *res.Seed
	}
	writeJSON(w, http.StatusOK, s.envelope.wrap(http.StatusOK, out))
}

// handleImageConfig handles POST /image/config. It only validates; the
// browser generates the image itself with the returned config.
func (s *Server) handleImageConfig(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(w, r)
	if err == nil {
		var req *request.ImageConfigRequest
		req, err = request.ParseImageConfig(body, s.catalog)
		if err == nil {
			cfg := map[string]any{"prompt": req.Prompt, "model": req.Model}
			if req.Quality != "" {
				cfg["quality"] = req.Quality
			}
			writeJSON(w, http.StatusOK, s.envelope.wrap(http.StatusOK, map[string]any{
				"success":      true,
				"image":        "",
				"config":       cfg,
				"instructions": imageConfigInstructions,
			}))
			return
		}
	}

	e := s.classify(r, err)
	out := s.envelope.failure(e.Status, e.Message)
	out["success"] = false
	writeJSON(w, e.Status, out)
}

// handleGenerate handles POST /generate: a plain-text token stream.
//
// Everything that can fail before the first token (credentials, body,
// model, the upstream refusing the call) still gets a real status code,
// with the message as a plain-text body. Once the first byte is out, a
// failure can only show up as the sentinel line stream.Relay appends.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatch.RequireStream(); err != nil {
		s.failText(w, r, err)
		return
	}
	body, err := s.readBody(w, r)
	if err != nil {
		s.failText(w, r, err)
		return
	}
	req, err := request.ParseGenerate(body, s.registry, s.cfg.Defaults.StreamModel)
	if err != nil {
		s.failText(w, r, err)
		return
	}

	// r.Context() is cancelled when the client disconnects, which stops
	// the provider goroutine and releases the upstream connection.
	chunks, err := s.dispatch.Stream(r.Context(), req)
	if err != nil {
		s.failText(w, r, err)
		return
	}

	if err := stream.Relay(w, chunks); err != nil {
		hlog.FromRequest(r).Warn().
			Err(err).
			Str("kind", string(apierr.KindStreamInterrupted)).
			Str("model", req.Model).
			Msg("stream interrupted")
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// readBody reads the whole request body, capped at server.max_body_bytes.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apierr.MalformedInput("Request body too large.")
		}
		return nil, apierr.MalformedInput("Invalid JSON payload.")
	}
	return body, nil
}

// classify turns err into a client-facing error and logs it. Upstream and
// server-side failures log at error level, caller mistakes at debug.
func (s *Server) classify(r *http.Request, err error) *apierr.Error {
	e := apierr.From(err)

	var ev *zerolog.Event
	log := hlog.FromRequest(r)
	if e.Kind == apierr.KindUpstream || e.Status >= http.StatusInternalServerError {
		ev = log.Error().Err(err)
	} else {
		ev = log.Debug()
	}
	ev.Str("kind", string(e.Kind)).
		Int("status", e.Status).
		Str("detail", e.Message).
		Msg("request failed")
	return e
}

// fail writes err as a JSON error body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := s.classify(r, err)
	writeJSON(w, e.Status, s.envelope.failure(e.Status, e.Message))
}

// failText writes err as a plain-text body, for the streaming route.
func (s *Server) failText(w http.ResponseWriter, r *http.Request, err error) {
	e := s.classify(r, err)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(e.Status)
	_, _ = io.WriteString(w, e.Message)
}
