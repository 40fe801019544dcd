// Package stream relays a provider's token stream to the HTTP client as
// plain text.
package stream

import (
	"fmt"
	"io"
	"net/http"

	"github.com/howard-nolan/apiconsole/internal/provider"
)

// InterruptedSentinel is appended to the body when the upstream stream fails
// after the status line has been sent.
const InterruptedSentinel = "\n[Stream interrupted]\n"

// ---------------------------------------------------------------------------
// Relay
// ---------------------------------------------------------------------------

// Relay reads StreamChunks from the channel and writes each non-empty delta
// to w, flushing after every write so the client sees tokens as they
// arrive.
//
// This is the consumer side of the streaming pipeline:
//
//	provider goroutine → channel → Relay() → http.ResponseWriter → client
//
// Headers and the 200 status are committed before the first chunk, so a
// failure mid-stream can't become an HTTP error any more. Instead Relay
// writes InterruptedSentinel and returns the upstream error for the caller
// to log. A normal end of stream writes nothing extra.
//
// A write error means the client went away. Relay returns it without
// draining the channel; the provider goroutine sees the request context
// cancelled and stops on its own.
func Relay(w http.ResponseWriter, chunks <-chan provider.StreamChunk) error {
	// Not every ResponseWriter can flush (some test doubles and wrapping
	// middleware can't). Without it the text still arrives, just buffered.
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flush()

	for chunk := range chunks {
		if chunk.Err != nil {
			if _, err := io.WriteString(w, InterruptedSentinel); err != nil {
				return fmt.Errorf("writing stream sentinel: %w", err)
			}
			flush()
			return chunk.Err
		}

		if chunk.Delta == "" {
			continue
		}
		if _, err := io.WriteString(w, chunk.Delta); err != nil {
			return fmt.Errorf("writing stream chunk: %w", err)
		}
		flush()
	}

	return nil
}
