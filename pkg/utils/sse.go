package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
)

// doneFrame is the literal terminal marker mandated by the stream
// protocol; it is not JSON.
const doneFrame = "data: [DONE]\n\n"

// SetupSSEHeaders prepares the response for Server-Sent Events.
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// SendSSEChunk writes one `data: <json>` frame and flushes it.
func SendSSEChunk(w http.ResponseWriter, flusher http.Flusher, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[sse] failed to marshal payload: %v", err)
		return
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		log.Printf("[sse] failed to write frame: %v", err)
		return
	}
	flusher.Flush()
}

// SendSSEDone writes the terminal done marker and flushes it.
func SendSSEDone(w http.ResponseWriter, flusher http.Flusher) {
	if _, err := fmt.Fprint(w, doneFrame); err != nil {
		log.Printf("[sse] failed to write done marker: %v", err)
		return
	}
	flusher.Flush()
}
