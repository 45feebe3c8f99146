package chat

// StreamEvent is the unit relayed to the caller while a response is being
// generated: an incremental text delta, a terminal error, or the done
// marker. Exactly one terminal event ends every stream.
type StreamEvent struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"-"`
}

// TextEvent wraps an incremental content delta.
func TextEvent(delta string) StreamEvent {
	return StreamEvent{Text: delta}
}

// ErrorEvent wraps a terminal failure message.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Error: message}
}

// DoneEvent is the terminal marker for a successfully completed stream.
func DoneEvent() StreamEvent {
	return StreamEvent{Done: true}
}

// Terminal reports whether no further events may follow this one.
func (e StreamEvent) Terminal() bool {
	return e.Done || e.Error != ""
}
