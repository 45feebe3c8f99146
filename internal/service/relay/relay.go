package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/nlin-dev/chatrelay/internal/model/chat"
)

// FailureMessage is the only error text ever surfaced to the caller; the
// underlying provider error stays in the logs.
const FailureMessage = "Failed to process message"

// Completer abstracts the inference provider: one incremental call for
// the live stream and one plain call for the canonical final text.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []chat.Turn) (CompletionStream, error)
	Completion(ctx context.Context, messages []chat.Turn) (string, error)
}

// CompletionStream yields textual deltas until io.EOF.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// EmitFunc receives stream events in emission order. Implementations must
// not retain the event past the call.
type EmitFunc func(chat.StreamEvent)

// Relay drives one provider round trip per user message and republishes
// the incremental output. It holds no shared state; every Run is
// request-scoped.
type Relay struct {
	completer Completer
	timeout   time.Duration
}

// New builds a relay over the given provider. timeout bounds the whole
// round trip, streaming and finalization included; zero disables it.
func New(completer Completer, timeout time.Duration) *Relay {
	return &Relay{completer: completer, timeout: timeout}
}

// Run streams the completion for the assembled message list. Non-empty
// deltas are emitted strictly in provider order, one chunk in flight at a
// time. After the stream is exhausted a second, non-streaming call fetches
// the full assistant text; the incremental API does not guarantee that the
// deltas concatenate to the canonical response, and only the canonical
// text is worth committing to history.
//
// On success Run emits the done marker and returns the full text. On any
// provider failure it emits a single error event and returns the error
// with nothing committed anywhere. If ctx is canceled by the caller the
// provider call is aborted and no further events are emitted.
func (r *Relay) Run(ctx context.Context, messages []chat.Turn, emit EmitFunc) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stream, err := r.completer.StreamCompletion(ctx, messages)
	if err != nil {
		return "", r.fail(ctx, emit, fmt.Errorf("open completion stream: %w", err))
	}
	defer stream.Close()

	for {
		delta, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", r.fail(ctx, emit, fmt.Errorf("receive completion chunk: %w", recvErr))
		}
		if delta != "" {
			emit(chat.TextEvent(delta))
		}
	}

	final, err := r.completer.Completion(ctx, messages)
	if err != nil {
		return "", r.fail(ctx, emit, fmt.Errorf("fetch final completion: %w", err))
	}

	emit(chat.DoneEvent())
	return final, nil
}

// fail logs the provider error and converts it to the generic caller-facing
// error event. A caller-initiated cancellation gets no event; the caller
// has already disconnected.
func (r *Relay) fail(ctx context.Context, emit EmitFunc, err error) error {
	log.Printf("[relay] completion failed: %v", err)
	if !errors.Is(ctx.Err(), context.Canceled) {
		emit(chat.ErrorEvent(FailureMessage))
	}
	return err
}
