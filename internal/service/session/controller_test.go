package session_test

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/nlin-dev/chatrelay/internal/model/chat"
	"github.com/nlin-dev/chatrelay/internal/service/history"
	"github.com/nlin-dev/chatrelay/internal/service/prompt"
	"github.com/nlin-dev/chatrelay/internal/service/relay"
	"github.com/nlin-dev/chatrelay/internal/service/session"
)

// scriptedCompleter replays fixed deltas, then serves the final text. A
// non-nil gate blocks stream opening until the gate closes; started
// receives a signal when a stream call begins waiting.
type scriptedCompleter struct {
	deltas    []string
	finalText string
	streamErr error
	recvErr   error
	gate      chan struct{}
	started   chan struct{}
}

type scriptedStream struct {
	c   *scriptedCompleter
	pos int
}

func (c *scriptedCompleter) StreamCompletion(ctx context.Context, _ []chat.Turn) (relay.CompletionStream, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &scriptedStream{c: c}, nil
}

func (c *scriptedCompleter) Completion(_ context.Context, _ []chat.Turn) (string, error) {
	return c.finalText, nil
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos >= len(s.c.deltas) {
		if s.c.recvErr != nil {
			return "", s.c.recvErr
		}
		return "", io.EOF
	}
	delta := s.c.deltas[s.pos]
	s.pos++
	return delta, nil
}

func (s *scriptedStream) Close() error { return nil }

func newController(completer relay.Completer) (*session.Controller, *history.MemoryStore) {
	store := history.NewMemoryStore(0)
	r := relay.New(completer, 0)
	return session.NewController(store, r, "preamble"), store
}

func discard(chat.StreamEvent) {}

func TestHandleChatCommitsExchange(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"Hi", " there"}, finalText: "Hi there"}
	ctrl, store := newController(completer)
	ctx := context.Background()

	var events []chat.StreamEvent
	err := ctrl.HandleChat(ctx, "u1", "s1", "Hello", func(e chat.StreamEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}

	want := []chat.Turn{
		chat.SystemTurn("preamble"),
		chat.UserTurn("Hello"),
		chat.AssistantTurn("Hi there"),
	}
	if got := store.Get(ctx, "s1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("transcript mismatch: got %+v want %+v", got, want)
	}

	if len(events) != 3 || !events[len(events)-1].Done {
		t.Fatalf("expected two deltas then done marker, got %+v", events)
	}
}

func TestHandleChatFailureLeavesHistoryUntouched(t *testing.T) {
	completer := &scriptedCompleter{deltas: []string{"par"}, recvErr: errors.New("upstream reset")}
	ctrl, store := newController(completer)
	ctx := context.Background()

	if err := ctrl.HandleChat(ctx, "u1", "s1", "Hello", discard); err == nil {
		t.Fatal("expected relay failure")
	}

	// A fresh session keeps only its seeded system turn after a failure.
	want := []chat.Turn{chat.SystemTurn("preamble")}
	if got := store.Get(ctx, "s1"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected seeded-only transcript, got %+v", got)
	}
}

func TestHandleChatFailurePreservesExistingTranscript(t *testing.T) {
	good := &scriptedCompleter{deltas: []string{"ok"}, finalText: "ok"}
	ctrl, store := newController(good)
	ctx := context.Background()

	if err := ctrl.HandleChat(ctx, "u1", "s1", "first", discard); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}
	before := store.Get(ctx, "s1")

	good.streamErr = errors.New("provider down")
	if err := ctrl.HandleChat(ctx, "u1", "s1", "second", discard); err == nil {
		t.Fatal("expected relay failure")
	}

	if after := store.Get(ctx, "s1"); !reflect.DeepEqual(before, after) {
		t.Fatalf("failed call changed history: before %+v after %+v", before, after)
	}
}

func TestHandleChatValidatesInput(t *testing.T) {
	ctrl, store := newController(&scriptedCompleter{finalText: "never"})
	ctx := context.Background()

	if err := ctrl.HandleChat(ctx, "u1", "", "Hello", discard); !errors.Is(err, session.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	if err := ctrl.HandleChat(ctx, "u1", "s1", "  ", discard); !errors.Is(err, prompt.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("invalid input must not touch the store")
	}
}

func TestHandleChatRejectsConcurrentSameSession(t *testing.T) {
	completer := &scriptedCompleter{
		finalText: "ok",
		gate:      make(chan struct{}),
		started:   make(chan struct{}, 1),
	}
	ctrl, _ := newController(completer)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- ctrl.HandleChat(ctx, "u1", "s1", "first", discard)
	}()

	// Wait for the first call to hold the in-flight slot.
	select {
	case <-completer.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first call never reached the provider")
	}

	if err := ctrl.HandleChat(ctx, "u1", "s1", "second", discard); !errors.Is(err, session.ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}

	close(completer.gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first call err: %v", err)
	}

	// The slot is free again once the first call finishes.
	if err := ctrl.HandleChat(ctx, "u1", "s1", "third", discard); err != nil {
		t.Fatalf("follow-up call err: %v", err)
	}
}

func TestSessionBoundToFirstCaller(t *testing.T) {
	ctrl, _ := newController(&scriptedCompleter{finalText: "ok"})
	ctx := context.Background()

	if err := ctrl.HandleChat(ctx, "alice", "s1", "hi", discard); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}

	if err := ctrl.HandleChat(ctx, "bob", "s1", "hi", discard); !errors.Is(err, session.ErrSessionForbidden) {
		t.Fatalf("expected ErrSessionForbidden for foreign chat, got %v", err)
	}
	if err := ctrl.HandleClear(ctx, "bob", "s1"); !errors.Is(err, session.ErrSessionForbidden) {
		t.Fatalf("expected ErrSessionForbidden for foreign clear, got %v", err)
	}

	// The owner can clear, which releases the binding for reuse.
	if err := ctrl.HandleClear(ctx, "alice", "s1"); err != nil {
		t.Fatalf("owner clear err: %v", err)
	}
	if err := ctrl.HandleChat(ctx, "bob", "s1", "hi", discard); err != nil {
		t.Fatalf("reclaimed session err: %v", err)
	}
}

func TestHandleClearIsIdempotent(t *testing.T) {
	ctrl, store := newController(&scriptedCompleter{finalText: "ok"})
	ctx := context.Background()

	if err := ctrl.HandleClear(ctx, "u1", "never-used"); err != nil {
		t.Fatalf("clear of unknown session err: %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("clear of unknown session changed the store")
	}
}

func TestClearThenChatReseedsOnce(t *testing.T) {
	ctrl, store := newController(&scriptedCompleter{deltas: []string{"ok"}, finalText: "ok"})
	ctx := context.Background()

	if err := ctrl.HandleChat(ctx, "u1", "s1", "first", discard); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}
	if err := ctrl.HandleClear(ctx, "u1", "s1"); err != nil {
		t.Fatalf("HandleClear err: %v", err)
	}
	if err := ctrl.HandleChat(ctx, "u1", "s1", "second", discard); err != nil {
		t.Fatalf("HandleChat err: %v", err)
	}

	got := store.Get(ctx, "s1")
	if len(got) != 3 || got[0].Role != chat.RoleSystem {
		t.Fatalf("expected fresh seeded transcript, got %+v", got)
	}
	for _, turn := range got[1:] {
		if turn.Role == chat.RoleSystem {
			t.Fatalf("duplicate system turn after reseed: %+v", got)
		}
	}
}

func TestConcurrentDifferentSessionsProceed(t *testing.T) {
	completer := &scriptedCompleter{finalText: "ok", gate: make(chan struct{})}
	ctrl, _ := newController(completer)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- ctrl.HandleChat(ctx, "u1", "s1", "hi", discard)
	}()
	time.Sleep(5 * time.Millisecond)

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- ctrl.HandleChat(ctx, "u2", "s2", "hi", discard)
	}()

	close(completer.gate)
	if err := <-firstDone; err != nil {
		t.Fatalf("session s1 err: %v", err)
	}
	if err := <-secondDone; err != nil {
		t.Fatalf("session s2 err: %v", err)
	}
}
