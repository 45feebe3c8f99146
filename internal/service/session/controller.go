package session

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/nlin-dev/chatrelay/internal/service/history"
	"github.com/nlin-dev/chatrelay/internal/service/prompt"
	"github.com/nlin-dev/chatrelay/internal/service/relay"
)

var (
	// ErrInvalidSession rejects requests without a session id.
	ErrInvalidSession = errors.New("session id is required")
	// ErrSessionBusy rejects a chat request while another relay is in
	// flight for the same session.
	ErrSessionBusy = errors.New("session already has a message in flight")
	// ErrSessionForbidden rejects access to a session bound to a
	// different authenticated caller.
	ErrSessionForbidden = errors.New("session belongs to another user")
)

// Controller wires one chat request through assembly, relay and
// reconciliation, and owns the session-level concurrency rules: at most
// one in-flight relay per session, and a session id is bound to the first
// caller that uses it.
type Controller struct {
	store      history.Store
	relay      *relay.Relay
	reconciler *Reconciler
	preamble   string

	mu       sync.Mutex
	inflight map[string]struct{}
	owners   map[string]string
}

// NewController builds the controller over its collaborators. preamble is
// the system prompt seeded into every new transcript.
func NewController(store history.Store, r *relay.Relay, preamble string) *Controller {
	return &Controller{
		store:      store,
		relay:      r,
		reconciler: NewReconciler(store),
		preamble:   preamble,
		inflight:   make(map[string]struct{}),
		owners:     make(map[string]string),
	}
}

// HandleChat runs one full chat exchange: validate, seed, assemble,
// relay, commit. Events stream to emit while the relay runs. On any relay
// failure history is left exactly as it was before the call.
func (c *Controller) HandleChat(ctx context.Context, callerID, sessionID, message string, emit relay.EmitFunc) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}
	if strings.TrimSpace(message) == "" {
		return prompt.ErrEmptyMessage
	}

	if err := c.acquire(callerID, sessionID); err != nil {
		return err
	}
	defer c.release(sessionID)

	transcript := c.store.EnsureSeeded(ctx, sessionID, c.preamble)

	messages, err := prompt.Build(transcript, message)
	if err != nil {
		return err
	}

	assistantText, err := c.relay.Run(ctx, messages, emit)
	if err != nil {
		return err
	}

	c.reconciler.Commit(ctx, sessionID, message, assistantText)
	log.Printf("[session] committed exchange for session=%s turns=%d", sessionID, len(messages)+1)
	return nil
}

// HandleClear removes the session transcript and releases its caller
// binding. Clearing an unknown session succeeds.
func (c *Controller) HandleClear(ctx context.Context, callerID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrInvalidSession
	}

	c.mu.Lock()
	if owner, ok := c.owners[sessionID]; ok && owner != callerID {
		c.mu.Unlock()
		return ErrSessionForbidden
	}
	delete(c.owners, sessionID)
	c.mu.Unlock()

	c.store.Delete(ctx, sessionID)
	return nil
}

// acquire takes the per-session single-flight slot and binds the session
// to its first caller. Latecomers are rejected, not queued.
func (c *Controller) acquire(callerID, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.owners[sessionID]; ok {
		if owner != callerID {
			return ErrSessionForbidden
		}
	} else {
		c.owners[sessionID] = callerID
	}

	if _, busy := c.inflight[sessionID]; busy {
		return ErrSessionBusy
	}
	c.inflight[sessionID] = struct{}{}
	return nil
}

func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, sessionID)
}
