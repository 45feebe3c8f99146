package session

import (
	"context"

	"github.com/nlin-dev/chatrelay/internal/model/chat"
	"github.com/nlin-dev/chatrelay/internal/service/history"
)

// Reconciler commits a finished exchange to history. It runs only after
// the relay resolved with the full assistant text, so the store never
// holds a partial assistant turn.
type Reconciler struct {
	store history.Store
}

// NewReconciler binds the reconciler to its backing store.
func NewReconciler(store history.Store) *Reconciler {
	return &Reconciler{store: store}
}

// Commit appends the user turn and the assistant turn, in that order, as
// one atomic write.
func (r *Reconciler) Commit(ctx context.Context, sessionID, userText, assistantText string) {
	r.store.Append(ctx, sessionID,
		chat.UserTurn(userText),
		chat.AssistantTurn(assistantText),
	)
}
