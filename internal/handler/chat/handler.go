package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nlin-dev/chatrelay/internal/middleware"
	chatmodel "github.com/nlin-dev/chatrelay/internal/model/chat"
	"github.com/nlin-dev/chatrelay/internal/service/prompt"
	"github.com/nlin-dev/chatrelay/internal/service/session"
	"github.com/nlin-dev/chatrelay/pkg/utils"
)

// Handler exposes the chat relay over HTTP.
type Handler struct {
	controller *session.Controller
}

// New creates the chat handler.
func New(controller *session.Controller) *Handler {
	return &Handler{controller: controller}
}

// RegisterRoutes mounts the chat endpoints. Both require an authenticated
// caller in the request context.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/clear-chat", h.handleClear)
}

// handleChat streams one model response as SSE frames. The response
// switches to the event stream only once the first event is emitted, so
// validation and admission failures still surface as plain JSON errors.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" || payload.Message == "" {
		utils.RespondError(w, http.StatusBadRequest, "Session ID and message are required")
		return
	}

	streaming := false
	emit := func(event chatmodel.StreamEvent) {
		if !streaming {
			utils.SetupSSEHeaders(w)
			streaming = true
		}
		if event.Done {
			utils.SendSSEDone(w, flusher)
			return
		}
		utils.SendSSEChunk(w, flusher, event)
	}

	err := h.controller.HandleChat(r.Context(), caller.ID, payload.SessionID, payload.Message, emit)
	if err == nil {
		return
	}

	log.Printf("[chat] session=%s: %v", payload.SessionID, err)
	if streaming {
		// The relay already emitted the terminal error frame; the stream
		// simply ends here.
		return
	}

	switch {
	case errors.Is(err, session.ErrInvalidSession), errors.Is(err, prompt.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "Session ID and message are required")
	case errors.Is(err, session.ErrSessionBusy):
		utils.RespondError(w, http.StatusConflict, "a message is already being processed for this session")
	case errors.Is(err, session.ErrSessionForbidden):
		utils.RespondError(w, http.StatusForbidden, "session belongs to another user")
	default:
		utils.RespondError(w, http.StatusInternalServerError, "Failed to process message")
	}
}

// handleClear drops the session history.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var payload struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	if err := h.controller.HandleClear(r.Context(), caller.ID, payload.SessionID); err != nil {
		if errors.Is(err, session.ErrSessionForbidden) {
			utils.RespondError(w, http.StatusForbidden, "session belongs to another user")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "Chat history cleared"})
}
