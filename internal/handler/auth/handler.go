package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	authservice "github.com/nlin-dev/chatrelay/internal/service/auth"
	"github.com/nlin-dev/chatrelay/pkg/utils"
)

// Handler exposes login and registration.
type Handler struct {
	authSvc *authservice.Service
}

// New creates the auth handler.
func New(authSvc *authservice.Service) *Handler {
	return &Handler{authSvc: authSvc}
}

// RegisterRoutes mounts the public auth endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Post("/register", h.handleRegister)
}

type tokenResponse struct {
	Token string           `json:"token"`
	User  authservice.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authSvc.Login(payload.Email, payload.Password)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	utils.RespondJSON(w, http.StatusOK, tokenResponse{Token: token, User: user})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.authSvc.Register(payload.Name, payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, authservice.ErrEmailTaken) {
			utils.RespondError(w, http.StatusBadRequest, "Email already registered")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "name, email and password are required")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, tokenResponse{Token: token, User: user})
}
