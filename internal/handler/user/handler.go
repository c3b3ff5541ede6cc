package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/devsync-io/devsync/backend/internal/auth"
	"github.com/devsync-io/devsync/backend/internal/middleware"
	"github.com/devsync-io/devsync/backend/internal/store"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

const minPasswordLen = 6

// Handler serves account registration and session endpoints.
type Handler struct {
	users  store.IdentityStore
	auth   *auth.Service
	logger zerolog.Logger
}

// New creates the user handler.
func New(users store.IdentityStore, authSvc *auth.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		users:  users,
		auth:   authSvc,
		logger: logger.With().Str("component", "users").Logger(),
	}
}

// RegisterRoutes mounts the account routes. Profile requires a session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.auth))
			r.Get("/logout", h.handleLogout)
			r.Get("/profile", h.handleProfile)
		})
	})
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		utils.RespondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		utils.RespondError(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to hash password")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	u, err := h.users.CreateUser(r.Context(), req.Email, string(hash))
	if err != nil {
		// The unique index on email is the source of truth for
		// duplicates.
		if strings.Contains(err.Error(), "UNIQUE") {
			utils.RespondError(w, http.StatusConflict, "an account with this email already exists")
			return
		}
		h.logger.Error().Err(err).Msg("failed to create user")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.issueSession(w, r, u.ID, u.Email, http.StatusCreated, u)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	u, err := h.users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		h.logger.Error().Err(err).Msg("login lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		utils.RespondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	h.issueSession(w, r, u.ID, u.Email, http.StatusOK, u)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.ExtractToken(r); token != "" {
		if err := h.auth.Revoke(r.Context(), token); err != nil {
			h.logger.Warn().Err(err).Msg("failed to blacklist token on logout")
		}
	}
	middleware.ClearSessionCookie(w)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	utils.RespondJSON(w, http.StatusOK, u)
}

func (h *Handler) issueSession(w http.ResponseWriter, r *http.Request, userID, email string, status int, u any) {
	token, err := h.auth.Tokens().Issue(userID, email)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue session token")
		utils.RespondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	middleware.SetSessionCookie(w, token)
	utils.RespondJSON(w, status, sessionResponse{User: u, Token: token})
}
