package message

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/middleware"
	projectmodel "github.com/devsync-io/devsync/backend/internal/model/project"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

// Handler exposes the per-project message log over REST, mirroring the
// realtime history events for clients that poll instead of connecting.
type Handler struct {
	messages *messageservice.Service
	projects store.ProjectStore
	logger   zerolog.Logger
}

// New creates the message history handler.
func New(messages *messageservice.Service, projects store.ProjectStore, logger zerolog.Logger) *Handler {
	return &Handler{
		messages: messages,
		projects: projects,
		logger:   logger.With().Str("component", "message-history").Logger(),
	}
}

// RegisterRoutes mounts the history routes. The router passed in is
// the /projects subtree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/{projectID}/messages", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/count", h.handleCount)
		r.Post("/search", h.handleSearch)
		r.Delete("/", h.handleClear)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	msgs, err := h.messages.List(r.Context(), p.ID, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to list messages")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	count, err := h.messages.Count(r.Context(), p.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to count messages")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":   msgs,
		"totalCount": count,
	})
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	count, err := h.messages.Count(r.Context(), p.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to count messages")
		utils.RespondError(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	var req struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msgs, err := h.messages.Search(r.Context(), p.ID, req.SearchTerm)
	if err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("message search failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to search messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages":   msgs,
		"totalCount": len(msgs),
	})
}

// handleClear wipes a project's log. Restricted to the project creator.
func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	u, _ := middleware.UserFrom(r.Context())
	if u == nil || p.CreatedBy != u.ID {
		utils.RespondError(w, http.StatusForbidden, "only the project creator can clear messages")
		return
	}

	if err := h.messages.Clear(r.Context(), p.ID); err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to clear messages")
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear messages")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "messages cleared"})
}

func (h *Handler) memberProject(w http.ResponseWriter, r *http.Request) (*projectmodel.Project, bool) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}

	id := chi.URLParam(r, "projectID")
	p, err := h.projects.FindProjectByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "project not found")
			return nil, false
		}
		h.logger.Error().Err(err).Str("project", id).Msg("project lookup failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load project")
		return nil, false
	}
	if !p.HasMember(u.ID) {
		utils.RespondError(w, http.StatusNotFound, "project not found")
		return nil, false
	}
	return p, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
