package project

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/middleware"
	projectmodel "github.com/devsync-io/devsync/backend/internal/model/project"
	"github.com/devsync-io/devsync/backend/internal/store"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

// Handler serves project CRUD and membership endpoints. All routes
// require a session; mutation routes additionally require membership.
type Handler struct {
	projects store.ProjectStore
	users    store.IdentityStore
	logger   zerolog.Logger
}

// New creates the project handler.
func New(projects store.ProjectStore, users store.IdentityStore, logger zerolog.Logger) *Handler {
	return &Handler{
		projects: projects,
		users:    users,
		logger:   logger.With().Str("component", "projects").Logger(),
	}
}

// RegisterRoutes mounts the project routes. The router passed in is
// the /projects subtree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{projectID}", h.handleGet)
	r.Put("/{projectID}/users", h.handleAddUsers)
	r.Put("/{projectID}/file-tree", h.handleUpdateFileTree)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "project name is required")
		return
	}

	p, err := h.projects.CreateProject(r.Context(), req.Name, u.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create project")
		utils.RespondError(w, http.StatusInternalServerError, "failed to create project")
		return
	}

	utils.RespondJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFrom(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	projects, err := h.projects.FindProjectsByUser(r.Context(), u.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list projects")
		utils.RespondError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}

func (h *Handler) handleAddUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	var req struct {
		Users []string `json:"users"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Users) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "a non-empty users list is required")
		return
	}

	// Every id must name an existing account before any is added.
	for _, id := range req.Users {
		if _, err := h.users.FindUserByID(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.RespondError(w, http.StatusBadRequest, "unknown user: "+id)
				return
			}
			h.logger.Error().Err(err).Msg("member lookup failed")
			utils.RespondError(w, http.StatusInternalServerError, "failed to add users")
			return
		}
	}

	updated, err := h.projects.AddProjectMembers(r.Context(), p.ID, req.Users)
	if err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to add project members")
		utils.RespondError(w, http.StatusInternalServerError, "failed to add users")
		return
	}

	utils.RespondJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleUpdateFileTree(w http.ResponseWriter, r *http.Request) {
	p, ok := h.memberProject(w, r)
	if !ok {
		return
	}

	var req struct {
		FileTree projectmodel.FileTree `json:"fileTree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FileTree == nil {
		utils.RespondError(w, http.StatusBadRequest, "a fileTree object is required")
		return
	}

	if err := h.projects.UpdateFileTree(r.Context(), p.ID, req.FileTree); err != nil {
		h.logger.Error().Err(err).Str("project", p.ID).Msg("failed to update file tree")
		utils.RespondError(w, http.StatusInternalServerError, "failed to update file tree")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"message": "file tree updated"})
}

// memberProject loads the project from the URL and enforces that the
// requester is a member. Non-members get 404 rather than 403 so
// project ids are not probeable.
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
