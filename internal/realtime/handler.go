package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/auth"
	messagemodel "github.com/devsync-io/devsync/backend/internal/model/message"
	"github.com/devsync-io/devsync/backend/internal/service/ai"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
	"github.com/devsync-io/devsync/backend/pkg/utils"
)

const (
	initialPageSize = 100
	defaultPageSize = 50
	maxPageSize     = 100
	maxBodyRunes    = 10000
)

// Handler upgrades authenticated handshakes into room-bound
// connections and routes their events.
type Handler struct {
	hub      *Hub
	auth     *auth.Service
	projects store.ProjectStore
	messages *messageservice.Service
	ai       *ai.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler wires the realtime endpoint. aiSvc may be nil when no
// model is configured; triggered messages then receive an error event
// instead of a generation.
func NewHandler(hub *Hub, authSvc *auth.Service, projects store.ProjectStore, messages *messageservice.Service, aiSvc *ai.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		auth:     authSvc,
		projects: projects,
		messages: messages,
		ai:       aiSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// ServeWS handles GET /ws?projectId=<uuid>. Authentication happens
// before the upgrade so rejections are plain HTTP statuses.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("projectId")
	if _, err := uuid.Parse(roomID); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "valid projectId query parameter is required")
		return
	}

	// A missing project record degrades the session rather than
	// rejecting it: chat still works, only the file-tree push-back is
	// disabled.
	hasProject := true
	if _, err := h.projects.FindProjectByID(r.Context(), roomID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn().Err(err).Str("room", roomID).Msg("project lookup failed on handshake")
		}
		hasProject = false
	}

	token := auth.ExtractHandshakeToken(r)
	result, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		utils.RespondError(w, http.StatusUnauthorized, authRejection(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, result.User, roomID, hasProject, h, h.logger)
	h.hub.join(client)

	h.logger.Info().
		Str("room", roomID).
		Str("user", result.User.ID).
		Msg("client joined room")

	go client.writePump()

	h.sendSnapshot(r.Context(), client)

	go client.readPump()
}

func authRejection(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return "authentication token is required"
	case errors.Is(err, auth.ErrRevokedToken):
		return "token has been revoked"
	case errors.Is(err, auth.ErrExpiredToken):
		return "token has expired"
	default:
		return "invalid authentication token"
	}
}

// sendSnapshot pushes the most recent page of history to a freshly
// joined client. Rooms with no history get no snapshot event.
func (h *Handler) sendSnapshot(ctx context.Context, c *Client) {
	count, err := h.messages.Count(ctx, c.roomID)
	if err != nil {
		h.logger.Error().Err(err).Str("room", c.roomID).Msg("failed to count messages for snapshot")
		c.sendError(ErrLoadMessages, "Failed to load messages")
		return
	}
	if count == 0 {
		return
	}

	offset := count - initialPageSize
	if offset < 0 {
		offset = 0
	}
	msgs, err := h.messages.List(ctx, c.roomID, initialPageSize, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("room", c.roomID).Msg("failed to load message snapshot")
		c.sendError(ErrLoadMessages, "Failed to load messages")
		return
	}

	c.enqueue(EventLoadMessages, historyPayload{Messages: msgs, TotalCount: count})
}

// dispatch routes one inbound envelope. A panicking handler downgrades
// to an error event instead of killing the connection.
func (h *Handler) dispatch(c *Client, evt inboundEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().Interface("panic", rec).Str("event", evt.Event).Msg("recovered panic in event handler")
			c.sendError(ErrMessageHandling, "Failed to process message")
		}
	}()

	switch evt.Event {
	case EventProjectMessage:
		h.handleProjectMessage(c, evt.Data)
	case EventLoadMore:
		h.handleLoadMore(c, evt.Data)
	case EventSearch:
		h.handleSearch(c, evt.Data)
	default:
		c.sendError(ErrUnknownEvent, "Unknown event: "+evt.Event)
	}
}

func (h *Handler) handleProjectMessage(c *Client, data json.RawMessage) {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Message == "" {
		c.sendError(ErrInvalidMessage, "Message data is required")
		return
	}

	body := payload.Message
	if runes := []rune(body); len(runes) > maxBodyRunes {
		body = string(runes[:maxBodyRunes])
	}

	msg := messagemodel.Message{
		ID: ulid.Make().String(),
		Sender: messagemodel.Sender{
			ID:    c.user.ID,
			Email: c.user.Email,
		},
		Body:      body,
		Timestamp: time.Now().UTC(),
	}

	h.messages.AppendBestEffort(context.Background(), c.roomID, msg)
	h.hub.broadcast(c.roomID, c, EventProjectMessage, msg)

	if !ai.HasTrigger(body) {
		return
	}
	if h.ai == nil {
		c.sendError(ErrAIUnavailable, "AI assistance is not available")
		return
	}
	// Detached from the connection context so the room still receives
	// the reply if the sender disconnects mid-generation.
	go h.ai.HandleRequest(context.Background(), c.roomID, body, c.hasProject, h.hub, c.sendError)
}

func (h *Handler) handleLoadMore(c *Client, data json.RawMessage) {
	var payload struct {
		Offset int `json:"offset"`
		Limit  int `json:"limit"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(ErrLoadMore, "Invalid pagination request")
		return
	}
	if payload.Offset < 0 {
		payload.Offset = 0
	}
	if payload.Limit < 1 {
		payload.Limit = defaultPageSize
	}
	if payload.Limit > maxPageSize {
		payload.Limit = maxPageSize
	}

	ctx := context.Background()
	msgs, err := h.messages.List(ctx, c.roomID, payload.Limit, payload.Offset)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load more messages")
		c.sendError(ErrLoadMore, "Failed to load more messages")
		return
	}
	count, err := h.messages.Count(ctx, c.roomID)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to count messages")
		c.sendError(ErrLoadMore, "Failed to load more messages")
		return
	}

	c.enqueue(EventMoreLoaded, historyPayload{Messages: msgs, TotalCount: count})
}

func (h *Handler) handleSearch(c *Client, data json.RawMessage) {
	var payload struct {
		SearchTerm string `json:"searchTerm"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.sendError(ErrSearch, "Invalid search request")
		return
	}

	msgs, err := h.messages.Search(context.Background(), c.roomID, payload.SearchTerm)
	if err != nil {
		c.logger.Error().Err(err).Msg("message search failed")
		c.sendError(ErrSearch, "Failed to search messages")
		return
	}

	c.enqueue(EventSearchResults, msgs)
}

// Ensure the hub satisfies the AI pipeline's broadcast capability.
var _ ai.Broadcaster = (*Hub)(nil)
