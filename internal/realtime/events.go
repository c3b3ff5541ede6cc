package realtime

import "encoding/json"

// Event names shared with the frontend socket client.
const (
	EventLoadMessages   = "load-messages"
	EventProjectMessage = "project-message"
	EventLoadMore       = "load-more-messages"
	EventMoreLoaded     = "more-messages-loaded"
	EventSearch         = "search-messages"
	EventSearchResults  = "search-results"
	EventError          = "error"
)

// Machine-readable kinds carried on error events.
const (
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrMessageHandling = "MESSAGE_HANDLING_ERROR"
	ErrLoadMessages    = "LOAD_MESSAGES_ERROR"
	ErrLoadMore        = "LOAD_MORE_MESSAGES_ERROR"
	ErrSearch          = "SEARCH_MESSAGES_ERROR"
	ErrAIUnavailable   = "AI_UNAVAILABLE"
	ErrUnknownEvent    = "UNKNOWN_EVENT"
)

// inboundEvent is the JSON envelope clients send.
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// outboundEvent is the JSON envelope the server sends.
type outboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// errorPayload is the body of every error event. Errors are always
// unicast to the acting connection, never broadcast.
type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// historyPayload is the initial snapshot pushed after a successful
// join.
type historyPayload struct {
	Messages   any `json:"messages"`
	TotalCount int `json:"totalCount"`
}
