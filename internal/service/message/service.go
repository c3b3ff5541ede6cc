package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/message"
	"github.com/devsync-io/devsync/backend/internal/store"
)

const (
	// MaxMessages bounds the retained log per room; the oldest entries
	// are evicted on overflow.
	MaxMessages = 1000

	// LogTTL is refreshed on every append, so the log expires 24h
	// after the last write, not the first.
	LogTTL = 24 * time.Hour

	// MaxSearchTerm caps search input length.
	MaxSearchTerm = 100
)

// ErrValidation marks rejected input as opposed to a store failure.
// Callers treat validation errors as non-retryable request errors.
var ErrValidation = errors.New("message validation failed")

// Service is the bounded, TTL'd per-room message log.
type Service struct {
	log    store.Log
	logger zerolog.Logger
}

// NewService creates the message log service over the given list store.
func NewService(log store.Log, logger zerolog.Logger) *Service {
	return &Service{
		log:    log,
		logger: logger.With().Str("component", "messages").Logger(),
	}
}

func roomKey(roomID string) string {
	return fmt.Sprintf("project:%s:messages", roomID)
}

// Append validates, serializes and stores a message at the tail of the
// room's log. Append, trim and TTL refresh run as one atomic batch.
func (s *Service) Append(ctx context.Context, roomID string, msg message.Message) error {
	if roomID == "" {
		return fmt.Errorf("%w: room id is required", ErrValidation)
	}
	if msg.Sender.ID == "" {
		return fmt.Errorf("%w: sender information missing", ErrValidation)
	}
	if msg.Body == "" {
		return fmt.Errorf("%w: message content missing", ErrValidation)
	}

	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(data) > message.MaxSerializedSize {
		return fmt.Errorf("%w: message size exceeds %d bytes", ErrValidation, message.MaxSerializedSize)
	}

	if err := s.log.Append(ctx, roomKey(roomID), string(data), MaxMessages, LogTTL); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// AppendBestEffort persists a message on a non-critical path. Failures
// are logged and swallowed so the surrounding broadcast flow continues.
func (s *Service) AppendBestEffort(ctx context.Context, roomID string, msg message.Message) {
	if err := s.Append(ctx, roomID, msg); err != nil {
		s.logger.Warn().Err(err).Str("room", roomID).Msg("best-effort message append failed")
	}
}

// List returns a window of the room's log, oldest first. The limit is
// clamped to [1, MaxMessages] and negative offsets read as zero.
// Entries that fail to parse are skipped so one corrupt entry cannot
// poison a page.
func (s *Service) List(ctx context.Context, roomID string, limit, offset int) ([]message.Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > MaxMessages {
		limit = MaxMessages
	}
	if offset < 0 {
		offset = 0
	}

	start := int64(offset)
	stop := int64(offset + limit - 1)
	raw, err := s.log.Range(ctx, roomKey(roomID), start, stop)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	return s.parseEntries(roomID, raw, ""), nil
}

// Count returns the current log length.
func (s *Service) Count(ctx context.Context, roomID string) (int, error) {
	n, err := s.log.Len(ctx, roomKey(roomID))
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return int(n), nil
}

// Search scans the full retained log for bodies containing term,
// case-insensitively. The log is bounded to MaxMessages entries, so a
// full scan is an accepted cost.
func (s *Service) Search(ctx context.Context, roomID, term string) ([]message.Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []message.Message{}, nil
	}
	if len(term) > MaxSearchTerm {
		term = term[:MaxSearchTerm]
	}

	raw, err := s.log.Range(ctx, roomKey(roomID), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}

	return s.parseEntries(roomID, raw, strings.ToLower(term)), nil
}

// Clear deletes the room's entire log. Irreversible; the calling layer
// restricts this to the project creator.
func (s *Service) Clear(ctx context.Context, roomID string) error {
	if err := s.log.Delete(ctx, roomKey(roomID)); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// parseEntries decodes raw log entries, skipping corrupt ones. When
// term is non-empty only bodies containing it (lowercased) are kept.
func (s *Service) parseEntries(roomID string, raw []string, term string) []message.Message {
	messages := make([]message.Message, 0, len(raw))
	for _, entry := range raw {
		var msg message.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			s.logger.Warn().Err(err).Str("room", roomID).Msg("skipping unparseable log entry")
			continue
		}
		if term != "" && !strings.Contains(strings.ToLower(msg.Body), term) {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}
