package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/message"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
)

// Trigger is the in-band marker that delegates a chat message to the
// assistant.
const Trigger = "@ai"

const (
	generationTimeout = 45 * time.Second
	maxPromptLen      = 1000
)

// Broadcaster delivers an assistant message to every connection in a
// room, including the original sender.
type Broadcaster interface {
	BroadcastMessage(roomID string, msg message.Message)
}

// HasTrigger reports whether a chat body requests assistant handling.
func HasTrigger(body string) bool {
	return strings.Contains(body, Trigger)
}

// Service turns a triggered chat message into a generated artifact:
// announce, generate under deadline, parse or repair, persist and
// broadcast. There is no silent-failure path; the room always receives
// a terminal assistant message.
type Service struct {
	gen      Generator
	messages *messageservice.Service
	projects store.ProjectStore
	scaffold ScaffoldFunc
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewService wires the delegation pipeline.
func NewService(gen Generator, messages *messageservice.Service, projects store.ProjectStore, logger zerolog.Logger) *Service {
	return &Service{
		gen:      gen,
		messages: messages,
		projects: projects,
		scaffold: DefaultScaffold,
		timeout:  generationTimeout,
		logger:   logger.With().Str("component", "ai").Logger(),
	}
}

// HandleRequest runs the pipeline for one triggered message. body is
// the full chat text including the trigger marker. hasProject gates the
// file-tree push-back; emitError reports push-back failures to the
// triggering connection only.
func (s *Service) HandleRequest(ctx context.Context, roomID, body string, hasProject bool, bc Broadcaster, emitError func(kind, msg string)) {
	s.deliver(ctx, roomID, bc, Envelope{
		Text: "I'm thinking about your request... This may take a moment.",
	})

	prompt := strings.TrimSpace(strings.Replace(body, Trigger, "", 1))
	if prompt == "" {
		s.fail(ctx, roomID, bc, "Empty prompt provided")
		return
	}
	if len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
	}

	raw, err := s.generate(ctx, prompt)
	if err != nil {
		s.fail(ctx, roomID, bc, err.Error())
		return
	}

	outcome := ParseResult(raw, prompt, s.scaffold)
	if outcome.Kind == OutcomeRecovered {
		s.logger.Warn().Str("room", roomID).Msg("recovered malformed generation output")
	}

	s.deliver(ctx, roomID, bc, outcome.Envelope)

	if len(outcome.Envelope.FileTree) == 0 || !hasProject {
		return
	}
	if err := s.projects.UpdateFileTree(ctx, roomID, outcome.Envelope.FileTree); err != nil {
		s.logger.Error().Err(err).Str("room", roomID).Msg("failed to save generated file tree")
		if emitError != nil {
			emitError("UPDATE_FILE_TREE_ERROR", "Failed to update project file tree")
		}
	}
}

// generate races the capability against the pipeline deadline. On
// expiry the result of the underlying call is discarded.
func (s *Service) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type genResult struct {
		text string
		err  error
	}
	ch := make(chan genResult, 1)
	go func() {
		text, err := s.gen.Generate(genCtx, prompt)
		ch <- genResult{text: text, err: err}
	}()

	select {
	case <-genCtx.Done():
		return "", fmt.Errorf("AI request timed out after %d seconds", int(s.timeout.Seconds()))
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("AI generation failed: %w", r.err)
		}
		return r.text, nil
	}
}

// fail delivers the terminal error message; the failure is never
// silent.
func (s *Service) fail(ctx context.Context, roomID string, bc Broadcaster, reason string) {
	s.logger.Warn().Str("room", roomID).Str("reason", reason).Msg("assistant request failed")
	s.deliver(ctx, roomID, bc, Envelope{
		Text: fmt.Sprintf("Error: %s. Please try again with a more specific prompt.", reason),
	})
}

// deliver persists (best-effort) and broadcasts an assistant envelope.
func (s *Service) deliver(ctx context.Context, roomID string, bc Broadcaster, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode assistant envelope")
		return
	}

	msg := message.Message{
		ID:        ulid.Make().String(),
		Sender:    message.AISender,
		Body:      string(body),
		Timestamp: time.Now().UTC(),
	}

	s.messages.AppendBestEffort(ctx, roomID, msg)
	bc.BroadcastMessage(roomID, msg)
}
