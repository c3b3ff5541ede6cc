package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/auth"
	messagemodel "github.com/devsync-io/devsync/backend/internal/model/message"
	projectmodel "github.com/devsync-io/devsync/backend/internal/model/project"
	"github.com/devsync-io/devsync/backend/internal/model/user"
	messageservice "github.com/devsync-io/devsync/backend/internal/service/message"
	"github.com/devsync-io/devsync/backend/internal/store"
)

const testRoomID = "6f1f2f3a-0a1b-4c2d-8e3f-abcdefabcdef"

type memoryLog struct {
	lists map[string][]string
}

func (m *memoryLog) Append(ctx context.Context, key, entry string, max int64, ttl time.Duration) error {
	list := append(m.lists[key], entry)
	if int64(len(list)) > max {
		list = list[int64(len(list))-max:]
	}
	m.lists[key] = list
	return nil
}

func (m *memoryLog) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	list := m.lists[key]
	n := int64(len(list))
	if stop < 0 {
		stop += n
	}
	if start >= n || n == 0 {
		return []string{}, nil
	}
	if stop >= n {
		stop = n - 1
	}
	return append([]string{}, list[start:stop+1]...), nil
}

func (m *memoryLog) Len(ctx context.Context, key string) (int64, error) {
	return int64(len(m.lists[key])), nil
}

func (m *memoryLog) Delete(ctx context.Context, key string) error {
	delete(m.lists, key)
	return nil
}

type fakeIdentity struct {
	byEmail map[string]*user.User
}

func (f *fakeIdentity) CreateUser(ctx context.Context, email, hash string) (*user.User, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeIdentity) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeIdentity) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	return nil, store.ErrNotFound
}

type fakeBlacklist struct{}

func (fakeBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error { return nil }
func (fakeBlacklist) IsRevoked(ctx context.Context, token string) (bool, error)         { return false, nil }

type fakeProjects struct {
	project *projectmodel.Project
}

func (f *fakeProjects) CreateProject(ctx context.Context, name, createdBy string) (*projectmodel.Project, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProjects) FindProjectByID(ctx context.Context, id string) (*projectmodel.Project, error) {
	if f.project != nil && f.project.ID == id {
		return f.project, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeProjects) FindProjectsByUser(ctx context.Context, userID string) ([]projectmodel.Project, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProjects) AddProjectMembers(ctx context.Context, id string, userIDs []string) (*projectmodel.Project, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProjects) UpdateFileTree(ctx context.Context, id string, tree projectmodel.FileTree) error {
	return nil
}

type testEnv struct {
	server   *httptest.Server
	auth     *auth.Service
	messages *messageservice.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identity := &fakeIdentity{byEmail: map[string]*user.User{
		"dev@example.com": {ID: "user-1", Email: "dev@example.com"},
		"two@example.com": {ID: "user-2", Email: "two@example.com"},
	}}
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	authSvc := auth.NewService(tokens, fakeBlacklist{}, identity, zerolog.Nop())
	messages := messageservice.NewService(&memoryLog{lists: make(map[string][]string)}, zerolog.Nop())
	projects := &fakeProjects{project: &projectmodel.Project{
		ID:    testRoomID,
		Users: []string{"user-1", "user-2"},
	}}

	hub := NewHub(zerolog.Nop())
	handler := NewHandler(hub, authSvc, projects, messages, nil, zerolog.Nop())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, auth: authSvc, messages: messages}
}

func (e *testEnv) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?projectId=" + testRoomID
	if token != "" {
		url += "&token=" + token
	}
	return url
}

func (e *testEnv) dial(t *testing.T, email string) *websocket.Conn {
	t.Helper()

	token, err := e.auth.Tokens().Issue("user", email)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(token), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return evt.Event, evt.Data
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %v", resp)
	}
}

func TestHandshakeRejectsInvalidRoom(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?projectId=not-a-uuid"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 handshake response, got %v", resp)
	}
}

func TestJoinReceivesHistorySnapshot(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{"first", "second"} {
		msg := messagemodel.Message{
			Sender: messagemodel.Sender{ID: "user-1", Email: "dev@example.com"},
			Body:   body,
		}
		if err := env.messages.Append(context.Background(), testRoomID, msg); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	conn := env.dial(t, "dev@example.com")

	event, data := readEvent(t, conn)
	if event != EventLoadMessages {
		t.Fatalf("expected %s, got %s", EventLoadMessages, event)
	}

	var payload struct {
		Messages   []messagemodel.Message `json:"messages"`
		TotalCount int                    `json:"totalCount"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if payload.TotalCount != 2 || len(payload.Messages) != 2 {
		t.Fatalf("unexpected snapshot: count=%d messages=%d", payload.TotalCount, len(payload.Messages))
	}
	if payload.Messages[0].Body != "first" {
		t.Fatalf("expected oldest-first order, got %q", payload.Messages[0].Body)
	}
}

func TestBroadcastReachesOtherClients(t *testing.T) {
	env := newTestEnv(t)

	sender := env.dial(t, "dev@example.com")
	receiver := env.dial(t, "two@example.com")

	// Give the receiver time to join before broadcasting.
	time.Sleep(50 * time.Millisecond)

	sendEvent(t, sender, EventProjectMessage, map[string]string{"message": "hello room"})

	event, data := readEvent(t, receiver)
	if event != EventProjectMessage {
		t.Fatalf("expected %s, got %s", EventProjectMessage, event)
	}

	var msg messagemodel.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Body != "hello room" {
		t.Fatalf("unexpected body: %q", msg.Body)
	}
	if msg.Sender.ID == "" || msg.ID == "" {
		t.Fatal("expected sender and id on broadcast message")
	}
}

func TestEmptyMessageReturnsError(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "dev@example.com")

	sendEvent(t, conn, EventProjectMessage, map[string]string{"message": ""})

	event, data := readEvent(t, conn)
	if event != EventError {
		t.Fatalf("expected error event, got %s", event)
	}
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload.Type != ErrInvalidMessage {
		t.Fatalf("expected %s, got %s", ErrInvalidMessage, payload.Type)
	}
}

func TestTriggerWithoutAIService(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "dev@example.com")

	sendEvent(t, conn, EventProjectMessage, map[string]string{"message": "@ai build something"})

	event, data := readEvent(t, conn)
	if event != EventError {
		t.Fatalf("expected error event, got %s", event)
	}
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload.Type != ErrAIUnavailable {
		t.Fatalf("expected %s, got %s", ErrAIUnavailable, payload.Type)
	}
}

func TestLoadMorePagination(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		msg := messagemodel.Message{
			Sender: messagemodel.Sender{ID: "user-1", Email: "dev@example.com"},
			Body:   "message " + string(rune('0'+i)),
		}
		if err := env.messages.Append(context.Background(), testRoomID, msg); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	conn := env.dial(t, "dev@example.com")

	// Drain the initial snapshot.
	if event, _ := readEvent(t, conn); event != EventLoadMessages {
		t.Fatalf("expected snapshot first, got %s", event)
	}

	sendEvent(t, conn, EventLoadMore, map[string]int{"offset": 1, "limit": 2})

	event, data := readEvent(t, conn)
	if event != EventMoreLoaded {
		t.Fatalf("expected %s, got %s", EventMoreLoaded, event)
	}

	var payload struct {
		Messages   []messagemodel.Message `json:"messages"`
		TotalCount int                    `json:"totalCount"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode page: %v", err)
	}
	if len(payload.Messages) != 2 || payload.TotalCount != 5 {
		t.Fatalf("unexpected page: messages=%d total=%d", len(payload.Messages), payload.TotalCount)
	}
	if payload.Messages[0].Body != "message 1" {
		t.Fatalf("expected offset applied, got %q", payload.Messages[0].Body)
	}
}

func TestSearchEvent(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{"deploy the API", "fix tests", "Deploy again"} {
		msg := messagemodel.Message{
			Sender: messagemodel.Sender{ID: "user-1", Email: "dev@example.com"},
			Body:   body,
		}
		if err := env.messages.Append(context.Background(), testRoomID, msg); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	conn := env.dial(t, "dev@example.com")
	if event, _ := readEvent(t, conn); event != EventLoadMessages {
		t.Fatal("expected snapshot first")
	}

	sendEvent(t, conn, EventSearch, map[string]string{"searchTerm": "deploy"})

	event, data := readEvent(t, conn)
	if event != EventSearchResults {
		t.Fatalf("expected %s, got %s", EventSearchResults, event)
	}

	var msgs []messagemodel.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("failed to decode results: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(msgs))
	}
}

func TestUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t, "dev@example.com")

	sendEvent(t, conn, "bogus-event", nil)

	event, data := readEvent(t, conn)
	if event != EventError {
		t.Fatalf("expected error event, got %s", event)
	}
	var payload errorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if payload.Type != ErrUnknownEvent {
		t.Fatalf("expected %s, got %s", ErrUnknownEvent, payload.Type)
	}
}
