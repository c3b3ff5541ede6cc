package message

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devsync-io/devsync/backend/internal/model/message"
)

// memoryLog mimics the bounded-list semantics of the Redis store.
type memoryLog struct {
	lists map[string][]string
	ttls  map[string]time.Duration
}

func newMemoryLog() *memoryLog {
	return &memoryLog{
		lists: make(map[string][]string),
		ttls:  make(map[string]time.Duration),
	}
}

func (m *memoryLog) Append(ctx context.Context, key, entry string, max int64, ttl time.Duration) error {
	list := append(m.lists[key], entry)
	if int64(len(list)) > max {
		list = list[int64(len(list))-max:]
	}
	m.lists[key] = list
	m.ttls[key] = ttl
	return nil
}

func (m *memoryLog) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	list := m.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}, nil
	}
	return append([]string{}, list[start:stop+1]...), nil
}

func (m *memoryLog) Len(ctx context.Context, key string) (int64, error) {
	return int64(len(m.lists[key])), nil
}

func (m *memoryLog) Delete(ctx context.Context, key string) error {
	delete(m.lists, key)
	delete(m.ttls, key)
	return nil
}

func newTestService() (*Service, *memoryLog) {
	log := newMemoryLog()
	return NewService(log, zerolog.Nop()), log
}

func testMessage(body string) message.Message {
	return message.Message{
		Sender: message.Sender{ID: "u1", Email: "u1@example.com"},
		Body:   body,
	}
}

func TestAppendAndList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.Append(ctx, "room", testMessage(fmt.Sprintf("message %d", i))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := svc.List(ctx, "room", 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "message 0" || msgs[4].Body != "message 4" {
		t.Fatalf("messages out of order: first=%q last=%q", msgs[0].Body, msgs[4].Body)
	}
	for _, m := range msgs {
		if m.ID == "" {
			t.Fatal("expected an assigned message id")
		}
		if m.Timestamp.IsZero() {
			t.Fatal("expected an assigned timestamp")
		}
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < MaxMessages+10; i++ {
		if err := svc.Append(ctx, "room", testMessage(fmt.Sprintf("message %d", i))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	count, err := svc.Count(ctx, "room")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != MaxMessages {
		t.Fatalf("expected %d retained messages, got %d", MaxMessages, count)
	}

	msgs, err := svc.List(ctx, "room", 1, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if msgs[0].Body != "message 10" {
		t.Fatalf("expected oldest surviving message to be %q, got %q", "message 10", msgs[0].Body)
	}
}

func TestAppendRefreshesTTL(t *testing.T) {
	svc, log := newTestService()
	ctx := context.Background()

	if err := svc.Append(ctx, "room", testMessage("hello")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if got := log.ttls[roomKey("room")]; got != LogTTL {
		t.Fatalf("expected ttl %v, got %v", LogTTL, got)
	}
}

func TestAppendValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name string
		room string
		msg  message.Message
	}{
		{"missing room", "", testMessage("hello")},
		{"missing sender", "room", message.Message{Body: "hello"}},
		{"missing body", "room", testMessage("")},
	}

	for _, tc := range cases {
		err := svc.Append(ctx, tc.room, tc.msg)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestAppendRejectsOversizedMessage(t *testing.T) {
	svc, _ := newTestService()

	msg := testMessage(strings.Repeat("x", message.MaxSerializedSize))
	err := svc.Append(context.Background(), "room", msg)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for oversized message, got %v", err)
	}
}

func TestListClampsLimitAndOffset(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := svc.Append(ctx, "room", testMessage(fmt.Sprintf("message %d", i))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := svc.List(ctx, "room", 5000, -3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 10 {
		t.Fatalf("expected 10 messages, got %d", len(msgs))
	}

	msgs, err = svc.List(ctx, "room", 3, 7)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Body != "message 7" {
		t.Fatalf("unexpected page: len=%d first=%q", len(msgs), msgs[0].Body)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	bodies := []string{"Deploy the API", "fix the deploy script", "unrelated chatter"}
	for _, b := range bodies {
		if err := svc.Append(ctx, "room", testMessage(b)); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	msgs, err := svc.Search(ctx, "room", "DEPLOY")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(msgs))
	}
}

func TestSearchEmptyTermReturnsEmpty(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Append(ctx, "room", testMessage("hello")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	msgs, err := svc.Search(ctx, "room", "   ")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no results for blank term, got %d", len(msgs))
	}
}

func TestListSkipsCorruptEntries(t *testing.T) {
	svc, log := newTestService()
	ctx := context.Background()

	if err := svc.Append(ctx, "room", testMessage("good")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	log.lists[roomKey("room")] = append(log.lists[roomKey("room")], "{not json")
	if err := svc.Append(ctx, "room", testMessage("also good")); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	msgs, err := svc.List(ctx, "room", 10, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected corrupt entry to be skipped, got %d messages", len(msgs))
	}
}

func TestClear(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Append(ctx, "room", testMessage("hello")); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := svc.Clear(ctx, "room"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	count, err := svc.Count(ctx, "room")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty log after clear, got %d", count)
	}
}
