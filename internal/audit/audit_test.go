package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []*Event
}

func (s *captureSink) Append(_ context.Context, evt *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *captureSink) all() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestRecordReachesSink(t *testing.T) {
	sink := &captureSink{}
	l := NewLogger(sink)

	ctx := WithRequestID(context.Background(), "req-42")
	l.Record(ctx, "auth.login", "user-1", "org-1", "", map[string]string{"ip": "10.0.0.1"})
	l.Close()

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Action != "auth.login" || evt.ActorID != "user-1" || evt.OrganizationID != "org-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.RequestID != "req-42" {
		t.Fatalf("request id %q", evt.RequestID)
	}
	if evt.ID == "" || evt.OccurredAt.IsZero() {
		t.Fatal("expected generated id and timestamp")
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	sink := &captureSink{}
	l := NewLogger(sink)

	for i := 0; i < 50; i++ {
		l.Record(context.Background(), "role.assigned", "user-1", "org-1", "role-1", nil)
	}
	l.Close()

	if got := len(sink.all()); got != 50 {
		t.Fatalf("expected 50 events after Close, got %d", got)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	l := NewLogger(nil)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := l.Subscribe(ctx)

	l.Record(context.Background(), "session.revoked", "user-1", "org-1", "sess-1", nil)

	select {
	case evt := <-feed:
		if evt.Action != "session.revoked" {
			t.Fatalf("unexpected action %q", evt.Action)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeClosesWithContext(t *testing.T) {
	l := NewLogger(nil)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	feed := l.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-feed:
		if ok {
			return // buffered event before close is acceptable
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after context cancel")
	}
}

func TestMetadataIsCopied(t *testing.T) {
	sink := &captureSink{}
	l := NewLogger(sink)

	meta := map[string]string{"reason": "rotation"}
	l.Record(context.Background(), "token.reused", "user-1", "org-1", "", meta)
	meta["reason"] = "mutated"
	l.Close()

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Metadata["reason"] != "rotation" {
		t.Fatalf("metadata aliased caller map: %+v", events[0].Metadata)
	}
}
