package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"horizonsync.org/internal/ids"
	"horizonsync.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Event is one security-relevant action. Events are append-only; nothing in
// the system updates or deletes them.
type Event struct {
	ID             string            `json:"id"`
	OccurredAt     time.Time         `json:"occurred_at"`
	Action         string            `json:"action"`
	ActorID        string            `json:"actor_id,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty"`
	TargetID       string            `json:"target_id,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Sink persists events.
type Sink interface {
	Append(ctx context.Context, evt *Event) error
}

// PGSink appends events to the audit_log table.
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink { return &PGSink{db: db} }

func (s *PGSink) Append(ctx context.Context, evt *Event) error {
	meta, _ := json.Marshal(evt.Metadata)
	_, err := s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, action, actor_id, organization_id, target_id, request_id, metadata)
		 values($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),nullif($7,''),$8)`,
		evt.ID, evt.OccurredAt, evt.Action, evt.ActorID, evt.OrganizationID,
		evt.TargetID, evt.RequestID, meta,
	)
	return err
}

// Logger records events without blocking the request path. Events queue on a
// bounded channel drained by one background writer; when the queue is full
// the event is dropped and the drop itself is counted and logged.
type Logger struct {
	sink  Sink
	queue chan *Event

	mu   sync.RWMutex
	subs map[int]chan Event
	next int

	done chan struct{}
	wg   sync.WaitGroup
}

const defaultQueueSize = 1024

// NewLogger starts the background writer. sink may be nil, in which case
// events only reach live subscribers.
func NewLogger(sink Sink) *Logger {
	l := &Logger{
		sink:  sink,
		queue: make(chan *Event, defaultQueueSize),
		subs:  make(map[int]chan Event),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Logger) run() {
	defer l.wg.Done()
	for evt := range l.queue {
		if l.sink != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := l.sink.Append(ctx, evt); err != nil {
				obs.ObserveAuditDrop()
				obs.Error("audit append failed", map[string]any{
					"action": evt.Action,
					"error":  err.Error(),
				})
			}
			cancel()
		}
		l.publish(*evt)
	}
	close(l.done)
}

// Record enqueues an event. It never blocks: a saturated queue drops the
// event and records the loss.
func (l *Logger) Record(ctx context.Context, action, actorID, orgID, targetID string, meta map[string]string) {
	evt := &Event{
		ID:             ids.New(),
		OccurredAt:     time.Now().UTC(),
		Action:         action,
		ActorID:        actorID,
		OrganizationID: orgID,
		TargetID:       targetID,
		RequestID:      requestIDFromContext(ctx),
	}
	if len(meta) > 0 {
		evt.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			evt.Metadata[k] = v
		}
	}

	select {
	case l.queue <- evt:
	default:
		obs.ObserveAuditDrop()
		obs.Warn("audit queue full, event dropped", map[string]any{"action": action})
	}
}

// Subscribe registers a live event feed. The channel is closed when the
// context ends; slow subscribers miss events rather than stall the writer.
func (l *Logger) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = ch
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()

	return ch
}

func (l *Logger) publish(evt Event) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, ch := range l.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() {
	close(l.queue)
	<-l.done
}
