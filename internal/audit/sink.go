package audit

import (
	"context"
	"sync"
	"time"

	"github.com/cenamoradol/crm-autolote-backend/internal/model"
	"go.uber.org/zap"
)

// Event is a structured audit record.
type Event struct {
	StoreID  string
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Detail   string
	At       time.Time
}

// Sink accepts audit events. Implementations are fire-and-forget: Enqueue
// never blocks the caller and never reports failure.
type Sink interface {
	Enqueue(e Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) Enqueue(Event) {}

// Writer persists audit events.
type Writer interface {
	WriteAuditEvent(ctx context.Context, e *model.AuditEvent) error
}

// AsyncSink buffers events on a channel and persists them from a single
// worker goroutine. A full buffer drops the event with a warning; writer
// errors are logged and dropped. Audit is best-effort, not transactional
// with the business operation.
type AsyncSink struct {
	events chan Event
	writer Writer
	log    *zap.Logger
	wg     sync.WaitGroup
}

// NewAsyncSink creates and starts an async sink with the given buffer size.
func NewAsyncSink(writer Writer, log *zap.Logger, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &AsyncSink{
		events: make(chan Event, buffer),
		writer: writer,
		log:    log,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Enqueue submits an event without blocking.
func (s *AsyncSink) Enqueue(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warn("audit buffer full, event dropped",
			zap.String("action", e.Action),
			zap.String("entity_id", e.EntityID))
	}
}

// Close stops accepting events and drains the buffer.
func (s *AsyncSink) Close() {
	close(s.events)
	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for e := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.writer.WriteAuditEvent(ctx, &model.AuditEvent{
			StoreID:   e.StoreID,
			ActorID:   e.ActorID,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			Detail:    e.Detail,
			CreatedAt: e.At,
		})
		cancel()
		if err != nil {
			s.log.Warn("audit write failed, event dropped",
				zap.String("action", e.Action),
				zap.String("entity_id", e.EntityID),
				zap.Error(err))
		}
	}
}
