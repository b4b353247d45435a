package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drone-bridge/drone-bridge-server/internal/models"
	"github.com/drone-bridge/drone-bridge-server/internal/storage"
)

// NATS subjects the bridge publishes on
const (
	SubjectConnection = "vehicle.connection"
	SubjectAuth       = "vehicle.session.auth"
	SubjectCommand    = "vehicle.command.set"
)

// EventSink records bridge events. Record must not block the caller.
type EventSink interface {
	Record(event *models.EventLog)
}

// Publisher publishes bridge events to the messaging layer
type Publisher interface {
	Publish(subject string, payload interface{}) error
}

// StoreEventSink persists events through the storage layer. Writes happen
// on their own goroutine so the hub loop never waits on the database.
type StoreEventSink struct {
	store   storage.Store
	timeout time.Duration
}

// NewStoreEventSink creates a store-backed event sink
func NewStoreEventSink(store storage.Store) *StoreEventSink {
	return &StoreEventSink{store: store, timeout: 5 * time.Second}
}

// Record persists an event log entry
func (s *StoreEventSink) Record(event *models.EventLog) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.store.CreateEventLog(ctx, event); err != nil {
			log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to persist event log")
		}
	}()
}

// record is a nil-safe helper used by the hub
func record(sink EventSink, event *models.EventLog) {
	if sink != nil {
		sink.Record(event)
	}
}

// publish is a nil-safe helper used by the hub
func publish(pub Publisher, subject string, payload interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(subject, payload); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to publish event")
	}
}
