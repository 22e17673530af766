package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gftdcojp/presence-liveview/internal/config"
	"github.com/gftdcojp/presence-liveview/internal/types"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// EventStream receives presence change notifications from the shared events
// subject and exposes them as a channel of decoded events. One EventStream
// serves the whole process; the multiplexer is its only consumer.
type EventStream struct {
	nc      *nats.Conn
	subject string
	ch      chan types.Event
	logger  *zap.Logger
}

// NewEventStream creates an event stream for the configured events subject.
func NewEventStream(nc *nats.Conn, cfg config.PresenceConfig, logger *zap.Logger) *EventStream {
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = 256
	}
	return &EventStream{
		nc:      nc,
		subject: cfg.EventsSubject,
		ch:      make(chan types.Event, buffer),
		logger:  logger,
	}
}

// Events returns the decoded event channel. It is closed when Run returns.
func (s *EventStream) Events() <-chan types.Event {
	return s.ch
}

// Run subscribes to the events subject and pushes decoded events onto the
// channel until ctx is done. Undecodable messages are logged and skipped;
// if the consumer falls behind the buffer, events are dropped with a warning
// rather than blocking the NATS callback.
func (s *EventStream) Run(ctx context.Context) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var ev types.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			s.logger.Warn("undecodable presence event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		if ev.Subject == "" {
			s.logger.Warn("presence event without subject", zap.String("subject", msg.Subject))
			return
		}
		select {
		case s.ch <- ev:
		default:
			s.logger.Warn("event buffer full, dropping presence event",
				zap.String("event_subject", string(ev.Subject)),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.subject, err)
	}

	s.logger.Info("presence event stream started", zap.String("subject", s.subject))

	<-ctx.Done()
	sub.Unsubscribe()
	close(s.ch)
	return nil
}
