package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	EventTicketCreated        = "ticket.created"
	EventTicketDispatched     = "ticket.dispatched"
	EventTicketDispatchFailed = "ticket.dispatch_failed"
	EventTicketEscalated      = "ticket.escalated"
	EventTicketCompleted      = "ticket.completed"
)

// EventPublisher emits ticket lifecycle events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload map[string]any)
}

// publishTimeout bounds how long a caller waits on broker metadata.
const publishTimeout = 500 * time.Millisecond

// Producer writes ticket events to a Kafka topic. With no brokers or topic it is a no-op.
type Producer struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewProducer(brokers []string, topic string, logger zerolog.Logger) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{logger: logger}
	}
	return &Producer{
		logger: logger,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logger.Error().Err(err).Int("messages", len(messages)).Msg("write ticket events")
				}
			},
		},
	}
}

func (p *Producer) Publish(ctx context.Context, event string, payload map[string]any) {
	if p == nil || p.writer == nil {
		return
	}
	msg := map[string]any{"event": event, "time": time.Now().UTC()}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("marshal ticket event")
		return
	}
	var key []byte
	if id, ok := payload["ticket_id"].(string); ok {
		key = []byte(id)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		p.logger.Error().Err(err).Str("event", event).Msg("write ticket event")
	}
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092".
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

type RecordedEvent struct {
	Name    string
	Payload map[string]any
}

func (r *Recorder) Publish(_ context.Context, event string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Name: event, Payload: payload})
}

func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}
