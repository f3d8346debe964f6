package publisher

import (
	"context"
	"fmt"
	"time"

	d "github.com/fjod/homeservices/booking-service/internal/domain"
	"github.com/fjod/homeservices/pkg/bookingevent"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// EventStore is the outbox side of the booking repository.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*d.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OutboxPoller publishes committed outbox rows to Kafka. A row is marked
// processed only after Kafka accepted it, so delivery is at least once.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	batch     int
	repo      EventStore
	writer    MessageWriter
	log       *logger.Logger
}

func NewOutboxPoller(repo EventStore, log *logger.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  bookingevent.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewOutboxPollerWithWriter(repo, w, log)
}

func NewOutboxPollerWithWriter(repo EventStore, w MessageWriter, log *logger.Logger) *OutboxPoller {
	if log == nil {
		log = logger.Nop()
	}
	return &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		batch:     100,
		repo:      repo,
		writer:    w,
		log:       log,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	defer eventTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.Warn(context.Background(), "closing kafka writer", err)
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	events, err := p.repo.GetUnprocessedEvents(ctx, p.batch)
	if err != nil {
		p.log.Warn(ctx, "failed to fetch outbox events", err)
		return
	}

	for _, event := range events {
		// stop at the first failure so events of one booking stay in order
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Warn(ctx, fmt.Sprintf("failed to publish outbox event %d", event.ID), err)
			return
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Warn(ctx, fmt.Sprintf("failed to mark outbox event %d processed", event.ID), err)
			return
		}
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *d.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // booking id keeps a booking's events on one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: bookingevent.HeaderEventType, Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
