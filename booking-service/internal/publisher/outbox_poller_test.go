package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	d "github.com/fjod/homeservices/booking-service/internal/domain"
	"github.com/fjod/homeservices/pkg/bookingevent"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockEventStore struct {
	mu           sync.Mutex
	OutboxEvents []*d.OutboxEvent
	GetErr       error
	MarkErr      error
	ProcessedIDs []int64
}

func (m *MockEventStore) GetUnprocessedEvents(context.Context, int) ([]*d.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	var out []*d.OutboxEvent
	for _, e := range m.OutboxEvents {
		if !m.processed(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockEventStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockEventStore) processed(id int64) bool {
	for _, p := range m.ProcessedIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (m *MockEventStore) processedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.ProcessedIDs...)
}

type MockWriter struct {
	Written []kafkaGo.Message
	FailOn  string // aggregate id whose write fails
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	for _, m := range msgs {
		if string(m.Key) == w.FailOn {
			return errors.New("leader not available")
		}
		w.Written = append(w.Written, m)
	}
	return nil
}

func (w *MockWriter) Close() error {
	return nil
}

func outboxEvent(id int64, bookingID string) *d.OutboxEvent {
	payload, _ := json.Marshal(bookingevent.Placed{EventType: bookingevent.TypePlaced, BookingID: bookingID, UserID: "user-456"})
	return &d.OutboxEvent{ID: id, AggregateID: bookingID, EventType: bookingevent.TypePlaced, Payload: payload, CreatedAt: time.Now()}
}

func TestProcessUnpublishedEvents(t *testing.T) {
	store := &MockEventStore{OutboxEvents: []*d.OutboxEvent{outboxEvent(1, "bk-1"), outboxEvent(2, "bk-2")}}
	writer := &MockWriter{}
	poller := NewOutboxPollerWithWriter(store, writer, nil)

	poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, []int64{1, 2}, store.processedIDs())
	require.Len(t, writer.Written, 2)
	assert.Equal(t, "bk-1", string(writer.Written[0].Key))
	assert.Equal(t, bookingevent.HeaderEventType, writer.Written[0].Headers[0].Key)
	assert.Equal(t, bookingevent.TypePlaced, string(writer.Written[0].Headers[0].Value))
}

func TestProcessUnpublishedEvents_StopsAtFirstFailure(t *testing.T) {
	store := &MockEventStore{OutboxEvents: []*d.OutboxEvent{outboxEvent(1, "bk-1"), outboxEvent(2, "bk-2"), outboxEvent(3, "bk-3")}}
	writer := &MockWriter{FailOn: "bk-2"}
	poller := NewOutboxPollerWithWriter(store, writer, nil)

	poller.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1}, store.processedIDs())

	// the next tick retries from the failed event
	writer.FailOn = ""
	poller.processUnpublishedEvents(context.Background())
	assert.Equal(t, []int64{1, 2, 3}, store.processedIDs())
}

func TestProcessUnpublishedEvents_FetchError(t *testing.T) {
	store := &MockEventStore{GetErr: errors.New("database connection error")}
	writer := &MockWriter{}

	NewOutboxPollerWithWriter(store, writer, nil).processUnpublishedEvents(context.Background())

	assert.Empty(t, writer.Written)
	assert.Empty(t, store.processedIDs())
}

func TestProcessUnpublishedEvents_MarkError(t *testing.T) {
	store := &MockEventStore{OutboxEvents: []*d.OutboxEvent{outboxEvent(1, "bk-1"), outboxEvent(2, "bk-2")}, MarkErr: errors.New("deadlock")}
	writer := &MockWriter{}

	NewOutboxPollerWithWriter(store, writer, nil).processUnpublishedEvents(context.Background())

	// published once, left unprocessed, so it is sent again later
	assert.Len(t, writer.Written, 1)
	assert.Empty(t, store.processedIDs())
}

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")
	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Kafka integration test in short mode")
	}
	brokerAddr := setupKafka(t)
	createTopic(t, brokerAddr, bookingevent.Topic)

	store := &MockEventStore{OutboxEvents: []*d.OutboxEvent{outboxEvent(1, "bk-123")}}
	poller := NewOutboxPoller(store, nil, brokerAddr)
	defer poller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    bookingevent.Topic,
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bk-123", string(msg.Key))

	var event bookingevent.Placed
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "bk-123", event.BookingID)
	assert.Equal(t, "user-456", event.UserID)

	require.Eventually(t, func() bool {
		return len(store.processedIDs()) == 1
	}, 10*time.Second, 100*time.Millisecond)
}
