package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"storefront-svc/models"
)

func sampleEvent() models.OrderEvent {
	return models.OrderEvent{
		EventID:         "evt-1",
		EventType:       models.EventOrderCreated,
		OrderID:         "order-1",
		Status:          models.OrderStatusPending,
		TotalAmount:     decimal.NewFromInt(900),
		CustomerName:    "Juan",
		CustomerContact: "09171234567",
	}
}

func TestProducer_Publish(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.OrderEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.OrderID != "order-1" || !event.TotalAmount.Equal(decimal.NewFromInt(900)) {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	p := NewProducer(mockProducer, "order_events", zaptest.NewLogger(t))
	if err := p.Publish(context.Background(), sampleEvent()); err != nil {
		t.Errorf("Publish() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestProducer_PublishFailure(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(mockProducer, "order_events", zaptest.NewLogger(t))
	if err := p.Publish(context.Background(), sampleEvent()); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("Expected ErrOutOfBrokers, got %v", err)
	}
	_ = p.Close()
}

type recordingApplier struct {
	mu     sync.Mutex
	events []models.OrderEvent
	got    chan struct{}
}

func (r *recordingApplier) Apply(e models.OrderEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func TestStartDashboardConsumer(t *testing.T) {
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"order_events": {0}})

	payload, _ := json.Marshal(sampleEvent())
	pc := consumer.ExpectConsumePartition("order_events", 0, sarama.OffsetNewest)
	pc.YieldMessage(&sarama.ConsumerMessage{Value: []byte("not json")})
	pc.YieldMessage(&sarama.ConsumerMessage{Value: payload})

	applier := &recordingApplier{got: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- StartDashboardConsumer(ctx, consumer, "order_events", applier, zap.NewNop())
	}()

	select {
	case <-applier.got:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not applied")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}

	applier.mu.Lock()
	defer applier.mu.Unlock()
	if len(applier.events) != 1 || applier.events[0].OrderID != "order-1" {
		t.Errorf("Unexpected events: %+v", applier.events)
	}
}

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafkago.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafkago.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     []string
	done     chan struct{}
}

func (s *flakySender) Send(_ context.Context, contact, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("gateway timeout")
	}
	s.sent = append(s.sent, contact+": "+message)
	s.done <- struct{}{}
	return nil
}

func TestNotifier_RetriesThenCommits(t *testing.T) {
	payload, _ := json.Marshal(sampleEvent())
	reader := &fakeReader{messages: []kafkago.Message{
		{Offset: 1, Value: []byte("{broken")},
		{Offset: 2, Value: payload},
	}}
	sender := &flakySender{failures: 2, done: make(chan struct{}, 1)}

	n := NewNotifier(reader, sender, zaptest.NewLogger(t))
	n.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	select {
	case <-sender.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	sender.mu.Lock()
	if len(sender.sent) != 1 {
		t.Errorf("Expected 1 notification, got %d", len(sender.sent))
	}
	sender.mu.Unlock()

	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 2 {
		t.Errorf("Expected both messages committed, got %v", reader.committed)
	}
	if !reader.closed {
		t.Error("Expected reader to be closed")
	}
}

func TestNotificationText(t *testing.T) {
	text, ok := notificationText(sampleEvent())
	if !ok {
		t.Fatal("Expected order_created to produce a notification")
	}
	if want := "PHP 900.00"; !strings.Contains(text, want) {
		t.Errorf("Expected %q in %q", want, text)
	}

	e := sampleEvent()
	e.EventType = models.EventOrderStatusChanged
	e.Status = models.OrderStatusShipped
	text, _ = notificationText(e)
	if text != "Your order order-1 is now shipped." {
		t.Errorf("Unexpected text %q", text)
	}

	e.EventType = "something_else"
	if _, ok := notificationText(e); ok {
		t.Error("Expected unknown events to be skipped")
	}
}
