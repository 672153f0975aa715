package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"marketpay/services/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes events to a topic, keyed by user so a user's events stay ordered.
type KafkaNotifier struct {
	writer MessageWriter
	logger *zap.Logger
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
	}
}

func NewKafkaNotifier(writer MessageWriter, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &KafkaNotifier{writer: writer, logger: logger}
	if w, ok := writer.(*kafka.Writer); ok {
		w.Completion = n.completion
	}
	return n
}

func (n *KafkaNotifier) Notify(ctx context.Context, ev Event) {
	ev = stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal notification", zap.String("event_type", ev.Type), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.UserID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "order_id", Value: []byte(strconv.FormatUint(uint64(ev.OrderID), 10))},
		},
	}
	// Async writer: this only enqueues, delivery errors arrive in completion.
	if err := n.writer.WriteMessages(context.WithoutCancel(ctx), msg); err != nil {
		n.fail(err, 1)
	}
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func (n *KafkaNotifier) completion(messages []kafka.Message, err error) {
	if err != nil {
		n.fail(err, len(messages))
	}
}

func (n *KafkaNotifier) fail(err error, count int) {
	metrics.NotificationFailures.WithLabelValues("kafka").Add(float64(count))
	n.logger.Warn("kafka notification failed", zap.Int("count", count), zap.Error(err))
}
