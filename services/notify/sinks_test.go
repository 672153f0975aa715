package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"marketpay/services/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaNotifierKeysByUser(t *testing.T) {
	w := &fakeWriter{}
	n := NewKafkaNotifier(w, zap.NewNop())

	n.Notify(context.Background(), Event{Type: EventOrderShipped, UserID: "buyer-7", OrderID: 42, Status: "shipped"})

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	require.Equal(t, "buyer-7", string(msg.Key))
	require.Equal(t, EventOrderShipped, header(msg, "event_type"))
	require.Equal(t, "42", header(msg, "order_id"))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	require.Equal(t, "buyer-7", ev.UserID)
	require.Equal(t, uint(42), ev.OrderID)
	require.False(t, ev.Timestamp.IsZero())

	require.NoError(t, n.Close())
	require.True(t, w.closed)
}

func TestKafkaNotifierCountsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &fakeWriter{err: errors.New("broker down")}
	n := NewKafkaNotifier(w, zap.New(core))
	failures := metrics.NotificationFailures.WithLabelValues("kafka")
	before := testutil.ToFloat64(failures)

	n.Notify(context.Background(), Event{Type: EventOrderPaid, UserID: "seller-1"})
	require.Equal(t, before+1, testutil.ToFloat64(failures))

	// async delivery reports batches through the completion callback
	n.completion(make([]kafka.Message, 3), errors.New("timed out"))
	n.completion(make([]kafka.Message, 5), nil)
	require.Equal(t, before+4, testutil.ToFloat64(failures))
	require.Equal(t, 2, logs.FilterMessage("kafka notification failed").Len())
}

func TestKafkaNotifierHooksWriterCompletion(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "settlement-events")
	NewKafkaNotifier(w, nil)
	require.NotNil(t, w.Completion)
	require.True(t, w.Async)
	require.Equal(t, "settlement-events", w.Topic)
}

func TestRedisNotifierCountsUnreachableServer(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	n := NewRedisNotifier(rdb, "", zap.New(core))
	require.Equal(t, SettlementEventsChannel, n.channel)
	failures := metrics.NotificationFailures.WithLabelValues("redis")
	before := testutil.ToFloat64(failures)

	n.Notify(context.Background(), Event{Type: EventPaymentVerified, UserID: "alice", Amount: 10000})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("publish notification").Len() == 1
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(failures))

	entry := logs.FilterMessage("publish notification").All()[0]
	fields := entry.ContextMap()
	require.Equal(t, SettlementEventsChannel, fields["channel"])
	require.Equal(t, EventPaymentVerified, fields["event_type"])
}
