// Package notify delivers settlement events to whoever tells users about them.
// Delivery is fire-and-forget: a failing sink is logged and counted, never surfaced to
// the operation that produced the event.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventOrderPaid          = "order.paid"
	EventOrderShipped       = "order.shipped"
	EventOrderDelivered     = "order.delivered"
	EventOrderCancelled     = "order.cancelled"
	EventOrderRefunded      = "order.refunded"
	EventDisputeOpened      = "dispute.opened"
	EventDisputeResolved    = "dispute.resolved"
	EventPaymentVerified    = "payment.verified"
	EventPaymentExpired     = "payment.expired"
	EventWithdrawalCreated  = "withdrawal.created"
	EventWithdrawalReviewed = "withdrawal.reviewed"
)

type Event struct {
	Type      string         `json:"event_type"`
	UserID    string         `json:"user_id"`
	OrderID   uint           `json:"order_id,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	Status    string         `json:"status,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// LogNotifier writes events to the service log. It is the default sink.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	n.logger.Info("notification",
		zap.String("event_type", ev.Type),
		zap.String("user_id", ev.UserID),
		zap.Uint("order_id", ev.OrderID),
		zap.Int64("amount", ev.Amount),
		zap.String("status", ev.Status),
	)
}

// Recorder keeps events in memory; tests use it to assert what was announced.
type Recorder struct {
	ch chan Event
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan Event, size)}
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func stamp(ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}
