package notify

import (
	"context"
	"encoding/json"
	"time"

	"marketpay/services/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const SettlementEventsChannel = "settlement_events"

// RedisNotifier publishes events as JSON on a pub/sub channel.
type RedisNotifier struct {
	rdb     *redis.Client
	channel string
	timeout time.Duration
	logger  *zap.Logger
}

func NewRedisNotifier(rdb *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if channel == "" {
		channel = SettlementEventsChannel
	}
	return &RedisNotifier{rdb: rdb, channel: channel, timeout: 3 * time.Second, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, ev Event) {
	ev = stamp(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal notification", zap.String("event_type", ev.Type), zap.Error(err))
		return
	}

	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.rdb.Publish(pubCtx, n.channel, payload).Err(); err != nil {
			metrics.NotificationFailures.WithLabelValues("redis").Inc()
			n.logger.Warn("publish notification",
				zap.String("channel", n.channel),
				zap.String("event_type", ev.Type),
				zap.Error(err),
			)
		}
	}()
}
