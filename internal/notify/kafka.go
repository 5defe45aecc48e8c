package notify

import (
	"context"
	"encoding/json"
	"time"

	"alumnichat/server/internal/metrics"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafkago.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaNotifier publishes offline_message events keyed by recipient. Writes
// go through a circuit breaker so a dead broker fails fast.
type KafkaNotifier struct {
	writer messageWriter
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

func NewKafkaNotifier(brokers []string, topic string, log *zap.Logger) *KafkaNotifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaNotifier(w, log)
}

func newKafkaNotifier(w messageWriter, log *zap.Logger) *KafkaNotifier {
	st := gobreaker.Settings{
		Name:        "offline-notify",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &KafkaNotifier{writer: w, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

type envelope struct {
	Type    string         `json:"type"`
	Payload OfflineMessage `json:"payload"`
}

func (n *KafkaNotifier) NotifyOffline(ctx context.Context, m OfflineMessage) error {
	b, err := json.Marshal(envelope{Type: "offline_message", Payload: m})
	if err != nil {
		return err
	}
	_, err = n.cb.Execute(func() (interface{}, error) {
		return nil, n.writer.WriteMessages(ctx, kafkago.Message{
			Key:   []byte(m.RecipientID),
			Value: b,
			Time:  m.CreatedAt,
		})
	})
	if err != nil {
		metrics.OfflineNotifications.WithLabelValues("failed").Inc()
		return err
	}
	metrics.OfflineNotifications.WithLabelValues("sent").Inc()
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
