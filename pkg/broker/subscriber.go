package broker

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/udisondev/manchester/pkg/protocol"
)

// Subscriber — подписка на записи доставки.
type Subscriber struct {
	sub *nats.Subscription
}

// Subscribe подписывается на все записи под prefix.
// Повреждённые записи логируются и пропускаются.
func Subscribe(broker *Broker, prefix string, handler func(subject string, rec protocol.DeliveryRecord)) (*Subscriber, error) {
	subject := prefix + ".>"
	slog.Debug("subscriber: creating", "subject", subject)

	sub, err := broker.conn.Subscribe(subject, func(msg *nats.Msg) {
		rec, err := protocol.UnmarshalDeliveryProto(msg.Data)
		if err != nil {
			slog.Warn("subscriber: bad record", "subject", msg.Subject, "error", err)
			return
		}
		handler(msg.Subject, rec)
	})
	if err != nil {
		slog.Error("subscriber: subscribe failed", "subject", subject, "error", err)
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	slog.Info("subscriber: subscribed", "subject", subject)

	return &Subscriber{sub: sub}, nil
}

// Unsubscribe отписывается от топика.
func (s *Subscriber) Unsubscribe() error {
	subject := s.sub.Subject
	slog.Debug("subscriber: unsubscribing", "subject", subject)
	if err := s.sub.Unsubscribe(); err != nil {
		slog.Error("subscriber: unsubscribe failed", "subject", subject, "error", err)
		return err
	}
	return nil
}
