package broker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/udisondev/manchester/pkg/protocol"
)

// Publisher публикует записи доставки в NATS.
type Publisher struct {
	broker *Broker
	prefix string
}

// NewPublisher создаёт издателя, публикующего в "<prefix>.<conn id>".
func NewPublisher(broker *Broker, prefix string) *Publisher {
	return &Publisher{broker: broker, prefix: prefix}
}

// Publish публикует сырые байты для соединения connID.
func (p *Publisher) Publish(connID string, data []byte) error {
	subject := SubjectFor(p.prefix, connID)
	slog.Debug("publisher: publishing", "subject", subject, "size", len(data))
	if err := p.broker.conn.Publish(subject, data); err != nil {
		slog.Error("publisher: failed", "subject", subject, "error", err)
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// PublishDelivery кодирует доставку в protobuf wire format и публикует её.
func (p *Publisher) PublishDelivery(d protocol.Delivery) error {
	return p.Publish(d.ConnID, d.MarshalProto())
}

// SubjectFor возвращает subject для соединения.
// Символы-wildcard NATS в id заменяются, чтобы id не менял маршрутизацию.
func SubjectFor(prefix, connID string) string {
	if connID == "" {
		connID = "unknown"
	}
	connID = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(connID)
	return prefix + "." + connID
}
