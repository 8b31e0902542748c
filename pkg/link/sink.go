package link

import (
	"context"
	"errors"
	"log/slog"

	"github.com/udisondev/manchester/pkg/broker"
	"github.com/udisondev/manchester/pkg/protocol"
)

// Sink получает результаты приёма.
type Sink interface {
	Deliver(ctx context.Context, d protocol.Delivery) error
}

// SinkFunc адаптирует функцию к Sink.
type SinkFunc func(ctx context.Context, d protocol.Delivery) error

// Deliver вызывает f.
func (f SinkFunc) Deliver(ctx context.Context, d protocol.Delivery) error {
	return f(ctx, d)
}

// Sinks рассылает доставку во все sink'и; ошибки объединяются.
type Sinks []Sink

// Deliver передаёт d каждому sink'у, даже если предыдущий вернул ошибку.
func (s Sinks) Deliver(ctx context.Context, d protocol.Delivery) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink пишет доставку в лог.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver логирует доставку. Текст пишется только при успешной расшифровке.
func (s LogSink) Deliver(ctx context.Context, d protocol.Delivery) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"conn", d.ConnID,
		"remote", d.Remote,
		"binary_matches", d.BinaryMatches,
		"violations", len(d.Violations),
		"bit_errors", len(d.Report.Errors),
	}

	if d.Err != nil {
		logger.WarnContext(ctx, "link: message not decrypted", append(attrs, "error", d.Err)...)
		return nil
	}
	logger.InfoContext(ctx, "link: message received", append(attrs, "text", d.Plaintext)...)
	return nil
}

// ChanSink отправляет доставку в канал. Блокируется, пока канал не примет
// значение или не отменён ctx.
type ChanSink chan<- protocol.Delivery

// Deliver отправляет d в канал.
func (s ChanSink) Deliver(ctx context.Context, d protocol.Delivery) error {
	select {
	case s <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BrokerSink публикует запись доставки в NATS.
type BrokerSink struct {
	Publisher *broker.Publisher
}

// Deliver публикует d.
func (s BrokerSink) Deliver(_ context.Context, d protocol.Delivery) error {
	return s.Publisher.PublishDelivery(d)
}
