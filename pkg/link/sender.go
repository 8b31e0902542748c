package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/manchester/pkg/client"
	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/discovery"
	"github.com/udisondev/manchester/pkg/protocol"
)

// ErrNoReceiver — discovery не нашёл приёмник.
var ErrNoReceiver = errors.New("no receiver found")

// Sender запечатывает текст и отправляет конверт по одному соединению.
type Sender struct {
	pipeline *Pipeline
	conn     *client.Conn
}

// NewSender создаёт отправителя поверх готового соединения.
func NewSender(p *Pipeline, conn *client.Conn) *Sender {
	return &Sender{pipeline: p, conn: conn}
}

// Connect находит приёмник (если addr пуст) и подключается к нему.
// extra применяются после опций из cfg.
func Connect(ctx context.Context, cfg *config.Config, p *Pipeline, addr string, extra ...client.DialOption) (*Sender, error) {
	if addr == "" {
		found, err := Discover(ctx, cfg)
		if err != nil {
			return nil, err
		}
		addr = found
	}

	opts, err := DialOptions(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := client.Dial(ctx, addr, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	slog.Info("link: connected", "addr", addr)

	return NewSender(p, conn), nil
}

// Discover ищет приёмник согласно cfg.Discovery и возвращает его TCP адрес.
func Discover(ctx context.Context, cfg *config.Config) (string, error) {
	reply, found, err := discovery.Discover(ctx, DiscoveryOptions(cfg)...)
	if err != nil {
		return "", fmt.Errorf("discover: %w", err)
	}
	if !found {
		return "", ErrNoReceiver
	}
	return reply.Addr(), nil
}

// DiscoveryOptions переводит конфигурацию в опции запроса discovery.
func DiscoveryOptions(cfg *config.Config) []discovery.RequestOption {
	return []discovery.RequestOption{
		discovery.WithPort(cfg.Discovery.Port),
		discovery.WithTimeout(cfg.Discovery.Timeout),
		discovery.WithSubnetBroadcast(cfg.Discovery.SubnetBroadcast),
		discovery.WithTargets(cfg.Discovery.Targets...),
	}
}

// DialOptions переводит конфигурацию в опции подключения.
func DialOptions(cfg *config.Config) ([]client.DialOption, error) {
	framing, err := cfg.Framing()
	if err != nil {
		return nil, err
	}

	opts := []client.DialOption{
		client.WithFraming(framing),
		client.WithDialTimeout(cfg.Transport.DialTimeout),
		client.WithWriteTimeout(cfg.Transport.WriteTimeout),
	}

	if cfg.TLS.Enabled {
		opts = append(opts, client.WithTLS())
		if cfg.TLS.CAFile != "" {
			opts = append(opts, client.WithCACertFile(cfg.TLS.CAFile))
		}
		if cfg.TLS.ServerName != "" {
			opts = append(opts, client.WithServerName(cfg.TLS.ServerName))
		}
		if cfg.TLS.InsecureSkipVerify {
			opts = append(opts, client.WithInsecureSkipVerify())
		}
	}

	return opts, nil
}

// Send запечатывает text и отправляет конверт.
// Ошибка соединения возвращается вызывающему, повторов нет.
func (s *Sender) Send(ctx context.Context, text string) (protocol.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Envelope{}, err
	}

	env, err := s.pipeline.Seal(text)
	if err != nil {
		return protocol.Envelope{}, err
	}

	if err := s.conn.Send(env); err != nil {
		return env, err
	}

	slog.Debug("link: message sent", "remote", s.conn.RemoteAddr(), "bits", len(env.Binary))
	return env, nil
}

// Close закрывает соединение.
func (s *Sender) Close() error {
	return s.conn.Close()
}
