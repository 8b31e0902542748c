// Package discovery реализует поиск приёмника в локальной сети по UDP:
// отправитель шлёт broadcast запрос, приёмник отвечает номером своего TCP порта.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/udisondev/manchester/pkg/protocol"
)

type responderConfig struct {
	limiter *rate.Limiter
	ready   chan<- net.Addr
}

// ResponderOption конфигурирует responder.
type ResponderOption func(*responderConfig)

// WithRateLimit ограничивает частоту ответов.
// perSec <= 0 — без ограничений (отвечаем на каждый запрос).
func WithRateLimit(perSec float64, burst int) ResponderOption {
	return func(c *responderConfig) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithReady передаёт адрес сокета, когда responder начал приём.
func WithReady(ch chan<- net.Addr) ResponderOption {
	return func(c *responderConfig) {
		c.ready = ch
	}
}

// ListenAndServe открывает UDP сокет на addr и обслуживает запросы до отмены ctx.
func ListenAndServe(ctx context.Context, addr string, tcpPort int, opts ...ResponderOption) error {
	conn, err := net.ListenPacket("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen discovery: %w", err)
	}
	return Serve(ctx, conn, tcpPort, opts...)
}

// Serve отвечает на запросы discovery через conn.
// Каждый datagram, в точности равный protocol.DiscoveryMessage, получает
// ответ с десятичным номером tcpPort. Прочие datagram игнорируются.
// Сокет закрывается при отмене ctx; Serve возвращает nil.
func Serve(ctx context.Context, conn net.PacketConn, tcpPort int, opts ...ResponderOption) error {
	var cfg responderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	stop := context.AfterFunc(ctx, func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("discovery: close socket", "error", err)
		}
	})
	defer func() {
		stop()
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("discovery: close socket", "error", err)
		}
	}()

	reply := []byte(strconv.Itoa(tcpPort))
	request := []byte(protocol.DiscoveryMessage)
	buf := make([]byte, protocol.MaxDatagramSize)

	slog.Info("discovery: responder started", "addr", conn.LocalAddr(), "tcp_port", tcpPort)
	if cfg.ready != nil {
		cfg.ready <- conn.LocalAddr()
	}

	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				slog.Info("discovery: responder stopped")
				return nil
			}
			slog.Warn("discovery: read", "error", err)
			continue
		}

		if !bytes.Equal(buf[:n], request) {
			slog.Debug("discovery: unexpected datagram", "remote", from, "size", n)
			continue
		}

		if cfg.limiter != nil && !cfg.limiter.Allow() {
			slog.Debug("discovery: rate limited", "remote", from)
			continue
		}

		if _, err := conn.WriteTo(reply, from); err != nil {
			slog.Warn("discovery: reply failed", "error", err, "remote", from)
			continue
		}
		slog.Debug("discovery: replied", "remote", from, "tcp_port", tcpPort)
	}
}
