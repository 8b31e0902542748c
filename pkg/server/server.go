// Package server реализует приёмник: TCP accept loop и цикл приёма конвертов
// на каждое соединение.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/protocol"
)

// Session — метаданные соединения, с которого пришёл конверт.
type Session struct {
	ID         string
	Remote     string
	ReceivedAt time.Time
}

// Handler обрабатывает принятые конверты.
// Вызывается из горутины соединения; конверты одного соединения приходят по порядку.
type Handler interface {
	HandleEnvelope(ctx context.Context, s Session, env protocol.Envelope)
}

// HandlerFunc адаптирует функцию к Handler.
type HandlerFunc func(ctx context.Context, s Session, env protocol.Envelope)

// HandleEnvelope вызывает f.
func (f HandlerFunc) HandleEnvelope(ctx context.Context, s Session, env protocol.Envelope) {
	f(ctx, s, env)
}

// Run создаёт TCP listener и запускает приёмник.
// Аналог http.ListenAndServe.
func Run(ctx context.Context, cfg *config.Config, h Handler) error {
	lis, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return Serve(ctx, cfg, lis, h)
}

// Serve принимает соединения на lis до отмены ctx.
// При отмене закрывает listener и все живые соединения и возвращается
// после завершения всех обработчиков.
func Serve(ctx context.Context, cfg *config.Config, lis net.Listener, h Handler) error {
	framing, err := cfg.Framing()
	if err != nil {
		return fmt.Errorf("framing: %w", err)
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("build TLS config: %w", err)
		}
		lis = tls.NewListener(lis, tlsConfig)
	}

	defer func() {
		if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("server: close listener", "error", err)
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("server: close listener", "error", err)
		}
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	// Семафор соединений.
	slots := make(chan struct{}, cfg.Transport.MaxConnections)

	slog.Info("server started", "addr", lis.Addr().String())
	slog.Info("server: configuration",
		"framing", framing,
		"tls", cfg.TLS.Enabled,
		"max_connections", cfg.Transport.MaxConnections,
		"rate_limit_per_sec", cfg.Transport.RateLimitPerSec,
		"rate_limit_burst", cfg.Transport.RateLimitBurst,
	)

	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("server shutting down")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("server: accept connection", "error", err)
			continue
		}

		select {
		case slots <- struct{}{}:
			wg.Add(1)
			go func(c net.Conn) {
				defer func() {
					<-slots
					wg.Done()
				}()
				handleConn(ctx, c, framing, cfg.Transport, h)
			}(conn)
		default:
			slog.Warn("server: connection limit reached", "remote", conn.RemoteAddr())
			if err := conn.Close(); err != nil {
				slog.Error("server: close connection on limit failed", "error", err)
			}
		}
	}
}

// handleConn читает конверты из соединения до EOF, ошибки чтения или отмены ctx.
// Некорректные сообщения логируются и пропускаются, соединение остаётся открытым.
func handleConn(ctx context.Context, conn net.Conn, framing protocol.Framing, tc config.TransportConfig, h Handler) {
	s := Session{
		ID:     uuid.NewString(),
		Remote: conn.RemoteAddr().String(),
	}

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("server: close connection", "error", err, "conn", s.ID, "remote", s.Remote)
		}
		slog.Info("server: connection closed", "conn", s.ID, "remote", s.Remote)
	}()

	// Закрытие разблокирует Read; повторный Close в defer вернёт net.ErrClosed.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	setNoDelay(conn)
	slog.Info("server: connection accepted", "conn", s.ID, "remote", s.Remote)

	var limiter *rate.Limiter
	if tc.RateLimitPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(tc.RateLimitPerSec), tc.RateLimitBurst)
	}

	reader := protocol.NewFrameReader(conn, framing)

	for {
		payload, err := reader.Next()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), ctx.Err() != nil:
				slog.Debug("server: peer disconnected", "conn", s.ID)
			case errors.Is(err, protocol.ErrMessageTooLarge):
				slog.Warn("server: frame too large, disconnecting", "error", err, "conn", s.ID)
			default:
				slog.Warn("server: read failed", "error", err, "conn", s.ID)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			slog.Warn("server: rate limit exceeded, disconnecting", "conn", s.ID, "remote", s.Remote)
			return
		}

		env, err := protocol.UnmarshalEnvelope(payload)
		if err != nil {
			slog.Warn("server: malformed message", "error", err, "conn", s.ID, "size", len(payload))
			continue
		}

		s.ReceivedAt = time.Now()
		h.HandleEnvelope(ctx, s, env)
	}
}

// setNoDelay включает TCP_NODELAY, в том числе под TLS.
func setNoDelay(conn net.Conn) {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
}
