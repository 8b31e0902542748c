// Package client реализует отправителя: одно TCP (опционально TLS) соединение
// с приёмником и отправку конвертов одной записью.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/udisondev/manchester/pkg/protocol"
)

// ErrClosed возвращается Send после Close.
var ErrClosed = errors.New("client: connection closed")

// Conn — соединение с приёмником. Безопасно для конкурентного Send.
type Conn struct {
	conn         net.Conn
	framing      protocol.Framing
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// buildTLSConfig создаёт TLS конфигурацию на основе опций.
func (cfg *dialConfig) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if len(cfg.caCertPaths) > 0 {
		pool := x509.NewCertPool()
		for _, path := range cfg.caCertPaths {
			caCert, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read CA cert %s: %w", path, err)
			}
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("parse CA cert %s: invalid PEM", path)
			}
		}
		tlsConfig.RootCAs = pool
	} else if cfg.rootCAs != nil {
		tlsConfig.RootCAs = cfg.rootCAs
	}

	if cfg.serverName != "" {
		tlsConfig.ServerName = cfg.serverName
	}

	if cfg.insecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// Dial подключается к приёмнику. Ошибка подключения (отказ, таймаут)
// возвращается как есть, повторов нет.
func Dial(ctx context.Context, addr string, opts ...DialOption) (*Conn, error) {
	cfg := &dialConfig{
		dialTimeout:  DefaultDialTimeout,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dialer := &net.Dialer{
		Timeout: cfg.dialTimeout,
	}

	var (
		conn net.Conn
		err  error
	)
	if cfg.useTLS {
		tlsConfig, terr := cfg.buildTLSConfig()
		if terr != nil {
			return nil, fmt.Errorf("build TLS config: %w", terr)
		}
		td := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = td.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Conn{
		conn:         conn,
		framing:      cfg.framing,
		writeTimeout: cfg.writeTimeout,
	}, nil
}

// Send сериализует конверт и пишет его одной записью.
func (c *Conn) Send(env protocol.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return c.SendRaw(data)
}

// SendRaw пишет уже сериализованные байты с учётом обрамления.
func (c *Conn) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if err := protocol.WriteFrame(c.conn, c.framing, data); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// RemoteAddr возвращает адрес приёмника.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close закрывает соединение. Повторный вызов безопасен.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}
	return nil
}
