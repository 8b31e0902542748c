package client

import (
	"crypto/x509"
	"time"

	"github.com/udisondev/manchester/pkg/protocol"
)

// Константы по умолчанию.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultWriteTimeout = 10 * time.Second
)

type dialConfig struct {
	framing protocol.Framing

	useTLS bool

	rootCAs            *x509.CertPool
	caCertPaths        []string
	serverName         string
	insecureSkipVerify bool

	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// DialOption конфигурирует соединение.
type DialOption func(*dialConfig)

// WithFraming устанавливает режим обрамления. Должен совпадать с приёмником.
func WithFraming(f protocol.Framing) DialOption {
	return func(c *dialConfig) {
		c.framing = f
	}
}

// WithTLS включает TLS. Без него соединение plain TCP.
func WithTLS() DialOption {
	return func(c *dialConfig) {
		c.useTLS = true
	}
}

// WithDialTimeout устанавливает таймаут подключения.
func WithDialTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) {
		c.dialTimeout = d
	}
}

// WithWriteTimeout устанавливает таймаут записи.
func WithWriteTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) {
		c.writeTimeout = d
	}
}

// WithRootCAs устанавливает пул CA сертификатов для проверки приёмника.
func WithRootCAs(pool *x509.CertPool) DialOption {
	return func(c *dialConfig) {
		c.rootCAs = pool
	}
}

// WithCACertFile добавляет CA сертификат из PEM-файла.
// Можно вызывать несколько раз.
func WithCACertFile(path string) DialOption {
	return func(c *dialConfig) {
		c.caCertPaths = append(c.caCertPaths, path)
	}
}

// WithServerName устанавливает ServerName для SNI и проверки сертификата.
func WithServerName(name string) DialOption {
	return func(c *dialConfig) {
		c.serverName = name
	}
}

// WithInsecureSkipVerify отключает проверку сертификата приёмника.
// Только для разработки и тестов.
func WithInsecureSkipVerify() DialOption {
	return func(c *dialConfig) {
		c.insecureSkipVerify = true
	}
}
