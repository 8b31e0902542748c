// Package config реализует загрузку конфигурации узла.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/protocol"
)

// ErrTLSFraming — TLS включён без обрамления по длине.
// TLS режет запись на records, и одно чтение перестаёт совпадать с одним сообщением.
var ErrTLSFraming = errors.New("tls requires transport.framing: length")

// Config конфигурация узла (приёмник и отправитель).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Transport TransportConfig `yaml:"transport"`
	TLS       TLSConfig       `yaml:"tls"`
	Key       KeyConfig       `yaml:"key"`
	Codec     CodecConfig     `yaml:"codec"`
	NATS      NATSConfig      `yaml:"nats"`
	Log       LogConfig       `yaml:"log"`

	// Ready закрывается когда приёмник готов к соединениям.
	// Опциональное поле, используется для тестов.
	Ready chan struct{} `yaml:"-"`
}

// ServerConfig конфигурация TCP приёмника.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr возвращает адрес сервера в формате host:port.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DiscoveryConfig конфигурация UDP discovery.
type DiscoveryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// Timeout — общий бюджет ожидания ответа на стороне отправителя.
	Timeout time.Duration `yaml:"timeout"`
	// SubnetBroadcast — слать запрос также на broadcast адреса подсетей.
	SubnetBroadcast bool `yaml:"subnet_broadcast"`
	// Targets — явные адреса для запроса (host:port), дополняют broadcast.
	Targets []string `yaml:"targets"`

	// Лимит ответов responder'а; 0 — без ограничений.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// Addr возвращает адрес UDP responder'а.
func (c DiscoveryConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TransportConfig конфигурация TCP обмена.
type TransportConfig struct {
	// Framing — "none" (одно чтение = одно сообщение) или "length".
	Framing        string        `yaml:"framing"`
	MaxConnections int           `yaml:"max_connections"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`

	// Лимит сообщений на соединение; 0 — без ограничений.
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// TLSConfig конфигурация TLS. Выключен по умолчанию.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"`

	// Сторона отправителя.
	CAFile             string `yaml:"ca_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// KeyConfig источник общего AES ключа.
// Passphrase имеет приоритет над File.
type KeyConfig struct {
	File       string `yaml:"file"`
	Passphrase string `yaml:"passphrase"`
	// Watch — перечитывать File при изменении.
	Watch bool `yaml:"watch"`
}

// CodecConfig конфигурация линейного кода.
type CodecConfig struct {
	Convention string `yaml:"convention"`
}

// NATSConfig конфигурация NATS. Пустой URLs — брокер выключен.
type NATSConfig struct {
	URLs          []string      `yaml:"urls"`
	Subject       string        `yaml:"subject"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// Enabled сообщает, нужен ли брокер.
func (c NATSConfig) Enabled() bool {
	return len(c.URLs) > 0
}

// LogConfig конфигурация логирования.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // путь к файлу логов (пустой = stdout)
}

// Framing возвращает разобранный режим обрамления.
// С включённым TLS допускается только FramingLength.
func (c *Config) Framing() (protocol.Framing, error) {
	f, err := protocol.ParseFraming(c.Transport.Framing)
	if err != nil {
		return 0, err
	}
	if c.TLS.Enabled && f != protocol.FramingLength {
		return 0, ErrTLSFraming
	}
	return f, nil
}

// Convention возвращает разобранное соглашение Manchester.
func (c *Config) Convention() (linecode.Convention, error) {
	return linecode.ConventionByName(c.Codec.Convention)
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	var errs []error

	// Server
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}

	// Discovery
	if c.Discovery.Port < 0 || c.Discovery.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid discovery port: %d", c.Discovery.Port))
	}
	if c.Discovery.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("discovery.timeout must be positive"))
	}
	if c.Discovery.RateLimitPerSec < 0 {
		errs = append(errs, fmt.Errorf("discovery.rate_limit_per_sec must not be negative"))
	}
	if c.Discovery.RateLimitPerSec > 0 && c.Discovery.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("discovery.rate_limit_burst must be positive when rate limit is set"))
	}
	for _, t := range c.Discovery.Targets {
		if _, _, err := net.SplitHostPort(t); err != nil {
			errs = append(errs, fmt.Errorf("discovery.targets: %q: %w", t, err))
		}
	}

	// Transport
	if _, err := c.Framing(); err != nil {
		errs = append(errs, fmt.Errorf("transport.framing: %w", err))
	}
	if c.Transport.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("transport.max_connections must be positive"))
	}
	if c.Transport.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.dial_timeout must be positive"))
	}
	if c.Transport.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.write_timeout must be positive"))
	}
	if c.Transport.RateLimitPerSec < 0 {
		errs = append(errs, fmt.Errorf("transport.rate_limit_per_sec must not be negative"))
	}
	if c.Transport.RateLimitPerSec > 0 && c.Transport.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("transport.rate_limit_burst must be positive when rate limit is set"))
	}

	// TLS
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("tls.cert_file is required"))
		} else if _, err := os.Stat(c.TLS.CertFile); err != nil {
			errs = append(errs, fmt.Errorf("tls.cert_file: %w", err))
		}
		if c.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("tls.key_file is required"))
		} else if _, err := os.Stat(c.TLS.KeyFile); err != nil {
			errs = append(errs, fmt.Errorf("tls.key_file: %w", err))
		}
		if c.TLS.MinVersion != "" && c.TLS.MinVersion != "1.2" && c.TLS.MinVersion != "1.3" {
			errs = append(errs, fmt.Errorf("tls.min_version: unsupported %q", c.TLS.MinVersion))
		}
	}

	// Key
	if c.Key.Watch && c.Key.File == "" && c.Key.Passphrase == "" {
		errs = append(errs, fmt.Errorf("key.watch requires key.file"))
	}

	// Codec
	if _, err := c.Convention(); err != nil {
		errs = append(errs, fmt.Errorf("codec.convention: %w", err))
	}

	// NATS
	if c.NATS.Enabled() && c.NATS.Subject == "" {
		errs = append(errs, fmt.Errorf("nats.subject is required when nats.urls is set"))
	}

	return errors.Join(errs...)
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: protocol.DefaultTCPPort,
		},
		Discovery: DiscoveryConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            protocol.DiscoveryPort,
			Timeout:         2 * time.Second,
			SubnetBroadcast: true,
		},
		Transport: TransportConfig{
			Framing:        protocol.FramingNone.String(),
			MaxConnections: 64,
			DialTimeout:    5 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		TLS: TLSConfig{
			MinVersion: "1.3",
		},
		Codec: CodecConfig{
			Convention: linecode.DefaultConvention.Name,
		},
		NATS: NATSConfig{
			Subject:       "manchester.delivered",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
