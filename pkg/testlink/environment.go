package testlink

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/udisondev/manchester/pkg/broker"
	"github.com/udisondev/manchester/pkg/client"
	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/link"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/secret"
)

// Environment — запущенный приёмник и всё, что нужно отправителю.
type Environment struct {
	// ReceiverAddr адрес TCP приёмника (host:port).
	ReceiverAddr string
	// DiscoveryAddr адрес UDP responder'а.
	DiscoveryAddr string
	// NATSUrl URL NATS; пустой, если брокер не запускался.
	NATSUrl string
	// CACert сертификат приёмника, если включён TLS.
	CACert []byte
	// Key общий ключ канала.
	Key secret.Key

	cfg        *config.Config
	deliveries chan protocol.Delivery
	records    chan protocol.DeliveryRecord

	nats       *natsContainer
	certs      *Certs
	brk        *broker.Broker
	watcher    *broker.Broker
	subscriber *broker.Subscriber
	cancelCtx  context.CancelFunc
	serveErr   chan error
}

// Option опция конфигурации окружения.
type Option func(*options)

type options struct {
	withNATS   bool
	withTLS    bool
	framing    protocol.Framing
	convention linecode.Convention
	noKey      bool
	bufSize    int
}

func defaultOptions() *options {
	return &options{
		framing:    protocol.FramingNone,
		convention: linecode.DefaultConvention,
		bufSize:    64,
	}
}

// WithNATS поднимает NATS контейнер и подключает BrokerSink.
func WithNATS() Option {
	return func(o *options) { o.withNATS = true }
}

// WithTLS включает TLS с временным самоподписанным сертификатом.
// Обрамление при этом всегда FramingLength.
func WithTLS() Option {
	return func(o *options) { o.withTLS = true }
}

// WithFraming устанавливает режим обрамления для обеих сторон.
func WithFraming(f protocol.Framing) Option {
	return func(o *options) { o.framing = f }
}

// WithConvention устанавливает конвенцию Manchester для обеих сторон.
func WithConvention(c linecode.Convention) Option {
	return func(o *options) { o.convention = c }
}

// WithoutReceiverKey запускает приёмник без ключа.
func WithoutReceiverKey() Option {
	return func(o *options) { o.noKey = true }
}

// Start запускает окружение: опционально NATS, затем приёмник на loopback.
func Start(ctx context.Context, opts ...Option) (*Environment, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.withTLS {
		o.framing = protocol.FramingLength
	}

	key, err := secret.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	env := &Environment{
		Key:        key,
		deliveries: make(chan protocol.Delivery, o.bufSize),
		records:    make(chan protocol.DeliveryRecord, o.bufSize),
	}

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Transport.Framing = o.framing.String()
	cfg.Codec.Convention = o.convention.Name
	cfg.Discovery.SubnetBroadcast = false
	env.cfg = cfg

	sinks := link.Sinks{link.ChanSink(env.deliveries), link.LogSink{}}

	if o.withNATS {
		nats, err := startNATS(ctx)
		if err != nil {
			return nil, fmt.Errorf("start NATS: %w", err)
		}
		env.nats = nats
		env.NATSUrl = nats.URL()
		cfg.NATS.URLs = []string{nats.URL()}
		cfg.NATS.ReconnectWait = time.Second
		cfg.NATS.MaxReconnects = 5

		if err := env.connectBroker(); err != nil {
			env.Close(ctx)
			return nil, err
		}
		sinks = append(sinks, link.BrokerSink{Publisher: broker.NewPublisher(env.brk, cfg.NATS.Subject)})
	}

	if o.withTLS {
		certs, err := GenerateCerts()
		if err != nil {
			env.Close(ctx)
			return nil, fmt.Errorf("generate certs: %w", err)
		}
		env.certs = certs
		env.CACert = certs.CACert
		cfg.TLS.Enabled = true
		cfg.TLS.CertFile = certs.CertFile
		cfg.TLS.KeyFile = certs.KeyFile
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		env.Close(ctx)
		return nil, fmt.Errorf("create listener: %w", err)
	}
	udp, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		_ = lis.Close()
		env.Close(ctx)
		return nil, fmt.Errorf("create discovery socket: %w", err)
	}
	env.ReceiverAddr = lis.Addr().String()
	env.DiscoveryAddr = udp.LocalAddr().String()
	cfg.Server.Port = lis.Addr().(*net.TCPAddr).Port

	holder := secret.NewHolder(&key)
	if o.noKey {
		holder = secret.NewHolder(nil)
	}
	receiver := link.NewReceiver(cfg, link.NewPipeline(holder, linecode.New(o.convention)), sinks)

	ready := make(chan struct{})
	cfg.Ready = ready

	serveCtx, cancel := context.WithCancel(context.Background())
	env.cancelCtx = cancel
	env.serveErr = make(chan error, 1)

	go func() {
		env.serveErr <- receiver.Serve(serveCtx, lis, udp)
	}()

	select {
	case <-ready:
	case err := <-env.serveErr:
		env.serveErr <- err
		env.Close(ctx)
		return nil, fmt.Errorf("receiver failed to start: %w", err)
	case <-time.After(30 * time.Second):
		env.Close(ctx)
		return nil, errors.New("receiver start timeout")
	}

	return env, nil
}

// connectBroker подключает издателя и отдельного подписчика записей.
func (e *Environment) connectBroker() error {
	bcfg := broker.Config{
		URLs:          e.cfg.NATS.URLs,
		ReconnectWait: e.cfg.NATS.ReconnectWait,
		MaxReconnects: e.cfg.NATS.MaxReconnects,
	}

	brk, err := broker.New(bcfg)
	if err != nil {
		return fmt.Errorf("create broker: %w", err)
	}
	e.brk = brk

	bcfg.Name = "testlink-watcher"
	watcher, err := broker.New(bcfg)
	if err != nil {
		return fmt.Errorf("create watcher broker: %w", err)
	}
	e.watcher = watcher

	sub, err := broker.Subscribe(watcher, e.cfg.NATS.Subject, func(_ string, rec protocol.DeliveryRecord) {
		select {
		case e.records <- rec:
		default:
		}
	})
	if err != nil {
		return err
	}
	e.subscriber = sub

	return watcher.Flush(5 * time.Second)
}

// Config возвращает конфигурацию отправителя, совместимую с приёмником.
// Discovery направлен на loopback responder.
func (e *Environment) Config() *config.Config {
	cfg := *e.cfg
	cfg.Ready = nil
	cfg.Discovery.Targets = []string{e.DiscoveryAddr}
	cfg.Discovery.Timeout = 2 * time.Second
	return &cfg
}

// NewSender подключает отправителя с ключом окружения через discovery.
func (e *Environment) NewSender(ctx context.Context) (*link.Sender, error) {
	cfg := e.Config()
	conv, err := cfg.Convention()
	if err != nil {
		return nil, err
	}
	key := e.Key
	p := link.NewPipeline(secret.NewHolder(&key), linecode.New(conv))

	var extra []client.DialOption
	if e.CACert != nil {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(e.CACert) {
			return nil, errors.New("parse CA cert: invalid PEM")
		}
		extra = append(extra, client.WithRootCAs(pool))
	}

	sender, err := link.Connect(ctx, cfg, p, "", extra...)
	if err != nil {
		return nil, fmt.Errorf("connect sender: %w", err)
	}
	return sender, nil
}

// Deliveries возвращает канал результатов приёма.
func (e *Environment) Deliveries() <-chan protocol.Delivery {
	return e.deliveries
}

// Records возвращает канал записей, полученных из NATS.
// Пуст, если окружение запущено без WithNATS.
func (e *Environment) Records() <-chan protocol.DeliveryRecord {
	return e.records
}

// Close останавливает окружение.
func (e *Environment) Close(ctx context.Context) error {
	if e.cancelCtx != nil {
		e.cancelCtx()
		select {
		case <-e.serveErr:
		case <-time.After(5 * time.Second):
		}
	}

	var errs []error

	if e.subscriber != nil {
		if err := e.subscriber.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	for _, b := range []*broker.Broker{e.brk, e.watcher} {
		if b == nil {
			continue
		}
		if err := b.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}

	if e.certs != nil {
		if err := e.certs.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup certs: %w", err))
		}
	}

	if e.nats != nil {
		if err := e.nats.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate NATS: %w", err))
		}
	}

	return errors.Join(errs...)
}
