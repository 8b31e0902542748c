package link

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/discovery"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/server"
)

// Receiver принимает конверты, вскрывает их и передаёт в sink.
type Receiver struct {
	cfg      *config.Config
	pipeline *Pipeline
	sink     Sink
}

// NewReceiver создаёт приёмник.
func NewReceiver(cfg *config.Config, p *Pipeline, sink Sink) *Receiver {
	return &Receiver{cfg: cfg, pipeline: p, sink: sink}
}

// Run открывает TCP и UDP сокеты по конфигурации и обслуживает их до отмены ctx.
func (r *Receiver) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", r.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	var udp net.PacketConn
	if r.cfg.Discovery.Enabled {
		udp, err = net.ListenPacket("udp4", r.cfg.Discovery.Addr())
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("listen discovery: %w", err)
		}
	}

	return r.Serve(ctx, lis, udp)
}

// Serve обслуживает готовые сокеты. udp == nil — discovery выключен.
// Discovery отвечает фактическим портом lis.
func (r *Receiver) Serve(ctx context.Context, lis net.Listener, udp net.PacketConn) error {
	tcpPort := r.cfg.Server.Port
	if addr, ok := lis.Addr().(*net.TCPAddr); ok {
		tcpPort = addr.Port
	}

	g, ctx := errgroup.WithContext(ctx)

	if udp != nil {
		g.Go(func() error {
			return discovery.Serve(ctx, udp, tcpPort,
				discovery.WithRateLimit(r.cfg.Discovery.RateLimitPerSec, r.cfg.Discovery.RateLimitBurst))
		})
	}

	g.Go(func() error {
		return server.Serve(ctx, r.cfg, lis, r)
	})

	return g.Wait()
}

// HandleEnvelope реализует server.Handler.
func (r *Receiver) HandleEnvelope(ctx context.Context, s server.Session, env protocol.Envelope) {
	d, err := r.pipeline.Open(env)
	d.ConnID = s.ID
	d.Remote = s.Remote
	d.ReceivedAt = s.ReceivedAt

	if err != nil {
		slog.Debug("link: open failed", "error", err, "conn", s.ID)
	}
	if !d.BinaryMatches || len(d.Violations) > 0 {
		slog.Warn("link: line code mismatch",
			"conn", s.ID,
			"binary_matches", d.BinaryMatches,
			"violations", len(d.Violations),
			"bit_errors", len(d.Report.Errors),
		)
	}

	if err := r.sink.Deliver(ctx, d); err != nil {
		slog.Error("link: deliver failed", "error", err, "conn", s.ID)
	}
}
