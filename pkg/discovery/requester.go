package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/udisondev/manchester/pkg/protocol"
)

// DefaultTimeout — общий бюджет ожидания ответа.
const DefaultTimeout = 2 * time.Second

// Reply — ответ приёмника: адрес, с которого он пришёл, и TCP порт.
type Reply struct {
	IP   net.IP
	Port int
}

// Addr возвращает TCP адрес приёмника в формате host:port.
func (r Reply) Addr() string {
	return net.JoinHostPort(r.IP.String(), strconv.Itoa(r.Port))
}

type requestConfig struct {
	port      int
	timeout   time.Duration
	broadcast bool
	subnets   bool
	targets   []string
}

// RequestOption конфигурирует запрос.
type RequestOption func(*requestConfig)

// WithPort устанавливает UDP порт discovery для broadcast адресов.
func WithPort(port int) RequestOption {
	return func(c *requestConfig) {
		c.port = port
	}
}

// WithTimeout устанавливает общий таймаут; он делится между адресами поровну.
func WithTimeout(d time.Duration) RequestOption {
	return func(c *requestConfig) {
		c.timeout = d
	}
}

// WithBroadcast включает или выключает запрос на 255.255.255.255.
func WithBroadcast(enabled bool) RequestOption {
	return func(c *requestConfig) {
		c.broadcast = enabled
	}
}

// WithSubnetBroadcast включает запрос на broadcast адреса подсетей
// локальных IPv4 интерфейсов.
func WithSubnetBroadcast(enabled bool) RequestOption {
	return func(c *requestConfig) {
		c.subnets = enabled
	}
}

// WithTargets добавляет явные адреса (host:port). Опрашиваются первыми.
func WithTargets(addrs ...string) RequestOption {
	return func(c *requestConfig) {
		c.targets = append(c.targets, addrs...)
	}
}

// Discover ищет приёмник. Адреса опрашиваются по порядку, на каждый
// отводится timeout/len(targets); первый корректный ответ побеждает.
// Если никто не ответил — (Reply{}, false, nil). Ошибка возвращается
// только если не удалось открыть сокет.
func Discover(ctx context.Context, opts ...RequestOption) (Reply, bool, error) {
	cfg := requestConfig{
		port:      protocol.DiscoveryPort,
		timeout:   DefaultTimeout,
		broadcast: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return Reply{}, false, fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	// Разблокируем чтение при отмене контекста.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	targets := cfg.resolveTargets()
	if len(targets) == 0 {
		slog.Warn("discovery: no targets")
		return Reply{}, false, nil
	}
	perTarget := cfg.timeout / time.Duration(len(targets))

	request := []byte(protocol.DiscoveryMessage)
	buf := make([]byte, protocol.MaxDatagramSize)

	for _, target := range targets {
		if ctx.Err() != nil {
			break
		}

		if _, err := conn.WriteToUDP(request, target); err != nil {
			slog.Debug("discovery: send failed", "target", target, "error", err)
			continue
		}
		slog.Debug("discovery: request sent", "target", target)

		deadline := time.Now().Add(perTarget)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := conn.SetReadDeadline(deadline); err != nil {
			slog.Debug("discovery: set deadline", "error", err)
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if reply, ok := awaitReply(conn, buf); ok {
			slog.Info("discovery: receiver found", "addr", reply.Addr())
			return reply, true, nil
		}
	}

	slog.Info("discovery: no receiver found", "targets", len(targets))
	return Reply{}, false, nil
}

// awaitReply читает ответы до дедлайна; datagram без корректного порта пропускаются.
func awaitReply(conn *net.UDPConn, buf []byte) (Reply, bool) {
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				slog.Debug("discovery: read", "error", err)
			}
			return Reply{}, false
		}

		port, err := strconv.Atoi(string(buf[:n]))
		if err != nil || port < 1 || port > 65535 {
			slog.Debug("discovery: invalid reply", "remote", from, "size", n)
			continue
		}
		return Reply{IP: from.IP, Port: port}, true
	}
}

func (c requestConfig) resolveTargets() []*net.UDPAddr {
	var out []*net.UDPAddr
	seen := make(map[string]bool)
	add := func(addr *net.UDPAddr) {
		key := addr.String()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, addr)
	}

	for _, t := range c.targets {
		addr, err := net.ResolveUDPAddr("udp4", t)
		if err != nil {
			slog.Warn("discovery: bad target", "target", t, "error", err)
			continue
		}
		add(addr)
	}

	if c.broadcast {
		add(&net.UDPAddr{IP: net.IPv4bcast, Port: c.port})
	}

	if c.subnets {
		for _, ip := range subnetBroadcasts() {
			add(&net.UDPAddr{IP: ip, Port: c.port})
		}
	}

	return out
}

// subnetBroadcasts возвращает broadcast адреса поднятых IPv4 интерфейсов.
func subnetBroadcasts() []net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		slog.Debug("discovery: list interfaces", "error", err)
		return nil
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if b := broadcastAddr(ipNet); b != nil {
				out = append(out, b)
			}
		}
	}
	return out
}

// broadcastAddr вычисляет ip | ^mask; nil для не-IPv4 сетей.
func broadcastAddr(n *net.IPNet) net.IP {
	ip := n.IP.To4()
	if ip == nil {
		return nil
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}

	out := make(net.IP, net.IPv4len)
	for i := range ip {
		out[i] = ip[i] | ^mask[i]
	}
	return out
}
