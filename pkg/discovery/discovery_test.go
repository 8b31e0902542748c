package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/manchester/pkg/protocol"
)

// startResponder запускает responder на случайном loopback порту.
func startResponder(t *testing.T, tcpPort int, opts ...ResponderOption) (string, <-chan error) {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)

	go func() {
		done <- Serve(ctx, conn, tcpPort, append(opts, WithReady(ready))...)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("responder did not stop")
		}
	})

	addr := <-ready
	return addr.String(), done
}

func localOnly(addr string) []RequestOption {
	return []RequestOption{
		WithTargets(addr),
		WithBroadcast(false),
		WithSubnetBroadcast(false),
		WithTimeout(500 * time.Millisecond),
	}
}

func TestDiscoverFindsResponder(t *testing.T) {
	addr, _ := startResponder(t, protocol.DefaultTCPPort)

	reply, found, err := Discover(context.Background(), localOnly(addr)...)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, protocol.DefaultTCPPort, reply.Port)
	require.True(t, reply.IP.Equal(net.IPv4(127, 0, 0, 1)))
	require.Equal(t, "127.0.0.1:12349", reply.Addr())
}

func TestDiscoverNotFound(t *testing.T) {
	// Сокет есть, но никто не отвечает.
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	start := time.Now()
	reply, found, err := Discover(context.Background(), localOnly(silent.LocalAddr().String())...)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, Reply{}, reply)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestDiscoverSkipsInvalidReply(t *testing.T) {
	fake, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer fake.Close()

	go func() {
		buf := make([]byte, protocol.MaxDatagramSize)
		_, from, err := fake.ReadFrom(buf)
		if err != nil {
			return
		}
		_, _ = fake.WriteTo([]byte("not-a-port"), from)
		_, _ = fake.WriteTo([]byte("70000"), from)
	}()

	_, found, err := Discover(context.Background(), localOnly(fake.LocalAddr().String())...)
	require.NoError(t, err)
	require.False(t, found)
}

func TestDiscoverFirstReplyWins(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	addr, _ := startResponder(t, 40001)

	reply, found, err := Discover(context.Background(),
		WithTargets(silent.LocalAddr().String(), addr),
		WithBroadcast(false),
		WithSubnetBroadcast(false),
		WithTimeout(time.Second),
	)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 40001, reply.Port)
}

func TestResponderIgnoresUnexpectedPayload(t *testing.T) {
	addr, _ := startResponder(t, 5555)

	conn, err := net.Dial("udp4", addr)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, protocol.MaxDatagramSize)

	for _, payload := range []string{"HELLO", protocol.DiscoveryMessage + "\n", "discover_manchester"} {
		_, err = conn.Write([]byte(payload))
		require.NoError(t, err)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
		_, err = conn.Read(buf)
		require.Error(t, err, "payload %q must be ignored", payload)
	}

	// После мусора responder продолжает работать.
	_, err = conn.Write([]byte(protocol.DiscoveryMessage))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "5555", string(buf[:n]))
}

func TestResponderRateLimit(t *testing.T) {
	addr, _ := startResponder(t, 6000, WithRateLimit(0.001, 1))

	conn, err := net.Dial("udp4", addr)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, protocol.MaxDatagramSize)

	_, err = conn.Write([]byte(protocol.DiscoveryMessage))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(buf)
	require.NoError(t, err)

	_, err = conn.Write([]byte(protocol.DiscoveryMessage))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, err = conn.Read(buf)
	require.Error(t, err, "second request must be dropped by limiter")
}

func TestServeStopsOnCancel(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, conn, 1) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestDiscoverCancelled(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, found, err := Discover(ctx,
		WithTargets(silent.LocalAddr().String()),
		WithBroadcast(false),
		WithTimeout(10*time.Second),
	)
	require.NoError(t, err)
	require.False(t, found)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestBroadcastAddr(t *testing.T) {
	tests := []struct {
		cidr string
		want string
	}{
		{"192.168.1.42/24", "192.168.1.255"},
		{"10.0.0.1/8", "10.255.255.255"},
		{"172.16.5.4/30", "172.16.5.7"},
	}

	for _, tt := range tests {
		ip, ipNet, err := net.ParseCIDR(tt.cidr)
		require.NoError(t, err)
		ipNet.IP = ip
		require.Equal(t, tt.want, broadcastAddr(ipNet).String(), tt.cidr)
	}

	_, v6, err := net.ParseCIDR("fe80::1/64")
	require.NoError(t, err)
	require.Nil(t, broadcastAddr(v6))
}
