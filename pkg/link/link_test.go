package link

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/secret"
)

func newPipeline(t *testing.T, conv linecode.Convention) *Pipeline {
	t.Helper()
	key, err := secret.GenerateKey()
	require.NoError(t, err)
	return NewPipeline(secret.NewHolder(&key), linecode.New(conv))
}

func TestPipelineRoundTrip(t *testing.T) {
	for _, conv := range []linecode.Convention{linecode.IEEE8023, linecode.Thomas} {
		t.Run(conv.Name, func(t *testing.T) {
			p := newPipeline(t, conv)

			for _, text := range []string{"HI", "", "Olá, Manchester", "ÿ"} {
				env, err := p.Seal(text)
				require.NoError(t, err)
				require.Equal(t, text, env.Text)
				require.Len(t, env.Manchester, 2*len(env.Binary))
				require.Zero(t, len(env.Binary)%8)

				d, err := p.Open(env)
				require.NoError(t, err)
				require.True(t, d.OK())
				require.Equal(t, text, d.Plaintext)
				require.Equal(t, env.Binary, d.DecodedBinary)
			}
		})
	}
}

func TestPipelineSealRequiresKey(t *testing.T) {
	p := NewPipeline(secret.NewHolder(nil), nil)

	_, err := p.Seal("HI")
	require.ErrorIs(t, err, ErrKeyRequired)
}

func TestPipelineOpenWithoutKey(t *testing.T) {
	sender := newPipeline(t, linecode.IEEE8023)
	env, err := sender.Seal("HI")
	require.NoError(t, err)

	receiver := NewPipeline(secret.NewHolder(nil), nil)
	d, err := receiver.Open(env)
	require.ErrorIs(t, err, ErrKeyRequired)
	require.ErrorIs(t, d.Err, ErrKeyRequired)

	// Представления доступны, текста нет.
	require.Empty(t, d.Plaintext)
	require.True(t, d.BinaryMatches)
	require.Equal(t, env.Binary, d.DecodedBinary)
	require.True(t, d.Report.Valid)
}

func TestPipelineOpenWrongKey(t *testing.T) {
	sender := newPipeline(t, linecode.IEEE8023)
	receiver := newPipeline(t, linecode.IEEE8023)

	env, err := sender.Seal("secret message")
	require.NoError(t, err)

	d, err := receiver.Open(env)
	if err == nil {
		// Случайно корректный padding: текст всё равно не совпадёт.
		require.NotEqual(t, "secret message", d.Plaintext)
		return
	}
	require.ErrorIs(t, err, secret.ErrCrypto)
	require.Empty(t, d.Plaintext)
}

func TestPipelineOpenCorruptedLine(t *testing.T) {
	p := newPipeline(t, linecode.IEEE8023)

	env, err := p.Seal("HI")
	require.NoError(t, err)

	corrupted := protocol.NewEnvelope(env.Text, env.Encrypted, env.Binary, env.Manchester)
	corrupted.Manchester[0] = corrupted.Manchester[1]

	d, err := p.Open(corrupted)
	require.NoError(t, err, "decryption uses the blob, not the line")
	require.Equal(t, "HI", d.Plaintext)
	require.False(t, d.BinaryMatches)
	require.Len(t, d.Violations, 1)
	require.Equal(t, 0, d.Violations[0].Bit)
	require.False(t, d.Report.Valid)
	require.False(t, d.OK())
}

func TestPipelineKeyRotation(t *testing.T) {
	p := newPipeline(t, linecode.IEEE8023)

	env, err := p.Seal("before")
	require.NoError(t, err)

	next, err := secret.GenerateKey()
	require.NoError(t, err)
	p.Keys().Set(next)

	_, err = p.Open(env)
	if err == nil {
		t.Skip("padding accidentally valid")
	}

	env, err = p.Seal("after")
	require.NoError(t, err)
	d, err := p.Open(env)
	require.NoError(t, err)
	require.Equal(t, "after", d.Plaintext)
}

func TestSinks(t *testing.T) {
	errA := errors.New("a failed")
	var calls int

	sinks := Sinks{
		SinkFunc(func(context.Context, protocol.Delivery) error { calls++; return errA }),
		SinkFunc(func(context.Context, protocol.Delivery) error { calls++; return nil }),
		LogSink{},
	}

	err := sinks.Deliver(context.Background(), protocol.Delivery{ConnID: "x"})
	require.ErrorIs(t, err, errA)
	require.Equal(t, 2, calls)
}

func TestChanSinkCancelled(t *testing.T) {
	ch := make(chan protocol.Delivery)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ChanSink(ch).Deliver(ctx, protocol.Delivery{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestLoadKeys(t *testing.T) {
	dir := t.TempDir()

	t.Run("passphrase wins", func(t *testing.T) {
		h, err := LoadKeys(config.KeyConfig{Passphrase: "pw", File: filepath.Join(dir, "unused.key")}, true)
		require.NoError(t, err)
		want, err := secret.DeriveKey("pw")
		require.NoError(t, err)
		got, ok := h.Get()
		require.True(t, ok)
		require.True(t, got.Equal(want))
	})

	t.Run("missing file without generate", func(t *testing.T) {
		h, err := LoadKeys(config.KeyConfig{File: filepath.Join(dir, "absent.key")}, false)
		require.NoError(t, err)
		_, ok := h.Get()
		require.False(t, ok)
	})

	t.Run("generate then load", func(t *testing.T) {
		path := filepath.Join(dir, "link.key")
		h1, err := LoadKeys(config.KeyConfig{File: path}, true)
		require.NoError(t, err)
		h2, err := LoadKeys(config.KeyConfig{File: path}, false)
		require.NoError(t, err)

		k1, _ := h1.Get()
		k2, ok := h2.Get()
		require.True(t, ok)
		require.True(t, k1.Equal(k2))
	})
}

// startReceiver поднимает приёмник на loopback с discovery.
func startReceiver(t *testing.T, cfg *config.Config, p *Pipeline) (<-chan protocol.Delivery, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	udp, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	deliveries := make(chan protocol.Delivery, 8)
	r := NewReceiver(cfg, p, Sinks{ChanSink(deliveries), LogSink{}})

	ctx, cancel := context.WithCancel(context.Background())
	cfg.Ready = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, lis, udp) }()

	select {
	case <-cfg.Ready:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver not ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("receiver did not stop")
		}
	})

	return deliveries, udp.LocalAddr().String()
}

func TestSendReceiveOverDiscovery(t *testing.T) {
	for _, framing := range []string{"none", "length"} {
		t.Run(framing, func(t *testing.T) {
			key, err := secret.GenerateKey()
			require.NoError(t, err)

			cfg := config.Default()
			cfg.Transport.Framing = framing

			receiverPipe := NewPipeline(secret.NewHolder(&key), nil)
			deliveries, udpAddr := startReceiver(t, cfg, receiverPipe)

			senderCfg := config.Default()
			senderCfg.Transport.Framing = framing
			senderCfg.Discovery.Targets = []string{udpAddr}
			senderCfg.Discovery.SubnetBroadcast = false
			senderCfg.Discovery.Timeout = time.Second

			sender, err := Connect(context.Background(), senderCfg, NewPipeline(secret.NewHolder(&key), nil), "")
			require.NoError(t, err)
			defer sender.Close()

			env, err := sender.Send(context.Background(), "HI")
			require.NoError(t, err)

			select {
			case d := <-deliveries:
				require.NoError(t, d.Err)
				require.Equal(t, "HI", d.Plaintext)
				require.Equal(t, env.Encrypted, d.Envelope.Encrypted)
				require.True(t, d.OK())
				require.NotEmpty(t, d.ConnID)
			case <-time.After(3 * time.Second):
				t.Fatal("message not delivered")
			}
		})
	}
}

func TestReceiverWithoutKeyStillDecodes(t *testing.T) {
	key, err := secret.GenerateKey()
	require.NoError(t, err)

	cfg := config.Default()
	deliveries, udpAddr := startReceiver(t, cfg, NewPipeline(secret.NewHolder(nil), nil))

	senderCfg := config.Default()
	senderCfg.Discovery.Targets = []string{udpAddr}
	senderCfg.Discovery.SubnetBroadcast = false

	sender, err := Connect(context.Background(), senderCfg, NewPipeline(secret.NewHolder(&key), nil), "")
	require.NoError(t, err)
	defer sender.Close()

	_, err = sender.Send(context.Background(), "HI")
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		require.ErrorIs(t, d.Err, ErrKeyRequired)
		require.Empty(t, d.Plaintext)
		require.True(t, d.BinaryMatches)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestDiscoverNoReceiver(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	cfg := config.Default()
	cfg.Discovery.Targets = []string{silent.LocalAddr().String()}
	cfg.Discovery.SubnetBroadcast = false
	cfg.Discovery.Timeout = 300 * time.Millisecond

	_, err = Connect(context.Background(), cfg, NewPipeline(secret.NewHolder(nil), nil), "")
	require.ErrorIs(t, err, ErrNoReceiver)
}

func TestDialOptionsTLSRequiresLengthFraming(t *testing.T) {
	cfg := config.Default()
	cfg.TLS.Enabled = true

	_, err := DialOptions(cfg)
	require.ErrorIs(t, err, config.ErrTLSFraming)

	_, err = Connect(context.Background(), cfg, NewPipeline(secret.NewHolder(nil), nil), "127.0.0.1:1")
	require.ErrorIs(t, err, config.ErrTLSFraming)

	cfg.Transport.Framing = "length"
	opts, err := DialOptions(cfg)
	require.NoError(t, err)
	require.NotEmpty(t, opts)
}
