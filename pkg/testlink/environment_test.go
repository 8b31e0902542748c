package testlink_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/link"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/testlink"
)

func receive(t *testing.T, env *testlink.Environment) protocol.Delivery {
	t.Helper()
	select {
	case d := <-env.Deliveries():
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("delivery timeout")
		return protocol.Delivery{}
	}
}

func TestEnvironment_SendReceive(t *testing.T) {
	tests := []struct {
		name string
		opts []testlink.Option
	}{
		{"defaults", nil},
		{"length framing", []testlink.Option{testlink.WithFraming(protocol.FramingLength)}},
		{"thomas", []testlink.Option{testlink.WithConvention(linecode.Thomas)}},
		{"tls", []testlink.Option{testlink.WithTLS()}},
		{"tls overrides none framing", []testlink.Option{testlink.WithTLS(), testlink.WithFraming(protocol.FramingNone)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			env, err := testlink.Start(ctx, tt.opts...)
			require.NoError(t, err)
			defer env.Close(ctx)

			sender, err := env.NewSender(ctx)
			require.NoError(t, err)
			defer sender.Close()

			_, err = sender.Send(ctx, "HI")
			require.NoError(t, err)

			d := receive(t, env)
			require.NoError(t, d.Err)
			require.Equal(t, "HI", d.Plaintext)
			require.True(t, d.OK())
		})
	}
}

func TestEnvironment_OrderWithinConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := testlink.Start(ctx, testlink.WithFraming(protocol.FramingLength))
	require.NoError(t, err)
	defer env.Close(ctx)

	sender, err := env.NewSender(ctx)
	require.NoError(t, err)
	defer sender.Close()

	messages := []string{"one", "two", "three", "four"}
	for _, m := range messages {
		_, err := sender.Send(ctx, m)
		require.NoError(t, err)
	}

	for _, want := range messages {
		require.Equal(t, want, receive(t, env).Plaintext)
	}
}

func TestEnvironment_ReceiverWithoutKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := testlink.Start(ctx, testlink.WithoutReceiverKey())
	require.NoError(t, err)
	defer env.Close(ctx)

	sender, err := env.NewSender(ctx)
	require.NoError(t, err)
	defer sender.Close()

	env2, err := sender.Send(ctx, "HI")
	require.NoError(t, err)

	d := receive(t, env)
	require.ErrorIs(t, d.Err, link.ErrKeyRequired)
	require.Equal(t, env2.Binary, d.DecodedBinary)
	require.Empty(t, d.Plaintext)
}

func TestEnvironment_NATSRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	env, err := testlink.Start(ctx, testlink.WithNATS())
	require.NoError(t, err, "Start должен успешно завершиться")
	defer env.Close(ctx)
	require.NotEmpty(t, env.NATSUrl, "NATSUrl должен быть заполнен")

	sender, err := env.NewSender(ctx)
	require.NoError(t, err)
	defer sender.Close()

	sent, err := sender.Send(ctx, "HI")
	require.NoError(t, err)

	d := receive(t, env)
	require.Equal(t, "HI", d.Plaintext)

	select {
	case rec := <-env.Records():
		require.Equal(t, d.ConnID, rec.ConnID)
		require.Equal(t, "HI", rec.Plaintext)
		require.Equal(t, sent.Encrypted, rec.Encrypted)
		require.Equal(t, sent.Manchester, rec.Manchester)
		require.True(t, rec.BinaryMatches)
		require.Empty(t, rec.Error)
	case <-time.After(10 * time.Second):
		t.Fatal("record not published to NATS")
	}
}
