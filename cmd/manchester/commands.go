package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/udisondev/manchester/internal/keywatch"
	"github.com/udisondev/manchester/pkg/broker"
	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/link"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/secret"
)

func newPipeline(cfg *config.Config, generateKey bool) (*link.Pipeline, error) {
	conv, err := cfg.Convention()
	if err != nil {
		return nil, err
	}
	keys, err := link.LoadKeys(cfg.Key, generateKey)
	if err != nil {
		return nil, err
	}
	return link.NewPipeline(keys, linecode.New(conv)), nil
}

func runReceive(ctx context.Context, cfg *config.Config, out io.Writer) error {
	p, err := newPipeline(cfg, true)
	if err != nil {
		return err
	}

	sinks := link.Sinks{link.LogSink{}, printSink(out)}

	if cfg.NATS.Enabled() {
		brk, err := broker.New(broker.Config{
			URLs:          cfg.NATS.URLs,
			Name:          "manchester-receiver",
			ReconnectWait: cfg.NATS.ReconnectWait,
			MaxReconnects: cfg.NATS.MaxReconnects,
		})
		if err != nil {
			return fmt.Errorf("create broker: %w", err)
		}
		defer func() {
			if err := brk.Close(); err != nil {
				slog.Error("close broker", "error", err)
			}
		}()
		sinks = append(sinks, link.BrokerSink{Publisher: broker.NewPublisher(brk, cfg.NATS.Subject)})
	}

	if cfg.Key.Watch && cfg.Key.File != "" && cfg.Key.Passphrase == "" {
		w := keywatch.New(cfg.Key.File, p.Keys())
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("key watcher stopped", "error", err)
			}
		}()
	}

	fmt.Fprintf(out, "receiving on %s (discovery %v, framing %s, convention %s)\n",
		cfg.Server.Addr(), cfg.Discovery.Enabled, cfg.Transport.Framing, p.Codec().Convention().Name)

	return link.NewReceiver(cfg, p, sinks).Run(ctx)
}

// printSink печатает результат приёма в out.
func printSink(out io.Writer) link.Sink {
	return link.SinkFunc(func(_ context.Context, d protocol.Delivery) error {
		fmt.Fprintf(out, "--- message from %s (conn %s)\n", d.Remote, d.ConnID)
		fmt.Fprintf(out, "encrypted:  %s\n", d.Envelope.Encrypted)
		fmt.Fprintf(out, "binary:     %s\n", d.Envelope.Binary)
		fmt.Fprintf(out, "manchester: %s\n", d.Envelope.Manchester)
		fmt.Fprintf(out, "decoded ok: %v (violations %d, bit errors %d)\n",
			d.BinaryMatches, len(d.Violations), len(d.Report.Errors))
		for _, v := range d.Violations {
			fmt.Fprintf(out, "  violation: %s\n", v)
		}
		if d.Err != nil {
			fmt.Fprintf(out, "text:       <%v>\n", d.Err)
			return nil
		}
		fmt.Fprintf(out, "text:       %s\n", d.Plaintext)
		return nil
	})
}

func runSend(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	addr := fs.String("addr", "", "receiver address host:port (default: discover)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: send requires text", errUsage)
	}
	text := strings.Join(fs.Args(), " ")

	p, err := newPipeline(cfg, false)
	if err != nil {
		return err
	}

	sender, err := link.Connect(ctx, cfg, p, *addr)
	if err != nil {
		return err
	}
	defer func() {
		if err := sender.Close(); err != nil {
			slog.Error("close sender", "error", err)
		}
	}()

	env, err := sender.Send(ctx, text)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "encrypted:  %s\n", env.Encrypted)
	fmt.Fprintf(out, "binary:     %s\n", env.Binary)
	fmt.Fprintf(out, "manchester: %s\n", env.Manchester)
	return nil
}

func runDiscover(ctx context.Context, cfg *config.Config, out io.Writer) error {
	addr, err := link.Discover(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, addr)
	return nil
}

func runKeygen(cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	force := fs.Bool("force", false, "overwrite existing key file")
	printOnly := fs.Bool("print", false, "print a new key without saving")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	key, err := secret.GenerateKey()
	if err != nil {
		return err
	}

	if *printOnly {
		fmt.Fprintln(out, key.String())
		return nil
	}

	if cfg.Key.File == "" {
		return errors.New("key.file is not configured")
	}
	if _, err := os.Stat(cfg.Key.File); err == nil && !*force {
		return fmt.Errorf("key file %s exists (use -force)", cfg.Key.File)
	}

	if err := key.SaveToFile(cfg.Key.File); err != nil {
		return err
	}
	fmt.Fprintf(out, "key saved to %s\n%s\n", cfg.Key.File, key.String())
	return nil
}
