// Package main запускает узел manchester: приёмник, отправитель, discovery и генерацию ключа.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/udisondev/manchester/internal/appdir"
	"github.com/udisondev/manchester/pkg/config"
)

const usage = `usage: manchester [-config path] [-init] <command> [args]

commands:
  receive                 run receiver (TCP + discovery) until interrupted
  send [-addr host:port] <text>
                          encrypt, encode and send one message
  discover                find a receiver on the local network
  keygen [-force] [-print]
                          generate a shared key into key.file
`

func main() {
	configPath := flag.String("config", "", "path to config file (default: XDG config dir)")
	initOnly := flag.Bool("init", false, "initialize app directory and exit")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if err := appdir.Init(); err != nil {
		slog.Error("init app directory", "error", err)
		os.Exit(1)
	}

	if *initOnly {
		fmt.Printf("Initialized: %s\n", appdir.Dir())
		fmt.Printf("Config: %s\n", appdir.ConfigPath())
		fmt.Printf("Certs: %s\n", appdir.CertsDir())
		fmt.Printf("Keys: %s\n", appdir.KeysDir())
		fmt.Printf("Logs: %s\n", appdir.LogsDir())
		return
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		slog.Error("fatal error", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

func run(configPath, command string, args []string) error {
	var cfg *config.Config
	var err error

	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromAppDir()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	setupLogging(cfg.Log)

	slog.Info("manchester starting",
		"command", command,
		"config_dir", appdir.Dir(),
		"address", cfg.Server.Addr(),
	)

	// pprof сервер для профилирования (опционально)
	if pprofAddr := os.Getenv("MANCHESTER_PPROF"); pprofAddr != "" {
		go func() {
			slog.Info("pprof server started", "addr", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "receive":
		return runReceive(ctx, cfg, os.Stdout)
	case "send":
		return runSend(ctx, cfg, args, os.Stdout)
	case "discover":
		return runDiscover(ctx, cfg, os.Stdout)
	case "keygen":
		return runKeygen(cfg, args, os.Stdout)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func setupLogging(cfg config.LogConfig) {
	var output io.Writer = os.Stdout

	if cfg.File != "" {
		output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // MB
			MaxAge:     7,   // days
			MaxBackups: 5,
			Compress:   true,
			LocalTime:  true,
		}
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(handler))
}
