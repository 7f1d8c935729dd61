package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rwirdemann/rfidlabs"
	"github.com/rwirdemann/rfidlabs/config"
	"github.com/rwirdemann/rfidlabs/console"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", "", "path to the TOML configuration file")
	port := flag.String("port", "", "serial port or host:port, overrides the configuration")
	connect := flag.Bool("connect", false, "connect to the reader on startup")
	debug := flag.Bool("debug", false, "set log level to debug")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load(*configFile, ".env", config.WithAddress(*port))
	if err != nil {
		log.Fatal(err)
	}

	protocol := console.NewProtocolAdapter()
	session := rfidlabs.NewSession(*cfg, protocol)
	keyboard := console.NewKeyboardAdapter(session, historyFile())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)

	g.Go(func() error {
		return session.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return keyboard.Start(ctx, protocol.SetWriter)
	})

	protocol.Println(session.Status())
	protocol.Separator()
	if *connect {
		if err := session.Connect(); err != nil {
			slog.Error("failed to connect", "err", err)
		}
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}

func historyFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "rfidlabs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ""
	}
	return filepath.Join(dir, "history")
}
