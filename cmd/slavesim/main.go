package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/goburrow/serial"
	"github.com/rwirdemann/rfidlabs/sim"
	"github.com/rwirdemann/rfidlabs/tcp"
)

func main() {
	url := flag.String("url", "tcp://localhost:5002", "RTU over TCP listen address")
	device := flag.String("serial", "", "serve on this serial port instead of TCP, e.g. /tmp/virtualcom1")
	baud := flag.Int("baud", 57600, "serial baud rate")
	unitID := flag.Uint("slave", 1, "the slave id")
	chunk := flag.Int("chunk", 0, "write responses in chunks of this many bytes")
	delay := flag.Duration("chunk-delay", 5*time.Millisecond, "pause between response chunks")
	debug := flag.Bool("debug", false, "set log level to debug")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	srv := sim.NewServer(sim.WithChunks(*chunk, *delay))
	slave := sim.NewSlave(uint8(*unitID))
	srv.AddSlave(slave)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *device != "" {
		port, err := serial.Open(&serial.Config{
			Address:  *device,
			BaudRate: *baud,
			DataBits: 8,
			StopBits: 1,
			Parity:   "E",
			Timeout:  50 * time.Millisecond,
		})
		if err != nil {
			log.Fatal(err)
		}
		slog.Info("serving on serial port", "port", *device, "slave", *unitID)
		if err := srv.Serve(ctx, port); err != nil {
			log.Fatal(err)
		}
		return
	}

	handler, err := tcp.NewHandler(*url)
	if err != nil {
		log.Fatal(err)
	}
	if err := handler.Start(ctx, func(ctx context.Context, conn net.Conn) {
		c := tcp.NewConnection(conn, 50*time.Millisecond)
		defer c.Close()
		if err := srv.Serve(ctx, c); err != nil {
			slog.Error("connection failed", "remote addr", c.Name(), "err", err)
		}
		slog.Info("client disconnected", "remote addr", c.Name())
	}); err != nil {
		log.Fatal(err)
	}
	defer handler.Stop()

	<-ctx.Done()
}
