package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/rwirdemann/rfidlabs"
	"github.com/rwirdemann/rfidlabs/config"
	"github.com/rwirdemann/rfidlabs/console"
	"github.com/rwirdemann/rfidlabs/encoding"
	"github.com/rwirdemann/rfidlabs/traffic"
)

func main() {
	var addr encoding.Hex
	flag.Var(&addr, "address", "register address, 0x0000 to 0xFFFF")
	configFile := flag.String("config", "", "path to the TOML configuration file")
	port := flag.String("port", "", "serial port or host:port, overrides the configuration")
	mode := flag.String("mode", "read", "read|input|write")
	count := flag.Uint("count", 1, "number of registers to read")
	values := flag.String("values", "", "comma separated hex values to write, e.g. 0001,CAFE")
	debug := flag.Bool("debug", false, "set log level to debug")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.Load(*configFile, ".env", config.WithAddress(*port))
	if err != nil {
		log.Fatal(err)
	}

	if err := checkCount(*mode, *count); err != nil {
		log.Fatal(err)
	}

	protocol := console.NewProtocolAdapter()
	tlog := traffic.NewLog(cfg.Traffic.Capacity, protocol)
	if f, err := traffic.ParseFormat(cfg.Traffic.Format); err == nil {
		tlog.SetFormat(f)
	}
	monitor := traffic.NewMonitor(tlog, traffic.WithFlushTimeout(cfg.Traffic.FlushTimeout))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	transport, err := rfidlabs.Dial(cfg.Transport, monitor)
	if err != nil {
		log.Fatal(err)
	}
	device := rfidlabs.NewDevice(cfg.Transport.Address, cfg.SlaveID, transport)
	defer device.Close()

	err = run(device, *mode, addr.Uint16(), *count, *values)

	// let the monitor flush the last response
	time.Sleep(2 * cfg.Traffic.FlushTimeout)
	cancel()
	<-done
	protocol.Println(tlog.Stats().String())
	if err != nil {
		log.Fatal(err)
	}
}

// maxReadCount is the register limit of one FC3/FC4 request.
const maxReadCount = 125

// checkCount rejects read counts a single request cannot carry.
func checkCount(mode string, count uint) error {
	if mode != "read" && mode != "input" {
		return nil
	}
	if count == 0 || count > maxReadCount {
		return fmt.Errorf("invalid count %d, must be 1..%d", count, maxReadCount)
	}
	return nil
}

func run(device *rfidlabs.Device, mode string, addr uint16, count uint, values string) error {
	switch mode {
	case "read", "input":
		read := device.ReadRegisters
		if mode == "input" {
			read = device.ReadInputRegisters
		}
		regs, err := read(addr, uint16(count))
		if err != nil {
			return err
		}
		fmt.Println(rfidlabs.FormatRegisters(addr, regs))
		return nil
	case "write":
		var words []uint16
		for _, v := range strings.Split(values, ",") {
			w, err := encoding.ParseHexWord(v)
			if err != nil {
				return err
			}
			words = append(words, w)
		}
		return device.WriteRegisters(addr, words...)
	}
	return fmt.Errorf("unknown mode %q", mode)
}
