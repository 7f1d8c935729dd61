package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rwirdemann/rfidlabs"
	"github.com/rwirdemann/rfidlabs/encoding"
	"github.com/rwirdemann/rfidlabs/traffic"
)

const prompt = "rfidlabs> "

var completer = readline.NewPrefixCompleter(
	readline.PcItem("connect"),
	readline.PcItem("disconnect"),
	readline.PcItem("read"),
	readline.PcItem("input"),
	readline.PcItem("write"),
	readline.PcItem("raw"),
	readline.PcItem("text"),
	readline.PcItem("bytes"),
	readline.PcItem("writebytes"),
	readline.PcItem("poll", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("log", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("format", readline.PcItem("hex"), readline.PcItem("ascii"), readline.PcItem("decode")),
	readline.PcItem("history"),
	readline.PcItem("stats"),
	readline.PcItem("clear"),
	readline.PcItem("status"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

const help = `Commands:
  connect / disconnect        - Open or close the reader connection
  read <addr> [count]         - Read holding registers (FC3)
  input <addr> [count]        - Read input registers (FC4)
  write <addr> <value...>     - Write registers (FC16)
  raw <hex bytes>             - Send a raw frame, CRC is appended
  text <addr> <count>         - Read registers as ASCII text
  bytes <addr> <n>            - Read n bytes packed into registers
  writebytes <addr> <hex>     - Write bytes packed into registers
  poll on|off                 - Toggle background polling
  log on|off                  - Toggle raw traffic capture
  format hex|ascii|decode     - Set the traffic display format
  history                     - Print the captured traffic again
  stats                       - Show traffic statistics
  clear                       - Clear the captured traffic
  status/s                    - Show harness status
  help/h                      - Show help
  quit/exit/q                 - Quit`

// KeyboardAdapter is the interactive command line of the harness.
type KeyboardAdapter struct {
	harness     rfidlabs.ControlPort
	out         io.Writer
	historyFile string
}

func NewKeyboardAdapter(harness rfidlabs.ControlPort, historyFile string) *KeyboardAdapter {
	return &KeyboardAdapter{harness: harness, historyFile: historyFile, out: io.Discard}
}

// Start reads commands until the user quits or ctx is done. output
// receives readline's stdout, so asynchronous traffic lines keep the prompt
// intact.
func (a *KeyboardAdapter) Start(ctx context.Context, output func(w io.Writer)) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     a.historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start console: %w", err)
	}
	defer rl.Close()
	stop := context.AfterFunc(ctx, func() { rl.Close() })
	defer stop()

	a.out = rl.Stdout()
	if output != nil {
		output(rl.Stdout())
	}
	fmt.Fprintln(a.out, "Enter 'h' followed by <enter> for help...")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if quit := a.Execute(line); quit {
			return nil
		}
	}
}

// Execute runs one command line and reports whether the user asked to quit.
func (a *KeyboardAdapter) Execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch cmd {
	case "quit", "exit", "q":
		fmt.Fprintln(a.out, "Terminating harness...")
		return true
	case "help", "h":
		fmt.Fprintln(a.out, help)
	case "status", "s":
		fmt.Fprintln(a.out, a.harness.Status())
	case "connect":
		err = a.harness.Connect()
	case "disconnect":
		err = a.harness.Disconnect()
	case "read", "input":
		err = a.read(cmd, args)
	case "write":
		err = a.write(args)
	case "raw":
		err = a.raw(args)
	case "text":
		err = a.text(args)
	case "bytes":
		err = a.bytes(args)
	case "writebytes":
		err = a.writeBytes(args)
	case "poll":
		err = a.toggle(args, a.harness.StartPolling, a.harness.StopPolling)
	case "log":
		err = a.toggle(args,
			func() error { a.harness.SetTrafficLogging(true); return nil },
			func() { a.harness.SetTrafficLogging(false) })
	case "format":
		err = a.format(args)
	case "history":
		fmt.Fprintf(a.out, "%d frames\n", a.harness.History())
	case "stats":
		fmt.Fprintln(a.out, a.harness.Stats())
	case "clear":
		a.harness.ClearTraffic()
		fmt.Fprintln(a.out, "Traffic log cleared")
	default:
		fmt.Fprintf(a.out, "Unknown command: %s (use 'h' for help)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(a.out, "Error: %v\n", err)
	}
	return false
}

func (a *KeyboardAdapter) read(cmd string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: %s <addr> [count]", cmd)
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	count := uint16(1)
	if len(args) == 2 {
		if count, err = parseCount(args[1], 125); err != nil {
			return err
		}
	}
	if cmd == "input" {
		_, err = a.harness.ReadInputRegisters(addr, count)
	} else {
		_, err = a.harness.ReadRegisters(addr, count)
	}
	return err
}

func (a *KeyboardAdapter) write(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <addr> <value...>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	values := make([]uint16, 0, len(args)-1)
	for _, arg := range args[1:] {
		v, err := parseWord(arg)
		if err != nil {
			return err
		}
		values = append(values, v)
	}
	return a.harness.WriteRegisters(addr, values...)
}

func (a *KeyboardAdapter) raw(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: raw <hex bytes>")
	}
	frame, err := encoding.HexStringToBytes(strings.Join(args, ""))
	if err != nil {
		return err
	}
	_, err = a.harness.SendRaw(frame)
	return err
}

func (a *KeyboardAdapter) text(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: text <addr> <count>")
	}
	addr, count, err := parseBlock(args[0], args[1], 125)
	if err != nil {
		return err
	}
	regs, err := a.harness.ReadRegisters(addr, count)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Text: %q\n", encoding.RegistersToASCII(regs))
	return nil
}

// Byte blobs are packed two per register, first byte in the low half.
func (a *KeyboardAdapter) bytes(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: bytes <addr> <n>")
	}
	addr, n, err := parseBlock(args[0], args[1], 250)
	if err != nil {
		return err
	}
	regs, err := a.harness.ReadRegisters(addr, (n+1)/2)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Bytes: % X\n", encoding.UnpackBytes(regs, int(n)))
	return nil
}

func (a *KeyboardAdapter) writeBytes(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: writebytes <addr> <hex bytes>")
	}
	addr, err := parseWord(args[0])
	if err != nil {
		return err
	}
	data, err := encoding.HexStringToBytes(strings.Join(args[1:], ""))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("no bytes to write")
	}
	return a.harness.WriteRegisters(addr, encoding.PackBytes(data)...)
}

func (a *KeyboardAdapter) toggle(args []string, on func() error, off func()) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return on()
	case "off":
		off()
		return nil
	}
	return fmt.Errorf("expected on or off, got %q", args[0])
}

func (a *KeyboardAdapter) format(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: format hex|ascii|decode")
	}
	f, err := traffic.ParseFormat(args[0])
	if err != nil {
		return err
	}
	a.harness.SetFormat(f)
	fmt.Fprintf(a.out, "Traffic format set to %s\n", f)
	return nil
}

// parseWord accepts decimal and 0x prefixed hex values.
func parseWord(s string) (uint16, error) {
	h, err := encoding.NewHex(s)
	if err != nil {
		return 0, err
	}
	return h.Uint16(), nil
}

func parseCount(s string, max uint16) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 || n > uint64(max) {
		return 0, fmt.Errorf("invalid count %q, must be 1..%d", s, max)
	}
	return uint16(n), nil
}

func parseBlock(addr, count string, max uint16) (uint16, uint16, error) {
	a, err := parseWord(addr)
	if err != nil {
		return 0, 0, err
	}
	n, err := parseCount(count, max)
	if err != nil {
		return 0, 0, err
	}
	return a, n, nil
}
