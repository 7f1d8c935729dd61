package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rwirdemann/rfidlabs/message"
	"golang.org/x/term"
)

// ProtocolAdapter prints harness output to a terminal. Traffic frames carry
// their own timestamp, status lines get one prepended.
type ProtocolAdapter struct {
	mu       sync.Mutex
	lastLine string
	muted    bool
	writer   io.Writer
	now      func() time.Time
}

func NewProtocolAdapter() *ProtocolAdapter {
	return &ProtocolAdapter{
		writer: os.Stdout, // Default to stdout
		now:    time.Now,
	}
}

// SetWriter redirects the output, e.g. to readline's stdout so lines do not
// clobber the prompt.
func (p *ProtocolAdapter) SetWriter(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writer = w
}

func (p *ProtocolAdapter) InfoX(m message.Message) {
	if m.Type() == message.TypeFrame {
		p.print(m.String(), false)
		return
	}
	p.Info(m.String())
}

func (p *ProtocolAdapter) Info(msg string) {
	ts := p.now().Format(time.DateTime)
	p.print(fmt.Sprintf("%s %s", ts, msg), false)
}

func (p *ProtocolAdapter) Separator() {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	p.print(strings.Repeat("─", width), false)
}

func (p *ProtocolAdapter) Println(msg string) {
	p.print(msg, true)
}

func (p *ProtocolAdapter) Mute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = true
}

func (p *ProtocolAdapter) Unmute() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muted = false
}

func (p *ProtocolAdapter) print(s string, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !force && p.muted {
		return
	}

	if p.lastLine == s {
		return
	}
	fmt.Fprintln(p.writer, s)
	p.lastLine = s
}
