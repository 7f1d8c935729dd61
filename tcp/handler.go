// Package tcp carries RTU frames over TCP, as serial device servers do.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// Connection is an RTU-over-TCP stream whose reads time out like a serial
// port does.
type Connection struct {
	conn    net.Conn
	timeout time.Duration
}

func NewConnection(c net.Conn, timeout time.Duration) *Connection {
	return &Connection{conn: c, timeout: timeout}
}

// Dial connects to url, given as "host:port" or "tcp://host:port".
func Dial(url string, timeout time.Duration) (*Connection, error) {
	addr := hostPort(url)
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	slog.Debug("RTU over TCP connected", "addr", addr)
	return NewConnection(c, timeout), nil
}

func (r *Connection) Read(p []byte) (n int, err error) {
	if r.timeout > 0 {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	return r.conn.Read(p)
}

func (r *Connection) Write(b []byte) (n int, err error) {
	return r.conn.Write(b)
}

func (r *Connection) Close() error {
	return r.conn.Close()
}

func (r *Connection) Name() string {
	return r.conn.RemoteAddr().String()
}

// ConnectionCallback serves one accepted client.
type ConnectionCallback func(ctx context.Context, conn net.Conn)

// Handler accepts RTU-over-TCP clients.
type Handler struct {
	url      string
	listener net.Listener
}

func NewHandler(url string) (*Handler, error) {
	if url == "" {
		return nil, fmt.Errorf("invalid url format %q", url)
	}
	return &Handler{url: hostPort(url)}, nil
}

func (h *Handler) Start(ctx context.Context, cb ConnectionCallback) (err error) {
	h.listener, err = net.Listen("tcp", h.url)
	if err != nil {
		return fmt.Errorf("failed to start TCP listener: %w", err)
	}
	go h.acceptClients(ctx, cb)
	slog.Info("TCP listener started", "url", h.Addr())
	return nil
}

// Addr returns the bound address, which differs from the configured one
// when port 0 was requested.
func (h *Handler) Addr() string {
	if h.listener == nil {
		return h.url
	}
	return h.listener.Addr().String()
}

func (h *Handler) Stop() error {
	if h.listener != nil {
		slog.Info("Stopping TCP listener", "url", h.Addr())
		return h.listener.Close()
	}
	return nil
}

func (h *Handler) acceptClients(ctx context.Context, cb ConnectionCallback) {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", "error", err)
			continue
		}
		slog.Info("client connected", "remote addr", conn.RemoteAddr())
		go cb(ctx, conn)
	}
}

func hostPort(url string) string {
	if split := strings.SplitN(url, "://", 2); len(split) == 2 {
		return split[1]
	}
	return url
}
