package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the configuration file.
const (
	EnvPort  = "RFIDLABS_PORT"
	EnvBaud  = "RFIDLABS_BAUD"
	EnvSlave = "RFIDLABS_SLAVE"
)

// Config represents the harness configuration
type Config struct {
	Transport Transport `toml:"transport"`
	SlaveID   uint8     `toml:"slave_id"`
	Traffic   Traffic   `toml:"traffic"`
	Poll      Poll      `toml:"poll"`
}

// Transport defines how the reader is attached (serial line or RTU over TCP)
type Transport struct {
	Type     string        `toml:"type"`    // "rtu" or "tcp"
	Address  string        `toml:"address"` // For RTU: "/dev/ttyUSB0", for TCP: "192.168.0.10:4001"
	BaudRate int           `toml:"baud_rate"`
	DataBits int           `toml:"data_bits"`
	Parity   string        `toml:"parity"` // "N", "E" or "O"
	StopBits int           `toml:"stop_bits"`
	Timeout  time.Duration `toml:"timeout"`
}

// Traffic configures the raw traffic log
type Traffic struct {
	Enabled      bool          `toml:"enabled"`
	FlushTimeout time.Duration `toml:"flush_timeout"`
	Capacity     int           `toml:"capacity"`
	Format       string        `toml:"format"` // "hex", "ascii" or "decode"
}

// Poll configures the background register poller
type Poll struct {
	Address   uint16        `toml:"address"`
	Count     uint16        `toml:"count"`
	Interval  time.Duration `toml:"interval"`
	MaxErrors int           `toml:"max_errors"`
}

// Default returns the settings the reader ships with.
func Default() Config {
	return Config{
		Transport: Transport{
			Type:     "rtu",
			BaudRate: 57600,
			DataBits: 8,
			Parity:   "E",
			StopBits: 1,
			Timeout:  500 * time.Millisecond,
		},
		SlaveID: 1,
		Traffic: Traffic{
			Enabled:      true,
			FlushTimeout: 50 * time.Millisecond,
			Capacity:     1000,
			Format:       "decode",
		},
		Poll: Poll{
			Count:     1,
			Interval:  500 * time.Millisecond,
			MaxErrors: 3,
		},
	}
}

// Override adjusts a loaded configuration before it is validated, e.g. with
// command line flags.
type Override func(c *Config)

// WithAddress replaces the transport address unless address is empty.
func WithAddress(address string) Override {
	return func(c *Config) {
		if address != "" {
			c.Transport.Address = address
		}
	}
}

// Load reads and parses a TOML configuration file on top of the defaults.
// Values from the environment, optionally read from envFile, win over the
// file, and overrides win over both. An empty filename yields the defaults.
func Load(filename, envFile string, overrides ...Override) (*Config, error) {
	cfg := Default()
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		slog.Debug("port overridden from environment", "address", v)
		c.Transport.Address = v
	}
	if v := os.Getenv(EnvBaud); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBaud, err)
		}
		c.Transport.BaudRate = baud
	}
	if v := os.Getenv(EnvSlave); v != "" {
		id, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSlave, err)
		}
		c.SlaveID = uint8(id)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	t := c.Transport
	if t.Type != "rtu" && t.Type != "tcp" {
		return fmt.Errorf("transport: invalid type %q, must be 'rtu' or 'tcp'", t.Type)
	}
	if t.Address == "" {
		return fmt.Errorf("transport: address is required")
	}
	if t.Type == "rtu" {
		if t.BaudRate <= 0 {
			return fmt.Errorf("transport: invalid baud rate %d", t.BaudRate)
		}
		if t.Parity != "N" && t.Parity != "E" && t.Parity != "O" {
			return fmt.Errorf("transport: invalid parity %q, must be 'N', 'E' or 'O'", t.Parity)
		}
	}
	if t.Timeout <= 0 {
		return fmt.Errorf("transport: timeout must be positive")
	}

	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fmt.Errorf("slave_id: invalid ID %d, must be between 1 and 247", c.SlaveID)
	}

	if c.Traffic.FlushTimeout <= 0 {
		return fmt.Errorf("traffic: flush_timeout must be positive")
	}
	if c.Traffic.Capacity <= 0 {
		return fmt.Errorf("traffic: capacity must be positive")
	}
	switch c.Traffic.Format {
	case "hex", "ascii", "decode":
	default:
		return fmt.Errorf("traffic: invalid format %q", c.Traffic.Format)
	}

	if c.Poll.Count == 0 || c.Poll.Count > 125 {
		return fmt.Errorf("poll: count %d out of range 1..125", c.Poll.Count)
	}
	if c.Poll.Interval < 100*time.Millisecond {
		return fmt.Errorf("poll: interval %s below 100ms", c.Poll.Interval)
	}
	if c.Poll.MaxErrors <= 0 {
		return fmt.Errorf("poll: max_errors must be positive")
	}

	return nil
}
