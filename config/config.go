// Package config loads gamenet settings from YAML files.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/gamenet"
)

// Config is the root of a gamenet configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// TransportConfig holds the settings shared by servers and clients.
type TransportConfig struct {
	SendBufferSize    int      `yaml:"send_buffer_size"`
	ReceiveBufferSize int      `yaml:"receive_buffer_size"`
	MaxMessageSize    int      `yaml:"max_message_size"`
	NoDelay           bool     `yaml:"no_delay"`
	ReadTimeout       Duration `yaml:"read_timeout"`
}

type ServerConfig struct {
	TransportConfig `yaml:",inline"`

	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	MaxConnections  int      `yaml:"max_connections"`
	AcceptInterval  Duration `yaml:"accept_interval"`
	AcceptBurst     int      `yaml:"accept_burst"`
	MaxConnectionID int      `yaml:"max_connection_id"`
	// PingInterval is how often the server pings every connection; zero disables it.
	PingInterval Duration `yaml:"ping_interval"`
	// IdleTimeout kicks connections without user traffic; zero disables it.
	IdleTimeout Duration `yaml:"idle_timeout"`
}

type ClientConfig struct {
	TransportConfig `yaml:",inline"`

	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	DialTimeout    Duration `yaml:"dial_timeout"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Duration is a time.Duration written as a string such as "100ms".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", s)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TransportConfig: defaultTransport(),
			Port:            7777,
			MaxConnections:  gamenet.DefaultMaxConnections,
			AcceptInterval:  Duration{gamenet.DefaultAcceptInterval},
			MaxConnectionID: gamenet.DefaultMaxConnectionID,
			PingInterval:    Duration{10 * time.Second},
		},
		Client: ClientConfig{
			TransportConfig: defaultTransport(),
			Host:            "127.0.0.1",
			Port:            7777,
			DialTimeout:     Duration{gamenet.DefaultDialTimeout},
			RequestTimeout:  Duration{5 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:      ":9100",
			Namespace: "gamenet",
		},
	}
}

func defaultTransport() TransportConfig {
	return TransportConfig{
		SendBufferSize:    gamenet.DefaultSendBufferSize,
		ReceiveBufferSize: gamenet.DefaultReceiveBufferSize,
		MaxMessageSize:    gamenet.DefaultMaxMessageSize,
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "validate %s", path)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := c.Server.validate("server"); err != nil {
		return err
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections <= 0 {
		return errors.New("server.max_connections must be positive")
	}
	if c.Server.MaxConnectionID < c.Server.MaxConnections {
		return errors.New("server.max_connection_id must not be below server.max_connections")
	}

	if err := c.Client.validate("client"); err != nil {
		return err
	}
	if c.Client.Port <= 0 || c.Client.Port > 65535 {
		return errors.Errorf("client.port %d out of range", c.Client.Port)
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log.level %q unknown", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("log.format %q unknown", c.Log.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}

func (t TransportConfig) validate(section string) error {
	if t.SendBufferSize <= 0 || t.ReceiveBufferSize <= 0 {
		return errors.Errorf("%s buffer sizes must be positive", section)
	}
	if t.MaxMessageSize <= gamenet.HeaderSize || t.MaxMessageSize > gamenet.MaxFrameSize {
		return errors.Errorf("%s.max_message_size must be in (%d, %d]", section, gamenet.HeaderSize, gamenet.MaxFrameSize)
	}
	return nil
}

func (t TransportConfig) options() []gamenet.Option {
	return []gamenet.Option{
		gamenet.SendBufferSizeOption(t.SendBufferSize),
		gamenet.ReceiveBufferSizeOption(t.ReceiveBufferSize),
		gamenet.MaxMessageSizeOption(t.MaxMessageSize),
		gamenet.NoDelayOption(t.NoDelay),
		gamenet.ReadTimeoutOption(t.ReadTimeout.Duration),
	}
}

// Options converts the server section into transport options.
func (s ServerConfig) Options() []gamenet.Option {
	opts := append(s.TransportConfig.options(),
		gamenet.ListenHostOption(s.Host),
		gamenet.MaxConnectionsOption(s.MaxConnections),
		gamenet.AcceptIntervalOption(s.AcceptInterval.Duration),
		gamenet.MaxConnectionIDOption(s.MaxConnectionID),
	)
	if s.AcceptBurst > 0 {
		opts = append(opts, gamenet.AcceptBurstOption(s.AcceptBurst))
	}
	return opts
}

// Options converts the client section into transport options.
func (c ClientConfig) Options() []gamenet.Option {
	return append(c.TransportConfig.options(), gamenet.DialTimeoutOption(c.DialTimeout.Duration))
}
