package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/mdb-httpd/internal/logger"
	"github.com/Brownie44l1/mdb-httpd/internal/mdb"
	"github.com/Brownie44l1/mdb-httpd/internal/request"
	"github.com/Brownie44l1/mdb-httpd/internal/server"
	"github.com/Brownie44l1/mdb-httpd/internal/static"
)

var (
	ErrNoWebRoot   = errors.New("web root not set")
	ErrNoBackend   = errors.New("mdb backend host not set")
	ErrInvalidPort = errors.New("port out of range")
)

// Config is everything needed to start the server. Durations are written
// in YAML as Go duration strings ("30s", "100ms").
type Config struct {
	Server ServerConfig `yaml:"server"`
	Static StaticConfig `yaml:"static"`
	MDB    MDBConfig    `yaml:"mdb"`
	Log    LogConfig    `yaml:"log"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxLineLength  int           `yaml:"max_line_length"`
	MaxHeaderLines int           `yaml:"max_header_lines"`
	MaxConnections int           `yaml:"max_connections"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type StaticConfig struct {
	Root      string `yaml:"root"`
	ChunkSize int    `yaml:"chunk_size"`
}

type MDBConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`
	MaxRowLength    int           `yaml:"max_row_length"`
	Backoff         BackoffConfig `yaml:"backoff"`
}

type BackoffConfig struct {
	Initial  time.Duration `yaml:"initial"`
	Max      time.Duration `yaml:"max"`
	Attempts int           `yaml:"attempts"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a config with every tunable set. Root and MDB host have
// no sensible default and must be supplied.
func Default() Config {
	srv := server.DefaultConfig()
	b := mdb.DefaultBackoff()
	return Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    srv.ReadTimeout,
			WriteTimeout:   srv.WriteTimeout,
			MaxLineLength:  request.DefaultMaxLineLength,
			MaxHeaderLines: request.DefaultMaxHeaderLines,
			MaxConnections: srv.MaxConnections,
			ShutdownGrace:  10 * time.Second,
		},
		Static: StaticConfig{
			ChunkSize: static.DefaultChunkSize,
		},
		MDB: MDBConfig{
			DialTimeout:  5 * time.Second,
			MaxRowLength: mdb.DefaultMaxRowLength,
			Backoff: BackoffConfig{
				Initial:  b.Initial,
				Max:      b.Max,
				Attempts: b.Attempts,
			},
		},
		Log: LogConfig{
			Level: logger.LevelInfo.String(),
		},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Static.Root == "" {
		return ErrNoWebRoot
	}
	if c.MDB.Host == "" {
		return ErrNoBackend
	}
	if err := checkPort("server", c.Server.Port); err != nil {
		return err
	}
	if err := checkPort("mdb", c.MDB.Port); err != nil {
		return err
	}
	return nil
}

func checkPort(name string, port int) error {
	// 0 lets the kernel pick, which only makes sense for the listener.
	if port < 0 || port > 65535 || (port == 0 && name != "server") {
		return fmt.Errorf("%s port %d: %w", name, port, ErrInvalidPort)
	}
	return nil
}

// Listener returns the settings for server.New.
func (c Config) Listener() server.Config {
	return server.Config{
		Addr:           net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port)),
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxLineLength:  c.Server.MaxLineLength,
		MaxHeaderLines: c.Server.MaxHeaderLines,
		MaxConnections: c.Server.MaxConnections,
	}
}

// MDBAddr is the backend address in host:port form.
func (c Config) MDBAddr() string {
	return net.JoinHostPort(c.MDB.Host, strconv.Itoa(c.MDB.Port))
}

// MDBOptions returns the client options matching the mdb section.
func (c Config) MDBOptions(l logger.Logger) []mdb.Option {
	return []mdb.Option{
		mdb.WithBackoff(mdb.Backoff{
			Initial:  c.MDB.Backoff.Initial,
			Max:      c.MDB.Backoff.Max,
			Attempts: c.MDB.Backoff.Attempts,
		}),
		mdb.WithExchangeTimeout(c.MDB.ExchangeTimeout),
		mdb.WithMaxRowLength(c.MDB.MaxRowLength),
		mdb.WithLogger(l),
	}
}

// LogLevel returns the parsed log level. Unknown names mean info.
func (c Config) LogLevel() logger.Level {
	return logger.ParseLevel(c.Log.Level)
}
