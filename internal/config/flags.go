package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
)

// Usage is the one-line synopsis printed on bad arguments.
const Usage = "usage: mdb-httpd [flags] [<server_port> <web_root> <mdb-lookup-host> <mdb-lookup-port>]"

var ErrUsage = errors.New(Usage)

// FromArgs builds the config from command-line arguments. Later sources
// override earlier ones: defaults, the -config file, flags, then the four
// positional arguments.
func FromArgs(args []string, errOut io.Writer) (Config, error) {
	fs := flag.NewFlagSet("mdb-httpd", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.Usage = func() {
		fmt.Fprintln(errOut, Usage)
		fs.PrintDefaults()
	}

	var (
		path     = fs.String("config", "", "YAML config file")
		port     = fs.Int("port", 0, "port to listen on")
		root     = fs.String("root", "", "web root directory")
		mdbHost  = fs.String("mdb-host", "", "mdb-lookup server host")
		mdbPort  = fs.Int("mdb-port", 0, "mdb-lookup server port")
		logLevel = fs.String("log-level", "", "debug, info, warn or error")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *path != "" {
		loaded, err := Load(*path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = *port
		case "root":
			cfg.Static.Root = *root
		case "mdb-host":
			cfg.MDB.Host = *mdbHost
		case "mdb-port":
			cfg.MDB.Port = *mdbPort
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})

	if err := applyPositional(&cfg, fs.Args()); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyPositional(cfg *Config, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 4:
	default:
		return ErrUsage
	}

	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("server port %q: %w", args[0], ErrInvalidPort)
	}
	mdbPort, err := strconv.Atoi(args[3])
	if err != nil {
		return fmt.Errorf("mdb port %q: %w", args[3], ErrInvalidPort)
	}

	cfg.Server.Port = port
	cfg.Static.Root = args[1]
	cfg.MDB.Host = args[2]
	cfg.MDB.Port = mdbPort
	return nil
}
