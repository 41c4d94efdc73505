package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/logger"
)

type fileConfig struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	Codec            string `toml:"codec"`
	Logging          bool   `toml:"logging"`
	LogLevel         string `toml:"log_level"`
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	StopPolicy       string `toml:"stop_policy"`
	MaxConnections   int    `toml:"max_connections"`
}

// LoadFile reads a TOML configuration file into a Builder. Keys missing from
// the file keep their defaults; callers may keep chaining (e.g. to register
// observers) before Build.
//
// Parameters:
//   - path: Path to the TOML file
//
// Returns:
//   - The populated Builder
//   - An error if the file cannot be read or a value is invalid
func LoadFile(path string) (*Builder, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	b := NewBuilder(DefaultHost)

	if meta.IsDefined("host") {
		b.Host(strings.TrimSpace(raw.Host))
	}

	if meta.IsDefined("port") {
		b.Port(raw.Port)
	}

	if meta.IsDefined("codec") {
		c, err := codec.ByName(strings.TrimSpace(raw.Codec))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		b.Codec(c)
	}

	if meta.IsDefined("logging") {
		b.Logging(raw.Logging)
	}

	if meta.IsDefined("log_level") {
		level, err := logger.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return nil, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
		}
		b.Logger(logger.NewConsoleLogger(nil, "konnect", level))
	}

	if meta.IsDefined("connect_timeout") {
		d, err := parseDuration("connect_timeout", raw.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		b.ConnectTimeout(d)
	}

	if meta.IsDefined("handshake_timeout") {
		d, err := parseDuration("handshake_timeout", raw.HandshakeTimeout)
		if err != nil {
			return nil, err
		}
		b.HandshakeTimeout(d)
	}

	if meta.IsDefined("stop_policy") {
		p, err := ParseStopPolicy(strings.TrimSpace(raw.StopPolicy))
		if err != nil {
			return nil, err
		}
		b.StopPolicy(p)
	}

	if meta.IsDefined("max_connections") {
		b.MaxConnections(raw.MaxConnections)
	}

	return b, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}

	return d, nil
}
