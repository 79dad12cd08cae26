// Package config implements the daemon configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"shardsign/internal/codec"
)

const (
	defaultLogLevel    = "NOTICE"
	defaultPingTimeout = 10
	defaultConnTimeout = 15
	defaultReqTimeout  = 30
)

// DefaultRelays is the fallback relay set used when a bundle carries no
// syntactically valid relay URL at all.
var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://nos.lol",
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging output entirely (the in-memory ring still
	// captures records).
	Disable bool

	// File is the log output destination; empty means stderr.
	File string

	// Level is one of ERROR, WARNING, NOTICE, INFO, DEBUG.
	Level string
}

func (l *Logging) validate() error {
	switch l.Level {
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
		return nil
	}
	return fmt.Errorf("config: invalid logging level: %s", l.Level)
}

// Timeouts bound the transport operations, in seconds.
type Timeouts struct {
	Ping    int
	Connect int
	Request int
}

// Config is the top level configuration.
type Config struct {
	Logging  *Logging
	Timeouts *Timeouts

	// Relays overrides the built-in default relay set.
	Relays []string

	// DataDir is the root for the keystore, policy file and metrics
	// snapshot. Empty means the caller's choice of home directory.
	DataDir string
}

// FixupAndValidate fills in defaults and checks the configuration.
func (c *Config) FixupAndValidate() error {
	if c.Logging == nil {
		c.Logging = &Logging{Level: defaultLogLevel}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if c.Timeouts == nil {
		c.Timeouts = &Timeouts{}
	}
	if c.Timeouts.Ping <= 0 {
		c.Timeouts.Ping = defaultPingTimeout
	}
	if c.Timeouts.Connect <= 0 {
		c.Timeouts.Connect = defaultConnTimeout
	}
	if c.Timeouts.Request <= 0 {
		c.Timeouts.Request = defaultReqTimeout
	}
	if len(c.Relays) == 0 {
		c.Relays = append([]string(nil), DefaultRelays...)
	} else {
		normalized, errs := codec.ValidateRelayList(c.Relays)
		if len(normalized) == 0 {
			return fmt.Errorf("config: no valid relay URLs: %v", errs)
		}
		c.Relays = normalized
	}
	return nil
}

// Load parses and validates the provided buffer as a config file body.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses, and validates the provided file. A missing file
// yields the defaults rather than an error.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := new(Config)
			if err := cfg.FixupAndValidate(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}
	return Load(b)
}
