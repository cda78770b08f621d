package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional dnetd configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds flag defaults. A nil field leaves the built-in
// default in place.
type DefaultsConfig struct {
	Address    *string  `toml:"address"`
	Port       *int     `toml:"port"`
	User       *string  `toml:"user"`
	Timeout    *int     `toml:"timeout"` // seconds, 0 for none
	AcceptRate *float64 `toml:"accept_rate"`
	Verbosity  *int     `toml:"verbosity"`
	LogFormat  *string  `toml:"log_format"`
	Discovery  *string  `toml:"discovery"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "dnetd", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile reads the config file at path. A missing file, or an empty path,
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, &UnknownKeyError{Path: path, Key: undecoded[0].String()}
	}
	return cfg, nil
}

// UnknownKeyError reports a key in the config file that dnetd does not know.
type UnknownKeyError struct {
	Path string
	Key  string
}

func (e *UnknownKeyError) Error() string {
	return e.Path + ": unknown key " + e.Key
}
