// Package config holds the process-wide server configuration. A Config is
// built once at startup and passed by value; nothing reads it from ambient
// process state afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Version is reported by -version.
const Version = "1.0.3"

// Encoding names for control-channel text.
const (
	EncodingUTF8  = "utf8"
	EncodingCP437 = "cp437"
	EncodingASCII = "ascii"
)

// Engine names.
const (
	EngineBuiltin = "builtin"
	EngineExec    = "exec"
)

// Config defines server-wide settings.
type Config struct {
	Port      int    `yaml:"port"`
	Host      string `yaml:"host"`
	Directory string `yaml:"directory"` // Serving root
	Secure    bool   `yaml:"secure"`    // Flat, single-directory browsing
	Telnet    bool   `yaml:"telnet"`    // Negotiate telnet options and handle IAC
	Encoding  string `yaml:"encoding"`

	Engine      string   `yaml:"engine"`
	ExecCommand string   `yaml:"exec_command"`
	ExecArgs    []string `yaml:"exec_args"`

	MetricsAddr    string `yaml:"metrics_addr"`    // Empty disables /metrics
	StatusSchedule string `yaml:"status_schedule"` // Cron spec; empty disables
	LogFile        string `yaml:"log_file"`
	LogJSON        bool   `yaml:"log_json"`
	Debug          bool   `yaml:"debug"`
}

// Default returns the built-in configuration serving dir.
func Default(dir string) Config {
	return Config{
		Port:           23,
		Host:           "0.0.0.0",
		Directory:      dir,
		Encoding:       EncodingUTF8,
		Engine:         EngineBuiltin,
		ExecCommand:    "sx",
		StatusSchedule: "@every 5m",
	}
}

// Load reads a YAML (or JSON) config file over base. A missing file leaves
// base unchanged.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("Config file not found at %s. Using default settings.", path)
			return base, nil
		}
		return base, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	logrus.Infof("Loaded configuration from %s", path)
	return cfg, nil
}

// Validate checks c and returns it with the serving root resolved to an
// absolute path.
func Validate(c Config) (Config, error) {
	if c.Port < 0 || c.Port > 65535 {
		return c, fmt.Errorf("invalid port %d: port must be between 0 and 65535", c.Port)
	}

	dir := c.Directory
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return c, fmt.Errorf("%s is not a valid directory: %w", c.Directory, err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return c, fmt.Errorf("%s is not a valid directory", c.Directory)
	}
	c.Directory = abs

	c.Encoding = strings.ToLower(c.Encoding)
	switch c.Encoding {
	case EncodingUTF8, EncodingCP437, EncodingASCII:
	case "":
		c.Encoding = EncodingUTF8
	default:
		return c, fmt.Errorf("invalid encoding %q: must be utf8, cp437 or ascii", c.Encoding)
	}

	c.Engine = strings.ToLower(c.Engine)
	switch c.Engine {
	case EngineBuiltin:
	case "":
		c.Engine = EngineBuiltin
	case EngineExec:
		if c.ExecCommand == "" {
			return c, fmt.Errorf("exec engine requires exec_command")
		}
	default:
		return c, fmt.Errorf("invalid engine %q: must be builtin or exec", c.Engine)
	}

	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	return c, nil
}
