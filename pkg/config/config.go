// Package config loads the skillrun user configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/skillrun/pkg/llm"
)

// Defaults applied when the file leaves a field unset.
const (
	DefaultStateDir  = ".skillrun/runs"
	DefaultSkillsDir = "skills"
	DefaultLogLevel  = "info"
)

// Config is the top-level configuration structure.
type Config struct {
	LogLevel      string                `yaml:"log_level"`
	StateDir      string                `yaml:"state_dir"`
	SkillsDir     string                `yaml:"skills_dir"`
	Provider      string                `yaml:"provider"`
	MaxTurns      int                   `yaml:"max_turns"`
	HTTPTimeout   string                `yaml:"http_timeout"`
	Notifications *bool                 `yaml:"notifications"`
	Providers     map[string]llm.Config `yaml:"providers"`
	MCPServers    []MCPServer           `yaml:"mcp_servers"`

	// Path is the file the configuration was read from, if any.
	Path string `yaml:"-"`
}

// MCPServer is an external MCP server whose tools are offered to prompt
// steps.
type MCPServer struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
}

// DefaultPath returns $XDG_CONFIG_HOME/skillrun/config.yml, falling back to
// ~/.config/skillrun/config.yml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "skillrun", "config.yml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "skillrun", "config.yml")
	}
	return filepath.Join(home, ".config", "skillrun", "config.yml")
}

// Load reads the configuration at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	cfg.fill()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.fill()
	return cfg
}

// fill restores defaults for fields an explicit file left empty.
func (c *Config) fill() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.SkillsDir == "" {
		c.SkillsDir = DefaultSkillsDir
	}
	if c.Providers == nil {
		c.Providers = map[string]llm.Config{}
	}
}

// Validate checks field values that cannot be used as written.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.HTTPTimeout != "" {
		if _, err := time.ParseDuration(c.HTTPTimeout); err != nil {
			return fmt.Errorf("http_timeout: %w", err)
		}
	}
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must not be negative")
	}
	if c.Provider != "" && !isProvider(c.Provider) {
		return fmt.Errorf("provider %q: %w", c.Provider, llm.ErrUnknownProvider)
	}
	for name := range c.Providers {
		if !isProvider(name) {
			return fmt.Errorf("providers.%s: %w", name, llm.ErrUnknownProvider)
		}
	}
	for i, s := range c.MCPServers {
		if s.Name == "" || s.Command == "" {
			return fmt.Errorf("mcp_servers[%d]: name and command are required", i)
		}
	}
	return nil
}

// Timeout returns the HTTP timeout for provider calls.
func (c *Config) Timeout() time.Duration {
	if d, err := time.ParseDuration(c.HTTPTimeout); err == nil && d > 0 {
		return d
	}
	return llm.DefaultHTTPTimeout
}

// NotificationsEnabled reports whether desktop notifications are on. They
// are on unless the file disables them.
func (c *Config) NotificationsEnabled() bool {
	return c.Notifications == nil || *c.Notifications
}

// ParseLevel maps a log level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func isProvider(name string) bool {
	for _, n := range llm.Names {
		if n == name {
			return true
		}
	}
	return false
}
