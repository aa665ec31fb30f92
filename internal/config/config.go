// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blacktop/fptrace/pkg/fingerprint"
	"github.com/caarlos0/env/v8"
	"github.com/spf13/viper"
)

type output struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

type runner struct {
	Tracer  string        `json:"tracer" mapstructure:"tracer"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
	WorkDir string        `json:"workdir" mapstructure:"workdir"`
}

type database struct {
	Driver   string `json:"driver" mapstructure:"driver"` // sqlite, postgres or memory
	Path     string `json:"path" mapstructure:"path"`
	Name     string `json:"database" mapstructure:"database"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

// Config is the configuration struct
type Config struct {
	Trace    fingerprint.Config `json:"trace" mapstructure:"trace"`
	Output   output             `json:"output" mapstructure:"output"`
	Runner   runner             `json:"runner" mapstructure:"runner"`
	Database database           `json:"database" mapstructure:"database"`
}

// Env is the environment a tracer host reads at startup
type Env struct {
	Debug  bool   `env:"FPTRACE_DEBUG"`
	Output string `env:"FPTRACE_OUTPUT" envDefault:"traces"`
}

// LoadEnv parses the tracer host environment
func LoadEnv() (*Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment: %v", err)
	}
	return &e, nil
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: failed to get user home directory: %v", err)
	}
	return filepath.Join(home, ".config", "fptrace"), nil
}

func (c *Config) verify() error {
	if err := c.Trace.Verify(); err != nil {
		return err
	}
	if c.Output.Dir == "" {
		// same folder the preloaded tracer writes to
		e, err := LoadEnv()
		if err != nil {
			return err
		}
		c.Output.Dir = e.Output
	}
	if c.Runner.Timeout < 0 {
		return fmt.Errorf("config: runner timeout cannot be negative")
	}

	switch c.Database.Driver {
	case "":
		// no store
	case "sqlite", "memory":
		if c.Database.Path == "" {
			dir, err := configDir()
			if err != nil {
				return err
			}
			name := "fptrace.db"
			if c.Database.Driver == "memory" {
				name = "fptrace.gob"
			}
			c.Database.Path = filepath.Join(dir, name)
		}
	case "postgres":
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == "" {
			c.Database.Port = "5432"
		}
		if c.Database.Name == "" || c.Database.User == "" {
			return fmt.Errorf("config: postgres requires 'database' and 'user'")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}

	return nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
