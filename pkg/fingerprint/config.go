package fingerprint

import (
	"fmt"

	"github.com/apex/log"
)

const (
	// DefaultThreshold is the lowest address reserved for loader and shared library code
	DefaultThreshold uint64 = 0xf0000000
	// DefaultCap is the number of trace entries folded into the hash
	DefaultCap = 10000
	// DefaultGuarded is the symbol substring that triggers handle inspection
	DefaultGuarded = "close"
	// DefaultMarker is the path fragment of the canary artifact
	DefaultMarker = ".opencrs"
	// MaxArgsLength caps the number of argument bytes used to derive an output key
	MaxArgsLength = 100
)

// Config is a fingerprinting run configuration object
type Config struct {
	// Threshold is the non-interesting address threshold; blocks ending at or
	// above it and segments ending at or above it are ignored.
	Threshold uint64 `mapstructure:"threshold" yaml:"threshold"`
	// Cap is the number of trace entries (K) consumed by the finalizer.
	Cap int `mapstructure:"cap" yaml:"cap"`
	// Guarded is the symbol name substring of the guarded operation.
	Guarded string `mapstructure:"guarded" yaml:"guarded"`
	// Marker is the substring searched for in open handle paths.
	Marker string `mapstructure:"marker" yaml:"marker"`

	Logger log.Interface `mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns a Config with every field set to its default
func DefaultConfig() *Config {
	return &Config{
		Threshold: DefaultThreshold,
		Cap:       DefaultCap,
		Guarded:   DefaultGuarded,
		Marker:    DefaultMarker,
	}
}

// Verify fills unset fields with defaults and rejects invalid values
func (c *Config) Verify() error {
	if c.Threshold == 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Cap == 0 {
		c.Cap = DefaultCap
	} else if c.Cap < 0 {
		return fmt.Errorf("trace cap must be positive: %d", c.Cap)
	}
	if c.Guarded == "" {
		c.Guarded = DefaultGuarded
	}
	if c.Marker == "" {
		c.Marker = DefaultMarker
	}
	if c.Logger == nil {
		c.Logger = log.Log
	}
	return nil
}
