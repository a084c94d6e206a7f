package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the construction parameters of a flow random variable,
// as read from YAML:
//
//	dim: 2
//	time: 3
//	layers: 4
//	hidden: [128, 128]
//	seed: 7
//
// Time is used only by the dynamical random variables, and hidden only
// by the conditional ones.
type Config struct {
	Dim    int    `yaml:"dim"`
	Time   int    `yaml:"time,omitempty"`
	Layers int    `yaml:"layers"`
	Hidden []int  `yaml:"hidden,omitempty"`
	Seed   uint64 `yaml:"seed,omitempty"`
}

// ParseConfig parses and validates a YAML Config
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parseConfig: could not parse config: %v: %w",
			err, ErrConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("parseConfig: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads, parses and validates the YAML Config at path
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loadConfig: could not read config: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("loadConfig: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate returns an error wrapping ErrConfig if c cannot be used to
// construct a random variable
func (c *Config) Validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("validate: dim must be positive but got %d: %w",
			c.Dim, ErrConfig)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("validate: layers must be positive but got %d: %w",
			c.Layers, ErrConfig)
	}
	if c.Time < 0 {
		return fmt.Errorf("validate: time must not be negative but got %d: "+
			"%w", c.Time, ErrConfig)
	}
	for i, width := range c.Hidden {
		if width <= 0 {
			return fmt.Errorf("validate: hidden width %d must be positive "+
				"but got %d: %w", i, width, ErrConfig)
		}
	}
	return nil
}

// TimeSteps returns the number of time steps of c, which defaults to 1
func (c *Config) TimeSteps() int {
	if c.Time == 0 {
		return 1
	}
	return c.Time
}

// Options returns the construction options described by c. Additional
// options, such as a base distribution or logger, may be appended.
func (c *Config) Options(opts ...Option) []Option {
	out := make([]Option, 0, 2+len(opts))
	if c.Seed != 0 {
		out = append(out, WithSeed(c.Seed))
	}
	if len(c.Hidden) > 0 {
		out = append(out, WithHidden(c.Hidden...))
	}
	return append(out, opts...)
}
