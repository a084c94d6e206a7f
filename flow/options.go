package flow

import (
	"github.com/sirupsen/logrus"
)

// settings are the optional construction parameters shared by the
// random variables of this package
type settings struct {
	base   Base
	init   Initializer
	seed   uint64
	hidden []int
	logger logrus.FieldLogger
}

// Option configures the construction of a random variable
type Option func(*settings)

// WithBase sets the base distribution. By default a standard normal
// of the random variable's full dimensionality is used.
func WithBase(b Base) Option {
	return func(s *settings) { s.base = b }
}

// WithInit sets the initializer of randomly initialized flow
// parameters. By default parameters are drawn from 𝒩(0, 1) using a
// source seeded with the seed set by WithSeed.
func WithInit(init Initializer) Option {
	return func(s *settings) { s.init = init }
}

// WithSeed sets the seed of the default initializer and of the default
// base distribution
func WithSeed(seed uint64) Option {
	return func(s *settings) { s.seed = seed }
}

// WithHidden sets the hidden layer widths of the feed-forward mappings
// that generate conditional flow parameters
func WithHidden(hidden ...int) Option {
	return func(s *settings) { s.hidden = append([]int(nil), hidden...) }
}

// WithLogger sets the logger construction is reported to
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *settings) { s.logger = logger }
}

func newSettings(defaultHidden []int, opts []Option) *settings {
	s := &settings{
		seed:   1,
		hidden: defaultHidden,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.init == nil {
		s.init = NewGaussian(0, 1, s.seed)
	}
	return s
}
