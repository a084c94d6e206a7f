package flow

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Initializer draws the initial values of randomly initialized flow
// parameters
type Initializer interface {
	// Draw returns size freshly drawn values
	Draw(size int) []float64
}

// Gaussian is an Initializer drawing from a normal distribution with a
// source it owns
type Gaussian struct {
	dist distuv.Normal
}

// NewGaussian returns a Gaussian initializer drawing from 𝒩(mean,
// stddev²) with a source seeded with seed
func NewGaussian(mean, stddev float64, seed uint64) *Gaussian {
	return &Gaussian{
		dist: distuv.Normal{
			Mu:    mean,
			Sigma: stddev,
			Src:   rand.NewSource(seed),
		},
	}
}

// Draw implements the Initializer interface
func (g *Gaussian) Draw(size int) []float64 {
	values := make([]float64, size)
	for i := range values {
		values[i] = g.dist.Rand()
	}
	return values
}
