package flow

import (
	"fmt"

	"github.com/samuelfneumann/nflow"
	"github.com/samuelfneumann/nflow/distribution"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Sampler is the capability a sampleable base distribution provides
type Sampler interface {
	// Sample returns a node of n samples, with shape (n, Shape()...)
	Sample(n int) (*G.Node, error)

	// LogProb returns the joint log density of each sample in a batch
	// of shape (n, Shape()...), with shape (n). A distribution with
	// element-wise densities, such as distribution.Normal, must be
	// wrapped in a distribution.IID.
	LogProb(*G.Node) (*G.Node, error)

	// Shape returns the shape of a single sample
	Shape() tensor.Shape
}

type baseKind int

const (
	standardBase baseKind = iota
	sampleableBase
	precomputedBase
)

// Base is the base distribution of a flow random variable. It is
// either a Sampleable distribution, which is sampled when the random
// variable is sampled, or Precomputed samples along with their log
// densities. The zero Base is a standard normal distribution.
type Base struct {
	kind    baseKind
	dist    Sampler
	samples *G.Node
	logProb *G.Node
}

// Sampleable returns a Base which draws samples from dist
func Sampleable(dist Sampler) Base {
	return Base{kind: sampleableBase, dist: dist}
}

// Precomputed returns a Base which always provides samples with log
// densities logProb. Samples are consumed as given: the number of
// samples requested from a random variable with a precomputed base is
// ignored.
func Precomputed(samples, logProb *G.Node) Base {
	return Base{kind: precomputedBase, samples: samples, logProb: logProb}
}

// IsPrecomputed returns whether the receiver holds precomputed
// samples
func (b Base) IsPrecomputed() bool {
	return b.kind == precomputedBase
}

// resolve replaces the standard base with a standard normal
// distribution over width i.i.d. elements on graph g. A precomputed
// base is checked against the layout of flows parallel flows.
func (b Base) resolve(g *G.ExprGraph, flows, width int,
	seed uint64) (Base, error) {
	switch b.kind {
	case standardBase:
		normal, err := distribution.NewStandardNormal(g, width, seed)
		if err != nil {
			return Base{}, fmt.Errorf("resolve: %v", err)
		}
		return Sampleable(distribution.NewIID(normal, 1)), nil

	case sampleableBase:
		if b.dist == nil {
			return Base{}, fmt.Errorf("resolve: nil distribution")
		}
		shape := b.dist.Shape()
		if shape.Dims() != 1 || shape[0] != width {
			return Base{}, fmt.Errorf("resolve: expected base distribution "+
				"of shape (%d) but got %v: %w", width, shape, ErrShape)
		}
		return b, nil

	case precomputedBase:
		if b.samples == nil || b.logProb == nil {
			return Base{}, fmt.Errorf("resolve: precomputed base requires "+
				"samples and log densities")
		}
		if err := checkPrecomputed(b.samples, b.logProb, flows,
			width); err != nil {
			return Base{}, fmt.Errorf("resolve: %w", err)
		}
		return b, nil
	}

	return Base{}, fmt.Errorf("resolve: unknown base kind %d", b.kind)
}

// draw returns base samples and their log densities. With flows == 1
// samples have shape (n, width) and log densities (n). Otherwise, an
// independent batch of n samples is drawn for each of the flows
// parallel flows, giving shapes (flows, n, width) and (flows, n).
func (b Base) draw(n, flows, width int) (samples, logProb *G.Node,
	err error) {
	switch b.kind {
	case sampleableBase:
		if n <= 0 {
			return nil, nil, fmt.Errorf("draw: expected n > 0 but got %d", n)
		}
		samples, err = b.dist.Sample(n * flows)
		if err != nil {
			return nil, nil, fmt.Errorf("draw: %v", err)
		}
		logProb, err = b.dist.LogProb(samples)
		if err != nil {
			return nil, nil, fmt.Errorf("draw: %v", err)
		}
		if logProb.Shape().TotalSize() != n*flows {
			return nil, nil, fmt.Errorf("draw: expected one log density "+
				"per sample but got shape %v for samples of shape %v: %w",
				logProb.Shape(), samples.Shape(), ErrShape)
		}

		if flows == 1 {
			samples, err = reshape(samples, n, width)
			if err == nil {
				logProb, err = reshape(logProb, n)
			}
		} else {
			samples, err = reshape(samples, flows, n, width)
			if err == nil {
				logProb, err = reshape(logProb, flows, n)
			}
		}
		if err != nil {
			return nil, nil, fmt.Errorf("draw: %v", err)
		}
		return samples, logProb, nil

	case precomputedBase:
		if err := checkPrecomputed(b.samples, b.logProb, flows,
			width); err != nil {
			return nil, nil, fmt.Errorf("draw: %w", err)
		}
		return b.samples, b.logProb, nil
	}

	return nil, nil, fmt.Errorf("draw: base distribution not resolved")
}

// checkPrecomputed validates the shapes of precomputed samples and log
// densities against the single-flow or multi-flow layout
func checkPrecomputed(samples, logProb *G.Node, flows, width int) error {
	shape := samples.Shape()
	if flows == 1 {
		if samples.Dims() != 2 {
			return fmt.Errorf("expected samples of shape (n, %d) but got "+
				"%v: %w", width, shape, ErrRank)
		}
	} else if samples.Dims() != 3 || shape[0] != flows {
		return fmt.Errorf("expected samples of shape (%d, n, %d) but got "+
			"%v: %w", flows, width, shape, ErrRank)
	}

	if shape[len(shape)-1] != width {
		return fmt.Errorf("expected samples of width %d but got shape %v: "+
			"%w", width, shape, ErrShape)
	}
	if !nflow.SameShape(logProb.Shape(), shape[:len(shape)-1]) {
		return fmt.Errorf("expected log densities of shape %v but got "+
			"%v: %w", shape[:len(shape)-1], logProb.Shape(), ErrShape)
	}
	return nil
}
