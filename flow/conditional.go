package flow

import (
	"fmt"

	"github.com/samuelfneumann/nflow/mlp"
	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
)

// Mapping builds a feed-forward network over x with the given layer
// widths, returning its output node. Every call must create a new
// network with its own parameters. mlp.Builder implements Mapping.
type Mapping interface {
	Build(x *G.Node, widths []int, act mlp.Activation) (*G.Node, error)
}

// defaultConditionalHidden are the hidden widths of the mappings of a
// ConditionalVariable
var defaultConditionalHidden = []int{256, 128}

// ConditionalVariable is a flow random variable whose flow parameters
// are computed from a covariate y by learned mappings. Each of the N
// rows of y parameterizes its own independent flows, so that sampling
// draws samples for each row in parallel.
type ConditionalVariable struct {
	dimX int
	y    *G.Node

	w, u, b *G.Node
	rv      *RandomVariable
}

// NewConditionalVariable returns a new ConditionalVariable over dimX
// dimensions with layers planar flows, conditioned on y of shape
// (N, dimY).
//
// The w, u and b parameters of all layers are produced by three
// mappings over y with the hidden widths set by WithHidden and output
// widths dimX*layers, dimX*layers and layers. Layer i takes columns
// [i*dimX, (i+1)*dimX) of the w and u outputs and column i of the b
// output.
func NewConditionalVariable(dimX int, y *G.Node, layers int, mapping Mapping,
	opts ...Option) (*ConditionalVariable, error) {
	if dimX <= 0 || layers <= 0 {
		return nil, fmt.Errorf("newConditionalVariable: expected dimX > 0 "+
			"and layers > 0 but got %d and %d: %w", dimX, layers, ErrShape)
	}
	if y == nil || y.Dims() != 2 || y.Shape()[1] <= 0 {
		var shape interface{}
		if y != nil {
			shape = y.Shape()
		}
		return nil, fmt.Errorf("newConditionalVariable: expected y of shape "+
			"(N, dimY) but got %v: %w", shape, ErrShape)
	}
	if mapping == nil {
		return nil, fmt.Errorf("newConditionalVariable: nil mapping")
	}

	s := newSettings(defaultConditionalHidden, opts)
	w, u, b, err := buildParams(mapping, y, s.hidden, dimX*layers, layers)
	if err != nil {
		return nil, fmt.Errorf("newConditionalVariable: %v", err)
	}

	numPoints := y.Shape()[0]
	flows := make([]*Planar, layers)
	for i := range flows {
		var p Params
		if p.W, err = sliceLast(w, i*dimX, (i+1)*dimX); err != nil {
			return nil, fmt.Errorf("newConditionalVariable: %w", err)
		}
		if p.U, err = sliceLast(u, i*dimX, (i+1)*dimX); err != nil {
			return nil, fmt.Errorf("newConditionalVariable: %w", err)
		}
		if p.B, err = sliceLast(b, i, i+1); err != nil {
			return nil, fmt.Errorf("newConditionalVariable: %w", err)
		}
		if p.B, err = reshape(p.B, numPoints); err != nil {
			return nil, fmt.Errorf("newConditionalVariable: %v", err)
		}

		flows[i], err = NewPlanar(y.Graph(), dimX, p, nil)
		if err != nil {
			return nil, fmt.Errorf("newConditionalVariable: layer %d: %w", i,
				err)
		}
	}

	rv, err := newRandomVariable(dimX, flows, s)
	if err != nil {
		return nil, fmt.Errorf("newConditionalVariable: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"dim":      dimX,
		"layers":   layers,
		"examples": numPoints,
	}).Debug("constructed conditional flow random variable")

	return &ConditionalVariable{
		dimX: dimX,
		y:    y,
		w:    w,
		u:    u,
		b:    b,
		rv:   rv,
	}, nil
}

// SampleLogProb returns n samples for each row of the covariate along
// with their log densities, with shapes as in RandomVariable: (n, dimX)
// and (n) for a single row, (N, n, dimX) and (N, n) otherwise.
func (c *ConditionalVariable) SampleLogProb(n int) (samples, logProb *G.Node,
	err error) {
	return c.rv.SampleLogProb(n)
}

// W returns the flat w parameters of all layers, of shape
// (N, dimX*layers)
func (c *ConditionalVariable) W() *G.Node { return c.w }

// U returns the flat u parameters of all layers, of shape
// (N, dimX*layers)
func (c *ConditionalVariable) U() *G.Node { return c.u }

// B returns the flat b parameters of all layers, of shape (N, layers)
func (c *ConditionalVariable) B() *G.Node { return c.b }

// Variable returns the underlying flow random variable
func (c *ConditionalVariable) Variable() *RandomVariable { return c.rv }

// Dim returns the dimensionality of the random variable
func (c *ConditionalVariable) Dim() int { return c.dimX }

// DimY returns the dimensionality of the covariate
func (c *ConditionalVariable) DimY() int { return c.y.Shape()[1] }

// NumPoints returns the number of rows of the covariate
func (c *ConditionalVariable) NumPoints() int { return c.y.Shape()[0] }

// buildParams builds the w, u and b mappings over x, with hidden widths
// hidden and output widths width, width and biases
func buildParams(mapping Mapping, x *G.Node, hidden []int, width,
	biases int) (w, u, b *G.Node, err error) {
	widths := func(out int) []int {
		return append(append([]int(nil), hidden...), out)
	}

	if w, err = mapping.Build(x, widths(width), G.Tanh); err != nil {
		return nil, nil, nil, fmt.Errorf("could not build w mapping: %v", err)
	}
	if u, err = mapping.Build(x, widths(width), G.Tanh); err != nil {
		return nil, nil, nil, fmt.Errorf("could not build u mapping: %v", err)
	}
	if b, err = mapping.Build(x, widths(biases), G.Tanh); err != nil {
		return nil, nil, nil, fmt.Errorf("could not build b mapping: %v", err)
	}
	return w, u, b, nil
}
