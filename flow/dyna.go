package flow

import (
	"fmt"

	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
)

// chain is a latent chain of time steps, each of width dim, transformed
// pairwise: flows[t] holds the layers applied to the concatenation of
// steps t and t+1.
type chain struct {
	dim   int
	time  int
	flows [][]*Planar
	base  Base
}

// sampleLogProb draws samples of the whole chain from the base, with
// nFlows parallel flows per layer, and passes each adjacent pair of
// time steps through its flows.
//
// The first half of a transformed pair is the final value of step t.
// The second half is carried forward as step t+1 and paired with step
// t+2. The last step is output once it has been carried through the
// final pair.
func (c *chain) sampleLogProb(n, nFlows int) (*G.Node, *G.Node, error) {
	samples, logProb, err := c.base.draw(n, nFlows, c.dim*c.time)
	if err != nil {
		return nil, nil, err
	}
	if len(c.flows) == 0 {
		return samples, logProb, nil
	}
	axis := samples.Dims() - 1

	pre, err := sliceLast(samples, 0, c.dim)
	if err != nil {
		return nil, nil, err
	}
	outputs := make(G.Nodes, 0, c.time)
	for t, stack := range c.flows {
		cur, err := sliceLast(samples, (t+1)*c.dim, (t+2)*c.dim)
		if err != nil {
			return nil, nil, err
		}
		pair, err := G.Concat(axis, pre, cur)
		if err != nil {
			return nil, nil, fmt.Errorf("could not pair time steps %d and "+
				"%d: %v", t, t+1, err)
		}

		for l, f := range stack {
			pair, logProb, err = step(f, pair, logProb)
			if err != nil {
				return nil, nil, fmt.Errorf("time step %d, layer %d: %w", t,
					l, err)
			}
		}

		out, err := sliceLast(pair, 0, c.dim)
		if err != nil {
			return nil, nil, err
		}
		outputs = append(outputs, out)

		if pre, err = sliceLast(pair, c.dim, 2*c.dim); err != nil {
			return nil, nil, err
		}
	}
	outputs = append(outputs, pre)

	samples, err = G.Concat(axis, outputs...)
	if err != nil {
		return nil, nil, fmt.Errorf("could not join time steps: %v", err)
	}
	return samples, logProb, nil
}

// learnables returns the parameters created by the flows of the chain
func (c *chain) learnables() G.Nodes {
	var learnables G.Nodes
	for _, stack := range c.flows {
		for _, f := range stack {
			learnables = append(learnables, f.Learnables()...)
		}
	}
	return learnables
}

// DynaRandomVariable is a flow random variable over a latent chain of
// time steps of width dim. Each pair of adjacent time steps is
// transformed by its own stack of planar flows over the concatenated
// pair, of width 2*dim.
type DynaRandomVariable struct {
	chain
}

// NewDynaRandomVariable returns a new DynaRandomVariable over time
// steps of width dim on graph g, with layers randomly initialized
// planar flows per adjacent pair of time steps. The default base
// distribution is a standard normal of width dim*time.
func NewDynaRandomVariable(g *G.ExprGraph, dim, time, layers int,
	opts ...Option) (*DynaRandomVariable, error) {
	if dim <= 0 || time <= 0 || layers <= 0 {
		return nil, fmt.Errorf("newDynaRandomVariable: expected dim, time "+
			"and layers > 0 but got %d, %d and %d: %w", dim, time, layers,
			ErrShape)
	}

	s := newSettings(nil, opts)
	flows := make([][]*Planar, time-1)
	for t := range flows {
		flows[t] = make([]*Planar, layers)
		for l := range flows[t] {
			var err error
			flows[t][l], err = NewPlanar(g, 2*dim, Params{}, s.init)
			if err != nil {
				return nil, fmt.Errorf("newDynaRandomVariable: time step %d, "+
					"layer %d: %w", t, l, err)
			}
		}
	}

	base, err := s.base.resolve(g, 1, dim*time, s.seed)
	if err != nil {
		return nil, fmt.Errorf("newDynaRandomVariable: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"dim":    dim,
		"time":   time,
		"layers": layers,
	}).Debug("constructed dynamical flow random variable")

	return &DynaRandomVariable{
		chain: chain{
			dim:   dim,
			time:  time,
			flows: flows,
			base:  base,
		},
	}, nil
}

// SampleLogProb returns n samples of the chain, of shape (n, dim*time),
// along with their log densities, of shape (n). Time steps keep their
// order along the last axis.
func (d *DynaRandomVariable) SampleLogProb(n int) (samples, logProb *G.Node,
	err error) {
	samples, logProb, err = d.sampleLogProb(n, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("sampleLogProb: %w", err)
	}
	return samples, logProb, nil
}

// Flows returns the flows of the receiver indexed by time step, then
// layer
func (d *DynaRandomVariable) Flows() [][]*Planar { return d.flows }

// Dim returns the width of a single time step
func (d *DynaRandomVariable) Dim() int { return d.dim }

// Time returns the number of time steps
func (d *DynaRandomVariable) Time() int { return d.time }

// Learnables returns the parameters created by the flows of the
// receiver
func (d *DynaRandomVariable) Learnables() G.Nodes { return d.learnables() }
