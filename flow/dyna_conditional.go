package flow

import (
	"fmt"

	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
)

// defaultDynaHidden are the hidden widths of the mappings of a
// DynaConditionalRandomVariable
var defaultDynaHidden = []int{128, 128}

// DynaConditionalRandomVariable is a DynaRandomVariable whose flow
// parameters are computed from observed paths y by learned mappings.
//
// Each of the nExamples rows of y holds time observations of width
// obsDim. The parameters of the flows of time step t are computed from
// the observation pair (y_t, y_{t+1}) of each example, and the flows of
// each example are independent.
type DynaConditionalRandomVariable struct {
	chain
	y         *G.Node
	nExamples int
	obsDim    int

	w, u, b *G.Node
}

// NewDynaConditionalRandomVariable returns a new
// DynaConditionalRandomVariable over time steps of width dim with
// layers planar flows per adjacent pair of time steps, conditioned on y
// of shape (nExamples, time*obsDim).
//
// The adjacent observation pairs of y are unfolded to shape
// (nExamples*(time-1), 2*obsDim), example-major, and passed through
// three mappings with the hidden widths set by WithHidden and output
// widths 2*dim*layers, 2*dim*layers and layers. The parameters of layer
// l at time step t are the chunk [l*2*dim, (l+1)*2*dim) of the mapping
// outputs at time step t of each example.
func NewDynaConditionalRandomVariable(y *G.Node, dim, time, layers int,
	mapping Mapping, opts ...Option) (*DynaConditionalRandomVariable,
	error) {
	if dim <= 0 || layers <= 0 {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: expected "+
			"dim and layers > 0 but got %d and %d: %w", dim, layers, ErrShape)
	}
	if time < 2 {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: expected "+
			"time >= 2 but got %d: %w", time, ErrShape)
	}
	if y == nil || y.Dims() != 2 || y.Shape()[1] <= 0 ||
		y.Shape()[1]%time != 0 {
		var shape interface{}
		if y != nil {
			shape = y.Shape()
		}
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: expected "+
			"y of shape (nExamples, %d*obsDim) but got %v: %w", time, shape,
			ErrShape)
	}
	if mapping == nil {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: nil " +
			"mapping")
	}

	s := newSettings(defaultDynaHidden, opts)
	d := &DynaConditionalRandomVariable{
		chain: chain{
			dim:  dim,
			time: time,
		},
		y:         y,
		nExamples: y.Shape()[0],
		obsDim:    y.Shape()[1] / time,
	}

	unfolded, err := d.unfold()
	if err != nil {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: %v", err)
	}
	d.w, d.u, d.b, err = buildParams(mapping, unfolded, s.hidden,
		2*dim*layers, layers)
	if err != nil {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: %v", err)
	}

	d.flows = make([][]*Planar, time-1)
	for t := range d.flows {
		d.flows[t] = make([]*Planar, layers)
		for l := range d.flows[t] {
			var p Params
			if p.W, err = d.flowParams(d.w, t, l, 2*dim, layers); err != nil {
				return nil, fmt.Errorf("newDynaConditionalRandomVariable: %w",
					err)
			}
			if p.U, err = d.flowParams(d.u, t, l, 2*dim, layers); err != nil {
				return nil, fmt.Errorf("newDynaConditionalRandomVariable: %w",
					err)
			}
			if p.B, err = d.flowParams(d.b, t, l, 1, layers); err != nil {
				return nil, fmt.Errorf("newDynaConditionalRandomVariable: %w",
					err)
			}

			d.flows[t][l], err = NewPlanar(y.Graph(), 2*dim, p, nil)
			if err != nil {
				return nil, fmt.Errorf("newDynaConditionalRandomVariable: "+
					"time step %d, layer %d: %w", t, l, err)
			}
		}
	}

	d.base, err = s.base.resolve(y.Graph(), d.nExamples, dim*time,
		s.seed)
	if err != nil {
		return nil, fmt.Errorf("newDynaConditionalRandomVariable: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"dim":      dim,
		"time":     time,
		"layers":   layers,
		"examples": d.nExamples,
	}).Debug("constructed conditional dynamical flow random variable")

	return d, nil
}

// unfold returns the adjacent observation pairs (y_t, y_{t+1}) of every
// example, of shape (nExamples*(time-1), 2*obsDim). Row
// e*(time-1) + t holds pair t of example e.
func (d *DynaConditionalRandomVariable) unfold() (*G.Node, error) {
	steps := d.time - 1

	obs, err := reshape(d.y, d.nExamples, d.time, d.obsDim)
	if err != nil {
		return nil, err
	}

	prev, err := G.Slice(obs, nil, G.S(0, steps), nil)
	if err != nil {
		return nil, fmt.Errorf("could not slice observations: %v", err)
	}
	prev, err = reshape(prev, d.nExamples, steps, d.obsDim)
	if err != nil {
		return nil, err
	}

	next, err := G.Slice(obs, nil, G.S(1, d.time), nil)
	if err != nil {
		return nil, fmt.Errorf("could not slice observations: %v", err)
	}
	next, err = reshape(next, d.nExamples, steps, d.obsDim)
	if err != nil {
		return nil, err
	}

	pairs, err := G.Concat(2, prev, next)
	if err != nil {
		return nil, fmt.Errorf("could not pair observations: %v", err)
	}
	return reshape(pairs, d.nExamples*steps, 2*d.obsDim)
}

// flowParams returns the parameters of layer l at time step t from the
// flat mapping output param, of shape (nExamples*(time-1),
// width*layers). The result has shape (nExamples, width), or
// (nExamples) when width is 1.
func (d *DynaConditionalRandomVariable) flowParams(param *G.Node, t, l,
	width, layers int) (*G.Node, error) {
	steps := d.time - 1
	if t < 0 || t >= steps || l < 0 || l >= layers {
		return nil, fmt.Errorf("flowParams: no parameters for time step %d, "+
			"layer %d: %w", t, l, ErrShape)
	}

	grouped, err := reshape(param, d.nExamples, steps, width*layers)
	if err != nil {
		return nil, fmt.Errorf("flowParams: %v", err)
	}
	sliced, err := G.Slice(grouped, nil, G.S(t), G.S(l*width, (l+1)*width))
	if err != nil {
		return nil, fmt.Errorf("flowParams: %v", err)
	}

	if width == 1 {
		return reshape(sliced, d.nExamples)
	}
	return reshape(sliced, d.nExamples, width)
}

// SampleLogProb returns n samples of the chain for each example along
// with their log densities. With a single example samples have shape
// (n, dim*time) and log densities (n). Otherwise samples have shape
// (nExamples, n, dim*time) and log densities (nExamples, n).
func (d *DynaConditionalRandomVariable) SampleLogProb(n int) (samples,
	logProb *G.Node, err error) {
	samples, logProb, err = d.sampleLogProb(n, d.nExamples)
	if err != nil {
		return nil, nil, fmt.Errorf("sampleLogProb: %w", err)
	}
	return samples, logProb, nil
}

// W returns the flat w mapping output, of shape
// (nExamples*(time-1), 2*dim*layers)
func (d *DynaConditionalRandomVariable) W() *G.Node { return d.w }

// U returns the flat u mapping output, of shape
// (nExamples*(time-1), 2*dim*layers)
func (d *DynaConditionalRandomVariable) U() *G.Node { return d.u }

// B returns the flat b mapping output, of shape
// (nExamples*(time-1), layers)
func (d *DynaConditionalRandomVariable) B() *G.Node { return d.b }

// Flows returns the flows of the receiver indexed by time step, then
// layer
func (d *DynaConditionalRandomVariable) Flows() [][]*Planar {
	return d.flows
}

// Dim returns the width of a single latent time step
func (d *DynaConditionalRandomVariable) Dim() int { return d.dim }

// Time returns the number of time steps
func (d *DynaConditionalRandomVariable) Time() int { return d.time }

// NumExamples returns the number of observed paths
func (d *DynaConditionalRandomVariable) NumExamples() int {
	return d.nExamples
}

// ObsDim returns the width of a single observation
func (d *DynaConditionalRandomVariable) ObsDim() int { return d.obsDim }
