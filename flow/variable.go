package flow

import (
	"fmt"

	"github.com/sirupsen/logrus"
	G "gorgonia.org/gorgonia"
)

// RandomVariable is a normalizing flow random variable: samples of a
// base distribution passed through a sequence of planar flows.
type RandomVariable struct {
	dim    int
	flows  []*Planar
	base   Base
	logger logrus.FieldLogger
}

// NewRandomVariable returns a new RandomVariable over dim dimensions
// with layers randomly initialized planar flows on graph g
func NewRandomVariable(g *G.ExprGraph, dim, layers int,
	opts ...Option) (*RandomVariable, error) {
	if layers <= 0 {
		return nil, fmt.Errorf("newRandomVariable: expected layers > 0 but "+
			"got %d: %w", layers, ErrShape)
	}

	s := newSettings(nil, opts)
	flows := make([]*Planar, layers)
	for i := range flows {
		var err error
		flows[i], err = NewPlanar(g, dim, Params{}, s.init)
		if err != nil {
			return nil, fmt.Errorf("newRandomVariable: layer %d: %w", i,
				err)
		}
	}

	return newRandomVariable(dim, flows, s)
}

// NewRandomVariableFromFlows returns a new RandomVariable over dim
// dimensions using the given flows, applied in order. All flows must
// have dimension dim and hold the same number of parallel flows.
func NewRandomVariableFromFlows(dim int, flows []*Planar,
	opts ...Option) (*RandomVariable, error) {
	return newRandomVariable(dim, flows, newSettings(nil, opts))
}

func newRandomVariable(dim int, flows []*Planar,
	s *settings) (*RandomVariable, error) {
	if len(flows) == 0 {
		return nil, fmt.Errorf("newRandomVariable: at least one flow is " +
			"required")
	}
	for i, f := range flows {
		if f.Dim() != dim {
			return nil, fmt.Errorf("newRandomVariable: flow %d has dim %d "+
				"but expected %d: %w", i, f.Dim(), dim, ErrShape)
		}
		if f.NumFlows() != flows[0].NumFlows() {
			return nil, fmt.Errorf("newRandomVariable: flow %d holds %d "+
				"parallel flows but expected %d: %w", i, f.NumFlows(),
				flows[0].NumFlows(), ErrShape)
		}
	}

	base, err := s.base.resolve(flows[0].W().Graph(),
		flows[0].NumFlows(), dim, s.seed)
	if err != nil {
		return nil, fmt.Errorf("newRandomVariable: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"dim":    dim,
		"layers": len(flows),
		"flows":  flows[0].NumFlows(),
	}).Debug("constructed flow random variable")

	return &RandomVariable{
		dim:    dim,
		flows:  flows,
		base:   base,
		logger: s.logger,
	}, nil
}

// SampleLogProb returns n samples of the random variable along with
// their log densities.
//
// If the flows of the receiver each hold a single flow, samples have
// shape (n, dim) and log densities (n). Otherwise, n samples are drawn
// for each of the nFlows parallel flows, giving shapes (nFlows, n, dim)
// and (nFlows, n).
//
// The log density of each flow is evaluated at the samples that flow
// receives, before the flow transforms them.
func (r *RandomVariable) SampleLogProb(n int) (samples, logProb *G.Node,
	err error) {
	samples, logProb, err = r.base.draw(n, r.NumFlows(), r.dim)
	if err != nil {
		return nil, nil, fmt.Errorf("sampleLogProb: %w", err)
	}

	for i, f := range r.flows {
		samples, logProb, err = step(f, samples, logProb)
		if err != nil {
			return nil, nil, fmt.Errorf("sampleLogProb: layer %d: %w", i,
				err)
		}
	}

	return samples, logProb, nil
}

// Transform applies every flow of the receiver to x, in order. The
// shape of x is treated as in Planar.Transform.
func (r *RandomVariable) Transform(x *G.Node) (*G.Node, error) {
	var err error
	for i, f := range r.flows {
		x, err = f.Transform(x)
		if err != nil {
			return nil, fmt.Errorf("transform: layer %d: %w", i, err)
		}
	}
	return x, nil
}

// AllParams returns the parameters of all flows: the w and u
// parameters concatenated along axis 1, and the b parameters
// concatenated along axis 0.
func (r *RandomVariable) AllParams() (w, u, b *G.Node, err error) {
	ws := make(G.Nodes, len(r.flows))
	us := make(G.Nodes, len(r.flows))
	bs := make(G.Nodes, len(r.flows))
	for i, f := range r.flows {
		ws[i], us[i], bs[i] = f.W(), f.U(), f.B()
	}

	if w, err = G.Concat(1, ws...); err != nil {
		return nil, nil, nil, fmt.Errorf("allParams: %v", err)
	}
	if u, err = G.Concat(1, us...); err != nil {
		return nil, nil, nil, fmt.Errorf("allParams: %v", err)
	}
	if b, err = G.Concat(0, bs...); err != nil {
		return nil, nil, nil, fmt.Errorf("allParams: %v", err)
	}
	return w, u, b, nil
}

// Flows returns the flows of the receiver, in the order they are
// applied
func (r *RandomVariable) Flows() []*Planar { return r.flows }

// Dim returns the dimensionality of the random variable
func (r *RandomVariable) Dim() int { return r.dim }

// NumLayers returns the number of flows applied in sequence
func (r *RandomVariable) NumLayers() int { return len(r.flows) }

// NumFlows returns the number of parallel flows held by each layer
func (r *RandomVariable) NumFlows() int { return r.flows[0].NumFlows() }

// Learnables returns the parameters created by the flows of the
// receiver
func (r *RandomVariable) Learnables() G.Nodes {
	var learnables G.Nodes
	for _, f := range r.flows {
		learnables = append(learnables, f.Learnables()...)
	}
	return learnables
}

// step adds the log-density correction of f at samples to logProb,
// then transforms samples by f. The correction must be evaluated before
// the transformation.
func step(f *Planar, samples, logProb *G.Node) (*G.Node, *G.Node, error) {
	logDet, err := f.LogDetJacobian(samples)
	if err != nil {
		return nil, nil, err
	}
	logProb, err = G.Add(logProb, logDet)
	if err != nil {
		return nil, nil, err
	}

	samples, err = f.Transform(samples)
	if err != nil {
		return nil, nil, err
	}
	return samples, logProb, nil
}
