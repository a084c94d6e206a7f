// Package flow implements normalizing-flow random variables: random
// variables whose samples are produced by passing samples of a simple
// base distribution through a sequence of invertible planar
// transformations, accumulating the change in log density at each
// transformation.
//
// All computation is expressed as a Gorgonia expression graph.
// Constructors and sampling methods build nodes; values materialize
// when the graph is run on a VM such as G.NewTapeMachine. Every
// operation is differentiable with respect to the flow parameters.
package flow

import (
	"fmt"

	"github.com/samuelfneumann/nflow"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Params are the parameters of a Planar flow. W and U have shape
// (n, dim) and B has shape (n), where n is the number of independent
// flows evaluated in parallel.
type Params struct {
	W, U, B *G.Node
}

// complete returns whether all parameters are set
func (p Params) complete() bool {
	return p.W != nil && p.U != nil && p.B != nil
}

// Planar is a planar normalizing flow, the invertible transformation
//
//	f(x) = x + ū tanh(xᵀw + b)
//
// where ū is u corrected such that ūᵀw ≥ -1, the condition under which
// f is invertible:
//
//	ū = u + (softplus(uᵀw) - uᵀw - 1) w / ‖w‖²
//
// A Planar may hold n independent flows with separate parameters. In
// that case inputs carry a leading flow axis and flow i transforms
// only the inputs at index i of that axis.
type Planar struct {
	dim    int
	nFlows int

	w, u, b *G.Node
	uBar    *G.Node
	dot     *G.Node // ūᵀw, (nFlows)

	// Parameters reshaped for broadcasting against (nFlows, n, dim)
	// inputs
	wBatch    *G.Node // (nFlows, 1, dim)
	uBarBatch *G.Node // (nFlows, 1, dim)
	bBatch    *G.Node // (nFlows, 1)
	dotBatch  *G.Node // (nFlows, 1)

	learnable bool
}

// NewPlanar returns a new Planar flow over dim-dimensional inputs.
//
// If p is complete, the flow uses its parameters. Otherwise all three
// parameters are created as new leaves of g holding values drawn from
// init, with w and u of shape (1, dim) and b of shape (1); init must
// be non-nil in that case.
//
// If w holds a concrete value with a zero row, ErrDegenerate is
// returned. If w is computed by the graph, its squared norm is guarded
// so that executing the graph fails instead of producing NaN.
func NewPlanar(g *G.ExprGraph, dim int, p Params,
	init Initializer) (*Planar, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("newPlanar: expected dim > 0 but got %d: %w",
			dim, ErrShape)
	}

	learnable := false
	if !p.complete() {
		if g == nil || init == nil {
			return nil, fmt.Errorf("newPlanar: a graph and an initializer " +
				"are required to create parameters")
		}
		p = newParams(g, dim, init)
		learnable = true
	}

	p, err := checkParams(dim, p)
	if err != nil {
		return nil, fmt.Errorf("newPlanar: %w", err)
	}
	if err := checkNorm(p.W); err != nil {
		return nil, fmt.Errorf("newPlanar: %w", err)
	}

	planar := &Planar{
		dim:       dim,
		nFlows:    p.W.Shape()[0],
		w:         p.W,
		u:         p.U,
		b:         p.B,
		learnable: learnable,
	}
	if err := planar.build(); err != nil {
		return nil, fmt.Errorf("newPlanar: %v", err)
	}

	return planar, nil
}

// newParams creates randomly initialized parameters of a single flow
func newParams(g *G.ExprGraph, dim int, init Initializer) Params {
	w := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, dim),
		G.WithValue(tensor.New(
			tensor.WithShape(1, dim),
			tensor.WithBacking(init.Draw(dim)),
		)),
		G.WithName(nflow.Unique("planar_w")),
	)
	b := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(1),
		G.WithValue(tensor.New(
			tensor.WithShape(1),
			tensor.WithBacking(init.Draw(1)),
		)),
		G.WithName(nflow.Unique("planar_b")),
	)
	u := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(1, dim),
		G.WithValue(tensor.New(
			tensor.WithShape(1, dim),
			tensor.WithBacking(init.Draw(dim)),
		)),
		G.WithName(nflow.Unique("planar_u")),
	)

	return Params{W: w, U: u, B: b}
}

// checkParams validates the ranks and shapes of flow parameters,
// returning them with a scalar b expanded to shape (1)
func checkParams(dim int, p Params) (Params, error) {
	if p.W.Dims() != 2 || p.U.Dims() != 2 {
		return p, fmt.Errorf("expected w and u to be matrices but got "+
			"shapes %v and %v: %w", p.W.Shape(), p.U.Shape(), ErrRank)
	}
	if p.W.Shape()[1] != dim {
		return p, fmt.Errorf("expected w of shape (n, %d) but got %v: %w",
			dim, p.W.Shape(), ErrShape)
	}
	if !nflow.SameShape(p.U.Shape(), p.W.Shape()) {
		return p, fmt.Errorf("expected u of shape %v but got %v: %w",
			p.W.Shape(), p.U.Shape(), ErrShape)
	}
	if p.W.Graph() != p.U.Graph() || p.W.Graph() != p.B.Graph() {
		return p, fmt.Errorf("parameters must belong to the same graph")
	}
	if p.W.Dtype() != tensor.Float64 || p.U.Dtype() != tensor.Float64 ||
		p.B.Dtype() != tensor.Float64 {
		return p, fmt.Errorf("parameters must have dtype %v",
			tensor.Float64)
	}

	nFlows := p.W.Shape()[0]
	if p.B.IsScalar() && nFlows == 1 {
		b, err := reshape(p.B, 1)
		if err != nil {
			return p, fmt.Errorf("could not expand b: %v", err)
		}
		p.B = b
	}
	if p.B.Dims() != 1 {
		return p, fmt.Errorf("expected b to be a vector but got shape %v: "+
			"%w", p.B.Shape(), ErrRank)
	}
	if p.B.Shape()[0] != nFlows {
		return p, fmt.Errorf("expected b of shape (%d) but got %v: %w",
			nFlows, p.B.Shape(), ErrShape)
	}

	return p, nil
}

// checkNorm returns ErrDegenerate if w holds a concrete value with a
// row of zero norm
func checkNorm(w *G.Node) error {
	v := w.Value()
	if v == nil {
		return nil
	}

	data, err := float64s(v)
	if err != nil {
		return err
	}
	dim := w.Shape()[1]
	for row := 0; row*dim < len(data); row++ {
		norm := 0.0
		for _, x := range data[row*dim : (row+1)*dim] {
			norm += x * x
		}
		if norm == 0 {
			return fmt.Errorf("w has zero norm in flow %d: %w", row,
				ErrDegenerate)
		}
	}
	return nil
}

// build constructs ū, ūᵀw and the broadcastable views of the
// parameters
func (p *Planar) build() error {
	g := p.w.Graph()
	one := g.Constant(G.NewF64(1.0))

	// uᵀw
	dot, err := nflow.SumLast(G.Must(G.HadamardProd(p.u, p.w)))
	if err != nil {
		return err
	}

	// softplus(uᵀw) - uᵀw - 1
	scalar := G.Must(G.Softplus(dot))
	scalar = G.Must(G.Sub(scalar, dot))
	scalar = G.Must(G.Sub(scalar, one))

	// ‖w‖², which must be guarded when w is only known at run time
	normSq, err := nflow.SumLast(G.Must(G.Square(p.w)))
	if err != nil {
		return err
	}
	normSq, err = nflow.NonZero(normSq, fmt.Sprintf("squared norm of w: %v",
		ErrDegenerate))
	if err != nil {
		return err
	}

	coef := G.Must(G.HadamardDiv(scalar, normSq))
	coef = G.Must(reshape(coef, p.nFlows, 1))
	comp := G.Must(G.BroadcastHadamardProd(p.w, coef, nil, []byte{1}))
	p.uBar = G.Must(G.Add(p.u, comp))

	p.dot, err = nflow.SumLast(G.Must(G.HadamardProd(p.uBar, p.w)))
	if err != nil {
		return err
	}

	p.wBatch = G.Must(reshape(p.w, p.nFlows, 1, p.dim))
	p.uBarBatch = G.Must(reshape(p.uBar, p.nFlows, 1, p.dim))
	p.bBatch = G.Must(reshape(p.b, p.nFlows, 1))
	p.dotBatch = G.Must(reshape(p.dot, p.nFlows, 1))

	return nil
}

// Transform applies the flow to x. If the receiver holds a single
// flow, x must have shape (n, dim). Otherwise x must have shape
// (nFlows, n, dim). The output has the shape of x.
func (p *Planar) Transform(x *G.Node) (*G.Node, error) {
	in, n, err := p.lift(x)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	h, err := p.activation(in, n)
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}

	// x + ū tanh(xᵀw + b), each flow broadcasting its ū over its own
	// batch
	h = G.Must(reshape(h, p.nFlows, n, 1))
	step, err := G.BroadcastHadamardProd(h, p.uBarBatch, []byte{2},
		[]byte{1})
	if err != nil {
		return nil, fmt.Errorf("transform: %v", err)
	}
	out := G.Must(G.Add(in, step))

	return reshape(out, x.Shape()...)
}

// LogDetJacobian returns the log-density correction of the flow at x:
//
//	-log|1 + ūᵀw (1 - tanh²(xᵀw + b))|
//
// the negated log absolute determinant of the Jacobian of the flow,
// which is added to the log density of x to obtain the log density of
// the transformed x. The shape of x is treated as in Transform. The
// output has the shape of x with the feature axis removed.
func (p *Planar) LogDetJacobian(x *G.Node) (*G.Node, error) {
	in, n, err := p.lift(x)
	if err != nil {
		return nil, fmt.Errorf("logDetJacobian: %w", err)
	}

	h, err := p.activation(in, n)
	if err != nil {
		return nil, fmt.Errorf("logDetJacobian: %v", err)
	}

	one := x.Graph().Constant(G.NewF64(1.0))
	psi := G.Must(G.Sub(one, G.Must(G.Square(h))))
	detJac, err := G.BroadcastHadamardProd(psi, p.dotBatch, nil, []byte{1})
	if err != nil {
		return nil, fmt.Errorf("logDetJacobian: %v", err)
	}
	detJac = G.Must(G.Add(one, detJac))
	logDet := G.Must(G.Log(G.Must(G.Abs(detJac))))
	logDet = G.Must(G.Neg(logDet))

	return reshape(logDet, x.Shape()[:x.Dims()-1]...)
}

// lift validates x and returns it with shape (nFlows, n, dim)
func (p *Planar) lift(x *G.Node) (*G.Node, int, error) {
	if x.Graph() != p.w.Graph() {
		return nil, 0, fmt.Errorf("input belongs to a different graph")
	}

	shape := x.Shape()
	if p.IsSingle() {
		if x.Dims() != 2 {
			return nil, 0, fmt.Errorf("expected input of shape (n, %d) "+
				"but got %v: %w", p.dim, shape, ErrRank)
		}
		if shape[1] != p.dim {
			return nil, 0, fmt.Errorf("expected input of shape (n, %d) "+
				"but got %v: %w", p.dim, shape, ErrShape)
		}

		lifted, err := reshape(x, 1, shape[0], p.dim)
		return lifted, shape[0], err
	}

	if x.Dims() != 3 {
		return nil, 0, fmt.Errorf("expected input of shape (%d, n, %d) "+
			"but got %v: %w", p.nFlows, p.dim, shape, ErrRank)
	}
	if shape[0] != p.nFlows || shape[2] != p.dim {
		return nil, 0, fmt.Errorf("expected input of shape (%d, n, %d) "+
			"but got %v: %w", p.nFlows, p.dim, shape, ErrShape)
	}
	return x, shape[1], nil
}

// activation returns tanh(xᵀw + b) of shape (nFlows, n) for x of shape
// (nFlows, n, dim)
func (p *Planar) activation(x *G.Node, n int) (*G.Node, error) {
	prod, err := G.BroadcastHadamardProd(x, p.wBatch, nil, []byte{1})
	if err != nil {
		return nil, err
	}
	dialation, err := nflow.SumLast(prod)
	if err != nil {
		return nil, err
	}
	dialation, err = reshape(dialation, p.nFlows, n)
	if err != nil {
		return nil, err
	}
	dialation, err = G.BroadcastAdd(dialation, p.bBatch, nil, []byte{1})
	if err != nil {
		return nil, err
	}

	return G.Tanh(dialation)
}

// Dim returns the dimensionality of the inputs of the flow
func (p *Planar) Dim() int { return p.dim }

// NumFlows returns the number of independent flows held by the
// receiver
func (p *Planar) NumFlows() int { return p.nFlows }

// IsSingle returns whether the receiver holds a single flow
func (p *Planar) IsSingle() bool { return p.nFlows == 1 }

// W returns the w parameter, of shape (nFlows, dim)
func (p *Planar) W() *G.Node { return p.w }

// U returns the u parameter, of shape (nFlows, dim)
func (p *Planar) U() *G.Node { return p.u }

// B returns the b parameter, of shape (nFlows)
func (p *Planar) B() *G.Node { return p.b }

// UBar returns the corrected u parameter, of shape (nFlows, dim)
func (p *Planar) UBar() *G.Node { return p.uBar }

// Dot returns ūᵀw for each flow, of shape (nFlows)
func (p *Planar) Dot() *G.Node { return p.dot }

// Learnables returns the parameters created by the flow itself. Flows
// constructed from supplied parameters have none.
func (p *Planar) Learnables() G.Nodes {
	if !p.learnable {
		return nil
	}
	return G.Nodes{p.w, p.u, p.b}
}
