package distribution

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/nflow"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Normal is a univariate normal distribution, which may hold
// a batch of normal distributions simultaneously. If a Normal is
// created with a tensor mean and tensor standard deviation, then
// each element of the mean and standard deviation vectors defines a
// different distribution element-wise. For example, consider if we
// use a 1-tensor for the mean and standard deviation:
//
//	mean   := [m_1, m_2, ..., m_N]
//	stddev := [s_1, s_2, ..., s_N]
//
// Then the Normal is considered to hold the following distributions:
//
//	[𝒩(m_1, s_1), 𝒩(m_2, s_2), ..., 𝒩(m_N, s_N)]
//
// The shape of the mean and standard deviation tensors constitutes
// the shape of the Normal. Any input to any method of the Normal must
// have the exact same shape as the Normal, except for possibly the
// batch dimension, which is dimension 0 always. Given a Normal with
// shape (n_1, n_2, ..., n_M), the following are legal input shapes:
//
//  1. (n_1, n_2, ..., n_M)
//  2. (a, n_1, n_2, ..., n_M) for ∀a ∈ ℕ-{0}
//
// Every method returns element-wise results. Use IID to combine the
// elements of a sample into a single joint density.
//
// Normal supports the following data types:
// - tensor.Float64
type Normal struct {
	mean   *G.Node
	stddev *G.Node
	seed   uint64
}

// NewNormal returns a new Normal.
func NewNormal(mean, stddev *G.Node, seed uint64) (*Normal, error) {
	if !nflow.SameShape(mean.Shape(), stddev.Shape()) {
		return nil, fmt.Errorf("newNormal: expected mean and stddev to "+
			"have the same shape but got %v and %v", mean.Shape(),
			stddev.Shape())
	}

	if mean.Dtype() != stddev.Dtype() {
		return nil, fmt.Errorf("newNormal: expected mean and stddev to "+
			"have the same data type but got %v and %v", mean.Dtype(),
			stddev.Dtype())
	} else if mean.Dtype() != tensor.Float64 {
		return nil, fmt.Errorf("newNormal: data type %v unsupported",
			mean.Dtype())
	}

	var err error
	if mean.IsScalar() {
		mean, err = G.Reshape(mean, []int{1})
		if err != nil {
			return nil, fmt.Errorf("newNormal: could not expand mean to "+
				"shape (1): %v", err)
		}
		stddev, err = G.Reshape(stddev, []int{1})
		if err != nil {
			return nil, fmt.Errorf("newNormal: could not expand stddev to "+
				"shape (1): %v", err)
		}
	}

	return &Normal{
		mean:   mean,
		stddev: stddev,
		seed:   seed,
	}, nil
}

// NewStandardNormal returns a Normal of size independent 𝒩(0, 1)
// distributions on graph g
func NewStandardNormal(g *G.ExprGraph, size int, seed uint64) (*Normal,
	error) {
	if size <= 0 {
		return nil, fmt.Errorf("newStandardNormal: expected size > 0 but "+
			"got %v", size)
	}

	meanT := tensor.New(
		tensor.WithShape(size),
		tensor.WithBacking(make([]float64, size)),
	)
	mean := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(size),
		G.WithValue(meanT),
		G.WithName(nflow.Unique("mean")),
	)

	stddevT := tensor.Ones(tensor.Float64, size)
	stddev := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(size),
		G.WithValue(stddevT),
		G.WithName(nflow.Unique("stddev")),
	)

	return NewNormal(mean, stddev, seed)
}

// Prob calculates the probability density of x.
//
// If the mean and standard deviation of the receiver are tensors,
// then the receiver is assumed to hold N normal distributions,
// where N is the number of elements in the mean or standard
// deviation vectors respectively. In this case, an input tensor x
// should have the same shape as the mean and standard
// deviation tensors, except for perhaps the batch dimension (dim 0).
// For example, if the mean and stddev of the Normal are vectors:
//
//	mean   := [m_1, m_2, ..., m_N]
//	stddev := [s_1, s_2, ..., s_N]
//
// Then x should be of the form:
//
//	x := ⎡x_11, x_21, ..., x_N1⎤ ⎫
//	     ⎢x_12, x_22, ..., x_N2⎥ ⎥
//	     ⎢... ... ... ..., ... ⎥ ⎬ ← Batch Dimension
//	     ⎣x_1M, x_2M, ... x_NM ⎦ ⎭
func (n *Normal) Prob(x *G.Node) (*G.Node, error) {
	logProb, err := n.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("prob: %v", err)
	}

	return G.Exp(logProb)
}

// LogProb calculates the log probability of x. The shape of x is
// treated in the same way as the Prob() method.
func (n *Normal) LogProb(x *G.Node) (*G.Node, error) {
	x, err := n.fixShape(x)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}

	two := x.Graph().Constant(G.NewF64(2.0))
	negativeHalf := x.Graph().Constant(G.NewF64(-0.5))
	lnRootTwoPi := x.Graph().Constant(G.NewF64(math.Log(math.Sqrt(
		math.Pi * 2.))))
	lnStd := G.Must(G.Log(n.stddev))

	if n.isBatch(x) {
		batchDim := []byte{0}
		x = G.Must(G.BroadcastSub(x, n.mean, nil, batchDim))
		x = G.Must(G.BroadcastHadamardDiv(x, n.stddev, nil, batchDim))
		x = G.Must(G.Pow(x, two))
		x = G.Must(G.HadamardProd(negativeHalf, x))
		x = G.Must(G.BroadcastSub(x, lnStd, nil, batchDim))
	} else {
		x = G.Must(G.Sub(x, n.mean))
		x = G.Must(G.HadamardDiv(x, n.stddev))
		x = G.Must(G.Pow(x, two))
		x = G.Must(G.HadamardProd(negativeHalf, x))
		x = G.Must(G.Sub(x, lnStd))
	}

	return G.Sub(x, lnRootTwoPi)
}

// Cdf computes the cumulative distribution function of x. The shape
// of x is treated in the same way as the Prob() method.
func (n *Normal) Cdf(x *G.Node) (*G.Node, error) {
	x, err := n.fixShape(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: %v", err)
	}

	rootTwo := x.Graph().Constant(G.NewF64(math.Sqrt(2.0)))
	one := x.Graph().Constant(G.NewF64(1.0))
	half := x.Graph().Constant(G.NewF64(0.5))

	if n.isBatch(x) {
		batchDim := []byte{0}
		x = G.Must(G.BroadcastSub(x, n.mean, nil, batchDim))
		x = G.Must(G.HadamardDiv(x, rootTwo))
		x = G.Must(G.BroadcastHadamardDiv(x, n.stddev, nil, batchDim))
	} else {
		x = G.Must(G.Sub(x, n.mean))
		x = G.Must(G.HadamardDiv(x, rootTwo))
		x = G.Must(G.HadamardDiv(x, n.stddev))
	}
	x = G.Must(nflow.Erf(x))
	x = G.Must(G.Add(one, x))

	return G.HadamardProd(half, x)
}

// Quantile computes the inverse of the cumulative distribution function
// at probabilities p, which must lie in (0, 1):
//
//	μ + σ√2 erfinv(2p - 1)
//
// The shape of p is treated in the same way as the Prob() method.
func (n *Normal) Quantile(p *G.Node) (*G.Node, error) {
	p, err := n.fixShape(p)
	if err != nil {
		return nil, fmt.Errorf("quantile: %v", err)
	}

	rootTwo := p.Graph().Constant(G.NewF64(math.Sqrt(2.0)))
	one := p.Graph().Constant(G.NewF64(1.0))
	two := p.Graph().Constant(G.NewF64(2.0))

	p = G.Must(G.HadamardProd(two, p))
	p = G.Must(G.Sub(p, one))
	p = G.Must(nflow.Erfinv(p))
	p = G.Must(G.HadamardProd(p, rootTwo))

	if n.isBatch(p) {
		batchDim := []byte{0}
		p = G.Must(G.BroadcastHadamardProd(p, n.stddev, nil, batchDim))
		return G.BroadcastAdd(p, n.mean, nil, batchDim)
	}
	p = G.Must(G.HadamardProd(p, n.stddev))
	return G.Add(n.mean, p)
}

// Shape returns the number of distributions stored by the receiver
func (n *Normal) Shape() tensor.Shape {
	return n.mean.Shape()
}

// Variance returns the variance of the distribution(s) stored by the
// receiver
func (n *Normal) Variance() *G.Node {
	return G.Must(G.Square(n.stddev))
}

// StdDev returns the standard deviation of the distribution(s)
// stored by the receiver
func (n *Normal) StdDev() *G.Node {
	return n.stddev
}

// Mean returns the mean of the distribution(s) stored by the
// receiver
func (n *Normal) Mean() *G.Node {
	return n.mean
}

// Entropy returns the entropy of the distribution(s) stored by the
// receiver: ½ ln(2πσ²) + ½
func (n *Normal) Entropy() (*G.Node, error) {
	half := n.mean.Graph().Constant(G.NewF64(0.5))
	twoPi := n.mean.Graph().Constant(G.NewF64(math.Pi * 2.0))

	entropy, err := G.Square(n.stddev)
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}
	entropy = G.Must(G.HadamardProd(entropy, twoPi))
	entropy = G.Must(G.Log(entropy))
	entropy = G.Must(G.HadamardProd(half, entropy))

	return G.Add(entropy, half)
}

// Sample returns a node drawing samples from the distribution(s) stored
// by the receiver, of shape (samples, n.Shape()...)
func (n *Normal) Sample(samples int) (*G.Node, error) {
	return NormalRand(n.mean, n.stddev, n.seed, samples)
}

// isBatch returns whether x is a batch of samples to calculate some
// method on
func (n *Normal) isBatch(x *G.Node) bool {
	return !nflow.SameShape(x.Shape(), n.mean.Shape())
}

// fixShape adjusts the shape of x so that it can be used in some
// method. It returns an error indicating if x is of an invalid shape
// which could not be adjusted.
func (n *Normal) fixShape(x *G.Node) (*G.Node, error) {
	if x.IsScalar() && n.mean.Shape()[0] == 1 {
		return G.Reshape(x, []int{1})

	} else if len(x.Shape()) == 1 && len(n.mean.Shape()) == 1 &&
		n.mean.Shape()[0] == 1 && x.Shape()[0] != 1 {
		// When distribution shape was inputted as a scalar, then a
		// vector input x indicates a batch of samples -> reshape
		// so batch dims = 0 and shape of samples = dim 1
		return G.Reshape(x, []int{x.Shape()[0], 1})

	} else if n.isBatch(x) && !nflow.SameShape(x.Shape()[1:], n.Shape()) {
		msg := "expected shape to match distribution shape %v at all " +
			"dimensions except batch (dim 0) but got x shape %v"
		return nil, fmt.Errorf(msg, n.Shape(), x.Shape())
	}

	return x, nil
}
