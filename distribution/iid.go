package distribution

import (
	"fmt"

	"github.com/samuelfneumann/nflow"
	G "gorgonia.org/gorgonia"
)

// IID treats the trailing dims dimensions of a Distribution as the
// event dimensions of a single joint distribution over independent,
// identically shaped elements. Densities are combined with a product
// (or a sum in log space) over the event dimensions, which are always
// taken from the right.
//
// For example, an IID over a Normal of shape (d) with dims = 1 maps a
// batch of samples of shape (n, d) to n joint log densities.
type IID struct {
	Distribution
	dims int // The number of trailing dimensions to interpret as events
}

// NewIID returns a new IID
func NewIID(d Distribution, dims int) *IID {
	return &IID{d, dims}
}

// SetDims sets the number of event dims
func (i *IID) SetDims(dims int) {
	i.dims = dims
}

// Dims returns the number of event dims
func (i *IID) Dims() int {
	return i.dims
}

// Prob returns the joint probability density of x over the event dims
func (i *IID) Prob(x *G.Node) (*G.Node, error) {
	logProb, err := i.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("prob: %v", err)
	}

	return G.Exp(logProb)
}

// LogProb returns the joint log probability density of x over the
// event dims
func (i *IID) LogProb(x *G.Node) (*G.Node, error) {
	if x.Dims() < i.dims {
		return nil, fmt.Errorf("logProb: expected dims >= %v but got %v",
			i.dims, x.Dims())
	}

	x, err := i.Distribution.LogProb(x)
	if err != nil {
		return nil, fmt.Errorf("logProb: could not compute iid log "+
			"prob: %v", err)
	}

	x, err = i.combine(x)
	if err != nil {
		return nil, fmt.Errorf("logProb: %v", err)
	}
	return x, nil
}

// Entropy returns the joint entropy over the event dims
func (i *IID) Entropy() (*G.Node, error) {
	x, err := i.Distribution.Entropy()
	if err != nil {
		return nil, fmt.Errorf("entropy: could not take entropy of each "+
			"i.i.d. variable: %v", err)
	}

	x, err = i.combine(x)
	if err != nil {
		return nil, fmt.Errorf("entropy: %v", err)
	}
	return x, nil
}

// Cdf returns the joint cumulative distribution function of x over
// the event dims, the product of the element-wise Cdfs
func (i *IID) Cdf(x *G.Node) (*G.Node, error) {
	if x.Dims() < i.dims {
		return nil, fmt.Errorf("cdf: expected dims >= %v but got %v",
			i.dims, x.Dims())
	}

	x, err := i.Distribution.Cdf(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: could not compute iid cdf: %v", err)
	}

	// Products are taken in log space
	x, err = G.Log(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: %v", err)
	}
	x, err = i.combine(x)
	if err != nil {
		return nil, fmt.Errorf("cdf: %v", err)
	}
	return G.Exp(x)
}

// combine sums the event dims of x
func (i *IID) combine(x *G.Node) (*G.Node, error) {
	var err error
	for j := 0; j < i.dims; j++ {
		x, err = nflow.SumLast(x)
		if err != nil {
			return nil, fmt.Errorf("could not combine event dims: %v", err)
		}
	}

	return x, nil
}
