package distribution

import (
	"fmt"
	"hash"

	"golang.org/x/exp/rand"

	"github.com/chewxy/hm"
	"github.com/samuelfneumann/nflow"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NormalRand returns a node of shape (numSamples, mean.Shape()...)
// holding samples of the element-wise normal distributions with the
// given mean and stddev. Two graphs built with the same seed draw the
// same sequence of samples.
func NormalRand(mean, stddev *G.Node, seed uint64,
	numSamples int) (*G.Node, error) {
	switch {
	case mean.Dtype() != stddev.Dtype():
		return nil, fmt.Errorf("normalRand: mean of type %v does not match "+
			"stddev of type %v", mean.Dtype(), stddev.Dtype())

	case !nflow.SameShape(mean.Shape(), stddev.Shape()):
		return nil, fmt.Errorf("normalRand: mean of shape %v does not "+
			"match stddev of shape %v", mean.Shape(), stddev.Shape())
	}

	op, err := newNormalSampleOp(mean.Dtype(), seed, numSamples,
		mean.Shape()...)
	if err != nil {
		return nil, fmt.Errorf("normalRand: %v", err)
	}
	return G.ApplyOp(op, mean, stddev)
}

// normalSampleOp draws samples from element-wise normal distributions.
// Its inputs are the mean and standard deviation tensors, its output
// prepends a sample dimension to their shape.
type normalSampleOp struct {
	dt         tensor.Dtype
	shape      tensor.Shape
	dist       distuv.Normal
	seed       uint64
	numSamples int
}

func newNormalSampleOp(dt tensor.Dtype, seed uint64, numSamples int,
	shape ...int) (*normalSampleOp, error) {
	if dt != tensor.Float64 && dt != tensor.Float32 {
		return nil, fmt.Errorf("newNormalSampleOp: dtype %v not supported",
			dt)
	}
	if numSamples <= 0 {
		return nil, fmt.Errorf("newNormalSampleOp: expected numSamples > 0 "+
			"but got %v", numSamples)
	}

	return &normalSampleOp{
		dt:    dt,
		shape: tensor.Shape(shape).Clone(),
		seed:  seed,
		dist: distuv.Normal{
			Mu:    0.0,
			Sigma: 1.0,
			Src:   rand.NewSource(seed),
		},
		numSamples: numSamples,
	}, nil
}

// outShape returns the shape of the sampled tensor
func (n *normalSampleOp) outShape() tensor.Shape {
	return append(tensor.Shape{n.numSamples}, n.shape...)
}

// Arity implements the gorgonia.Op interface
func (n *normalSampleOp) Arity() int { return 2 }

// Type implements the gorgonia.Op interface
func (n *normalSampleOp) Type() hm.Type {
	in := G.TensorType{
		Dims: n.shape.Dims(),
		Of:   n.dt,
	}
	out := G.TensorType{
		Dims: n.shape.Dims() + 1,
		Of:   n.dt,
	}

	return hm.NewFnType(in, in, out)
}

// InferShape implements the gorgonia.Op interface
func (n *normalSampleOp) InferShape(...G.DimSizer) (tensor.Shape, error) {
	return n.outShape(), nil
}

// ReturnsPtr implements the gorgonia.Op interface
func (n *normalSampleOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (n *normalSampleOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (n *normalSampleOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (n *normalSampleOp) String() string {
	return fmt.Sprintf("NormalSample{shape=%v, samples=%v, seed=%v}()",
		n.shape, n.numSamples, n.seed)
}

// WriteHash writes the hash of the receiver to a hash struct
func (n *normalSampleOp) WriteHash(h hash.Hash) {
	fmt.Fprint(h, n.String())
}

// Hashcode returns the hash code of the receiver
func (n *normalSampleOp) Hashcode() uint32 {
	return nflow.SimpleHash(n)
}

// DiffWRT implements the gorgonia.SDOp interface. Samples are drawn
// from a fixed source, so no gradient flows to mean or stddev.
func (n *normalSampleOp) DiffWRT(inputs int) []bool {
	return make([]bool, inputs)
}

// SymDiff implements the gorgonia.SDOp interface
func (n *normalSampleOp) SymDiff(inputs G.Nodes, output,
	grad *G.Node) (G.Nodes, error) {
	return nil, fmt.Errorf("symDiff: %v has no gradient", n)
}

// Do implements the gorgonia.Op interface
func (n *normalSampleOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := n.checkInputs(inputs...); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	mean := inputs[0].(tensor.Tensor)
	std := inputs[1].(tensor.Tensor)
	size := mean.Shape().TotalSize()

	// Samples are laid out row-major: sample j of distribution i is
	// stored at j*size + i
	out := make([]float64, n.numSamples*size)
	for i := 0; i < size; i++ {
		coords, err := tensor.Itol(i, mean.Shape(), mean.Strides())
		if err != nil {
			return nil, fmt.Errorf("do: could not get coords at index %v", i)
		}

		currentMean, err := mean.At(coords...)
		if err != nil {
			return nil, fmt.Errorf("do: could not get mean at index %v", i)
		}
		currentStd, err := std.At(coords...)
		if err != nil {
			return nil, fmt.Errorf("do: could not get std at index %v", i)
		}

		n.dist.Mu, n.dist.Sigma = toFloat64(currentMean), toFloat64(currentStd)
		for j := 0; j < n.numSamples; j++ {
			out[j*size+i] = n.dist.Rand()
		}
	}

	if n.dt == tensor.Float32 {
		out32 := make([]float32, len(out))
		for i := range out {
			out32[i] = float32(out[i])
		}
		return tensor.New(tensor.WithShape(n.outShape()...),
			tensor.WithBacking(out32)), nil
	}
	return tensor.New(tensor.WithShape(n.outShape()...),
		tensor.WithBacking(out)), nil
}

func (n *normalSampleOp) checkInputs(inputs ...G.Value) error {
	if err := nflow.CheckArity(n, len(inputs)); err != nil {
		return err
	}

	for i, name := range []string{"mean", "stddev"} {
		t, ok := inputs[i].(tensor.Tensor)
		if !ok || t == nil {
			return fmt.Errorf("cannot sample from nil %v", name)
		} else if t.Size() == 0 {
			return fmt.Errorf("cannot sample from empty %v tensor", name)
		} else if !nflow.SameShape(t.Shape(), n.shape) {
			return fmt.Errorf("expected %v to have shape %v but got %v",
				name, n.shape, t.Shape())
		} else if !t.Dtype().Eq(n.dt) {
			return fmt.Errorf("expected %v to have dtype %v but got %v",
				name, n.dt, t.Dtype())
		}
	}

	return nil
}

func toFloat64(v interface{}) float64 {
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	return v.(float64)
}
