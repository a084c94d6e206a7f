package flow

import (
	"fmt"

	"github.com/samuelfneumann/nflow"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// reshape reshapes x to shape, doing nothing if x already has it
func reshape(x *G.Node, shape ...int) (*G.Node, error) {
	if nflow.SameShape(x.Shape(), tensor.Shape(shape)) {
		return x, nil
	}
	return G.Reshape(x, tensor.Shape(shape).Clone())
}

// sliceLast returns x[..., from:to]. Gorgonia drops sliced axes of size
// one, so the result is reshaped to keep every axis of x.
func sliceLast(x *G.Node, from, to int) (*G.Node, error) {
	dims := x.Dims()
	if dims == 0 {
		return nil, fmt.Errorf("sliceLast: cannot slice scalar: %w", ErrRank)
	}
	if from < 0 || to > x.Shape()[dims-1] || from >= to {
		return nil, fmt.Errorf("sliceLast: [%d:%d] out of range for shape "+
			"%v: %w", from, to, x.Shape(), ErrShape)
	}

	slices := make([]tensor.Slice, dims)
	slices[dims-1] = G.S(from, to)

	sliced, err := G.Slice(x, slices...)
	if err != nil {
		return nil, fmt.Errorf("sliceLast: %v", err)
	}

	shape := x.Shape().Clone()
	shape[dims-1] = to - from
	return reshape(sliced, shape...)
}

// float64s returns the data of a value as a []float64
func float64s(v G.Value) ([]float64, error) {
	switch data := v.Data().(type) {
	case []float64:
		return data, nil
	case float64:
		return []float64{data}, nil
	}
	return nil, fmt.Errorf("expected float64 data but got %T", v.Data())
}
