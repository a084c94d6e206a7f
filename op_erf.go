package nflow

import (
	"fmt"
	"hash"
	"math"

	"github.com/chewxy/hm"
	"github.com/chewxy/math32"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// erfOp is the element-wise error function
type erfOp struct{}

func newErfOp() *erfOp { return &erfOp{} }

// Arity implements the gorgonia.Op interface
func (e *erfOp) Arity() int { return 1 }

// Type implements the gorgonia.Op interface
func (e *erfOp) Type() hm.Type {
	// op :: (Arithable a) => a -> a
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

// InferShape implements the gorgonia.Op interface
func (e *erfOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	return unaryShape(e, inputs...)
}

// ReturnsPtr implements the gorgonia.Op interface
func (e *erfOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (e *erfOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (e *erfOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (e *erfOp) String() string { return "Erf()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfOp) Hashcode() uint32 { return SimpleHash(e) }

// DiffWRT implements the gorgonia.SDOp interface
func (e *erfOp) DiffWRT(inputs int) []bool { return []bool{true} }

// SymDiff implements the gorgonia.SDOp interface
func (e *erfOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diff, err := G.ApplyOp(&erfDiffOp{}, inputs[0], grad)
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}
	return G.Nodes{diff}, nil
}

// Do implements the gorgonia.Op interface
func (e *erfOp) Do(values ...G.Value) (G.Value, error) {
	if err := CheckArity(e, len(values)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	switch v := values[0].(type) {
	case *G.F64:
		return G.NewF64(math.Erf(float64(*v))), nil

	case *G.F32:
		return G.NewF32(math32.Erf(float32(*v))), nil

	case tensor.Tensor:
		x, err := floatData(v)
		if err != nil {
			return nil, fmt.Errorf("do: %v", err)
		}

		switch data := x.(type) {
		case []float64:
			out := make([]float64, len(data))
			for i := range data {
				out[i] = math.Erf(data[i])
			}
			return tensor.New(tensor.WithShape(v.Shape().Clone()...),
				tensor.WithBacking(out)), nil

		case []float32:
			out := make([]float32, len(data))
			for i := range data {
				out[i] = math32.Erf(data[i])
			}
			return tensor.New(tensor.WithShape(v.Shape().Clone()...),
				tensor.WithBacking(out)), nil
		}
	}

	return nil, fmt.Errorf("do: unable to compute erf on type %T", values[0])
}

// erfDiffOp computes the gradient of erf given its input and the
// gradient flowing into its output:
//
//	grad · 2/√π · exp(-x²)
type erfDiffOp struct{}

// Arity implements the gorgonia.Op interface
func (e *erfDiffOp) Arity() int { return 2 }

// Type implements the gorgonia.Op interface
func (e *erfDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

// InferShape implements the gorgonia.Op interface
func (e *erfDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	shapes, err := G.DimSizersToShapes(inputs)
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	return shapes[0].Clone(), nil
}

// ReturnsPtr implements the gorgonia.Op interface
func (e *erfDiffOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (e *erfDiffOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (e *erfDiffOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (e *erfDiffOp) String() string { return "ErfDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfDiffOp) Hashcode() uint32 { return SimpleHash(e) }

// Do implements the gorgonia.Op interface
func (e *erfDiffOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	// Scalar inputs
	if x, ok := inputs[0].(*G.F64); ok {
		grad, ok := inputs[1].(*G.F64)
		if !ok {
			return nil, fmt.Errorf("do: expected gradient of type %T but "+
				"got %T", x, inputs[1])
		}
		scale := 2 / math.Sqrt(math.Pi)
		return G.NewF64(float64(*grad) * scale *
			math.Exp(-float64(*x)*float64(*x))), nil
	}
	if x, ok := inputs[0].(*G.F32); ok {
		grad, ok := inputs[1].(*G.F32)
		if !ok {
			return nil, fmt.Errorf("do: expected gradient of type %T but "+
				"got %T", x, inputs[1])
		}
		scale := 2 / math32.Sqrt(math32.Pi)
		return G.NewF32(float32(*grad) * scale *
			math32.Exp(-float32(*x)*float32(*x))), nil
	}

	x, okX := inputs[0].(tensor.Tensor)
	grad, okGrad := inputs[1].(tensor.Tensor)
	if !(okX && okGrad) {
		return nil, fmt.Errorf("do: expected tensor inputs but got %T "+
			"and %T", inputs[0], inputs[1])
	}

	xData, err := floatData(x)
	if err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}
	gradData, err := floatData(grad)
	if err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	switch data := xData.(type) {
	case []float64:
		g, ok := gradData.([]float64)
		if !ok || len(g) != len(data) {
			return nil, fmt.Errorf("do: gradient does not match input")
		}
		scale := 2 / math.Sqrt(math.Pi)
		out := make([]float64, len(data))
		for i := range data {
			out[i] = g[i] * scale * math.Exp(-data[i]*data[i])
		}
		return tensor.New(tensor.WithShape(x.Shape().Clone()...),
			tensor.WithBacking(out)), nil

	case []float32:
		g, ok := gradData.([]float32)
		if !ok || len(g) != len(data) {
			return nil, fmt.Errorf("do: gradient does not match input")
		}
		scale := 2 / math32.Sqrt(math32.Pi)
		out := make([]float32, len(data))
		for i := range data {
			out[i] = g[i] * scale * math32.Exp(-data[i]*data[i])
		}
		return tensor.New(tensor.WithShape(x.Shape().Clone()...),
			tensor.WithBacking(out)), nil
	}

	return nil, fmt.Errorf("do: dtype %v unsupported", x.Dtype())
}

// unaryShape infers the output shape of a shape-preserving unary op
func unaryShape(op G.Op, inputs ...G.DimSizer) (tensor.Shape, error) {
	if err := CheckArity(op, len(inputs)); err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	if inputs[0] == nil {
		return nil, fmt.Errorf("inferShape: nil input")
	}

	shapes, err := G.DimSizersToShapes(inputs)
	if err != nil {
		return nil, fmt.Errorf("inferShape: %v", err)
	}
	return shapes[0].Clone(), nil
}

// floatData returns the data of t as a []float64 or []float32, wrapping
// single-element tensors whose Data() is a bare scalar
func floatData(t tensor.Tensor) (interface{}, error) {
	switch data := t.Data().(type) {
	case []float64, []float32:
		return data, nil
	case float64:
		return []float64{data}, nil
	case float32:
		return []float32{data}, nil
	}
	return nil, fmt.Errorf("dtype %v unsupported", t.Dtype())
}
