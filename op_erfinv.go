package nflow

import (
	"fmt"
	"hash"
	"math"

	"github.com/chewxy/hm"
	"github.com/samuelfneumann/math32"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// erfinvOp is the element-wise inverse error function, defined on
// (-1, 1). Inputs of ±1 map to ±Inf and inputs outside [-1, 1] to NaN.
type erfinvOp struct{}

func newErfinvOp() *erfinvOp { return &erfinvOp{} }

// Arity implements the gorgonia.Op interface
func (e *erfinvOp) Arity() int { return 1 }

// Type implements the gorgonia.Op interface
func (e *erfinvOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

// InferShape implements the gorgonia.Op interface
func (e *erfinvOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	return unaryShape(e, inputs...)
}

// ReturnsPtr implements the gorgonia.Op interface
func (e *erfinvOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (e *erfinvOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (e *erfinvOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (e *erfinvOp) String() string { return "Erfinv()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfinvOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfinvOp) Hashcode() uint32 { return SimpleHash(e) }

// DiffWRT implements the gorgonia.SDOp interface
func (e *erfinvOp) DiffWRT(inputs int) []bool { return []bool{true} }

// SymDiff implements the gorgonia.SDOp interface
func (e *erfinvOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}

	diff, err := G.ApplyOp(&erfinvDiffOp{}, inputs[0], grad)
	if err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}
	return G.Nodes{diff}, nil
}

// Do implements the gorgonia.Op interface
func (e *erfinvOp) Do(values ...G.Value) (G.Value, error) {
	if err := CheckArity(e, len(values)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	switch v := values[0].(type) {
	case *G.F64:
		return G.NewF64(math.Erfinv(float64(*v))), nil

	case *G.F32:
		return G.NewF32(math32.Erfinv(float32(*v))), nil

	case tensor.Tensor:
		x, err := floatData(v)
		if err != nil {
			return nil, fmt.Errorf("do: %v", err)
		}

		switch data := x.(type) {
		case []float64:
			out := make([]float64, len(data))
			for i := range data {
				out[i] = math.Erfinv(data[i])
			}
			return tensor.New(tensor.WithShape(v.Shape().Clone()...),
				tensor.WithBacking(out)), nil

		case []float32:
			out := make([]float32, len(data))
			for i := range data {
				out[i] = math32.Erfinv(data[i])
			}
			return tensor.New(tensor.WithShape(v.Shape().Clone()...),
				tensor.WithBacking(out)), nil
		}
	}

	return nil, fmt.Errorf("do: unable to compute erfinv on type %T",
		values[0])
}

// erfinvDiffOp computes the gradient of erfinv given its input and the
// gradient flowing into its output:
//
//	grad · √π/2 · exp(erfinv(x)²)
type erfinvDiffOp struct{}

// Arity implements the gorgonia.Op interface
func (e *erfinvDiffOp) Arity() int { return 2 }

// Type implements the gorgonia.Op interface
func (e *erfinvDiffOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a, a)
}

// InferShape implements the gorgonia.Op interface
func (e *erfinvDiffOp) InferShape(inputs ...G.DimSizer) (tensor.Shape,
	error) {
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
func (e *erfinvDiffOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (e *erfinvDiffOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (e *erfinvDiffOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (e *erfinvDiffOp) String() string { return "ErfinvDiff()" }

// WriteHash writes the hash of the receiver to a hash struct
func (e *erfinvDiffOp) WriteHash(h hash.Hash) { fmt.Fprint(h, e.String()) }

// Hashcode returns the hash code of the receiver
func (e *erfinvDiffOp) Hashcode() uint32 { return SimpleHash(e) }

func erfinvDiff64(x, grad float64) float64 {
	y := math.Erfinv(x)
	return grad * math.Sqrt(math.Pi) / 2 * math.Exp(y*y)
}

func erfinvDiff32(x, grad float32) float32 {
	y := math32.Erfinv(x)
	return grad * math32.Sqrt(math32.Pi) / 2 * math32.Exp(y*y)
}

// Do implements the gorgonia.Op interface
func (e *erfinvDiffOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := CheckArity(e, len(inputs)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	switch x := inputs[0].(type) {
	case *G.F64:
		grad, ok := inputs[1].(*G.F64)
		if !ok {
			return nil, fmt.Errorf("do: expected gradient of type %T but "+
				"got %T", x, inputs[1])
		}
		return G.NewF64(erfinvDiff64(float64(*x), float64(*grad))), nil

	case *G.F32:
		grad, ok := inputs[1].(*G.F32)
		if !ok {
			return nil, fmt.Errorf("do: expected gradient of type %T but "+
				"got %T", x, inputs[1])
		}
		return G.NewF32(erfinvDiff32(float32(*x), float32(*grad))), nil
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
		out := make([]float64, len(data))
		for i := range data {
			out[i] = erfinvDiff64(data[i], g[i])
		}
		return tensor.New(tensor.WithShape(x.Shape().Clone()...),
			tensor.WithBacking(out)), nil

	case []float32:
		g, ok := gradData.([]float32)
		if !ok || len(g) != len(data) {
			return nil, fmt.Errorf("do: gradient does not match input")
		}
		out := make([]float32, len(data))
		for i := range data {
			out[i] = erfinvDiff32(data[i], g[i])
		}
		return tensor.New(tensor.WithShape(x.Shape().Clone()...),
			tensor.WithBacking(out)), nil
	}

	return nil, fmt.Errorf("do: dtype %v unsupported", x.Dtype())
}
