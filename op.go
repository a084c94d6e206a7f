// Package nflow provides the Gorgonia operations shared by the
// normalizing flows in nflow/flow and the base distributions in
// nflow/distribution.
package nflow

import (
	"fmt"
	"hash/fnv"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NonZero returns a node holding the same values as x. Executing the
// returned node fails with an error wrapping ErrZero if any element of
// x is exactly zero, so a quantity that is about to be used as a
// divisor can be guarded without checking it at graph construction
// time. The gradient is passed through unchanged. The what argument
// names the guarded quantity in the error message.
func NonZero(x *G.Node, what string) (*G.Node, error) {
	op := newNonZeroOp(what)

	retVal, err := G.ApplyOp(op, x)
	if err != nil {
		return nil, fmt.Errorf("nonZero: %v", err)
	}
	return retVal, nil
}

// Erf computes the element-wise error function
func Erf(x *G.Node) (*G.Node, error) {
	retVal, err := G.ApplyOp(newErfOp(), x)
	if err != nil {
		return nil, fmt.Errorf("erf: %v", err)
	}
	return retVal, nil
}

// Erfinv computes the element-wise inverse error function
func Erfinv(x *G.Node) (*G.Node, error) {
	retVal, err := G.ApplyOp(newErfinvOp(), x)
	if err != nil {
		return nil, fmt.Errorf("erfinv: %v", err)
	}
	return retVal, nil
}

// Erfc computes the element-wise complementary error function
func Erfc(x *G.Node) (*G.Node, error) {
	retVal, err := Erf(x)
	if err != nil {
		return nil, fmt.Errorf("erfc: %v", err)
	}

	var one *G.Node
	switch x.Dtype() {
	case G.Float64:
		one = x.Graph().Constant(G.NewF64(1.0))

	case G.Float32:
		one = x.Graph().Constant(G.NewF32(1.0))

	default:
		return nil, fmt.Errorf("erfc: dtype %v unsupported", x.Dtype())
	}

	return G.Sub(one, retVal)
}

// SumLast sums x along its last axis, keeping every leading axis even
// when it has size 1. The sum is computed as a product with a column of
// ones, so a (1, d) input reduces to shape (1) rather than a scalar.
// A vector input is reduced with G.Sum.
func SumLast(x *G.Node) (*G.Node, error) {
	shape := x.Shape().Clone()
	if len(shape) < 2 {
		return G.Sum(x)
	}

	last := shape[len(shape)-1]
	lead := shape[:len(shape)-1]
	rows := tensor.ProdInts(lead)

	flat := x
	var err error
	if len(shape) != 2 {
		flat, err = G.Reshape(x, tensor.Shape{rows, last})
		if err != nil {
			return nil, fmt.Errorf("sumLast: %v", err)
		}
	}

	var ones *G.Node
	switch x.Dtype() {
	case G.Float64:
		backing := make([]float64, last)
		for i := range backing {
			backing[i] = 1.0
		}
		ones = x.Graph().Constant(tensor.New(
			tensor.WithShape(last, 1),
			tensor.WithBacking(backing),
		))

	case G.Float32:
		backing := make([]float32, last)
		for i := range backing {
			backing[i] = 1.0
		}
		ones = x.Graph().Constant(tensor.New(
			tensor.WithShape(last, 1),
			tensor.WithBacking(backing),
		))

	default:
		return nil, fmt.Errorf("sumLast: dtype %v unsupported", x.Dtype())
	}

	sum, err := G.Mul(flat, ones)
	if err != nil {
		return nil, fmt.Errorf("sumLast: %v", err)
	}
	return G.Reshape(sum, lead)
}

// SimpleHash returns the 32-bit FNV-1a hash of the string an op writes
// with WriteHash, the way Gorgonia hashes its own ops
func SimpleHash(op G.Op) uint32 {
	h := fnv.New32a()
	op.WriteHash(h)
	return h.Sum32()
}

// CheckArity returns an error if op cannot be applied to inputs inputs.
// Ops with a negative arity accept any number of inputs.
func CheckArity(op G.Op, inputs int) error {
	if arity := op.Arity(); arity >= 0 && inputs != arity {
		return fmt.Errorf("%v expects %d input(s) but got %d", op, arity,
			inputs)
	}
	return nil
}
