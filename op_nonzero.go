package nflow

import (
	"errors"
	"fmt"
	"hash"

	"github.com/chewxy/hm"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ErrZero is returned by a NonZero node whose input holds a zero
var ErrZero = errors.New("zero value")

// nonZeroOp passes its input through and errors on zero elements
type nonZeroOp struct {
	what string
}

func newNonZeroOp(what string) *nonZeroOp {
	return &nonZeroOp{what: what}
}

// Arity implements the gorgonia.Op interface
func (n *nonZeroOp) Arity() int { return 1 }

// Type implements the gorgonia.Op interface
func (n *nonZeroOp) Type() hm.Type {
	a := hm.TypeVariable('a')
	return hm.NewFnType(a, a)
}

// InferShape implements the gorgonia.Op interface
func (n *nonZeroOp) InferShape(inputs ...G.DimSizer) (tensor.Shape, error) {
	return unaryShape(n, inputs...)
}

// ReturnsPtr implements the gorgonia.Op interface
func (n *nonZeroOp) ReturnsPtr() bool { return false }

// CallsExtern implements the gorgonia.Op interface
func (n *nonZeroOp) CallsExtern() bool { return false }

// OverwritesInput implements the gorgonia.Op interface
func (n *nonZeroOp) OverwritesInput() int { return -1 }

// String implements the fmt.Stringer interface
func (n *nonZeroOp) String() string {
	return fmt.Sprintf("NonZero{%v}()", n.what)
}

// WriteHash writes the hash of the receiver to a hash struct
func (n *nonZeroOp) WriteHash(h hash.Hash) { fmt.Fprint(h, n.String()) }

// Hashcode returns the hash code of the receiver
func (n *nonZeroOp) Hashcode() uint32 { return SimpleHash(n) }

// DiffWRT implements the gorgonia.SDOp interface
func (n *nonZeroOp) DiffWRT(inputs int) []bool { return []bool{true} }

// SymDiff implements the gorgonia.SDOp interface. The op is the
// identity wherever it does not fail, so the incoming gradient is
// returned as is.
func (n *nonZeroOp) SymDiff(inputs G.Nodes, output, grad *G.Node) (G.Nodes,
	error) {
	if err := CheckArity(n, len(inputs)); err != nil {
		return nil, fmt.Errorf("symDiff: %v", err)
	}
	return G.Nodes{grad}, nil
}

// Do implements the gorgonia.Op interface
func (n *nonZeroOp) Do(inputs ...G.Value) (G.Value, error) {
	if err := CheckArity(n, len(inputs)); err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	switch v := inputs[0].(type) {
	case *G.F64:
		if float64(*v) == 0 {
			return nil, n.fail(0)
		}
		return G.NewF64(float64(*v)), nil

	case *G.F32:
		if float32(*v) == 0 {
			return nil, n.fail(0)
		}
		return G.NewF32(float32(*v)), nil

	case tensor.Tensor:
		return n.checkTensor(v)

	default:
		return nil, fmt.Errorf("do: unable to check type %T", v)
	}
}

// checkTensor returns a copy of t, or an error if any element of t is
// zero
func (n *nonZeroOp) checkTensor(t tensor.Tensor) (G.Value, error) {
	data, err := floatData(t)
	if err != nil {
		return nil, fmt.Errorf("do: %v", err)
	}

	var backing interface{}
	switch d := data.(type) {
	case []float64:
		for i := range d {
			if d[i] == 0 {
				return nil, n.fail(i)
			}
		}
		b := make([]float64, len(d))
		copy(b, d)
		backing = b

	case []float32:
		for i := range d {
			if d[i] == 0 {
				return nil, n.fail(i)
			}
		}
		b := make([]float32, len(d))
		copy(b, d)
		backing = b
	}

	return tensor.New(tensor.WithShape(t.Shape().Clone()...),
		tensor.WithBacking(backing)), nil
}

func (n *nonZeroOp) fail(index int) error {
	return fmt.Errorf("do: %v at index %d: %w", n.what, index, ErrZero)
}
