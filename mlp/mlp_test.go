package mlp

import (
	"math"
	"testing"

	"github.com/samuelfneumann/nflow"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func newInput(g *G.ExprGraph, rows, cols int) *G.Node {
	backing := make([]float64, rows*cols)
	for i := range backing {
		backing[i] = math.Cos(float64(i))
	}
	return G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(rows, cols),
		G.WithValue(tensor.New(
			tensor.WithShape(rows, cols),
			tensor.WithBacking(backing),
		)),
		G.WithName(nflow.Unique("x")),
	)
}

func TestBuild(t *testing.T) {
	for _, rows := range []int{1, 4} {
		g := G.NewGraph()
		x := newInput(g, rows, 3)

		b := New(1)
		out, err := b.Build(x, []int{8, 5, 2}, G.Tanh)
		require.NoError(t, err)
		require.Equal(t, []int{rows, 2}, []int(out.Shape()),
			"expected shape (%d, 2) but got %v", rows, out.Shape())

		net := b.Networks()[0]
		require.Equal(t, []int{8, 5, 2}, net.Widths())
		require.Len(t, net.Learnables(), 6)
		require.Equal(t, x, net.Input())

		var outVal G.Value
		G.Read(out, &outVal)
		vm := G.NewTapeMachine(g)
		require.NoError(t, vm.RunAll())
		vm.Close()

		for _, v := range outVal.Data().([]float64) {
			if math.Abs(v) >= 1 {
				t.Errorf("tanh output %v out of range", v)
			}
		}
	}
}

// TestBuildIndependent checks that every call to Build creates new
// parameters
func TestBuildIndependent(t *testing.T) {
	g := G.NewGraph()
	x := newInput(g, 2, 3)

	b := New(1)
	first, err := b.Build(x, []int{4}, nil)
	require.NoError(t, err)
	second, err := b.Build(x, []int{4}, nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())
	require.Len(t, b.Networks(), 2)
	require.Len(t, b.Learnables(), 4)

	var firstVal, secondVal G.Value
	G.Read(first, &firstVal)
	G.Read(second, &secondVal)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	require.NotEqual(t, firstVal.Data(), secondVal.Data())
}

func TestBuildGrad(t *testing.T) {
	g := G.NewGraph()
	x := newInput(g, 3, 2)

	b := New(2)
	out, err := b.Build(x, []int{4, 1}, G.Tanh)
	require.NoError(t, err)

	cost := G.Must(G.Sum(out))
	grads, err := G.Grad(cost, b.Learnables()...)
	require.NoError(t, err)
	require.Len(t, grads, 4)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())
}

func TestBuildErrors(t *testing.T) {
	g := G.NewGraph()
	b := New(1)

	vec := G.NewVector(g, tensor.Float64, G.WithShape(3),
		G.WithName(nflow.Unique("v")))
	_, err := b.Build(vec, []int{2}, nil)
	require.Error(t, err)

	x := newInput(g, 2, 3)
	_, err = b.Build(x, nil, nil)
	require.Error(t, err)

	_, err = b.Build(x, []int{2, 0}, nil)
	require.Error(t, err)
}
