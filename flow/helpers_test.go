package flow

import (
	"math"
	"testing"

	"github.com/samuelfneumann/nflow"
	"github.com/samuelfneumann/nflow/mlp"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const tolerance = 1e-9

// leaf returns a new named input node of the given shape holding
// backing
func leaf(g *G.ExprGraph, name string, backing []float64,
	shape ...int) *G.Node {
	return G.NewTensor(
		g,
		tensor.Float64,
		len(shape),
		G.WithShape(shape...),
		G.WithValue(tensor.New(
			tensor.WithShape(shape...),
			tensor.WithBacking(append([]float64(nil), backing...)),
		)),
		G.WithName(nflow.Unique(name)),
	)
}

// run executes g and returns the values of nodes
func run(t *testing.T, g *G.ExprGraph, nodes ...*G.Node) [][]float64 {
	t.Helper()

	vals := make([]G.Value, len(nodes))
	for i, n := range nodes {
		G.Read(n, &vals[i])
	}

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	out := make([][]float64, len(nodes))
	for i, v := range vals {
		data, err := float64s(v)
		require.NoError(t, err)
		out[i] = append([]float64(nil), data...)
	}
	return out
}

// values returns the value held by a leaf
func values(t *testing.T, n *G.Node) []float64 {
	t.Helper()
	require.NotNil(t, n.Value())
	data, err := float64s(n.Value())
	require.NoError(t, err)
	return data
}

// pattern returns size deterministic, non-zero values
func pattern(size int, offset float64) []float64 {
	backing := make([]float64, size)
	for i := range backing {
		backing[i] = math.Sin(float64(i)+offset) + 0.1*math.Cos(3*offset)
		if backing[i] == 0 {
			backing[i] = 0.1
		}
	}
	return backing
}

func requireInDelta(t *testing.T, expected, actual []float64, msg string) {
	t.Helper()
	require.Len(t, actual, len(expected), msg)
	for i := range expected {
		if math.Abs(expected[i]-actual[i]) > tolerance {
			t.Errorf("%v: index %d: expected %v but got %v", msg, i,
				expected[i], actual[i])
		}
	}
}

// refPlanar is a single planar flow evaluated directly
type refPlanar struct {
	w, u []float64
	b    float64
}

// refPlanars returns the reference flows held by the rows of flat w, u
// and b parameters
func refPlanars(w, u, b []float64, dim int) []refPlanar {
	flows := make([]refPlanar, len(b))
	for i := range flows {
		flows[i] = refPlanar{
			w: w[i*dim : (i+1)*dim],
			u: u[i*dim : (i+1)*dim],
			b: b[i],
		}
	}
	return flows
}

func dot(x, y []float64) float64 {
	sum := 0.0
	for i := range x {
		sum += x[i] * y[i]
	}
	return sum
}

func (p refPlanar) uBar() ([]float64, float64) {
	uw := dot(p.u, p.w)
	coef := (math.Log1p(math.Exp(uw)) - uw - 1) / dot(p.w, p.w)

	uBar := make([]float64, len(p.u))
	for i := range uBar {
		uBar[i] = p.u[i] + coef*p.w[i]
	}
	return uBar, dot(uBar, p.w)
}

// apply returns the transformed x and the log-density correction at x
func (p refPlanar) apply(x []float64) ([]float64, float64) {
	uBar, uBarW := p.uBar()
	h := math.Tanh(dot(x, p.w) + p.b)

	y := make([]float64, len(x))
	for i := range y {
		y[i] = x[i] + uBar[i]*h
	}
	return y, -math.Log(math.Abs(1 + uBarW*(1-h*h)))
}

// fakeMapping returns constant parameter nodes of deterministic values
// and records how it was called
type fakeMapping struct {
	inputs  []*G.Node
	widths  [][]int
	outputs []*G.Node
	acts    []mlp.Activation
}

func (f *fakeMapping) Build(x *G.Node, widths []int,
	act mlp.Activation) (*G.Node, error) {
	rows, cols := x.Shape()[0], widths[len(widths)-1]
	out := leaf(x.Graph(), "mapping", pattern(rows*cols,
		float64(len(f.outputs))), rows, cols)

	f.inputs = append(f.inputs, x)
	f.widths = append(f.widths, append([]int(nil), widths...))
	f.outputs = append(f.outputs, out)
	f.acts = append(f.acts, act)
	return out, nil
}

// sequence is an Initializer drawing from a fixed cycle of values
type sequence struct {
	values []float64
	next   int
}

func (s *sequence) Draw(size int) []float64 {
	out := make([]float64, size)
	for i := range out {
		out[i] = s.values[s.next%len(s.values)]
		s.next++
	}
	return out
}
