package flow

import (
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/nflow/mlp"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

func TestDynaConditionalRegimes(t *testing.T) {
	const n, time, obsDim, layers = 4, 3, 2, 2
	tests := []struct {
		examples, dim int
	}{
		{1, 2},
		{3, 2},
		{1, 1},
		{3, 1},
	}

	for _, test := range tests {
		examples, dim := test.examples, test.dim
		g := G.NewGraph()
		y := leaf(g, "y", pattern(examples*time*obsDim, 1), examples,
			time*obsDim)
		builder := mlp.New(3)

		d, err := NewDynaConditionalRandomVariable(y, dim, time, layers,
			builder, WithHidden(6))
		require.NoError(t, err)
		require.Equal(t, examples, d.NumExamples())
		require.Equal(t, obsDim, d.ObsDim())
		require.Equal(t, dim, d.Dim())
		require.Equal(t, time, d.Time())
		rows := examples * (time - 1)
		require.Equal(t, []int{rows, 2 * dim * layers}, []int(d.W().Shape()))
		require.Equal(t, []int{rows, layers}, []int(d.B().Shape()))
		require.Equal(t, []int{6, 2 * dim * layers},
			builder.Networks()[0].Widths())

		require.Len(t, d.Flows(), time-1)
		for _, stack := range d.Flows() {
			require.Len(t, stack, layers)
			for _, f := range stack {
				require.Equal(t, examples, f.NumFlows())
				require.Equal(t, 2*dim, f.Dim())
			}
		}

		samples, logProb, err := d.SampleLogProb(n)
		require.NoError(t, err)
		if examples == 1 {
			require.Equal(t, []int{n, dim * time}, []int(samples.Shape()))
			require.Equal(t, []int{n}, []int(logProb.Shape()))
		} else {
			require.Equal(t, []int{examples, n, dim * time},
				[]int(samples.Shape()))
			require.Equal(t, []int{examples, n}, []int(logProb.Shape()))
		}

		cost := G.Must(G.Sum(logProb))
		_, err = G.Grad(cost, builder.Learnables()...)
		require.NoError(t, err)

		out := run(t, g, samples, logProb)
		for _, v := range append(out[0], out[1]...) {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

// TestDynaConditionalUnfold checks that observation pairs are unfolded
// example-major, then by time step
func TestDynaConditionalUnfold(t *testing.T) {
	const examples, dim, time, obsDim, layers = 2, 1, 4, 2, 1
	g := G.NewGraph()
	yBacking := make([]float64, examples*time*obsDim)
	for i := range yBacking {
		yBacking[i] = float64(i + 1)
	}
	y := leaf(g, "y", yBacking, examples, time*obsDim)

	mapping := &fakeMapping{}
	_, err := NewDynaConditionalRandomVariable(y, dim, time, layers, mapping)
	require.NoError(t, err)
	require.Len(t, mapping.inputs, 3)
	require.Equal(t, []int{128, 128, 2 * dim * layers}, mapping.widths[0])
	require.Equal(t, []int{128, 128, layers}, mapping.widths[2])

	unfolded := mapping.inputs[0]
	require.Equal(t, []int{examples * (time - 1), 2 * obsDim},
		[]int(unfolded.Shape()))

	var want []float64
	for e := 0; e < examples; e++ {
		path := yBacking[e*time*obsDim : (e+1)*time*obsDim]
		for step := 0; step < time-1; step++ {
			want = append(want, path[step*obsDim:(step+2)*obsDim]...)
		}
	}
	require.Equal(t, want, run(t, g, unfolded)[0])
}

// TestDynaConditionalChain checks parameter slicing, time step t and
// layer l taking the chunk [l*2*dim, (l+1)*2*dim) of row
// e*(time-1) + t for example e, and the resulting chain of each
// example against a direct evaluation
func TestDynaConditionalChain(t *testing.T) {
	const n, examples, dim, time, obsDim, layers = 2, 2, 1, 3, 1, 2
	const width = 2 * dim
	g := G.NewGraph()
	y := leaf(g, "y", pattern(examples*time*obsDim, 1), examples,
		time*obsDim)

	baseSamples := pattern(examples*n*dim*time, 2)
	baseLogProb := pattern(examples*n, 3)
	mapping := &fakeMapping{}
	d, err := NewDynaConditionalRandomVariable(y, dim, time, layers, mapping,
		WithBase(Precomputed(
			leaf(g, "samples", baseSamples, examples, n, dim*time),
			leaf(g, "logProb", baseLogProb, examples, n),
		)))
	require.NoError(t, err)

	samples, logProb, err := d.SampleLogProb(n)
	require.NoError(t, err)

	nodes := G.Nodes{samples, logProb}
	for _, stack := range d.Flows() {
		for _, f := range stack {
			nodes = append(nodes, f.W(), f.U(), f.B())
		}
	}
	out := run(t, g, nodes...)

	w := values(t, mapping.outputs[0])
	u := values(t, mapping.outputs[1])
	b := values(t, mapping.outputs[2])
	cols := width * layers

	refs := make([][][]refPlanar, examples)
	for e := range refs {
		refs[e] = make([][]refPlanar, time-1)
	}
	for step := 0; step < time-1; step++ {
		for l := 0; l < layers; l++ {
			var wantW, wantU, wantB []float64
			for e := 0; e < examples; e++ {
				row := e*(time-1) + step
				ref := refPlanar{
					w: w[row*cols+l*width : row*cols+(l+1)*width],
					u: u[row*cols+l*width : row*cols+(l+1)*width],
					b: b[row*layers+l],
				}
				refs[e][step] = append(refs[e][step], ref)
				wantW = append(wantW, ref.w...)
				wantU = append(wantU, ref.u...)
				wantB = append(wantB, ref.b)
			}

			index := 2 + 3*(step*layers+l)
			require.Equal(t, wantW, out[index], "w at step %d, layer %d",
				step, l)
			require.Equal(t, wantU, out[index+1], "u at step %d, layer %d",
				step, l)
			require.Equal(t, wantB, out[index+2], "b at step %d, layer %d",
				step, l)
		}
	}

	chainWidth := dim * time
	for e := 0; e < examples; e++ {
		for i := 0; i < n; i++ {
			row := e*n + i
			x := baseSamples[row*chainWidth : (row+1)*chainWidth]
			want, ld := refChain(x, dim, refs[e])
			requireInDelta(t, want, out[0][row*chainWidth:(row+1)*chainWidth],
				"samples")
			require.InDelta(t, baseLogProb[row]+ld, out[1][row], tolerance)
		}
	}
}

func TestDynaConditionalFlowParams(t *testing.T) {
	g := G.NewGraph()
	y := leaf(g, "y", pattern(6, 1), 2, 3)
	d, err := NewDynaConditionalRandomVariable(y, 1, 3, 2, &fakeMapping{})
	require.NoError(t, err)

	_, err = d.flowParams(d.W(), 2, 0, 2, 2)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)
	_, err = d.flowParams(d.W(), 0, 2, 2, 2)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)

	p, err := d.flowParams(d.B(), 1, 1, 1, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2}, []int(p.Shape()))
}

func TestDynaConditionalErrors(t *testing.T) {
	g := G.NewGraph()
	mapping := &fakeMapping{}

	y := leaf(g, "y", pattern(12, 1), 2, 6)
	_, err := NewDynaConditionalRandomVariable(y, 2, 1, 1, mapping)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)

	_, err = NewDynaConditionalRandomVariable(y, 2, 4, 1, mapping)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)

	vec := leaf(g, "y", pattern(6, 1), 6)
	_, err = NewDynaConditionalRandomVariable(vec, 2, 3, 1, mapping)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)

	_, err = NewDynaConditionalRandomVariable(y, 0, 3, 1, mapping)
	require.True(t, errors.Is(err, ErrShape), "got %v", err)

	_, err = NewDynaConditionalRandomVariable(y, 2, 3, 1, nil)
	require.Error(t, err)

	// A precomputed base needs one batch of samples per example
	_, err = NewDynaConditionalRandomVariable(y, 2, 3, 1, mapping,
		WithBase(Precomputed(
			leaf(g, "samples", make([]float64, 36), 3, 2, 6),
			leaf(g, "logProb", make([]float64, 6), 3, 2),
		)))
	require.True(t, errors.Is(err, ErrRank), "got %v", err)
}
