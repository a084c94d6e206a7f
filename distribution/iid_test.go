package distribution

import (
	"math"
	"testing"

	"github.com/samuelfneumann/nflow"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	mv "gonum.org/v1/gonum/stat/distmv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// TestIIDLogProb checks the joint log density of an IID over a Normal
// of shape (2, 3) against a multivariate normal with diagonal
// covariance
func TestIIDLogProb(t *testing.T) {
	const threshold = 0.000001

	shape := []int{2, 3}
	numDists := tensor.ProdInts(shape)
	meanBacking := make([]float64, numDists)
	stdBacking := make([]float64, numDists)
	varBacking := make([]float64, numDists)
	for r := range meanBacking {
		meanBacking[r] = float64(r) / 2
		stdBacking[r] = 0.5 + float64(r)/4
		varBacking[r] = stdBacking[r] * stdBacking[r]
	}

	targetDist, ok := mv.NewNormal(meanBacking,
		mat.NewDiagDense(numDists, varBacking), nil)
	require.True(t, ok, "could not construct target normal")

	batchSize := 5
	dataSlice := make([]float64, numDists*batchSize)
	dataShape := append([]int{batchSize}, shape...)
	for i := range dataSlice {
		dataSlice[i] = math.Sin(float64(i))
	}

	g := G.NewGraph()
	mean := G.NewTensor(
		g,
		tensor.Float64,
		len(shape),
		G.WithShape(shape...),
		G.WithValue(tensor.NewDense(
			tensor.Float64,
			shape,
			tensor.WithBacking(meanBacking),
		)),
		G.WithName(nflow.Unique("mean")),
	)
	std := G.NewTensor(
		g,
		tensor.Float64,
		len(shape),
		G.WithShape(shape...),
		G.WithValue(tensor.NewDense(
			tensor.Float64,
			shape,
			tensor.WithBacking(stdBacking),
		)),
		G.WithName(nflow.Unique("std")),
	)
	data := G.NewTensor(
		g,
		tensor.Float64,
		len(dataShape),
		G.WithShape(dataShape...),
		G.WithValue(tensor.NewDense(
			tensor.Float64,
			dataShape,
			tensor.WithBacking(dataSlice),
		)),
		G.WithName(nflow.Unique("input")),
	)

	n, err := NewNormal(mean, std, 1)
	require.NoError(t, err)

	i := NewIID(n, 2)
	require.Equal(t, 2, i.Dims())

	logProb, err := i.LogProb(data)
	require.NoError(t, err)
	require.Equal(t, []int{batchSize}, []int(logProb.Shape()),
		"expected shape (%d) but got %v", batchSize, logProb.Shape())

	prob, err := i.Prob(data)
	require.NoError(t, err)

	var logProbVal, probVal G.Value
	G.Read(logProb, &logProbVal)
	G.Read(prob, &probVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	for b := 0; b < batchSize; b++ {
		target := targetDist.LogProb(dataSlice[b*numDists : (b+1)*numDists])
		got := logProbVal.Data().([]float64)[b]
		if math.Abs(target-got) > threshold {
			t.Errorf("expected log prob %v but got %v for sample %d", target,
				got, b)
		}
		if gotProb := probVal.Data().([]float64)[b]; math.Abs(
			math.Exp(target)-gotProb) > threshold {
			t.Errorf("expected prob %v but got %v for sample %d",
				math.Exp(target), gotProb, b)
		}
	}
}

func TestIIDEntropy(t *testing.T) {
	g := G.NewGraph()
	n, err := NewStandardNormal(g, 4, 1)
	require.NoError(t, err)

	entropy, err := NewIID(n, 1).Entropy()
	require.NoError(t, err)

	var eVal G.Value
	G.Read(entropy, &eVal)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	require.NoError(t, vm.RunAll())

	var got float64
	switch data := eVal.Data().(type) {
	case float64:
		got = data
	case []float64:
		got = data[0]
	}
	require.InDelta(t, 4*(0.5*math.Log(2*math.Pi)+0.5), got, 1e-9)
}

func TestIIDRank(t *testing.T) {
	g := G.NewGraph()
	n, err := NewStandardNormal(g, 3, 1)
	require.NoError(t, err)

	x := newVec(g, "x", []float64{0, 0, 0})
	_, err = NewIID(n, 2).LogProb(x)
	require.Error(t, err)
}
