package nflow

import (
	"math"
	"math/rand"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func erfinvGrad(x float64) float64 {
	y := math.Erfinv(x)
	return math.Sqrt(math.Pi) / 2 * math.Exp(y*y)
}

func TestErfinvGraph(t *testing.T) {
	const tolerance float64 = 1e-9
	r := rand.New(rand.NewSource(11))

	shape := randomShape(r, 1, 4, 6)
	size := tensor.ProdInts(shape)
	backing := make([]float64, size)
	for i := range backing {
		backing[i] = (r.Float64() - 0.5) * 1.9
	}

	g := G.NewGraph()
	in := G.NewTensor(
		g,
		tensor.Float64,
		len(shape),
		G.WithValue(tensor.NewDense(
			tensor.Float64,
			shape,
			tensor.WithBacking(append([]float64(nil), backing...)),
		)),
		G.WithName(Unique("in")),
	)

	node, err := Erfinv(in)
	if err != nil {
		t.Fatal(err)
	}
	// Erf undoes Erfinv
	roundTrip, err := Erf(node)
	if err != nil {
		t.Fatal(err)
	}
	diff, err := G.Grad(G.Must(G.Sum(node)), in)
	if err != nil {
		t.Fatal(err)
	}

	var computed, computedRoundTrip, computedDiff G.Value
	G.Read(node, &computed)
	G.Read(roundTrip, &computedRoundTrip)
	G.Read(diff[0], &computedDiff)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	for i, x := range backing {
		if got := computed.Data().([]float64)[i]; math.Abs(got-
			math.Erfinv(x)) > tolerance {
			t.Errorf("erfinv(%v): expected %v received %v", x,
				math.Erfinv(x), got)
		}
		if got := computedRoundTrip.Data().([]float64)[i]; math.Abs(got-x) >
			tolerance {
			t.Errorf("erf(erfinv(%v)): received %v", x, got)
		}
		if got := computedDiff.Data().([]float64)[i]; math.Abs(got-
			erfinvGrad(x)) > 1e-6 {
			t.Errorf("gradient at %v: expected %v received %v", x,
				erfinvGrad(x), got)
		}
	}
}

func TestErfinvScalar(t *testing.T) {
	op := newErfinvOp()

	v, err := op.Do(G.NewF64(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if got := float64(*(v.(*G.F64))); got != math.Erfinv(0.5) {
		t.Errorf("expected %v received %v", math.Erfinv(0.5), got)
	}

	v, err = op.Do(G.NewF32(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if got := float64(*(v.(*G.F32))); math.Abs(got-math.Erfinv(0.5)) >
		1e-5 {
		t.Errorf("expected %v received %v", math.Erfinv(0.5), got)
	}

	for _, x := range []float64{-1, 1} {
		v, err = op.Do(G.NewF64(x))
		if err != nil {
			t.Fatal(err)
		}
		if got := float64(*(v.(*G.F64))); !math.IsInf(got, int(x)) {
			t.Errorf("erfinv(%v): expected infinity but got %v", x, got)
		}
	}

	diff := erfinvDiffOp{}
	v, err = diff.Do(G.NewF32(0.25), G.NewF32(2))
	if err != nil {
		t.Fatal(err)
	}
	if got := float64(*(v.(*G.F32))); math.Abs(got-2*erfinvGrad(0.25)) >
		1e-4 {
		t.Errorf("expected gradient %v received %v", 2*erfinvGrad(0.25), got)
	}

	if _, err := diff.Do(G.NewF64(0.25), G.NewF32(2)); err == nil {
		t.Error("expected error for mismatched gradient type")
	}
	if _, err := op.Do(G.NewF64(0.1), G.NewF64(0.2)); err == nil {
		t.Error("expected arity error")
	}
}
