package op

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func matrix(g *G.ExprGraph, name string, rows, cols int,
	data []float64) *G.Node {
	return G.NewMatrix(g, tensor.Float64, G.WithShape(rows, cols),
		G.WithName(name), G.WithValue(tensor.New(tensor.WithShape(rows, cols),
			tensor.WithBacking(data))))
}

func eval(t *testing.T, g *G.ExprGraph, n *G.Node) []float64 {
	t.Helper()
	var val G.Value
	G.Read(n, &val)
	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	return val.Data().([]float64)
}

func closeTo(t *testing.T, name string, want, have []float64) {
	t.Helper()
	if len(want) != len(have) {
		t.Fatalf("%v: want(%v) have(%v)", name, want, have)
	}
	for i := range want {
		if math.Abs(want[i]-have[i]) > 1e-9 {
			t.Errorf("%v[%v]: want(%v) have(%v)", name, i, want[i], have[i])
		}
	}
}

func TestClipMinMax(t *testing.T) {
	g := G.NewGraph()
	a := matrix(g, "a", 1, 4, []float64{-2, 0.5, 1.25, 3})
	b := matrix(g, "b", 1, 4, []float64{0, 1, 1, 1})

	clipped := G.Must(Clip(a, 0.8, 1.2))
	min := G.Must(Min(a, b))
	max := G.Must(Max(a, b))

	var clipVal, minVal, maxVal G.Value
	G.Read(clipped, &clipVal)
	G.Read(min, &minVal)
	G.Read(max, &maxVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	closeTo(t, "clip", []float64{0.8, 0.8, 1.2, 1.2},
		clipVal.Data().([]float64))
	closeTo(t, "min", []float64{-2, 0.5, 1, 1}, minVal.Data().([]float64))
	closeTo(t, "max", []float64{0, 1, 1.25, 3}, maxVal.Data().([]float64))
}

func TestGaussian(t *testing.T) {
	g := G.NewGraph()
	mean := matrix(g, "mean", 2, 2, []float64{0, 0, 1, -1})
	std := matrix(g, "std", 2, 2, []float64{1, 1, 0.5, 2})
	actions := matrix(g, "actions", 2, 2, []float64{0, 0, 1.5, -1})

	logPdf := GaussianLogPdf(mean, std, actions)
	entropy := GaussianEntropy(std)
	self := GaussianKL(mean, std, mean, std)
	selfL2 := GaussianL2(mean, std, mean, std)

	var lp, ent G.Value
	G.Read(logPdf, &lp)
	G.Read(entropy, &ent)
	kl := eval(t, g, G.Must(G.Concat(0, self, selfL2)))

	// Standard normal at the mean in two dimensions
	want0 := -math.Log(2 * math.Pi)
	want1 := -0.5 - math.Log(0.5) - math.Log(2) - math.Log(2*math.Pi)
	closeTo(t, "logpdf", []float64{want0, want1}, lp.Data().([]float64))

	h := 0.5 + 0.5*math.Log(2*math.Pi)
	closeTo(t, "entropy", []float64{2 * h, 2*h + math.Log(0.5) + math.Log(2)},
		ent.Data().([]float64))

	closeTo(t, "self divergence", []float64{0, 0, 0, 0}, kl)
}

func TestGaussianKL(t *testing.T) {
	g := G.NewGraph()
	pMean := matrix(g, "pMean", 1, 1, []float64{1})
	pStd := matrix(g, "pStd", 1, 1, []float64{2})
	qMean := matrix(g, "qMean", 1, 1, []float64{0})
	qStd := matrix(g, "qStd", 1, 1, []float64{1})

	have := eval(t, g, GaussianKL(pMean, pStd, qMean, qStd))

	// log(1/2) + (4 + 1) / 2 - 1/2
	closeTo(t, "kl", []float64{math.Log(0.5) + 2}, have)
}
