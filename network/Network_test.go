package network

import (
	"math"
	"testing"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func newTestTree(t *testing.T, batch int) NeuralNet {
	t.Helper()
	net, err := NewTreeMLP(3, batch, 2, G.NewGraph(),
		[]int{8}, []bool{true}, []*Activation{TanH()},
		[][]int{{}, {4}}, [][]bool{{}, {true}},
		[][]*Activation{{}, {ReLU()}}, G.GlorotU(1.0))
	if err != nil {
		t.Fatalf("could not create tree mlp: %v", err)
	}
	return net
}

func run(t *testing.T, net NeuralNet, input []float64) [][]float64 {
	t.Helper()
	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}

	out := make([][]float64, 0, net.OutputLayers())
	for _, v := range net.Output() {
		out = append(out, append([]float64(nil), v.Data().([]float64)...))
	}
	return out
}

func TestTreeMLPShape(t *testing.T) {
	net := newTestTree(t, 4)

	if net.OutputLayers() != 2 {
		t.Fatalf("output layers: want(2) have(%v)", net.OutputLayers())
	}
	for i, pred := range net.Prediction() {
		if s := pred.Shape(); s[0] != 4 || s[1] != 2 {
			t.Errorf("leaf %v shape: want(4, 2) have(%v)", i, s)
		}
	}

	// Root has W and B, first leaf one linear layer, second leaf two
	if l := len(net.Learnables()); l != 2+2+4 {
		t.Errorf("learnables: want(8) have(%v)", l)
	}
}

func TestCloneWithBatch(t *testing.T) {
	net := newTestTree(t, 1)
	clone, err := net.CloneWithBatch(3)
	if err != nil {
		t.Fatalf("could not clone: %v", err)
	}

	if clone.BatchSize() != 3 {
		t.Errorf("batch size: want(3) have(%v)", clone.BatchSize())
	}
	if !CopyParameters(net.Learnables()).Equal(
		CopyParameters(clone.Learnables())) {
		t.Fatalf("clone weights differ from source")
	}

	obs := []float64{0.1, -0.4, 2.0}
	want := run(t, net, obs)
	have := run(t, clone, append(append(append([]float64{}, obs...),
		obs...), obs...))

	for leaf := range want {
		for row := 0; row < 3; row++ {
			for j := range want[leaf] {
				diff := want[leaf][j] - have[leaf][row*2+j]
				if math.Abs(diff) > 1e-12 {
					t.Errorf("leaf %v row %v: want(%v) have(%v)", leaf, row,
						want[leaf][j], have[leaf][row*2+j])
				}
			}
		}
	}
}

func TestSet(t *testing.T) {
	a := newTestTree(t, 1)
	b := newTestTree(t, 1)
	if CopyParameters(a.Learnables()).Equal(CopyParameters(b.Learnables())) {
		t.Fatalf("independently initialized networks are equal")
	}

	if err := b.Set(a); err != nil {
		t.Fatalf("could not set: %v", err)
	}
	if !CopyParameters(a.Learnables()).Equal(CopyParameters(b.Learnables())) {
		t.Errorf("weights differ after set")
	}

	// Setting copies by value
	params := CopyParameters(a.Learnables())
	params[0].Data[0] += 1
	if err := SetParameters(a.Learnables(), params); err != nil {
		t.Fatal(err)
	}
	if CopyParameters(a.Learnables()).Equal(CopyParameters(b.Learnables())) {
		t.Errorf("set aliases the source weights")
	}
}

func TestSetParametersErrors(t *testing.T) {
	net := newTestTree(t, 1)
	params := CopyParameters(net.Learnables())

	if err := SetParameters(net.Learnables(), params[1:]); err == nil {
		t.Errorf("want error for missing parameters")
	}

	params[0].Shape = []int{1, len(params[0].Data)}
	if err := SetParameters(net.Learnables(), params); err == nil {
		t.Errorf("want error for mismatched shape")
	}

	if err := net.SetInput([]float64{1, 2}); err == nil {
		t.Errorf("want error for wrong input length")
	}
}

func TestMultiHeadMLPFromInput(t *testing.T) {
	tree := newTestTree(t, 2)
	critic, err := NewMultiHeadMLPFromInput([]*G.Node{tree.Input()}, 1,
		[]int{5}, []bool{true}, G.GlorotU(1.0), []*Activation{TanH()},
		"Value", "", true)
	if err != nil {
		t.Fatalf("could not create critic: %v", err)
	}

	if critic.Graph() != tree.Graph() {
		t.Errorf("critic not added to the input's graph")
	}
	if s := critic.Prediction()[0].Shape(); s[0] != 2 || s[1] != 1 {
		t.Errorf("critic shape: want(2, 1) have(%v)", s)
	}
	if _, err := NewMultiHeadMLPFromInput(nil, 1, nil, nil, G.Zeroes(), nil,
		"", "", true); err == nil {
		t.Errorf("want error for no inputs")
	}
}

func TestCloneWithInput(t *testing.T) {
	tree := newTestTree(t, 1)
	critic, err := NewMultiHeadMLPFromInput([]*G.Node{tree.Input()}, 1,
		[]int{5}, []bool{true}, G.GlorotU(1.0), []*Activation{TanH()},
		"Value", "", true)
	if err != nil {
		t.Fatal(err)
	}

	treeClone, err := tree.CloneWithBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	criticClone, err := CloneWithInput(critic, treeClone.Input())
	if err != nil {
		t.Fatalf("could not clone critic: %v", err)
	}
	if criticClone.Graph() != treeClone.Graph() ||
		criticClone.Input() != treeClone.Input() {
		t.Fatalf("critic clone does not read the tree clone's input")
	}
	if criticClone.BatchSize() != 2 {
		t.Errorf("batch size: want(2) have(%v)", criticClone.BatchSize())
	}
	if !CopyParameters(critic.Learnables()).Equal(
		CopyParameters(criticClone.Learnables())) {
		t.Errorf("critic clone weights differ from source")
	}

	wide := G.NewMatrix(G.NewGraph(), tensor.Float64, G.WithShape(2, 4),
		G.WithName("input"), G.WithInit(G.Zeroes()))
	if _, err := CloneWithInput(critic, wide); err == nil {
		t.Errorf("want error for input with wrong number of features")
	}
}
