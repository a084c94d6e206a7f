// Package mlp implements the feed-forward networks that map a
// conditioning covariate to normalizing flow parameters.
package mlp

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/samuelfneumann/nflow"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Activation is an element-wise activation function. G.Tanh, G.Rectify
// and G.Sigmoid all satisfy it.
type Activation func(*G.Node) (*G.Node, error)

// Builder constructs independently parameterized feed-forward
// networks. Weights are drawn with Xavier/Glorot uniform
// initialization from a source owned by the Builder, biases start at
// zero.
type Builder struct {
	src      rand.Source
	networks []*Network
}

// New returns a new Builder whose weights are drawn from a source
// seeded with seed
func New(seed uint64) *Builder {
	return &Builder{src: rand.NewSource(seed)}
}

// Build constructs a new network on x's graph and returns its output
// node. Layer i of the network has widths[i] units, so the output has
// shape (x.Shape()[0], widths[len(widths)-1]). The activation is
// applied after every layer, including the last; a nil activation
// leaves every layer linear.
func (b *Builder) Build(x *G.Node, widths []int, act Activation) (*G.Node,
	error) {
	net, err := b.NewNetwork(x, widths, act)
	if err != nil {
		return nil, fmt.Errorf("build: %v", err)
	}

	return net.Output(), nil
}

// NewNetwork is like Build, but returns the constructed Network
func (b *Builder) NewNetwork(x *G.Node, widths []int,
	act Activation) (*Network, error) {
	if x.Dims() != 2 {
		return nil, fmt.Errorf("newNetwork: expected input to be a matrix "+
			"but got shape %v", x.Shape())
	}
	if len(widths) == 0 {
		return nil, fmt.Errorf("newNetwork: at least one layer is required")
	}

	net := &Network{
		input:  x,
		widths: append([]int(nil), widths...),
		act:    act,
	}

	in := x.Shape()[1]
	h := x
	for i, out := range widths {
		if out <= 0 {
			return nil, fmt.Errorf("newNetwork: layer %d has invalid "+
				"width %d", i, out)
		}

		l := b.newLayer(x.Graph(), in, out, i)
		net.layers = append(net.layers, l)

		var err error
		h, err = l.fwd(h, act)
		if err != nil {
			return nil, fmt.Errorf("newNetwork: layer %d: %v", i, err)
		}
		in = out
	}
	net.output = h
	b.networks = append(b.networks, net)

	return net, nil
}

// Networks returns every network constructed by the receiver, in
// construction order
func (b *Builder) Networks() []*Network {
	return b.networks
}

// Learnables returns the weights and biases of every network
// constructed by the receiver
func (b *Builder) Learnables() G.Nodes {
	var learnables G.Nodes
	for _, net := range b.networks {
		learnables = append(learnables, net.Learnables()...)
	}
	return learnables
}

func (b *Builder) newLayer(g *G.ExprGraph, in, out, index int) *layer {
	bound := math.Sqrt(6.0 / float64(in+out))
	dist := distuv.Uniform{Min: -bound, Max: bound, Src: b.src}

	backing := make([]float64, in*out)
	for i := range backing {
		backing[i] = dist.Rand()
	}
	weightsT := tensor.New(
		tensor.WithShape(in, out),
		tensor.WithBacking(backing),
	)
	weights := G.NewMatrix(
		g,
		tensor.Float64,
		G.WithShape(in, out),
		G.WithValue(weightsT),
		G.WithName(nflow.Unique(fmt.Sprintf("mlp_w%d", index))),
	)

	biasT := tensor.New(
		tensor.WithShape(out),
		tensor.WithBacking(make([]float64, out)),
	)
	bias := G.NewVector(
		g,
		tensor.Float64,
		G.WithShape(out),
		G.WithValue(biasT),
		G.WithName(nflow.Unique(fmt.Sprintf("mlp_b%d", index))),
	)

	return &layer{weights: weights, bias: bias}
}

// Network is a fully connected feed-forward network
type Network struct {
	input  *G.Node
	output *G.Node
	layers []*layer
	widths []int
	act    Activation
}

// Output returns the output node of the network
func (n *Network) Output() *G.Node { return n.output }

// Input returns the input node of the network
func (n *Network) Input() *G.Node { return n.input }

// Widths returns the number of units in each layer
func (n *Network) Widths() []int { return n.widths }

// Learnables returns the weights and biases of the network
func (n *Network) Learnables() G.Nodes {
	learnables := make(G.Nodes, 0, 2*len(n.layers))
	for _, l := range n.layers {
		learnables = append(learnables, l.weights, l.bias)
	}
	return learnables
}

// layer is a single fully connected layer: act(x·W + b)
type layer struct {
	weights *G.Node // (in, out)
	bias    *G.Node // (out)
}

func (l *layer) fwd(x *G.Node, act Activation) (*G.Node, error) {
	h, err := G.Mul(x, l.weights)
	if err != nil {
		return nil, err
	}

	h, err = G.BroadcastAdd(h, l.bias, nil, []byte{0})
	if err != nil {
		return nil, err
	}

	if act == nil {
		return h, nil
	}
	return act(h)
}
