package model

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tinycharlm/pkg/charlm"
)

// graph is the full-batch training graph for one dataset size.
type graph struct {
	g    *gorgonia.ExprGraph
	x, y *gorgonia.Node

	embed, w1, b1, w2, b2 *gorgonia.Node

	prob, cost *gorgonia.Node
}

func (n *graph) learnables() gorgonia.Nodes {
	return gorgonia.Nodes{n.embed, n.w1, n.b1, n.w2, n.b2}
}

func (m *TinyLM) buildGraph(batch int) (*graph, error) {
	c := m.cfg
	g := gorgonia.NewGraph()
	n := &graph{g: g}

	// x holds one one-hot row per context position, y one per target.
	n.x = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch*c.SequenceLength, c.VocabSize), gorgonia.WithName("x"))
	n.y = gorgonia.NewMatrix(g, tensor.Float64, gorgonia.WithShape(batch, c.VocabSize), gorgonia.WithName("y"))

	weight := func(name string, v *tensor.Dense) *gorgonia.Node {
		return gorgonia.NewMatrix(g, tensor.Float64,
			gorgonia.WithShape(v.Shape()...),
			gorgonia.WithName(name),
			gorgonia.WithValue(v),
		)
	}
	n.embed = weight("embed", m.params.Embed)
	n.w1 = weight("w1", m.params.W1)
	n.b1 = weight("b1", m.params.B1)
	n.w2 = weight("w2", m.params.W2)
	n.b2 = weight("b2", m.params.B2)

	emb, err := gorgonia.Mul(n.x, n.embed)
	if err != nil {
		return nil, errors.Wrap(err, "embedding lookup")
	}
	flat, err := gorgonia.Reshape(emb, tensor.Shape{batch, c.SequenceLength * c.EmbeddingSize})
	if err != nil {
		return nil, errors.Wrap(err, "flatten")
	}
	if c.DropProb > 0 {
		if flat, err = gorgonia.Dropout(flat, c.DropProb); err != nil {
			return nil, errors.Wrap(err, "dropout")
		}
	}

	// First layer: x * W1 + b1
	h, err := gorgonia.Mul(flat, n.w1)
	if err != nil {
		return nil, errors.Wrap(err, "hidden layer")
	}
	if h, err = gorgonia.BroadcastAdd(h, n.b1, nil, []byte{0}); err != nil {
		return nil, errors.Wrap(err, "hidden bias")
	}
	if h, err = gorgonia.Rectify(h); err != nil {
		return nil, errors.Wrap(err, "relu")
	}

	// Output layer: h * W2 + b2
	logits, err := gorgonia.Mul(h, n.w2)
	if err != nil {
		return nil, errors.Wrap(err, "output layer")
	}
	if logits, err = gorgonia.BroadcastAdd(logits, n.b2, nil, []byte{0}); err != nil {
		return nil, errors.Wrap(err, "output bias")
	}

	// Row-wise softmax from primitives: SoftMax over a matrix only gets a
	// gradient for its first row.
	ex, err := gorgonia.Exp(logits)
	if err != nil {
		return nil, errors.Wrap(err, "exp")
	}
	den, err := gorgonia.Sum(ex, 1)
	if err != nil {
		return nil, errors.Wrap(err, "softmax denominator")
	}
	if n.prob, err = gorgonia.BroadcastHadamardDiv(ex, den, nil, []byte{1}); err != nil {
		return nil, errors.Wrap(err, "softmax")
	}
	logDen, err := gorgonia.Log(den)
	if err != nil {
		return nil, errors.Wrap(err, "log denominator")
	}
	logp, err := gorgonia.BroadcastSub(logits, logDen, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "log softmax")
	}

	// Sparse categorical cross-entropy against the one-hot targets.
	picked, err := gorgonia.HadamardProd(logp, n.y)
	if err != nil {
		return nil, errors.Wrap(err, "select targets")
	}
	rows, err := gorgonia.Sum(picked, 1)
	if err != nil {
		return nil, errors.Wrap(err, "row sum")
	}
	mean, err := gorgonia.Mean(rows)
	if err != nil {
		return nil, errors.Wrap(err, "mean")
	}
	if n.cost, err = gorgonia.Neg(mean); err != nil {
		return nil, errors.Wrap(err, "cost")
	}
	return n, nil
}

// oneHot lays the dataset out as the x and y inputs of buildGraph.
func oneHot(ds charlm.Dataset, length, vocab int) (*tensor.Dense, *tensor.Dense, []int) {
	xs := make([]float64, len(ds)*length*vocab)
	ys := make([]float64, len(ds)*vocab)
	targets := make([]int, len(ds))
	for i, p := range ds {
		for pos, id := range p.Context {
			xs[(i*length+pos)*vocab+id] = 1
		}
		ys[i*vocab+p.Target] = 1
		targets[i] = p.Target
	}
	x := tensor.New(tensor.WithShape(len(ds)*length, vocab), tensor.WithBacking(xs))
	y := tensor.New(tensor.WithShape(len(ds), vocab), tensor.WithBacking(ys))
	return x, y, targets
}

func (m *TinyLM) checkDataset(ds charlm.Dataset) error {
	if len(ds) == 0 {
		return errors.New("empty dataset")
	}
	for i, p := range ds {
		if len(p.Context) != m.cfg.SequenceLength {
			return errors.Errorf("pair %d: context length %d, model expects %d", i, len(p.Context), m.cfg.SequenceLength)
		}
		if p.Target < 0 || p.Target >= m.cfg.VocabSize {
			return errors.Errorf("pair %d: target %d outside vocabulary of %d", i, p.Target, m.cfg.VocabSize)
		}
		for _, id := range p.Context {
			if id < 0 || id >= m.cfg.VocabSize {
				return errors.Errorf("pair %d: index %d outside vocabulary of %d", i, id, m.cfg.VocabSize)
			}
		}
	}
	return nil
}

// Fit trains on the whole dataset as one batch per epoch with Adam. ctx and
// opts.Stop are checked between epochs only; the weights keep every completed
// epoch.
func (m *TinyLM) Fit(ctx context.Context, ds charlm.Dataset, opts charlm.FitOptions) error {
	if err := m.checkDataset(ds); err != nil {
		return err
	}
	n, err := m.buildGraph(len(ds))
	if err != nil {
		return errors.Wrap(err, "build graph")
	}
	learnables := n.learnables()
	if _, err := gorgonia.Grad(n.cost, learnables...); err != nil {
		return errors.Wrap(err, "gradients")
	}

	var costVal, probVal gorgonia.Value
	gorgonia.Read(n.cost, &costVal)
	gorgonia.Read(n.prob, &probVal)

	x, y, targets := oneHot(ds, m.cfg.SequenceLength, m.cfg.VocabSize)
	if err := gorgonia.Let(n.x, x); err != nil {
		return errors.Wrap(err, "setting input failed")
	}
	if err := gorgonia.Let(n.y, y); err != nil {
		return errors.Wrap(err, "setting target failed")
	}

	vm := gorgonia.NewTapeMachine(n.g, gorgonia.BindDualValues(learnables...))
	defer vm.Close()
	solver := gorgonia.NewAdamSolver(gorgonia.WithLearnRate(m.cfg.LearnRate))

	for epoch := 0; epoch < opts.EpochLimit; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.Stop.IsSet() {
			break
		}
		if err := vm.RunAll(); err != nil {
			return errors.Wrapf(err, "vm.RunAll failed at epoch %d", epoch)
		}
		if err := solver.Step(gorgonia.NodesToValueGrads(learnables)); err != nil {
			return errors.Wrapf(err, "solver step failed at epoch %d", epoch)
		}
		loss, ok := costVal.Data().(float64)
		if !ok || math.IsNaN(loss) || math.IsInf(loss, 0) {
			return errors.Errorf("loss diverged at epoch %d", epoch)
		}
		metrics := charlm.Metrics{
			Loss:     loss,
			Accuracy: accuracy(probVal.Data().([]float64), targets, m.cfg.VocabSize),
		}
		vm.Reset()
		m.keep(n)

		if opts.OnEpochEnd != nil {
			opts.OnEpochEnd(epoch, metrics)
		}
		if opts.TargetAccuracy > 0 && metrics.Accuracy >= opts.TargetAccuracy {
			break
		}
	}
	return nil
}

// keep copies the trained node values back into the model's params.
func (m *TinyLM) keep(n *graph) {
	clone := func(node *gorgonia.Node) *tensor.Dense {
		return node.Value().(*tensor.Dense).Clone().(*tensor.Dense)
	}
	m.params = &Params{
		Embed: clone(n.embed),
		W1:    clone(n.w1),
		B1:    clone(n.b1),
		W2:    clone(n.w2),
		B2:    clone(n.b2),
	}
}

// accuracy is the share of rows whose highest probability is the target.
func accuracy(prob []float64, targets []int, vocab int) float64 {
	if len(targets) == 0 {
		return 0
	}
	hits := 0
	for i, target := range targets {
		if floats.MaxIdx(prob[i*vocab:(i+1)*vocab]) == target {
			hits++
		}
	}
	return float64(hits) / float64(len(targets))
}
