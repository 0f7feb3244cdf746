package model

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

const leaf = -1

// Node is one node of a decision tree. Leaves have Feature == -1 and carry
// weighted class counts.
type Node struct {
	Feature   int       `msgpack:"f"`
	Threshold float64   `msgpack:"t"`
	Left      int       `msgpack:"l"`
	Right     int       `msgpack:"r"`
	Counts    []float64 `msgpack:"c,omitempty"`
}

// Tree is a flat list of nodes rooted at index 0.
type Tree struct {
	Nodes []Node `msgpack:"nodes"`
}

// ForestParams holds the fitted trees.
type ForestParams struct {
	Trees []Tree `msgpack:"trees"`
}

func (p *ForestParams) clone() *ForestParams {
	out := &ForestParams{Trees: make([]Tree, len(p.Trees))}
	for t, tree := range p.Trees {
		nodes := make([]Node, len(tree.Nodes))
		for i, n := range tree.Nodes {
			nodes[i] = n
			if n.Counts != nil {
				nodes[i].Counts = append([]float64(nil), n.Counts...)
			}
		}
		out.Trees[t] = Tree{Nodes: nodes}
	}
	return out
}

// check validates every tree against dim. Children must come after their
// parent, which is how grow lays trees out and what keeps route finite.
func (p *ForestParams) check(dim int) error {
	for t, tree := range p.Trees {
		n := len(tree.Nodes)
		if n == 0 {
			return fmt.Errorf("%w: tree %d has no nodes", ErrUntrained, t)
		}
		for i, node := range tree.Nodes {
			if node.Feature == leaf {
				if len(node.Counts) != NumClasses {
					return fmt.Errorf("%w: tree %d leaf %d has %d class counts", ErrDimensionMismatch, t, i, len(node.Counts))
				}
				continue
			}
			if node.Feature < 0 || node.Feature >= dim {
				return fmt.Errorf("%w: tree %d node %d splits on feature %d of %d", ErrDimensionMismatch, t, i, node.Feature, dim)
			}
			if node.Left <= i || node.Left >= n || node.Right <= i || node.Right >= n {
				return fmt.Errorf("%w: tree %d node %d has children %d and %d", ErrUntrained, t, i, node.Left, node.Right)
			}
		}
	}
	return nil
}

// route returns the index of the leaf x falls into.
func (t *Tree) route(x []float64) int {
	i := 0
	for t.Nodes[i].Feature != leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Forest is a bagged ensemble of gini decision trees.
type Forest struct {
	opts    Options
	dim     int
	params  *ForestParams
	updates int
}

// Kind implements Classifier.
func (f *Forest) Kind() string { return KindForest }

// Dim implements Classifier.
func (f *Forest) Dim() int { return f.dim }

// Fit grows Trees trees, each on a bootstrap sample drawn with a generator
// seeded from Seed and the tree index, so fitting is deterministic.
func (f *Forest) Fit(samples []Sample) error {
	dim, err := checkSamples(samples)
	if err != nil {
		return err
	}
	weights := ClassWeights(samples)
	mtry := max(1, int(math.Sqrt(float64(dim))))
	params := &ForestParams{Trees: make([]Tree, f.opts.Trees)}
	for t := range params.Trees {
		rng := rand.New(rand.NewPCG(f.opts.Seed, uint64(t)))
		idx := make([]int, len(samples))
		for i := range idx {
			idx[i] = rng.IntN(len(samples))
		}
		g := grower{samples: samples, weights: weights, mtry: mtry, opts: f.opts, rng: rng}
		g.grow(idx, 0)
		params.Trees[t] = Tree{Nodes: g.nodes}
	}
	f.dim = dim
	f.params = params
	f.updates = 0
	return nil
}

// Scores returns the mean leaf class distribution over all trees.
func (f *Forest) Scores(x []float64) ([]float64, error) {
	if err := checkInput(f.dim, x); err != nil {
		return nil, err
	}
	out := make([]float64, NumClasses)
	for t := range f.params.Trees {
		tree := &f.params.Trees[t]
		counts := tree.Nodes[tree.route(x)].Counts
		var total float64
		for _, c := range counts {
			total += c
		}
		if total == 0 {
			continue
		}
		for k, c := range counts {
			out[k] += c / total
		}
	}
	for k := range out {
		out[k] /= float64(len(f.params.Trees))
	}
	return out, nil
}

// Predict implements Classifier.
func (f *Forest) Predict(x []float64) (Label, error) {
	scores, err := f.Scores(x)
	if err != nil {
		return 0, err
	}
	return argmax(scores), nil
}

// Update adds a Poisson(1) weighted count for y to the leaf of every tree.
// Leaf shares of y can only grow, so the score of y never decreases.
func (f *Forest) Update(x []float64, y Label) error {
	if !y.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLabel, int(y))
	}
	if err := checkInput(f.dim, x); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(f.opts.Seed, 1<<32+uint64(f.updates)))
	for t := range f.params.Trees {
		tree := &f.params.Trees[t]
		k := poisson(rng)
		if k == 0 {
			continue
		}
		tree.Nodes[tree.route(x)].Counts[y] += float64(k)
	}
	f.updates++
	return nil
}

// Clone implements Classifier.
func (f *Forest) Clone() Classifier {
	c := &Forest{opts: f.opts, dim: f.dim, updates: f.updates}
	if f.params != nil {
		c.params = f.params.clone()
	}
	return c
}

// State implements Classifier.
func (f *Forest) State() State {
	s := State{Kind: KindForest, Dim: f.dim, Options: f.opts, Updates: f.updates}
	if f.params != nil {
		s.Forest = f.params.clone()
	}
	return s
}

// poisson draws from Poisson(1) with Knuth's method.
func poisson(rng *rand.Rand) int {
	limit := math.Exp(-1)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}

type grower struct {
	samples []Sample
	weights [NumClasses]float64
	mtry    int
	opts    Options
	rng     *rand.Rand
	nodes   []Node
}

func (g *grower) counts(idx []int) []float64 {
	c := make([]float64, NumClasses)
	for _, i := range idx {
		y := g.samples[i].Y
		c[y] += g.weights[y]
	}
	return c
}

func gini(c []float64) float64 {
	var total, sq float64
	for _, v := range c {
		total += v
		sq += v * v
	}
	if total == 0 {
		return 0
	}
	return 1 - sq/(total*total)
}

// grow appends the subtree for idx and returns its node index.
func (g *grower) grow(idx []int, depth int) int {
	self := len(g.nodes)
	counts := g.counts(idx)
	g.nodes = append(g.nodes, Node{Feature: leaf, Counts: counts})

	parent := gini(counts)
	if depth >= g.opts.MaxDepth || parent == 0 || len(idx) < 2*g.opts.MinLeaf {
		return self
	}
	feature, threshold, ok := g.bestSplit(idx, parent)
	if !ok {
		return self
	}
	var left, right []int
	for _, i := range idx {
		if g.samples[i].X[feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[self] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return self
}

// bestSplit scans up to mtry non-constant features in random order and
// returns the split with the largest weighted gini decrease.
func (g *grower) bestSplit(idx []int, parent float64) (int, float64, bool) {
	dim := len(g.samples[0].X)
	order := g.rng.Perm(dim)
	total := g.counts(idx)
	var totalW float64
	for _, c := range total {
		totalW += c
	}

	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	sorted := append([]int(nil), idx...)
	tried := 0
	for _, feat := range order {
		if tried >= g.mtry {
			break
		}
		sort.SliceStable(sorted, func(a, b int) bool {
			return g.samples[sorted[a]].X[feat] < g.samples[sorted[b]].X[feat]
		})
		lo := g.samples[sorted[0]].X[feat]
		hi := g.samples[sorted[len(sorted)-1]].X[feat]
		if lo == hi {
			continue
		}
		tried++

		left := make([]float64, NumClasses)
		var leftW float64
		for pos := 0; pos < len(sorted)-1; pos++ {
			s := g.samples[sorted[pos]]
			left[s.Y] += g.weights[s.Y]
			leftW += g.weights[s.Y]
			cur, next := s.X[feat], g.samples[sorted[pos+1]].X[feat]
			if cur == next {
				continue
			}
			if pos+1 < g.opts.MinLeaf || len(sorted)-pos-1 < g.opts.MinLeaf {
				continue
			}
			right := make([]float64, NumClasses)
			for k := range right {
				right[k] = total[k] - left[k]
			}
			rightW := totalW - leftW
			gain := parent - (leftW/totalW)*gini(left) - (rightW/totalW)*gini(right)
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, feat, (cur+next)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}
