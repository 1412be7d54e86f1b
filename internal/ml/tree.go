package ml

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
)

// Node is one node of a fitted decision tree. Leaves have Feature -1 and
// carry the class distribution of their training samples.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
	Value     []float64 `json:"value,omitempty"`
}

// DecisionTree is a CART classifier over class indices 0..NClasses-1,
// split on Gini impurity.
type DecisionTree struct {
	Nodes []Node `json:"nodes"`

	nClasses        int
	maxDepth        int
	minSamplesSplit int
	maxFeatures     int
}

type treeBuilder struct {
	tree *DecisionTree
	X    [][]float64
	y    []int
	rng  *rand.Rand
}

// fitTree grows a tree on the rows in samples, which may repeat.
func fitTree(X [][]float64, y []int, samples []int, nClasses, maxDepth, minSamplesSplit, maxFeatures int, rng *rand.Rand) *DecisionTree {
	t := &DecisionTree{
		nClasses:        nClasses,
		maxDepth:        maxDepth,
		minSamplesSplit: max(minSamplesSplit, 2),
		maxFeatures:     maxFeatures,
	}
	b := &treeBuilder{tree: t, X: X, y: y, rng: rng}
	b.grow(samples, 0)
	return t
}

func (b *treeBuilder) counts(samples []int) []float64 {
	c := make([]float64, b.tree.nClasses)
	for _, i := range samples {
		c[b.y[i]]++
	}
	return c
}

func gini(counts []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / total
		sum += p * p
	}
	return 1 - sum
}

func (b *treeBuilder) leaf(counts []float64, total float64) int {
	value := make([]float64, len(counts))
	for i, c := range counts {
		value[i] = c / total
	}
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Value: value})
	return len(b.tree.Nodes) - 1
}

// grow appends the subtree for samples and returns its root index.
func (b *treeBuilder) grow(samples []int, depth int) int {
	counts := b.counts(samples)
	total := float64(len(samples))
	impurity := gini(counts, total)

	t := b.tree
	if impurity == 0 || len(samples) < t.minSamplesSplit || (t.maxDepth > 0 && depth >= t.maxDepth) {
		return b.leaf(counts, total)
	}

	feature, threshold, ok := b.bestSplit(samples)
	if !ok {
		return b.leaf(counts, total)
	}

	var left, right []int
	for _, i := range samples {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{Feature: feature, Threshold: threshold})
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	t.Nodes[idx].Left, t.Nodes[idx].Right = l, r
	return idx
}

// bestSplit draws features in random order and evaluates up to maxFeatures
// of them that vary within samples, keeping the split with the lowest
// weighted Gini impurity.
func (b *treeBuilder) bestSplit(samples []int) (feature int, threshold float64, ok bool) {
	width := len(b.X[samples[0]])
	order := b.rng.Perm(width)
	nClasses := b.tree.nClasses
	total := float64(len(samples))

	best := math.Inf(1)
	visited := 0
	sorted := slices.Clone(samples)
	for _, f := range order {
		if visited >= b.tree.maxFeatures {
			break
		}
		slices.SortStableFunc(sorted, func(p, q int) int {
			return cmp.Compare(b.X[p][f], b.X[q][f])
		})
		if b.X[sorted[0]][f] == b.X[sorted[len(sorted)-1]][f] {
			continue
		}
		visited++

		left := make([]float64, nClasses)
		right := b.counts(sorted)
		for n := 0; n < len(sorted)-1; n++ {
			c := b.y[sorted[n]]
			left[c]++
			right[c]--

			v, next := b.X[sorted[n]][f], b.X[sorted[n+1]][f]
			if v == next {
				continue
			}
			nl := float64(n + 1)
			nr := total - nl
			score := (nl*gini(left, nl) + nr*gini(right, nr)) / total
			if score < best {
				best = score
				feature, threshold, ok = f, v+(next-v)/2, true
				if threshold == next {
					threshold = v
				}
			}
		}
	}
	return feature, threshold, ok
}

// proba returns the leaf class distribution for x.
func (t *DecisionTree) proba(x []float64) []float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *DecisionTree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}
