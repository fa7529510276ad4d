package learning

import (
	"math/rand"
	"sort"
)

// TreeConfig bounds the growth of a regression tree. MaxDepth <= 0 means unlimited.
type TreeConfig struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
}

// Node is a tree node. Leaves have Left == -1 and predict Value.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Samples   int
}

// Tree is a CART regression tree stored as a flat node slice, root first.
type Tree struct {
	Nodes []Node
}

type treeBuilder struct {
	cfg TreeConfig
	x   [][]float64
	y   []float64
	// importance accumulates the weighted squared-error decrease per feature.
	importance []float64
	nodes      []Node
	buf        []int
}

// buildTree grows a tree on the rows in idx. idx is reordered in place.
func buildTree(cfg TreeConfig, x [][]float64, y []float64, idx []int, importance []float64) Tree {
	b := &treeBuilder{cfg: cfg, x: x, y: y, importance: importance, buf: make([]int, len(idx))}
	b.grow(idx, 0)
	return Tree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Left: -1, Right: -1, Value: sum / n, Samples: len(idx)})

	sse := sumSq - sum*sum/n
	if b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth ||
		len(idx) < b.cfg.MinSamplesSplit || len(idx) < 2*b.cfg.MinSamplesLeaf || sse <= 1e-12 {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, sum, sse)
	if !ok {
		return id
	}

	// partition in place: rows going left first
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if b.x[idx[lo]][feature] <= threshold {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}
	left, right := idx[:lo], idx[lo:]

	childSSE := func(part []int) float64 {
		var s, q float64
		for _, i := range part {
			s += b.y[i]
			q += b.y[i] * b.y[i]
		}
		return q - s*s/float64(len(part))
	}
	b.importance[feature] += sse - childSSE(left) - childSSE(right)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Feature = feature
	b.nodes[id].Threshold = threshold
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

// bestSplit scans every feature for the threshold with the largest
// squared-error decrease that leaves at least MinSamplesLeaf rows per side.
func (b *treeBuilder) bestSplit(idx []int, total, sse float64) (int, float64, bool) {
	n := len(idx)
	minLeaf := max(b.cfg.MinSamplesLeaf, 1)
	bestGain := 0.0
	bestFeature, bestThreshold := -1, 0.0
	buf := b.buf[:n]
	nf := len(b.x[idx[0]])
	for f := 0; f < nf; f++ {
		copy(buf, idx)
		sort.Slice(buf, func(i, j int) bool { return b.x[buf[i]][f] < b.x[buf[j]][f] })
		if b.x[buf[0]][f] == b.x[buf[n-1]][f] {
			continue
		}
		var left float64
		for i := 0; i < n-1; i++ {
			left += b.y[buf[i]]
			nl := i + 1
			if nl < minLeaf {
				continue
			}
			if n-nl < minLeaf {
				break
			}
			v, next := b.x[buf[i]][f], b.x[buf[i+1]][f]
			if v == next {
				continue
			}
			right := total - left
			// sse(parent) - sse(children) = sl²/nl + sr²/nr - total²/n
			gain := left*left/float64(nl) + right*right/float64(n-nl) - total*total/float64(n)
			if gain > bestGain+1e-12*sse {
				bestGain = gain
				bestFeature = f
				bestThreshold = v + (next-v)/2
				if bestThreshold == next {
					bestThreshold = v
				}
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

// Predict walks the tree for one row.
func (t Tree) Predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left < 0 {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the depth of the tree; a single leaf has depth 0.
func (t Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Left < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// bootstrap draws n row indices with replacement.
func bootstrap(n int, rng *rand.Rand) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}
