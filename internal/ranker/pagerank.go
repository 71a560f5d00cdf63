package ranker

import (
	"math"

	"github.com/rohmanhakim/docs-crawler/internal/docstore"
	"github.com/rohmanhakim/docs-crawler/internal/linkgraph"
)

const (
	convergenceEpsilon = 1e-8
	defaultDamping     = 0.85
	defaultIterations  = 100
)

// PageRank computes link-authority scores over every DocId in ids using
// the edges recorded in snapshot. Initialization is uniform (1/N);
// dangling nodes (zero outbound edges) redistribute their mass uniformly
// across every node each iteration. Iteration stops at iters or once the
// largest per-node delta drops below 1e-8, whichever comes first.
// PageRank returns the scores and the number of iterations actually run.
func PageRank(ids []docstore.DocId, snapshot linkgraph.GraphSnapshot, damping float64, iters int) (map[docstore.DocId]float64, int) {
	n := len(ids)
	if n == 0 {
		return map[docstore.DocId]float64{}, 0
	}
	if damping <= 0 {
		damping = defaultDamping
	}
	if iters <= 0 {
		iters = defaultIterations
	}

	index := make(map[docstore.DocId]int, n)
	for i, id := range ids {
		index[id] = i
	}

	outDegree := make([]int, n)
	for i, id := range ids {
		outDegree[i] = len(snapshot.Outbound[id])
	}

	pr := make([]float64, n)
	uniform := 1.0 / float64(n)
	for i := range pr {
		pr[i] = uniform
	}

	ran := 0
	for iter := 0; iter < iters; iter++ {
		ran++
		var danglingMass float64
		for i := range pr {
			if outDegree[i] == 0 {
				danglingMass += pr[i]
			}
		}

		base := (1-damping)/float64(n) + damping*danglingMass/float64(n)
		next := make([]float64, n)
		for i := range next {
			next[i] = base
		}

		for i, id := range ids {
			if outDegree[i] == 0 {
				continue
			}
			share := damping * pr[i] / float64(outDegree[i])
			for dst := range snapshot.Outbound[id] {
				if j, ok := index[dst]; ok {
					next[j] += share
				}
			}
		}

		var maxDelta float64
		for i := range pr {
			delta := math.Abs(next[i] - pr[i])
			if delta > maxDelta {
				maxDelta = delta
			}
		}
		pr = next
		if maxDelta < convergenceEpsilon {
			break
		}
	}

	out := make(map[docstore.DocId]float64, n)
	for i, id := range ids {
		out[id] = pr[i]
	}
	return out, ran
}
