package store

import (
	"math"
	"math/rand/v2"
	"sort"
)

const (
	kmeansIterations = 10
	trainingPerList  = 256
	minLists         = 2
	defaultIVFSeed   = 0x5eed
	defaultIVFLists  = 128
	defaultIVFProbes = 16
)

// ivfIndex partitions ids by their nearest centroid. A nil or single-list
// index degenerates to a flat scan.
type ivfIndex struct {
	centroids [][]float32
	lists     [][]int64
	assign    map[int64]int
}

// listCount caps nlist so every partition holds a few points on average.
func listCount(nlist, n int) int {
	if nlist <= 0 {
		nlist = defaultIVFLists
	}
	limit := int(math.Sqrt(float64(n)))
	if nlist > limit {
		nlist = limit
	}
	if nlist < minLists {
		return 0
	}
	return nlist
}

// trainIVF runs k-means over a deterministic sample of the vectors and
// assigns every id to its nearest centroid.
func trainIVF(ids []int64, vectors map[int64][]float32, nlist int, dist distanceFunc, seed uint64) *ivfIndex {
	k := listCount(nlist, len(ids))
	if k == 0 {
		return nil
	}

	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	rng := rand.New(rand.NewPCG(seed, uint64(len(sorted))))

	sample := sorted
	if limit := k * trainingPerList; len(sample) > limit {
		perm := rng.Perm(len(sorted))[:limit]
		sort.Ints(perm)
		sample = make([]int64, limit)
		for i, p := range perm {
			sample[i] = sorted[p]
		}
	}

	points := make([][]float32, len(sample))
	for i, id := range sample {
		points[i] = vectors[id]
	}

	centroids := seedCentroids(points, k, dist, rng)
	labels := make([]int, len(points))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, p := range points {
			if c := nearestCentroid(centroids, p, dist); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		centroids = recomputeCentroids(points, labels, centroids)
	}

	idx := &ivfIndex{
		centroids: centroids,
		lists:     make([][]int64, len(centroids)),
		assign:    make(map[int64]int, len(ids)),
	}
	for _, id := range sorted {
		idx.add(id, vectors[id], dist)
	}
	return idx
}

// seedCentroids picks initial centroids with k-means++.
func seedCentroids(points [][]float32, k int, dist distanceFunc, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	centroids = append(centroids, cloneVector(points[rng.IntN(len(points))]))

	weights := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			d := dist(p, centroids[nearestCentroid(centroids, p, dist)])
			weights[i] = d * d
			total += weights[i]
		}
		if total == 0 {
			break
		}
		target := rng.Float64() * total
		chosen := len(points) - 1
		for i, w := range weights {
			target -= w
			if target <= 0 {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneVector(points[chosen]))
	}
	return centroids
}

func recomputeCentroids(points [][]float32, labels []int, prev [][]float32) [][]float32 {
	dim := len(prev[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for i := range sums {
		sums[i] = make([]float64, dim)
	}
	for i, p := range points {
		c := labels[i]
		counts[c]++
		for j, v := range p {
			sums[c][j] += float64(v)
		}
	}

	next := make([][]float32, len(prev))
	for c := range prev {
		if counts[c] == 0 {
			// Empty cluster keeps its previous position.
			next[c] = prev[c]
			continue
		}
		centroid := make([]float32, dim)
		for j := range centroid {
			centroid[j] = float32(sums[c][j] / float64(counts[c]))
		}
		next[c] = centroid
	}
	return next
}

func nearestCentroid(centroids [][]float32, v []float32, dist distanceFunc) int {
	best, bestDist := 0, math.Inf(1)
	for i, c := range centroids {
		if d := dist(v, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// probeOrder returns list indexes sorted by centroid distance to the query.
func (idx *ivfIndex) probeOrder(query []float32, dist distanceFunc) []int {
	type scored struct {
		list int
		d    float64
	}
	order := make([]scored, len(idx.centroids))
	for i, c := range idx.centroids {
		order[i] = scored{list: i, d: dist(query, c)}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].d != order[j].d {
			return order[i].d < order[j].d
		}
		return order[i].list < order[j].list
	})
	lists := make([]int, len(order))
	for i, s := range order {
		lists[i] = s.list
	}
	return lists
}

// clone copies the list structure so a new snapshot can be mutated without
// affecting readers of the old one. Centroids are shared and never written.
func (idx *ivfIndex) clone() *ivfIndex {
	if idx == nil {
		return nil
	}
	out := &ivfIndex{
		centroids: idx.centroids,
		lists:     make([][]int64, len(idx.lists)),
		assign:    make(map[int64]int, len(idx.assign)),
	}
	for i, l := range idx.lists {
		out.lists[i] = append([]int64(nil), l...)
	}
	for id, l := range idx.assign {
		out.assign[id] = l
	}
	return out
}

func (idx *ivfIndex) add(id int64, vector []float32, dist distanceFunc) {
	if _, ok := idx.assign[id]; ok {
		idx.remove(id)
	}
	c := nearestCentroid(idx.centroids, vector, dist)
	idx.lists[c] = append(idx.lists[c], id)
	idx.assign[id] = c
}

func (idx *ivfIndex) remove(id int64) {
	c, ok := idx.assign[id]
	if !ok {
		return
	}
	list := idx.lists[c]
	for i, other := range list {
		if other == id {
			idx.lists[c] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	delete(idx.assign, id)
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}
