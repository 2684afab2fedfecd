package derived

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/iaros/vintage-crm-core/internal/store"
)

// DefaultClusterCount is the K in K-means when the caller doesn't
// override it.
const DefaultClusterCount = 4

// MaxKMeansIterations caps the K-means refinement loop.
const MaxKMeansIterations = 20

type point struct {
	clientCode string
	features   [3]float64 // min-max normalized R, F, M
}

// RecomputeClusters assigns every client with complete RFM metrics to a
// cluster label "cN" via seeded K-means over min-max normalized
// (R, F, M) features. Clients missing any of R/F/M are left unclustered.
func RecomputeClusters(ctx context.Context, s store.Store, tenantID int64, seed int64, k int) error {
	if k <= 0 {
		k = DefaultClusterCount
	}
	clients, err := s.GetClients(ctx, tenantID, store.ClientFilter{})
	if err != nil {
		return err
	}

	var rVals, fVals, mVals []float64
	var codes []string
	for _, c := range clients {
		if c.Recency == nil || c.Frequency == nil || c.Monetary == nil {
			continue
		}
		rVals = append(rVals, *c.Recency)
		fVals = append(fVals, *c.Frequency)
		mVals = append(mVals, *c.Monetary)
		codes = append(codes, c.ClientCode)
	}
	if len(codes) == 0 {
		return nil
	}
	if k > len(codes) {
		k = len(codes)
	}

	rMin, rMax := minMax(rVals)
	fMin, fMax := minMax(fVals)
	mMin, mMax := minMax(mVals)

	points := make([]point, len(codes))
	for i := range codes {
		points[i] = point{
			clientCode: codes[i],
			features: [3]float64{
				normalize(rVals[i], rMin, rMax),
				normalize(fVals[i], fMin, fMax),
				normalize(mVals[i], mMin, mMax),
			},
		}
	}

	rng := rand.New(rand.NewSource(seed))
	centers := initCenters(points, k, rng)
	assignments := make([]int, len(points))

	for iter := 0; iter < MaxKMeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCenter(p.features, centers)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		newCenters := recomputeCenters(points, assignments, k)
		for ci, c := range newCenters {
			if isZeroCenter(c) {
				newCenters[ci] = points[rng.Intn(len(points))].features
			}
		}
		centers = newCenters

		if !changed && iter > 0 {
			break
		}
	}

	for i, p := range points {
		label := fmt.Sprintf("c%d", assignments[i])
		c, err := s.GetClientByCode(ctx, tenantID, p.clientCode)
		if err != nil {
			return err
		}
		c.Cluster = label
		if err := s.UpdateClientDerived(ctx, tenantID, c); err != nil {
			return err
		}
	}
	return nil
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 1
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}

func initCenters(points []point, k int, rng *rand.Rand) [][3]float64 {
	centers := make([][3]float64, k)
	perm := rng.Perm(len(points))
	for i := 0; i < k; i++ {
		centers[i] = points[perm[i]].features
	}
	return centers
}

func nearestCenter(f [3]float64, centers [][3]float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, c := range centers {
		d := euclidean(f, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func euclidean(a, b [3]float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func recomputeCenters(points []point, assignments []int, k int) [][3]float64 {
	sums := make([][3]float64, k)
	counts := make([]int, k)
	for i, p := range points {
		cl := assignments[i]
		for d := 0; d < 3; d++ {
			sums[cl][d] += p.features[d]
		}
		counts[cl]++
	}
	centers := make([][3]float64, k)
	for i := 0; i < k; i++ {
		if counts[i] == 0 {
			continue
		}
		for d := 0; d < 3; d++ {
			centers[i][d] = sums[i][d] / float64(counts[i])
		}
	}
	return centers
}

func isZeroCenter(c [3]float64) bool {
	return c[0] == 0 && c[1] == 0 && c[2] == 0
}
