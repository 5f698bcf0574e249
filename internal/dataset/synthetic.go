package dataset

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// BlobConfig shapes a Gaussian blob dataset: Classes isotropic clusters in
// Features dimensions with PerClass points each. Cluster centers are drawn
// uniformly from [-10, 10] per coordinate.
type BlobConfig struct {
	Classes  int
	Features int
	PerClass int
	Spread   float64
}

// Blobs generates a reproducible Gaussian blob dataset.
func Blobs(cfg BlobConfig, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, ^seed))
	center := distuv.Uniform{Min: -10, Max: 10}

	n := cfg.Classes * cfg.PerClass
	x := mat.NewDense(n, cfg.Features, nil)
	y := make([]int, n)
	row := 0
	for c := range cfg.Classes {
		mu := make([]float64, cfg.Features)
		for i := range mu {
			mu[i] = center.Quantile(rng.Float64())
		}
		for range cfg.PerClass {
			dst := x.RawRowView(row)
			for i := range dst {
				dst[i] = mu[i] + cfg.Spread*rng.NormFloat64()
			}
			y[row] = c
			row++
		}
	}
	return &Dataset{Name: "blobs", X: x, Y: y}
}
