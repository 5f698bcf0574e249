package dknn

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Classifier is the exact, non-differentiable k-NN classifier used for
// evaluation.
type Classifier struct {
	k     int
	score ScoreFunc
}

func NewClassifier(k int, score ScoreFunc) (*Classifier, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}
	if _, err := ParseScoreFunc(string(score)); err != nil {
		return nil, err
	}
	return &Classifier{k: k, score: score}, nil
}

func (c *Classifier) K() int { return c.k }

// Nearest returns the indices of the k smallest entries of dist in ascending
// order, skipping index exclude (pass -1 to keep every candidate). Equal
// distances keep index order.
func (c *Classifier) Nearest(dist []float64, exclude int) ([]int, error) {
	avail := len(dist)
	if exclude >= 0 && exclude < len(dist) {
		avail--
	}
	if c.k > avail {
		return nil, fmt.Errorf("%w: k=%d with %d candidates", ErrInvalidK, c.k, avail)
	}

	idx := make([]int, 0, len(dist))
	for j := range dist {
		if j != exclude {
			idx = append(idx, j)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dist[idx[a]] < dist[idx[b]]
	})
	return idx[:c.k], nil
}

// PredictFromDistances votes over the labels of the k nearest candidates.
func (c *Classifier) PredictFromDistances(dist []float64, labels []int, exclude int) (int, error) {
	if len(labels) != len(dist) {
		return 0, fmt.Errorf("%w: %d labels for %d candidates", ErrLabelCount, len(labels), len(dist))
	}
	nearest, err := c.Nearest(dist, exclude)
	if err != nil {
		return 0, err
	}
	votes := make([]int, len(nearest))
	for i, j := range nearest {
		votes[i] = labels[j]
	}
	return Majority(votes), nil
}

// Predict classifies a single query against candidates.
func (c *Classifier) Predict(query []float64, candidates *mat.Dense, labels []int) (int, error) {
	preds, err := c.PredictBatch(mat.NewDense(1, len(query), query), candidates, labels)
	if err != nil {
		return 0, err
	}
	return preds[0], nil
}

// PredictBatch classifies every row of queries against candidates.
func (c *Classifier) PredictBatch(queries, candidates *mat.Dense, labels []int) ([]int, error) {
	dist, err := Distances(queries, candidates, c.score)
	if err != nil {
		return nil, err
	}
	return c.PredictDistanceMatrix(dist, labels)
}

// PredictDistanceMatrix classifies every row of a precomputed distance matrix.
func (c *Classifier) PredictDistanceMatrix(dist *mat.Dense, labels []int) ([]int, error) {
	q, n := dist.Dims()
	preds := make([]int, q)
	row := make([]float64, n)
	for i := range q {
		p, err := c.PredictFromDistances(mat.Row(row, i, dist), labels, -1)
		if err != nil {
			return nil, err
		}
		preds[i] = p
	}
	return preds, nil
}

// Majority returns the most frequent label. Ties go to the smallest label so
// the result never depends on input or map iteration order.
func Majority(labels []int) int {
	counts := make(map[int]int, len(labels))
	for _, l := range labels {
		counts[l]++
	}
	best, bestCount := 0, -1
	for l, n := range counts {
		if n > bestCount || (n == bestCount && l < best) {
			best, bestCount = l, n
		}
	}
	return best
}

// Accuracy is the fraction of predictions equal to truth.
func Accuracy(predictions, truth []int) float64 {
	if len(predictions) == 0 {
		return 0
	}
	var hits int
	for i, p := range predictions {
		if p == truth[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(predictions))
}
