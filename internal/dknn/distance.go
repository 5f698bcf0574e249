package dknn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Distances returns the queries × candidates matrix of dissimilarities between
// the rows of queries and the rows of candidates.
func Distances(queries, candidates *mat.Dense, score ScoreFunc) (*mat.Dense, error) {
	q, d := queries.Dims()
	n, dc := candidates.Dims()
	if d != dc {
		return nil, fmt.Errorf("%w: queries have %d features, candidates have %d", ErrDimensionMismatch, d, dc)
	}

	out := mat.NewDense(q, n, nil)
	switch score {
	case SquaredEuclidean, "":
		diff := make([]float64, d)
		for i := range q {
			qi := queries.RawRowView(i)
			for j := range n {
				floats.SubTo(diff, qi, candidates.RawRowView(j))
				out.Set(i, j, floats.Dot(diff, diff))
			}
		}
	case NegativeDot:
		out.Mul(queries, candidates.T())
		out.Scale(-1, out)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScoreFunc, score)
	}
	return out, nil
}

// DistancesBackward returns the gradients with respect to queries and
// candidates given grad, the gradient with respect to Distances' output.
func DistancesBackward(queries, candidates, grad *mat.Dense, score ScoreFunc) (gQueries, gCandidates *mat.Dense) {
	q, _ := queries.Dims()
	n, _ := candidates.Dims()

	gQueries = &mat.Dense{}
	gQueries.Mul(grad, candidates)
	gCandidates = &mat.Dense{}
	gCandidates.Mul(grad.T(), queries)

	if score == NegativeDot {
		gQueries.Scale(-1, gQueries)
		gCandidates.Scale(-1, gCandidates)
		return gQueries, gCandidates
	}

	// d_ij = |q_i - c_j|², so ∂/∂q_i = 2 Σ_j g_ij (q_i - c_j) and
	// ∂/∂c_j = 2 Σ_i g_ij (c_j - q_i).
	for i := range q {
		rowSum := floats.Sum(grad.RawRowView(i))
		dst := gQueries.RawRowView(i)
		qi := queries.RawRowView(i)
		for t := range dst {
			dst[t] = 2 * (rowSum*qi[t] - dst[t])
		}
	}
	col := make([]float64, q)
	for j := range n {
		colSum := floats.Sum(mat.Col(col, j, grad))
		dst := gCandidates.RawRowView(j)
		cj := candidates.RawRowView(j)
		for t := range dst {
			dst[t] = 2 * (colSum*cj[t] - dst[t])
		}
	}
	return gQueries, gCandidates
}

// Scores negates distances so that larger means closer, the orientation the
// relaxations rank in.
func Scores(distances *mat.Dense) *mat.Dense {
	var s mat.Dense
	s.Scale(-1, distances)
	return &s
}
