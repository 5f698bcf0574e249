package dknn

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SubsetSampler relaxes a k-hot vector directly with k rounds of soft
// sampling without replacement. Each round takes a softmax over the current
// logits as a soft pick, adds it to the running membership, and then deflates
// every candidate's weight by one minus its pick. A candidate picked outright
// drops to zero weight. The summed picks are then capped at one per candidate
// with the excess spread over the rest, so membership stays in [0,1] and sums
// to k. Cost is O(k·n).
//
// Stochasticity comes from Gumbel noise added to the scores before Relax; on
// perturbed scores the rounds approach Gumbel top-k sampling as τ → 0.
type SubsetSampler struct {
	K    int
	Tau  float64
	Hard bool
}

func (s *SubsetSampler) Algorithm() Algorithm { return Subsets }

func (s *SubsetSampler) Relax(scores []float64) *Trace {
	n := len(scores)
	z := slices.Clone(scores)

	picks := make([][]float64, s.K)
	masks := make([][]float64, s.K)
	soft := make([]float64, n)
	logits := make([]float64, n)
	prev := make([]float64, n)
	for t := range s.K {
		mask := make([]float64, n)
		for j := range z {
			mask[j] = 1 - prev[j]
			z[j] += math.Log(mask[j])
			logits[j] = z[j] / s.Tau
		}
		masks[t] = mask
		picks[t] = softmax(nil, logits)
		floats.Add(soft, picks[t])
		prev = picks[t]
	}

	membership, capped := capMembership(soft, s.K)
	if s.Hard {
		membership = topKIndicator(soft, s.K)
	}

	return &Trace{
		Membership: membership,
		backward: func(grad []float64) []float64 {
			return s.backward(picks, masks, capBackward(soft, capped, s.K, grad))
		},
	}
}

// capMembership clips entries of soft above one and rescales the uncapped
// entries so the total stays k. Rescaling can lift another entry past one, so
// it repeats until none is left over.
func capMembership(soft []float64, k int) ([]float64, []bool) {
	m := slices.Clone(soft)
	capped := make([]bool, len(soft))
	for {
		over := false
		for i, v := range m {
			if !capped[i] && v > 1 {
				capped[i] = true
				over = true
			}
		}
		if !over {
			return m, capped
		}
		room, free := capRoom(soft, capped, k)
		for i := range m {
			switch {
			case capped[i]:
				m[i] = 1
			case free > 0:
				m[i] = soft[i] * room / free
			}
		}
	}
}

// capBackward maps the gradient of the capped membership back to the summed
// picks. Capped entries are constant and pass nothing.
func capBackward(soft []float64, capped []bool, k int, grad []float64) []float64 {
	if !slices.Contains(capped, true) {
		return grad
	}
	room, free := capRoom(soft, capped, k)
	out := make([]float64, len(grad))
	if free == 0 {
		return out
	}
	var dot float64
	for i, c := range capped {
		if !c {
			dot += grad[i] * soft[i] * room / free
		}
	}
	for i, c := range capped {
		if !c {
			out[i] = (grad[i]*room - dot) / free
		}
	}
	return out
}

// capRoom returns the mass left for uncapped entries and their summed picks.
func capRoom(soft []float64, capped []bool, k int) (room, free float64) {
	room = float64(k)
	for i, c := range capped {
		if c {
			room--
			continue
		}
		free += soft[i]
	}
	return room, free
}

// backward unrolls the rounds in reverse. z_t = z_{t-1} + log(mask_t) and
// mask_t = 1 - p_{t-1}, so the gradient of z_t flows both to z_{t-1} unchanged
// and to p_{t-1} through the mask. A candidate removed outright has a zero
// mask and passes nothing back to its pick.
func (s *SubsetSampler) backward(picks, masks [][]float64, grad []float64) []float64 {
	n := len(grad)
	gz := make([]float64, n)
	gp := make([]float64, n)
	gl := make([]float64, n)
	carry := make([]float64, n)
	for t := s.K - 1; t >= 0; t-- {
		for j := range gp {
			gp[j] = grad[j] + carry[j]
		}
		softmaxBackward(gl, picks[t], gp)
		for j := range gz {
			gz[j] += gl[j] / s.Tau
		}
		for j := range carry {
			carry[j] = 0
			if t > 0 && masks[t][j] > 0 {
				carry[j] = -gz[j] / masks[t][j]
			}
		}
	}
	return gz
}
