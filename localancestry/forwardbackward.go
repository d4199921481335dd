package localancestry

import (
	"math"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/hwe"
)

// switchRate is the per-base-pair probability of an ancestry switch between
// adjacent markers, capped at 0.5 for very large gaps.
const switchRate = 1e-8

// SwitchProbability returns the ancestry-switch probability across a physical
// gap of d base pairs.
func SwitchProbability(d int) float64 {
	p := float64(d) * switchRate
	if p > 0.5 {
		return 0.5
	}
	if p < 0 {
		return 0
	}

	return p
}

func logOf(x float64) float64 { return hwe.Log(x) }

// Posteriors runs a log-space Forward-Backward pass over position-sorted
// markers and returns per-marker state posteriors. logPrior is used both as
// the initial distribution and as the post-switch distribution: between
// markers i-1 and i the chain stays in place with probability 1-p and falls
// back to the prior with probability p, where p = SwitchProbability(gap).
// All additions use log-sum-exp; no scaling pass is needed and no NaN or Inf
// can appear in the output.
func Posteriors(positions []int, logEmit [][]float64, logPrior []float64) [][]float64 {
	n := len(positions)
	if n == 0 {
		return nil
	}
	states := len(logPrior)

	// Per-chromosome arenas: one forward and one backward vector per marker,
	// allocated in single blocks.
	fwdBlock := make([]float64, n*states)
	bwdBlock := make([]float64, n*states)
	fwd := make([][]float64, n)
	bwd := make([][]float64, n)
	for i := 0; i < n; i++ {
		fwd[i] = fwdBlock[i*states : (i+1)*states]
		bwd[i] = bwdBlock[i*states : (i+1)*states]
	}

	// Forward.
	for s := 0; s < states; s++ {
		fwd[0][s] = logPrior[s] + logEmit[0][s]
	}
	scratch := make([]float64, states)
	for i := 1; i < n; i++ {
		p := SwitchProbability(positions[i] - positions[i-1])
		logStay := logOf(1 - p)
		logSwitch := logOf(p)

		// Mass available to a switch, regardless of target state.
		total := hwe.LogSumExp(fwd[i-1])

		for s := 0; s < states; s++ {
			stay := logStay + fwd[i-1][s]
			sw := logSwitch + logPrior[s] + total
			fwd[i][s] = logEmit[i][s] + hwe.LogAddExp(stay, sw)
		}
	}

	// Backward.
	for s := 0; s < states; s++ {
		bwd[n-1][s] = 0
	}
	for i := n - 2; i >= 0; i-- {
		p := SwitchProbability(positions[i+1] - positions[i])
		logStay := logOf(1 - p)
		logSwitch := logOf(p)

		for s := 0; s < states; s++ {
			scratch[s] = logPrior[s] + logEmit[i+1][s] + bwd[i+1][s]
		}
		switchMass := logSwitch + hwe.LogSumExp(scratch)

		for s := 0; s < states; s++ {
			stay := logStay + logEmit[i+1][s] + bwd[i+1][s]
			bwd[i][s] = hwe.LogAddExp(stay, switchMass)
		}
	}

	// Posterior = normalized forward × backward.
	post := make([][]float64, n)
	for i := 0; i < n; i++ {
		for s := 0; s < states; s++ {
			scratch[s] = fwd[i][s] + bwd[i][s]
		}
		post[i] = hwe.Softmax(scratch)
	}

	return post
}

// SegmentsFromPosteriors converts per-marker posteriors into segments tiling
// [0, chromosomeLength): a boundary is placed at the midpoint between
// consecutive markers whose posterior argmax differs, and each segment's
// confidence is the mean posterior of its winning state across its markers.
// haplotype tags the segments ("" for diploid calls).
func SegmentsFromPosteriors(chromosome string, positions []int, post [][]float64, chromosomeLength int, haplotype string) []ancestry.Segment {
	n := len(positions)
	if n == 0 {
		return nil
	}

	argmax := func(xs []float64) int {
		best := 0
		for i, x := range xs {
			if x > xs[best] {
				best = i
			}
		}
		return best
	}

	var segments []ancestry.Segment

	runState := argmax(post[0])
	runStart := 0
	runConfSum := post[0][runState]
	runMarkers := 1

	flush := func(end int) {
		pop := aim.Populations[runState]
		segments = append(segments, ancestry.Segment{
			Chromosome: chromosome,
			Start:      runStart,
			End:        end,
			Population: pop,
			Category:   aim.PopulationNames[pop],
			Confidence: runConfSum / float64(runMarkers),
			Haplotype:  haplotype,
		})
	}

	for i := 1; i < n; i++ {
		state := argmax(post[i])
		if state == runState {
			runConfSum += post[i][state]
			runMarkers++
			continue
		}

		boundary := (positions[i-1] + positions[i]) / 2
		flush(boundary)

		runState = state
		runStart = boundary
		runConfSum = post[i][state]
		runMarkers = 1
	}
	flush(chromosomeLength)

	return segments
}

// PriorVector maps a global ancestry result onto the canonical population
// order and renormalizes it. Missing populations get a small floor so that
// the HMM can still switch into them.
func PriorVector(global *ancestry.Result) []float64 {
	prior := make([]float64, len(aim.Populations))
	var sum float64
	for i, pop := range aim.Populations {
		p := 0.0
		if global != nil {
			p = global.Proportions[pop]
		}
		if p < 1e-6 || math.IsNaN(p) {
			p = 1e-6
		}
		prior[i] = p
		sum += p
	}

	for i := range prior {
		prior[i] /= sum
	}

	return prior
}
