package localancestry

import (
	"context"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

const (
	// hmmInformativeness matches the maximum-likelihood caller's marker
	// filter (the HMM emissions are the same likelihoods).
	hmmInformativeness = 0.1

	// fastPathPrior: when the global prior is this concentrated, the
	// Forward-Backward result is a foregone conclusion and we emit a single
	// whole-chromosome segment instead.
	fastPathPrior = 0.95
)

// HMMCalls runs the Forward-Backward ancestry HMM on every chromosome the
// AIM table covers and returns per-chromosome segments that exactly tile
// [0, chromosome length). global supplies the stationary prior; it should be
// the EM admixture estimate for the same file.
func (e *Engine) HMMCalls(ctx context.Context, file *snpparser.ParsedFile, global *ancestry.Result) (map[string][]ancestry.Segment, error) {
	lengths, err := e.chromosomeLengths()
	if err != nil {
		return nil, err
	}

	prior := PriorVector(global)

	out := make(map[string][]ancestry.Segment)
	for _, chromosome := range e.Table.Chromosomes() {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}

		length, ok := lengths[chromosome]
		if !ok {
			continue
		}

		out[chromosome] = e.hmmChromosome(file, chromosome, length, prior)
	}

	return out, nil
}

func (e *Engine) hmmChromosome(file *snpparser.ParsedFile, chromosome string, length int, prior []float64) []ancestry.Segment {
	// Fast path: with one population this dominant, smoothing cannot move
	// the call anywhere else.
	if state, p := dominantState(prior); p >= fastPathPrior {
		return []ancestry.Segment{priorOnlySegment(chromosome, length, state, p)}
	}

	markers := e.chromosomeMarkers(file, chromosome, hmmInformativeness)
	if len(markers) == 0 {
		state, p := dominantState(prior)
		return []ancestry.Segment{priorOnlySegment(chromosome, length, state, p)}
	}

	positions := make([]int, len(markers))
	logEmit := make([][]float64, len(markers))
	for i, m := range markers {
		positions[i] = m.position
		logEmit[i] = m.logEmit
	}

	logPrior := make([]float64, len(prior))
	for i, p := range prior {
		logPrior[i] = hwe.Log(p)
	}

	post := Posteriors(positions, logEmit, logPrior)

	return SegmentsFromPosteriors(chromosome, positions, post, length, "")
}

func dominantState(prior []float64) (int, float64) {
	best := 0
	for i, p := range prior {
		if p > prior[best] {
			best = i
		}
	}

	return best, prior[best]
}

func priorOnlySegment(chromosome string, length, state int, confidence float64) ancestry.Segment {
	pop := aim.Populations[state]

	return ancestry.Segment{
		Chromosome: chromosome,
		Start:      0,
		End:        length,
		Population: pop,
		Category:   aim.PopulationNames[pop],
		Confidence: confidence,
	}
}
