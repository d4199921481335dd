// Package ancestry estimates genome-wide ancestry proportions from a parsed
// genotype file and the AIM table, and defines the result and segment types
// shared by the local-ancestry and phasing engines.
package ancestry

import (
	"sort"

	"github.com/marseneaul/chromokin-sub000/aim"
)

// Confidence is a coarse tier describing how many informative markers backed
// an estimate.
type Confidence string

const (
	ConfidenceHigh     Confidence = "high"
	ConfidenceModerate Confidence = "moderate"
	ConfidenceLow      Confidence = "low"
)

// Component is one population's share of an admixture estimate, for display.
type Component struct {
	Population string
	Category   string
	Proportion float64
}

// Result is a genome-wide ancestry estimate. Proportions always covers all
// five populations and sums to 1. MarkersAvailable counts the uploaded
// markers found in the AIM table; MarkersUsed counts those that survived the
// estimator's informativeness and genotype filters.
type Result struct {
	Proportions      map[string]float64
	Confidence       Confidence
	MarkersUsed      int
	MarkersAvailable int
	Composition      []Component
}

// newResult assembles a Result from a probability vector ordered like
// aim.Populations.
func newResult(probs []float64, confidence Confidence, used, available int) *Result {
	res := &Result{
		Proportions:      make(map[string]float64, len(aim.Populations)),
		Confidence:       confidence,
		MarkersUsed:      used,
		MarkersAvailable: available,
	}

	for i, pop := range aim.Populations {
		res.Proportions[pop] = probs[i]
		res.Composition = append(res.Composition, Component{
			Population: pop,
			Category:   aim.PopulationNames[pop],
			Proportion: probs[i],
		})
	}

	sort.Slice(res.Composition, func(i, j int) bool {
		if res.Composition[i].Proportion != res.Composition[j].Proportion {
			return res.Composition[i].Proportion > res.Composition[j].Proportion
		}
		return res.Composition[i].Population < res.Composition[j].Population
	})

	return res
}

// Uniform returns the no-information estimate: equal proportions, low
// confidence, zero markers used.
func Uniform(available int) *Result {
	probs := make([]float64, len(aim.Populations))
	for i := range probs {
		probs[i] = 1 / float64(len(probs))
	}

	return newResult(probs, ConfidenceLow, 0, available)
}
