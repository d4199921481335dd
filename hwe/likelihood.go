// Package hwe computes genotype likelihoods under Hardy-Weinberg equilibrium
// and provides the log-space numeric helpers shared by the ancestry
// estimators. Under Hardy-Weinberg, an allele with alternate frequency q (and
// reference frequency p = 1-q) produces genotypes at frequencies p², 2pq, and
// q².
package hwe

import "strings"

const (
	// MinFreq and MaxFreq bound every population allele frequency before it
	// enters a likelihood, so that a single fixed marker can never zero out a
	// whole population.
	MinFreq = 0.001
	MaxFreq = 0.999
)

// ClampFreq forces an allele frequency into [MinFreq, MaxFreq].
func ClampFreq(q float64) float64 {
	if q < MinFreq {
		return MinFreq
	}
	if q > MaxFreq {
		return MaxFreq
	}

	return q
}

// Clamp forces v into [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}

// GenotypeLikelihood returns P(observed genotype | population) for a
// population whose alternate-allele frequency is altFreq, under
// Hardy-Weinberg equilibrium. The second return is false when the genotype
// carries no information about this marker: no-calls, indel codes, and
// genotypes whose alleles match neither ref nor alt. Callers must skip such
// markers entirely rather than multiplying in a placeholder likelihood.
func GenotypeLikelihood(genotype, ref, alt string, altFreq float64) (float64, bool) {
	g := strings.ToUpper(strings.TrimSpace(genotype))
	if g == "" || g == "--" || strings.ContainsAny(g, "DI") {
		return 0, false
	}

	q := ClampFreq(altFreq)
	p := 1 - q

	// Hemizygous call (X/Y/MT): a single allele drawn from the population
	// frequency directly.
	if len(g) == 1 {
		switch g {
		case ref:
			return p, true
		case alt:
			return q, true
		}
		return 0, false
	}

	if len(g) != 2 {
		return 0, false
	}

	altCount := 0
	for i := 0; i < 2; i++ {
		switch string(g[i]) {
		case ref:
			// reference allele contributes zero to the alt count
		case alt:
			altCount++
		default:
			return 0, false
		}
	}

	switch altCount {
	case 0:
		return p * p, true
	case 1:
		return 2 * p * q, true
	default:
		return q * q, true
	}
}

// HaploidLikelihood returns P(observed single allele | population) for one
// resolved haplotype allele. The second return is false for alleles matching
// neither ref nor alt.
func HaploidLikelihood(allele, ref, alt string, altFreq float64) (float64, bool) {
	a := strings.ToUpper(strings.TrimSpace(allele))
	q := ClampFreq(altFreq)

	switch a {
	case ref:
		return 1 - q, true
	case alt:
		return q, true
	}

	return 0, false
}
