package ancestry

import (
	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

const (
	// mlInformativeness filters markers for the maximum-likelihood estimator;
	// emInformativeness is looser because the EM mixture model extracts
	// signal from weaker markers too.
	mlInformativeness = 0.1
	emInformativeness = 0.05

	emMaxIterations = 100
	emTolerance     = 1e-4

	// emMinLikelihood: a marker only enters the EM when at least one
	// population explains it better than this.
	emMinLikelihood = 0.01
)

// PopulationLikelihoods returns this marker's genotype likelihood per
// population, ordered like aim.Populations. The second return is false when
// the genotype is uninformative for the marker (no-call, indel, or mismatched
// alleles); such markers contribute nothing and must be skipped.
func PopulationLikelihoods(m *aim.Marker, genotype string) ([]float64, bool) {
	liks := make([]float64, len(aim.Populations))
	for i, pop := range aim.Populations {
		lik, ok := hwe.GenotypeLikelihood(genotype, m.Ref, m.Alt, m.Frequencies[pop])
		if !ok {
			return nil, false
		}
		liks[i] = lik
	}

	return liks, true
}

// MaximumLikelihood is the point-estimate ancestry caller: it sums
// per-population genotype log-likelihoods over the informative AIM markers in
// the upload and softmaxes them onto a probability simplex. It reports a
// single dominant composition rather than a mixture; use EMAdmixture for
// admixed genomes.
func MaximumLikelihood(file *snpparser.ParsedFile, table *aim.Table) *Result {
	logLik := make([]float64, len(aim.Populations))
	used, available := 0, 0

	for _, rsid := range file.RSIDs() {
		m, ok := table.Marker(rsid)
		if !ok {
			continue
		}
		available++

		if m.Informativeness() < mlInformativeness {
			continue
		}

		liks, ok := PopulationLikelihoods(m, file.SNPs[rsid].Genotype)
		if !ok {
			continue
		}

		for i, lik := range liks {
			logLik[i] += hwe.Log(lik)
		}
		used++
	}

	if used == 0 {
		return Uniform(available)
	}

	return newResult(hwe.Softmax(logLik), mlConfidence(used), used, available)
}

// EMAdmixture models the genome as a soft mixture of the five populations and
// fits the mixing proportions by expectation-maximization: each marker's
// population responsibilities (E-step) are averaged into updated proportions
// (M-step) until convergence.
func EMAdmixture(file *snpparser.ParsedFile, table *aim.Table) *Result {
	var markerLiks [][]float64
	available := 0

	for _, rsid := range file.RSIDs() {
		m, ok := table.Marker(rsid)
		if !ok {
			continue
		}
		available++

		if m.Informativeness() < emInformativeness {
			continue
		}

		liks, ok := PopulationLikelihoods(m, file.SNPs[rsid].Genotype)
		if !ok {
			continue
		}

		informative := false
		for _, lik := range liks {
			if lik > emMinLikelihood {
				informative = true
				break
			}
		}
		if !informative {
			continue
		}

		markerLiks = append(markerLiks, liks)
	}

	if len(markerLiks) == 0 {
		return Uniform(available)
	}

	nPops := len(aim.Populations)
	props := make([]float64, nPops)
	for i := range props {
		props[i] = 1 / float64(nPops)
	}

	next := make([]float64, nPops)
	resp := make([]float64, nPops)

	for iter := 0; iter < emMaxIterations; iter++ {
		for i := range next {
			next[i] = 0
		}

		// E-step: per-marker responsibilities proportional to
		// likelihood × current proportion.
		for _, liks := range markerLiks {
			var norm float64
			for i := range resp {
				resp[i] = liks[i] * props[i]
				norm += resp[i]
			}
			if norm <= 0 {
				continue
			}
			for i := range resp {
				next[i] += resp[i] / norm
			}
		}

		// M-step: mean responsibility, renormalized.
		var total float64
		for i := range next {
			next[i] /= float64(len(markerLiks))
			total += next[i]
		}
		if total <= 0 {
			break
		}

		var maxDelta float64
		for i := range next {
			next[i] /= total
			if d := next[i] - props[i]; d > maxDelta {
				maxDelta = d
			} else if -d > maxDelta {
				maxDelta = -d
			}
			props[i] = next[i]
		}

		if maxDelta < emTolerance {
			break
		}
	}

	return newResult(props, emConfidence(len(markerLiks)), len(markerLiks), available)
}

func mlConfidence(used int) Confidence {
	switch {
	case used >= 80:
		return ConfidenceHigh
	case used >= 40:
		return ConfidenceModerate
	}

	return ConfidenceLow
}

func emConfidence(used int) Confidence {
	switch {
	case used >= 500:
		return ConfidenceHigh
	case used >= 100:
		return ConfidenceModerate
	}

	return ConfidenceLow
}
