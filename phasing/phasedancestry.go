package phasing

import (
	"context"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/chrlen"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/localancestry"
)

// AncestryResult carries two parallel per-chromosome segment maps, one per
// resolved haplotype. The A/B labels are assigned independently on each
// chromosome; they do not link across chromosomes and are not maternal or
// paternal.
type AncestryResult struct {
	HaplotypeA map[string][]ancestry.Segment
	HaplotypeB map[string][]ancestry.Segment
}

// PhasedAncestry reruns the Forward-Backward ancestry model once per resolved
// haplotype, with haploid single-allele emissions, producing
// haplotype-resolved chromosome painting. global supplies the prior exactly
// as in the diploid HMM. Chromosomes with fewer than two phased markers fall
// back to a single whole-chromosome segment drawn from the prior alone.
func PhasedAncestry(ctx context.Context, phase *Result, table *aim.Table, global *ancestry.Result, assembly string) (*AncestryResult, error) {
	if assembly == "" {
		assembly = chrlen.DefaultAssembly
	}

	lengths, err := chrlen.Lengths(assembly)
	if err != nil {
		return nil, err
	}

	prior := localancestry.PriorVector(global)
	logPrior := make([]float64, len(prior))
	for i, p := range prior {
		logPrior[i] = hwe.Log(p)
	}

	out := &AncestryResult{
		HaplotypeA: make(map[string][]ancestry.Segment),
		HaplotypeB: make(map[string][]ancestry.Segment),
	}

	for _, chromosome := range table.Chromosomes() {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}

		length, ok := lengths[chromosome]
		if !ok {
			continue
		}

		for hap, into := range map[string]map[string][]ancestry.Segment{
			"A": out.HaplotypeA,
			"B": out.HaplotypeB,
		} {
			into[chromosome] = haplotypeSegments(phase, table, chromosome, length, hap, prior, logPrior)
		}
	}

	return out, nil
}

// haplotypeSegments paints one haplotype of one chromosome.
func haplotypeSegments(phase *Result, table *aim.Table, chromosome string, length int, haplotype string, prior, logPrior []float64) []ancestry.Segment {
	hapIndex := 0
	if haplotype == "B" {
		hapIndex = 1
	}

	var positions []int
	var logEmit [][]float64

	for _, m := range table.ForChromosome(chromosome) {
		resolved, ok := phase.Haplotypes[m.RSID]
		if !ok {
			continue
		}

		emit, ok := haploidEmission(&m, resolved[hapIndex])
		if !ok {
			continue
		}

		positions = append(positions, m.Position)
		logEmit = append(logEmit, emit)
	}

	if len(positions) < 2 {
		// Mirror the diploid fast path: nothing to smooth, call the
		// chromosome from the prior alone.
		best := 0
		for i, p := range prior {
			if p > prior[best] {
				best = i
			}
		}
		pop := aim.Populations[best]

		return []ancestry.Segment{{
			Chromosome: chromosome,
			Start:      0,
			End:        length,
			Population: pop,
			Category:   aim.PopulationNames[pop],
			Confidence: prior[best],
			Haplotype:  haplotype,
		}}
	}

	post := localancestry.Posteriors(positions, logEmit, logPrior)

	return localancestry.SegmentsFromPosteriors(chromosome, positions, post, length, haplotype)
}

// haploidEmission is the per-population likelihood of a single resolved
// allele.
func haploidEmission(m *aim.Marker, allele string) ([]float64, bool) {
	out := make([]float64, len(aim.Populations))
	for i, pop := range aim.Populations {
		lik, ok := hwe.HaploidLikelihood(allele, m.Ref, m.Alt, m.Frequencies[pop])
		if !ok {
			return nil, false
		}
		out[i] = hwe.Log(lik)
	}

	return out, true
}
