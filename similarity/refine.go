package similarity

import (
	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/refpanel"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

const (
	// A segment needs at least this many informative markers before a
	// sub-population label is worth attaching.
	refineMinMarkers = 3

	// A marker/sub-population cell only contributes when it is backed by at
	// least this many genotyped panel samples.
	refineMinSamples = 5
)

// RefineSegments attaches sub-population labels to local-ancestry segments.
// For each segment with enough informative markers, the candidate
// sub-populations of the segment's continental population are scored by
// empirical log-likelihood over the segment's markers and softmaxed; the best
// candidate becomes the segment's Subpopulation, with a confidence derived
// from the margin over the runner-up. Segments without enough markers are
// returned unchanged.
func RefineSegments(segments []ancestry.Segment, file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.Panel) []ancestry.Segment {
	if panel == nil {
		return segments
	}

	out := make([]ancestry.Segment, len(segments))
	copy(out, segments)

	for i := range out {
		refineSegment(&out[i], file, table, panel)
	}

	return out
}

func refineSegment(seg *ancestry.Segment, file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.Panel) {
	candidates := subPopulationsOf(panel, seg.Population)
	if len(candidates) == 0 {
		return
	}

	var markers []sharedMarker
	for _, m := range table.ForChromosome(seg.Chromosome) {
		if m.Position < seg.Start || m.Position >= seg.End {
			continue
		}
		snp, ok := file.SNPs[m.RSID]
		if !ok || !panel.Has(m.RSID) {
			continue
		}
		dosage, ok := m.Dosage(snp.Genotype)
		if !ok {
			continue
		}
		markers = append(markers, sharedMarker{
			rsid:   m.RSID,
			dosage: dosage,
			weight: hwe.Clamp(m.Informativeness(), minMarkerWeight, maxMarkerWeight),
		})
	}

	if len(markers) < refineMinMarkers {
		return
	}

	logLiks := make([]float64, len(candidates))
	anyScored := false
	for ci, sub := range candidates {
		samples := panel.SamplesInSubPopulation(sub)
		var total float64
		scored := 0
		for _, m := range markers {
			matches, genotyped := 0, 0
			for _, sample := range samples {
				d, ok := panel.Dosage(m.rsid, sample)
				if !ok {
					continue
				}
				genotyped++
				if d == m.dosage {
					matches++
				}
			}
			if genotyped < refineMinSamples {
				continue
			}
			total += m.weight * hwe.Log((float64(matches)+0.5)/(float64(genotyped)+1.5))
			scored++
		}
		// A candidate with no scorable marker cells must not win on an
		// empty (zero) log-likelihood.
		if scored == 0 {
			total = hwe.LogZero
		} else {
			anyScored = true
		}
		logLiks[ci] = total
	}

	if !anyScored {
		return
	}

	probs := hwe.Softmax(logLiks)

	best, second := -1, -1
	for ci := range probs {
		if best < 0 || probs[ci] > probs[best] {
			second = best
			best = ci
		} else if second < 0 || probs[ci] > probs[second] {
			second = ci
		}
	}

	margin := probs[best]
	if second >= 0 {
		margin = probs[best] - probs[second]
	}

	seg.Subpopulation = candidates[best]
	seg.SubConfidence = hwe.Clamp(2*margin+0.5, 0, 1)
}

// subPopulationsOf returns the panel's sub-populations belonging to one
// continental super-population.
func subPopulationsOf(panel *refpanel.Panel, superPopulation string) []string {
	var out []string
	for _, sub := range panel.SubPopulations() {
		if refpanel.SuperPopulationOf(sub) == superPopulation {
			out = append(out, sub)
		}
	}

	return out
}
