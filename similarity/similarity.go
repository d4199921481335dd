// Package similarity refines ancestry estimates against the 1000 Genomes
// reference panel: a k-nearest-neighbor identity-by-state search over the
// panel's individuals, and an expectation-maximization fit over empirical
// per-sub-population dosage frequencies. Together they resolve the five
// continental populations into the panel's 26 sub-populations.
package similarity

import (
	"context"
	"fmt"
	"sort"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/refpanel"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

// Method selects how the sub-population estimate is produced.
type Method string

const (
	// MethodHybrid seeds the empirical EM with the k-NN prior. This is the
	// default and generally the most stable.
	MethodHybrid Method = "hybrid"
	// MethodKNN reports the similarity-weighted neighbor prior directly.
	MethodKNN Method = "knn"
	// MethodEmpiricalEM runs the EM from a uniform start.
	MethodEmpiricalEM Method = "empirical-em"
)

// DefaultNeighbors is the default k for the nearest-neighbor search.
const DefaultNeighbors = 100

const (
	// Marker weights are the population stddev of allele frequencies, clamped
	// so a single extreme marker cannot dominate the IBS score.
	minMarkerWeight = 0.05
	maxMarkerWeight = 0.5

	emMaxIterations = 100
	emTolerance     = 1e-4
)

// Neighbor is one reference individual ranked by IBS similarity.
type Neighbor struct {
	SampleID        string
	Population      string
	SuperPopulation string
	Similarity      float64
}

// Result is a panel-backed ancestry estimate: sub-population proportions plus
// their 5-way continental aggregation.
type Result struct {
	SubProportions map[string]float64
	Proportions    map[string]float64
	Confidence     ancestry.Confidence
	MarkersUsed    int
	Method         Method
	Neighbors      []Neighbor
}

// sharedMarker is one marker present in the upload, the AIM table, and the
// panel, with the user's dosage and the marker's IBS weight precomputed.
type sharedMarker struct {
	rsid   string
	dosage int
	weight float64
}

// Estimate produces a sub-population ancestry estimate for the uploaded
// genotypes. k <= 0 selects DefaultNeighbors. The panel must be loaded;
// callers that hold refpanel.ErrUnavailable instead should fall back to
// ancestry.EMAdmixture.
func Estimate(ctx context.Context, file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.Panel, method Method, k int) (*Result, error) {
	if panel == nil {
		return nil, refpanel.ErrUnavailable
	}
	if k <= 0 {
		k = DefaultNeighbors
	}

	switch method {
	case MethodHybrid, MethodKNN, MethodEmpiricalEM:
	case "":
		method = MethodHybrid
	default:
		return nil, fmt.Errorf("similarity: unknown method %q", method)
	}

	shared := sharedMarkers(file, table, panel)

	res := &Result{
		Method:      method,
		MarkersUsed: len(shared),
	}

	subPops := panel.SubPopulations()
	if len(shared) == 0 || len(subPops) == 0 {
		res.SubProportions = uniformOver(subPops)
		res.Proportions = aggregate(res.SubProportions)
		res.Confidence = ancestry.ConfidenceLow
		return res, nil
	}

	var prior map[string]float64
	if method != MethodEmpiricalEM {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		neighbors := nearestNeighbors(shared, panel, k)
		res.Neighbors = neighbors
		prior = neighborPrior(neighbors, subPops)
	}

	switch method {
	case MethodKNN:
		res.SubProportions = prior
	case MethodEmpiricalEM:
		res.SubProportions = empiricalEM(ctx, shared, panel, uniformOver(subPops))
	default:
		res.SubProportions = empiricalEM(ctx, shared, panel, prior)
	}

	res.Proportions = aggregate(res.SubProportions)
	res.Confidence = confidenceTier(len(shared))

	return res, nil
}

func sharedMarkers(file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.Panel) []sharedMarker {
	var out []sharedMarker
	for _, rsid := range file.RSIDs() {
		m, ok := table.Marker(rsid)
		if !ok || !panel.Has(rsid) {
			continue
		}

		dosage, ok := m.Dosage(file.SNPs[rsid].Genotype)
		if !ok {
			continue
		}

		out = append(out, sharedMarker{
			rsid:   rsid,
			dosage: dosage,
			weight: hwe.Clamp(m.Informativeness(), minMarkerWeight, maxMarkerWeight),
		})
	}

	return out
}

// nearestNeighbors ranks every reference individual by weighted IBS
// similarity with the user and keeps the top k. IBS per marker is
// (2 - |Δdosage|) / 2: identical genotypes score 1, opposite homozygotes 0.
func nearestNeighbors(shared []sharedMarker, panel *refpanel.Panel, k int) []Neighbor {
	type scored struct {
		sample int
		sim    float64
	}

	scores := make([]scored, 0, panel.SampleCount())
	for sample := 0; sample < panel.SampleCount(); sample++ {
		var num, den float64
		for _, m := range shared {
			refDosage, ok := panel.Dosage(m.rsid, sample)
			if !ok {
				continue
			}
			delta := float64(m.dosage - refDosage)
			if delta < 0 {
				delta = -delta
			}
			num += m.weight * (2 - delta) / 2
			den += m.weight
		}
		if den == 0 {
			continue
		}
		scores = append(scores, scored{sample: sample, sim: num / den})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].sim != scores[j].sim {
			return scores[i].sim > scores[j].sim
		}
		return scores[i].sample < scores[j].sample
	})

	if len(scores) > k {
		scores = scores[:k]
	}

	neighbors := make([]Neighbor, 0, len(scores))
	for _, sc := range scores {
		sub := panel.SubPopulation(sc.sample)
		neighbors = append(neighbors, Neighbor{
			SampleID:        panel.SampleIDs[sc.sample],
			Population:      sub,
			SuperPopulation: refpanel.SuperPopulationOf(sub),
			Similarity:      sc.sim,
		})
	}

	return neighbors
}

// neighborPrior converts the top-k neighbors into a sub-population prior,
// weighting each neighbor by its squared similarity so that closer matches
// count disproportionately more.
func neighborPrior(neighbors []Neighbor, subPops []string) map[string]float64 {
	prior := make(map[string]float64, len(subPops))
	var total float64
	for _, n := range neighbors {
		if n.Population == "" {
			continue
		}
		w := n.Similarity * n.Similarity
		prior[n.Population] += w
		total += w
	}

	if total == 0 {
		return uniformOver(subPops)
	}

	for sub := range prior {
		prior[sub] /= total
	}

	return prior
}

// empiricalEM runs the admixture EM with empirical panel frequencies in place
// of Hardy-Weinberg: P(dosage | sub-population) is the Laplace-smoothed share
// of that sub-population's samples carrying the same dosage.
func empiricalEM(ctx context.Context, shared []sharedMarker, panel *refpanel.Panel, seed map[string]float64) map[string]float64 {
	subPops := panel.SubPopulations()

	props := make([]float64, len(subPops))
	for i, sub := range subPops {
		props[i] = seed[sub]
	}
	normalizeInPlace(props)

	// Precompute per-marker per-sub-population likelihoods once; the E/M loop
	// then only touches these.
	liks := make([][]float64, len(shared))
	for mi, m := range shared {
		row := make([]float64, len(subPops))
		for si, sub := range subPops {
			row[si] = empiricalLikelihood(panel, m.rsid, m.dosage, sub)
		}
		liks[mi] = row
	}

	next := make([]float64, len(subPops))
	resp := make([]float64, len(subPops))

	for iter := 0; iter < emMaxIterations; iter++ {
		if ctx.Err() != nil {
			break
		}

		for i := range next {
			next[i] = 0
		}

		for _, row := range liks {
			var norm float64
			for i := range resp {
				resp[i] = row[i] * props[i]
				norm += resp[i]
			}
			if norm <= 0 {
				continue
			}
			for i := range resp {
				next[i] += resp[i] / norm
			}
		}

		for i := range next {
			next[i] /= float64(len(liks))
		}
		normalizeInPlace(next)

		var maxDelta float64
		for i := range next {
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

	out := make(map[string]float64, len(subPops))
	for i, sub := range subPops {
		out[sub] = props[i]
	}

	return out
}

// empiricalLikelihood is the Laplace-smoothed P(observed dosage | sub-pop):
// (matches + 0.5) / (size + 1.5).
func empiricalLikelihood(panel *refpanel.Panel, rsid string, dosage int, subPopulation string) float64 {
	samples := panel.SamplesInSubPopulation(subPopulation)

	matches := 0
	for _, sample := range samples {
		d, ok := panel.Dosage(rsid, sample)
		if ok && d == dosage {
			matches++
		}
	}

	return (float64(matches) + 0.5) / (float64(len(samples)) + 1.5)
}

// aggregate sums sub-population proportions into the five continental
// super-populations.
func aggregate(subProportions map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(aim.Populations))
	for _, pop := range aim.Populations {
		out[pop] = 0
	}

	for sub, p := range subProportions {
		super := refpanel.SuperPopulationOf(sub)
		if super == "" {
			continue
		}
		out[super] += p
	}

	return out
}

func uniformOver(subPops []string) map[string]float64 {
	out := make(map[string]float64, len(subPops))
	for _, sub := range subPops {
		out[sub] = 1 / float64(len(subPops))
	}

	return out
}

func normalizeInPlace(xs []float64) {
	var total float64
	for _, x := range xs {
		total += x
	}

	if total <= 0 {
		for i := range xs {
			xs[i] = 1 / float64(len(xs))
		}
		return
	}

	for i := range xs {
		xs[i] /= total
	}
}

func confidenceTier(markersUsed int) ancestry.Confidence {
	switch {
	case markersUsed >= 500:
		return ancestry.ConfidenceHigh
	case markersUsed >= 100:
		return ancestry.ConfidenceModerate
	}

	return ancestry.ConfidenceLow
}
