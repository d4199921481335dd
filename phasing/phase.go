// Package phasing resolves heterozygous genotypes into two haplotypes with a
// Li & Stephens copying model: each of the user's haplotypes is modeled as an
// imperfect mosaic of reference haplotypes from the phased 1000 Genomes
// panel, and at every heterozygous site the allele assignment that better
// explains both mosaics wins. The same package then re-runs the ancestry HMM
// on each resolved haplotype.
package phasing

import (
	"context"
	"sort"

	"github.com/carbocation/pfx"
	"github.com/montanaflynn/stats"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/hwe"
	"github.com/marseneaul/chromokin-sub000/localancestry"
	"github.com/marseneaul/chromokin-sub000/refpanel"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

const (
	// maxReferenceHaplotypes bounds the copying-model state space; the panel
	// is downsampled proportionally when it holds more.
	maxReferenceHaplotypes = 500

	// copyError is the per-site probability that the copied reference allele
	// differs from the observed one (mutation or genotyping error).
	copyError = 0.001
)

// Stats summarizes a phasing run.
type Stats struct {
	MarkersPhased       int
	Homozygous          int
	Heterozygous        int
	MeanConfidence      float64
	SwitchErrorEstimate float64
}

// Result holds the resolved haplotypes. Haplotypes maps each phased rsid to
// its [haplotype A, haplotype B] allele letters; Confidence holds the
// per-marker phase confidence (1.0 at homozygous sites). Markers with missing
// genotypes are absent.
type Result struct {
	Haplotypes map[string][2]string
	Confidence map[string]float64
	Stats      Stats
}

// phaseMarker is one marker eligible for phasing: present in the upload, the
// AIM table, and the phased panel, with both allele letters mapped onto the
// panel's 0/1 encoding.
type phaseMarker struct {
	rsid     string
	position int
	alleles  [2]byte // '0' or '1' per genotype allele, unordered
	letters  [2]string
	het      bool
}

// Phase resolves the uploaded genotypes into two haplotypes. The phased panel
// is required: without it the copying model has nothing to copy from, and
// refpanel.ErrUnavailable is returned so callers can fall back to unphased
// analyses.
func Phase(ctx context.Context, file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.PhasedPanel) (*Result, error) {
	if panel == nil || panel.HaplotypeCount() == 0 {
		return nil, refpanel.ErrUnavailable
	}

	res := &Result{
		Haplotypes: make(map[string][2]string),
		Confidence: make(map[string]float64),
	}

	var allConf, hetConf []float64

	for _, chromosome := range table.Chromosomes() {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}

		markers := eligibleMarkers(file, table, panel, chromosome)
		if len(markers) == 0 {
			continue
		}

		phaseChromosome(markers, panel, res, &allConf, &hetConf)
	}

	if len(allConf) > 0 {
		mean, err := stats.Mean(allConf)
		if err != nil {
			return nil, pfx.Err(err)
		}
		res.Stats.MeanConfidence = mean
	}

	if len(hetConf) > 0 {
		mean, err := stats.Mean(hetConf)
		if err != nil {
			return nil, pfx.Err(err)
		}
		res.Stats.SwitchErrorEstimate = 1 - mean
	}

	return res, nil
}

// eligibleMarkers gathers one chromosome's phaseable markers in ascending
// position order. Missing genotypes and alleles the panel does not encode are
// excluded.
func eligibleMarkers(file *snpparser.ParsedFile, table *aim.Table, panel *refpanel.PhasedPanel, chromosome string) []phaseMarker {
	var out []phaseMarker

	for _, m := range table.ForChromosome(chromosome) {
		snp, ok := file.SNPs[m.RSID]
		if !ok || !panel.Has(m.RSID) {
			continue
		}

		g := snp.Genotype
		if g == "" || g == "--" {
			continue
		}

		var letters [2]string
		switch len(g) {
		case 1:
			letters = [2]string{g, g}
		case 2:
			letters = [2]string{string(g[0]), string(g[1])}
		default:
			continue
		}

		var alleles [2]byte
		valid := true
		for i, letter := range letters {
			switch letter {
			case m.Ref:
				alleles[i] = '0'
			case m.Alt:
				alleles[i] = '1'
			default:
				valid = false
			}
		}
		if !valid {
			continue
		}

		out = append(out, phaseMarker{
			rsid:     m.RSID,
			position: m.Position,
			alleles:  alleles,
			letters:  letters,
			het:      alleles[0] != alleles[1],
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })

	return out
}

// sampleHaplotypes picks at most maxReferenceHaplotypes reference haplotype
// indexes, spread proportionally across the panel.
func sampleHaplotypes(panel *refpanel.PhasedPanel) []int {
	total := panel.HaplotypeCount()
	n := total
	if n > maxReferenceHaplotypes {
		n = maxReferenceHaplotypes
	}

	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = i * total / n
	}

	return out
}

// forwardState is the copying-model forward vector for one of the user's
// physical haplotypes.
type forwardState struct {
	logProb []float64
}

func newForwardState(n int) *forwardState {
	f := &forwardState{logProb: make([]float64, n)}
	init := hwe.Log(1 / float64(n))
	for i := range f.logProb {
		f.logProb[i] = init
	}

	return f
}

// advance applies the switch transition for a physical gap of d base pairs:
// stay on the current reference haplotype with probability 1-p, or switch to
// a uniformly chosen one with probability p.
func (f *forwardState) advance(d int) {
	p := localancestry.SwitchProbability(d)
	if p == 0 {
		return
	}

	logStay := hwe.Log(1 - p)
	logSwitch := hwe.Log(p/float64(len(f.logProb))) + hwe.LogSumExp(f.logProb)

	for i := range f.logProb {
		f.logProb[i] = hwe.LogAddExp(logStay+f.logProb[i], logSwitch)
	}
}

// emitted returns a copy of f with the emission for the observed allele
// applied against every reference haplotype.
func (f *forwardState) emitted(panel *refpanel.PhasedPanel, haps []int, rsid string, allele byte) *forwardState {
	out := &forwardState{logProb: make([]float64, len(f.logProb))}

	logMatch := hwe.Log(1 - copyError)
	logMismatch := hwe.Log(copyError)
	logMissing := hwe.Log(0.5)

	for i, hap := range haps {
		refAllele, ok := panel.HaplotypeAllele(rsid, hap)
		emit := logMissing
		if ok {
			if refAllele == allele {
				emit = logMatch
			} else {
				emit = logMismatch
			}
		}
		out.logProb[i] = f.logProb[i] + emit
	}

	return out
}

func (f *forwardState) total() float64 {
	return hwe.LogSumExp(f.logProb)
}

// phaseChromosome runs the two coupled forward passes along one chromosome,
// deciding each heterozygous site by which phase hypothesis leaves the pair
// of mosaics more likely.
func phaseChromosome(markers []phaseMarker, panel *refpanel.PhasedPanel, res *Result, allConf, hetConf *[]float64) {
	haps := sampleHaplotypes(panel)

	fwdA := newForwardState(len(haps))
	fwdB := newForwardState(len(haps))

	prevPos := -1
	for _, m := range markers {
		if prevPos >= 0 {
			gap := m.position - prevPos
			fwdA.advance(gap)
			fwdB.advance(gap)
		}
		prevPos = m.position

		if !m.het {
			// No phase decision at homozygous or hemizygous sites; both
			// haplotypes carry the same allele.
			fwdA = fwdA.emitted(panel, haps, m.rsid, m.alleles[0])
			fwdB = fwdB.emitted(panel, haps, m.rsid, m.alleles[1])

			res.Haplotypes[m.rsid] = [2]string{m.letters[0], m.letters[1]}
			res.Confidence[m.rsid] = 1.0
			res.Stats.MarkersPhased++
			res.Stats.Homozygous++
			*allConf = append(*allConf, 1.0)
			continue
		}

		// Hypothesis 1: allele[0]→A, allele[1]→B. Hypothesis 2: swapped.
		a1 := fwdA.emitted(panel, haps, m.rsid, m.alleles[0])
		b1 := fwdB.emitted(panel, haps, m.rsid, m.alleles[1])
		a2 := fwdA.emitted(panel, haps, m.rsid, m.alleles[1])
		b2 := fwdB.emitted(panel, haps, m.rsid, m.alleles[0])

		score1 := a1.total() + b1.total()
		score2 := a2.total() + b2.total()

		probs := hwe.Softmax([]float64{score1, score2})

		if score1 >= score2 {
			fwdA, fwdB = a1, b1
			res.Haplotypes[m.rsid] = [2]string{m.letters[0], m.letters[1]}
			res.Confidence[m.rsid] = probs[0]
		} else {
			fwdA, fwdB = a2, b2
			res.Haplotypes[m.rsid] = [2]string{m.letters[1], m.letters[0]}
			res.Confidence[m.rsid] = probs[1]
		}

		res.Stats.MarkersPhased++
		res.Stats.Heterozygous++
		*allConf = append(*allConf, res.Confidence[m.rsid])
		*hetConf = append(*hetConf, res.Confidence[m.rsid])
	}
}

func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
