// Package refpanel loads and caches the 1000 Genomes reference datasets: a
// dosage-encoded genotype panel over ~2,504 individuals in 26 sub-populations,
// and a phased haplotype panel with two haplotypes per individual. Panels are
// large, read-only, and loaded lazily exactly once per process through a
// Store handle that callers construct and pass into panel-backed inference.
package refpanel

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnavailable reports that a reference panel is absent, a placeholder, or
// failed to load. Panel-backed engines surface it unchanged so that callers
// can fall back to panel-free algorithms via errors.Is.
var ErrUnavailable = errors.New("reference panel unavailable")

// Missing is the dosage/haplotype character meaning "no data for this sample
// at this marker".
const Missing = byte('9')

// superPopulationOf maps the 26 (1000 Genomes phase 3) sub-populations onto
// the 5 continental super-populations.
var superPopulationOf = map[string]string{
	"CEU": "EUR", "TSI": "EUR", "FIN": "EUR", "GBR": "EUR", "IBS": "EUR",
	"YRI": "AFR", "LWK": "AFR", "GWD": "AFR", "MSL": "AFR", "ESN": "AFR",
	"ASW": "AFR", "ACB": "AFR",
	"CHB": "EAS", "JPT": "EAS", "CHS": "EAS", "CDX": "EAS", "KHV": "EAS",
	"GIH": "SAS", "PJL": "SAS", "BEB": "SAS", "STU": "SAS", "ITU": "SAS",
	"MXL": "AMR", "PUR": "AMR", "CLM": "AMR", "PEL": "AMR",
}

// SuperPopulationOf returns the continental super-population for a 1000
// Genomes sub-population code, or "" if the code is unknown.
func SuperPopulationOf(subPopulation string) string {
	return superPopulationOf[subPopulation]
}

// Sample is one row of the sample→population metadata table.
type Sample struct {
	ID              string `csv:"sample"`
	Population      string `csv:"pop"`
	SuperPopulation string `csv:"super_pop"`
	Sex             string `csv:"gender"`
}

// Panel is the dosage-encoded reference panel. Genotypes maps each rsid to a
// string with one character per sample: '0'/'1'/'2' alternate-allele counts,
// '9' missing. The sample order matches SampleIDs.
type Panel struct {
	SampleIDs []string          `json:"sampleIds"`
	RSIDs     []string          `json:"rsids"`
	Genotypes map[string]string `json:"genotypes"`

	subPopBySample []string
	samplesBySub   map[string][]int
}

// NewPanel assembles a panel from already-decoded pieces, validating it and
// joining the sample metadata. Loading through a Store is the usual path;
// this constructor exists for callers that build panels in memory.
func NewPanel(sampleIDs, rsids []string, genotypes map[string]string, samples []Sample) (*Panel, error) {
	p := &Panel{SampleIDs: sampleIDs, RSIDs: rsids, Genotypes: genotypes}
	if err := p.validate(); err != nil {
		return nil, err
	}
	p.attachSamples(samples)

	return p, nil
}

// attachSamples joins the metadata table onto the panel's sample order.
// Samples missing from the metadata keep an empty sub-population and are
// excluded from sub-population groupings.
func (p *Panel) attachSamples(samples []Sample) {
	byID := make(map[string]Sample, len(samples))
	for _, s := range samples {
		byID[s.ID] = s
	}

	p.subPopBySample = make([]string, len(p.SampleIDs))
	p.samplesBySub = make(map[string][]int)
	for i, id := range p.SampleIDs {
		s, ok := byID[id]
		if !ok {
			continue
		}
		p.subPopBySample[i] = s.Population
		p.samplesBySub[s.Population] = append(p.samplesBySub[s.Population], i)
	}
}

// validate rejects placeholder and internally inconsistent panels.
func (p *Panel) validate() error {
	if len(p.SampleIDs) == 0 || len(p.RSIDs) == 0 {
		return fmt.Errorf("placeholder panel (no samples or markers): %w", ErrUnavailable)
	}

	for _, rsid := range p.RSIDs {
		g, ok := p.Genotypes[rsid]
		if !ok {
			return fmt.Errorf("panel rsid %s has no genotype string: %w", rsid, ErrUnavailable)
		}
		if len(g) != len(p.SampleIDs) {
			return fmt.Errorf("panel rsid %s: %d genotype chars for %d samples: %w",
				rsid, len(g), len(p.SampleIDs), ErrUnavailable)
		}
	}

	return nil
}

// SampleCount returns the number of reference individuals.
func (p *Panel) SampleCount() int {
	return len(p.SampleIDs)
}

// Dosage returns the alternate-allele count for one sample at one rsid. The
// second return is false when the rsid is absent from the panel or the value
// is missing.
func (p *Panel) Dosage(rsid string, sample int) (int, bool) {
	g, ok := p.Genotypes[rsid]
	if !ok || sample < 0 || sample >= len(g) {
		return 0, false
	}

	switch g[sample] {
	case '0':
		return 0, true
	case '1':
		return 1, true
	case '2':
		return 2, true
	}

	return 0, false
}

// Has reports whether the panel covers an rsid.
func (p *Panel) Has(rsid string) bool {
	_, ok := p.Genotypes[rsid]

	return ok
}

// SubPopulation returns the sub-population code of one sample, or "" when the
// sample has no metadata.
func (p *Panel) SubPopulation(sample int) string {
	if sample < 0 || sample >= len(p.subPopBySample) {
		return ""
	}

	return p.subPopBySample[sample]
}

// SubPopulations returns the sub-population codes present in the panel,
// sorted.
func (p *Panel) SubPopulations() []string {
	out := make([]string, 0, len(p.samplesBySub))
	for sub := range p.samplesBySub {
		out = append(out, sub)
	}
	sort.Strings(out)

	return out
}

// SamplesInSubPopulation returns the sample indexes belonging to one
// sub-population.
func (p *Panel) SamplesInSubPopulation(subPopulation string) []int {
	return p.samplesBySub[subPopulation]
}

// PhasedPanel is the haplotype-encoded reference panel: two characters per
// sample per rsid ('0' ref, '1' alt, '9' missing), haplotypes interleaved in
// sample order.
type PhasedPanel struct {
	SampleIDs []string          `json:"sampleIds"`
	RSIDs     []string          `json:"rsids"`
	Genotypes map[string]string `json:"genotypes"`
}

func (p *PhasedPanel) validate() error {
	if len(p.SampleIDs) == 0 || len(p.RSIDs) == 0 {
		return fmt.Errorf("placeholder phased panel: %w", ErrUnavailable)
	}

	for _, rsid := range p.RSIDs {
		g, ok := p.Genotypes[rsid]
		if !ok {
			return fmt.Errorf("phased panel rsid %s has no haplotype string: %w", rsid, ErrUnavailable)
		}
		if len(g) != 2*len(p.SampleIDs) {
			return fmt.Errorf("phased panel rsid %s: %d haplotype chars for %d samples: %w",
				rsid, len(g), len(p.SampleIDs), ErrUnavailable)
		}
	}

	return nil
}

// HaplotypeCount returns the number of reference haplotypes (two per sample).
func (p *PhasedPanel) HaplotypeCount() int {
	return 2 * len(p.SampleIDs)
}

// HaplotypeAllele returns the allele character of one reference haplotype at
// one rsid. The second return is false when the rsid is absent or the value
// is missing.
func (p *PhasedPanel) HaplotypeAllele(rsid string, haplotype int) (byte, bool) {
	g, ok := p.Genotypes[rsid]
	if !ok || haplotype < 0 || haplotype >= len(g) {
		return 0, false
	}

	switch g[haplotype] {
	case '0', '1':
		return g[haplotype], true
	}

	return 0, false
}

// Has reports whether the phased panel covers an rsid.
func (p *PhasedPanel) Has(rsid string) bool {
	_, ok := p.Genotypes[rsid]

	return ok
}
