// Package aim holds the ancestry-informative-marker (AIM) table: a curated
// set of variants whose allele frequencies differ strongly between the five
// continental reference populations. The table is produced offline and
// consumed here as static JSON; it is loaded once and shared read-only across
// every inference call.
package aim

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/carbocation/pfx"
	"gonum.org/v1/gonum/stat"

	"github.com/marseneaul/chromokin-sub000/chrlen"
)

// Populations lists the five continental super-populations, in the canonical
// order used throughout this module.
var Populations = []string{"EUR", "AFR", "EAS", "SAS", "AMR"}

// PopulationNames maps population codes to display categories.
var PopulationNames = map[string]string{
	"EUR": "European",
	"AFR": "African",
	"EAS": "East Asian",
	"SAS": "South Asian",
	"AMR": "Admixed American",
}

// Marker is one ancestry-informative variant. Frequencies holds the
// alternate-allele frequency per super-population.
type Marker struct {
	RSID        string             `json:"rsid"`
	Chromosome  string             `json:"chromosome"`
	Position    int                `json:"position"`
	Ref         string             `json:"ref"`
	Alt         string             `json:"alt"`
	Frequencies map[string]float64 `json:"frequencies"`
}

// Informativeness is the population standard deviation of this marker's
// alternate-allele frequencies across the five populations. Markers whose
// frequencies barely differ between populations carry almost no ancestry
// signal and are filtered by the estimators.
func (m *Marker) Informativeness() float64 {
	freqs := make([]float64, 0, len(Populations))
	for _, pop := range Populations {
		freqs = append(freqs, m.Frequencies[pop])
	}

	return stat.PopStdDev(freqs, nil)
}

// Dosage converts a normalized genotype string into an alternate-allele count
// (0, 1, or 2). The second return is false for no-calls, indel codes, and
// alleles matching neither ref nor alt. Hemizygous calls count as a single
// allele.
func (m *Marker) Dosage(genotype string) (int, bool) {
	if genotype == "" || genotype == "--" {
		return 0, false
	}

	count := 0
	for i := 0; i < len(genotype); i++ {
		switch string(genotype[i]) {
		case m.Ref:
		case m.Alt:
			count++
		default:
			return 0, false
		}
	}

	return count, true
}

// Table is the process-wide read-only AIM table.
type Table struct {
	markers []Marker
	byRSID  map[string]*Marker
	byChrom map[string][]Marker
}

// NewTable builds a Table from already-decoded markers. Per-chromosome marker
// lists are position-sorted here, once, because every HMM pass requires
// ascending positions.
func NewTable(markers []Marker) *Table {
	t := &Table{
		markers: markers,
		byRSID:  make(map[string]*Marker, len(markers)),
		byChrom: make(map[string][]Marker),
	}

	for i := range t.markers {
		m := &t.markers[i]
		t.byRSID[m.RSID] = m
		t.byChrom[m.Chromosome] = append(t.byChrom[m.Chromosome], *m)
	}

	for chrom := range t.byChrom {
		markers := t.byChrom[chrom]
		sort.Slice(markers, func(i, j int) bool {
			return markers[i].Position < markers[j].Position
		})
	}

	return t
}

// Load reads the AIM table from its static JSON file, a flat array of marker
// records.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("aim: %w", err)
	}
	defer f.Close()

	var markers []Marker
	if err := json.NewDecoder(f).Decode(&markers); err != nil {
		return nil, pfx.Err(err)
	}

	return NewTable(markers), nil
}

// Len returns the number of markers in the table.
func (t *Table) Len() int {
	return len(t.markers)
}

// Marker looks a marker up by rsid.
func (t *Table) Marker(rsid string) (*Marker, bool) {
	m, ok := t.byRSID[rsid]

	return m, ok
}

// Markers returns all markers in table order.
func (t *Table) Markers() []Marker {
	return t.markers
}

// Chromosomes returns the chromosomes covered by the table in natural order
// (1..22, X, Y, MT).
func (t *Table) Chromosomes() []string {
	out := make([]string, 0, len(t.byChrom))
	for chrom := range t.byChrom {
		out = append(out, chrom)
	}
	sort.Slice(out, func(i, j int) bool {
		return chrlen.SortValue(out[i]) < chrlen.SortValue(out[j])
	})

	return out
}

// ForChromosome returns the table's markers on one chromosome, sorted by
// ascending position.
func (t *Table) ForChromosome(chromosome string) []Marker {
	return t.byChrom[chromosome]
}
