package ancestry

// Segment is one contiguous run of a chromosome assigned to a single
// population. Start/End are a half-open [Start, End) interval in base pairs.
// Whole-coverage callers guarantee that a chromosome's segments are
// start-sorted, non-overlapping, and exactly tile [0, chromosome length).
//
// Haplotype is "" for unphased (diploid) calls and "A"/"B" for
// haplotype-resolved calls. The A/B labels are assigned independently per
// chromosome and do not identify a parent of origin. Subpopulation and
// SubConfidence are filled in only by reference-panel refinement.
type Segment struct {
	Chromosome    string
	Start         int
	End           int
	Population    string
	Category      string
	Confidence    float64
	Haplotype     string
	Subpopulation string
	SubConfidence float64
}

// Length returns the segment span in base pairs.
func (s Segment) Length() int {
	return s.End - s.Start
}
