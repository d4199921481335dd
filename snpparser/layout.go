package snpparser

// Source identifies which consumer genotyping vendor produced a raw export
// file.
type Source string

const (
	TwentyThreeAndMe Source = "23andme"
	AncestryDNA      Source = "ancestrydna"
)

// Layout describes the column structure of one vendor's raw export. 23andMe
// files carry the genotype in a single column; AncestryDNA splits it across
// two allele columns.
type Layout struct {
	Source        Source
	Columns       int
	ColRSID       int
	ColChromosome int
	ColPosition   int
	ColGenotype   int
	ColAllele1    int
	ColAllele2    int
}

var Layouts = map[Source]Layout{
	TwentyThreeAndMe: {
		Source:        TwentyThreeAndMe,
		Columns:       4,
		ColRSID:       0,
		ColChromosome: 1,
		ColPosition:   2,
		ColGenotype:   3,
		ColAllele1:    -1,
		ColAllele2:    -1,
	},
	AncestryDNA: {
		Source:        AncestryDNA,
		Columns:       5,
		ColRSID:       0,
		ColChromosome: 1,
		ColPosition:   2,
		ColGenotype:   -1,
		ColAllele1:    3,
		ColAllele2:    4,
	},
}
