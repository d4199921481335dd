package snpparser

import "strings"

// NormalizeChromosome strips any "chr" prefix and maps the numeric sex and
// mitochondrial codes used by some chips (23/24/25) onto X/Y/MT.
func NormalizeChromosome(chromosome string) string {
	c := strings.TrimSpace(chromosome)
	if len(c) > 3 && strings.EqualFold(c[:3], "chr") {
		c = c[3:]
	}
	c = strings.ToUpper(c)

	switch c {
	case "23":
		return "X"
	case "24":
		return "Y"
	case "25", "M":
		return "MT"
	}

	return c
}

// NormalizeGenotype canonicalizes a genotype call string. Diploid pairs are
// sorted alphabetically so that "GA" and "AG" compare equal; blank and "00"
// calls become "--"; hemizygous single letters and indel codes (D/I) pass
// through.
func NormalizeGenotype(genotype string) string {
	g := strings.ToUpper(strings.TrimSpace(genotype))

	switch g {
	case "", "0", "00", "--":
		return "--"
	}

	if len(g) == 2 {
		if g[0] > g[1] {
			g = string([]byte{g[1], g[0]})
		}
	}

	return g
}

// NormalizeAllelePair combines AncestryDNA's two allele columns into the same
// canonical genotype form that NormalizeGenotype produces. A "0" allele means
// that allele was not called: both missing is a no-call, one missing is a
// hemizygous call.
func NormalizeAllelePair(allele1, allele2 string) string {
	a1 := strings.ToUpper(strings.TrimSpace(allele1))
	a2 := strings.ToUpper(strings.TrimSpace(allele2))

	missing := func(a string) bool { return a == "" || a == "0" || a == "-" }

	switch {
	case missing(a1) && missing(a2):
		return "--"
	case missing(a1):
		return a2
	case missing(a2):
		return a1
	}

	return NormalizeGenotype(a1 + a2)
}
