// Package snpparser decodes raw genotype exports from consumer DNA services
// (23andMe and AncestryDNA) into a normalized rsid-keyed genotype map. Parsing
// is deliberately forgiving: malformed lines are counted and skipped rather
// than failing the whole file, because real exports routinely contain oddball
// rows.
package snpparser

import (
	"bufio"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/carbocation/pfx"
	log "github.com/sirupsen/logrus"
)

// SNPGenotype is one genotyped marker from a raw export. Position is 1-based.
// Genotype is normalized: "--" for no-calls, a single letter for hemizygous
// calls, an alphabetically sorted two-letter pair for diploid calls, and
// "DD"/"DI"/"II" for indel calls.
type SNPGenotype struct {
	RSID       string
	Chromosome string
	Position   int
	Genotype   string
}

// ParsedFile is the outcome of parsing one raw export. SNPs is keyed by rsid.
// Callers must treat a ParsedFile as immutable once built.
type ParsedFile struct {
	SNPs         map[string]SNPGenotype
	Source       Source
	Generated    time.Time
	SkippedLines int
}

// MarkerCount returns the number of successfully parsed markers.
func (p *ParsedFile) MarkerCount() int {
	return len(p.SNPs)
}

// RSIDs returns the parsed rsids in sorted order, so that downstream
// estimators iterate deterministically.
func (p *ParsedFile) RSIDs() []string {
	out := make([]string, 0, len(p.SNPs))
	for rsid := range p.SNPs {
		out = append(out, rsid)
	}
	sort.Strings(out)

	return out
}

// Parse reads a raw export and produces a normalized genotype map. The vendor
// is detected from the header or from column counts, defaulting to 23andMe.
// An empty input yields an empty (non-nil) map.
func Parse(r io.Reader) (*ParsedFile, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var comments []string
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			comments = append(comments, line)
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, pfx.Err(err)
	}

	out := &ParsedFile{
		SNPs:      make(map[string]SNPGenotype),
		Source:    sniffSource(comments, lines),
		Generated: sniffTimestamp(comments),
	}
	layout := Layouts[out.Source]

	for _, line := range lines {
		if isHeaderLine(line) {
			continue
		}

		snp, ok := parseLine(line, layout)
		if !ok {
			out.SkippedLines++
			continue
		}
		out.SNPs[snp.RSID] = snp
	}

	if out.SkippedLines > 0 {
		log.WithFields(log.Fields{
			"source":  out.Source,
			"skipped": out.SkippedLines,
			"parsed":  len(out.SNPs),
		}).Warn("skipped malformed lines in raw genotype export")
	}

	return out, nil
}

func parseLine(line string, layout Layout) (SNPGenotype, bool) {
	fields := splitFields(line)
	if len(fields) < layout.Columns {
		return SNPGenotype{}, false
	}

	rsid := strings.TrimSpace(fields[layout.ColRSID])
	if rsid == "" {
		return SNPGenotype{}, false
	}

	pos, err := strconv.Atoi(strings.TrimSpace(fields[layout.ColPosition]))
	if err != nil || pos < 0 {
		return SNPGenotype{}, false
	}

	var genotype string
	if layout.ColGenotype >= 0 {
		genotype = NormalizeGenotype(fields[layout.ColGenotype])
	} else {
		genotype = NormalizeAllelePair(fields[layout.ColAllele1], fields[layout.ColAllele2])
	}

	return SNPGenotype{
		RSID:       rsid,
		Chromosome: NormalizeChromosome(fields[layout.ColChromosome]),
		Position:   pos,
		Genotype:   genotype,
	}, true
}

// splitFields reads one data line as a tab-separated CSV record. LazyQuotes
// tolerates the quoted allele fields some AncestryDNA exports emit, so `"G"`
// comes back as the bare allele.
func splitFields(line string) []string {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	fields, err := cr.Read()
	if err == nil && len(fields) > 1 {
		return fields
	}

	// Some third-party conversions are whitespace-delimited rather than
	// tab-delimited.
	return strings.Fields(line)
}

func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)

	return strings.HasPrefix(lower, "rsid")
}

// sniffSource detects the vendor. The AncestryDNA export announces itself in
// its comment block and uses 5 columns; anything else is treated as 23andMe.
func sniffSource(comments, lines []string) Source {
	for _, c := range comments {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "ancestrydna") || strings.Contains(lower, "ancestry.com") {
			return AncestryDNA
		}
		if strings.Contains(lower, "23andme") {
			return TwentyThreeAndMe
		}
	}

	for _, line := range lines {
		fields := splitFields(line)
		if isHeaderLine(line) {
			if len(fields) >= 5 {
				return AncestryDNA
			}
			return TwentyThreeAndMe
		}
		if len(fields) >= 5 {
			return AncestryDNA
		}
		if len(fields) == 4 {
			return TwentyThreeAndMe
		}
	}

	return TwentyThreeAndMe
}

// sniffTimestamp extracts the generation time that both vendors write into
// their comment headers. A missing or unparseable timestamp yields the zero
// time; it is metadata, not required for inference.
func sniffTimestamp(comments []string) time.Time {
	for _, c := range comments {
		candidate := ""
		if idx := strings.Index(c, "generated by 23andMe at:"); idx >= 0 {
			candidate = c[idx+len("generated by 23andMe at:"):]
		} else if idx := strings.Index(c, "Timestamp:"); idx >= 0 {
			candidate = c[idx+len("Timestamp:"):]
		}

		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}

		if ts, err := dateparse.ParseAny(candidate); err == nil {
			return ts
		}
	}

	return time.Time{}
}
