package phasing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/refpanel"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

// fixture builds n markers on chromosome 21 with a phased panel of two
// samples (four haplotypes): two all-reference haplotypes and two
// all-alternate haplotypes.
func fixture(t *testing.T, n int, genotype string) (*snpparser.ParsedFile, *aim.Table, *refpanel.PhasedPanel) {
	t.Helper()

	file := &snpparser.ParsedFile{SNPs: make(map[string]snpparser.SNPGenotype)}
	markers := make([]aim.Marker, 0, n)
	rsids := make([]string, 0, n)
	genotypes := make(map[string]string, n)

	for i := 0; i < n; i++ {
		rsid := fmt.Sprintf("rs%d", i+1)
		pos := 1000000 + i*1000000
		markers = append(markers, aim.Marker{
			RSID:       rsid,
			Chromosome: "21",
			Position:   pos,
			Ref:        "C",
			Alt:        "T",
			Frequencies: map[string]float64{
				"EUR": 0.05, "AFR": 0.95, "EAS": 0.5, "SAS": 0.5, "AMR": 0.5,
			},
		})
		file.SNPs[rsid] = snpparser.SNPGenotype{RSID: rsid, Chromosome: "21", Position: pos, Genotype: genotype}
		rsids = append(rsids, rsid)
		// sample 0 carries haplotypes 0/0, sample 1 carries 1/1
		genotypes[rsid] = "0011"
	}

	panel := &refpanel.PhasedPanel{
		SampleIDs: []string{"HG1", "HG2"},
		RSIDs:     rsids,
		Genotypes: genotypes,
	}

	return file, aim.NewTable(markers), panel
}

func TestPhaseAllHomozygous(t *testing.T) {
	file, table, panel := fixture(t, 10, "CC")

	res, err := Phase(context.Background(), file, table, panel)
	if err != nil {
		t.Fatal(err)
	}

	if res.Stats.MarkersPhased != 10 || res.Stats.Homozygous != 10 || res.Stats.Heterozygous != 0 {
		t.Errorf("stats: %+v", res.Stats)
	}

	if res.Stats.MeanConfidence != 1.0 {
		t.Errorf("mean confidence: got %f, want 1.0", res.Stats.MeanConfidence)
	}

	if res.Stats.SwitchErrorEstimate != 0 {
		t.Errorf("switch error: got %f, want 0", res.Stats.SwitchErrorEstimate)
	}

	for rsid, haps := range res.Haplotypes {
		if haps[0] != "C" || haps[1] != "C" {
			t.Errorf("%s: got %v", rsid, haps)
		}
	}
}

func TestPhaseHeterozygousConsistency(t *testing.T) {
	file, table, panel := fixture(t, 10, "CT")

	res, err := Phase(context.Background(), file, table, panel)
	if err != nil {
		t.Fatal(err)
	}

	if res.Stats.Heterozygous != 10 {
		t.Fatalf("het count: %+v", res.Stats)
	}

	// With perfectly consistent reference haplotypes, every het site must be
	// assigned the same way: one haplotype collects all C's, the other all
	// T's.
	var hapA []string
	for i := 0; i < 10; i++ {
		rsid := fmt.Sprintf("rs%d", i+1)
		haps, ok := res.Haplotypes[rsid]
		if !ok {
			t.Fatalf("missing %s", rsid)
		}
		if haps[0] == haps[1] {
			t.Fatalf("%s: het site resolved to identical alleles %v", rsid, haps)
		}
		hapA = append(hapA, haps[0])
	}

	first := hapA[0]
	for i, a := range hapA {
		if a != first {
			t.Errorf("haplotype A switches allele at marker %d: %v", i, hapA)
		}
	}

	// Later markers are anchored by earlier ones and must be confidently
	// phased.
	if res.Confidence["rs10"] <= 0.9 {
		t.Errorf("rs10 confidence: got %f", res.Confidence["rs10"])
	}

	if res.Stats.SwitchErrorEstimate < 0 || res.Stats.SwitchErrorEstimate >= 0.5 {
		t.Errorf("switch error estimate out of range: %f", res.Stats.SwitchErrorEstimate)
	}
}

func TestPhaseMissingGenotypesExcluded(t *testing.T) {
	file, table, panel := fixture(t, 5, "CC")
	file.SNPs["rs3"] = snpparser.SNPGenotype{RSID: "rs3", Chromosome: "21", Position: 3000000, Genotype: "--"}

	res, err := Phase(context.Background(), file, table, panel)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := res.Haplotypes["rs3"]; ok {
		t.Error("missing genotype must be excluded from the phasing output")
	}

	if res.Stats.MarkersPhased != 4 {
		t.Errorf("markers phased: got %d, want 4", res.Stats.MarkersPhased)
	}
}

func TestPhaseWithoutPanel(t *testing.T) {
	file, table, _ := fixture(t, 3, "CC")

	if _, err := Phase(context.Background(), file, table, nil); !errors.Is(err, refpanel.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPhasedAncestry(t *testing.T) {
	file, table, panel := fixture(t, 10, "CC")

	res, err := Phase(context.Background(), file, table, panel)
	if err != nil {
		t.Fatal(err)
	}

	global := &ancestry.Result{Proportions: map[string]float64{"EUR": 0.6, "AFR": 0.4}}

	painted, err := PhasedAncestry(context.Background(), res, table, global, "")
	if err != nil {
		t.Fatal(err)
	}

	const chr21Length = 48129895

	for hap, segs := range map[string][]ancestry.Segment{
		"A": painted.HaplotypeA["21"],
		"B": painted.HaplotypeB["21"],
	} {
		if len(segs) == 0 {
			t.Fatalf("haplotype %s: no segments", hap)
		}

		if segs[0].Start != 0 || segs[len(segs)-1].End != chr21Length {
			t.Errorf("haplotype %s does not tile the chromosome: %+v", hap, segs)
		}
		for i := 1; i < len(segs); i++ {
			if segs[i].Start != segs[i-1].End {
				t.Errorf("haplotype %s has a gap or overlap at segment %d", hap, i)
			}
		}

		for _, seg := range segs {
			if seg.Haplotype != hap {
				t.Errorf("segment not tagged %s: %+v", hap, seg)
			}
			if seg.Population != "EUR" {
				t.Errorf("all-reference haplotype should paint EUR: %+v", seg)
			}
			if math.IsNaN(seg.Confidence) {
				t.Errorf("NaN confidence: %+v", seg)
			}
		}
	}
}

func TestPhasedAncestrySparseChromosomeFallsBack(t *testing.T) {
	file, table, panel := fixture(t, 1, "CC")

	res, err := Phase(context.Background(), file, table, panel)
	if err != nil {
		t.Fatal(err)
	}

	global := &ancestry.Result{Proportions: map[string]float64{
		"EAS": 0.7, "EUR": 0.3,
	}}

	painted, err := PhasedAncestry(context.Background(), res, table, global, "grch37")
	if err != nil {
		t.Fatal(err)
	}

	segs := painted.HaplotypeA["21"]
	if len(segs) != 1 {
		t.Fatalf("expected one fallback segment, got %+v", segs)
	}

	seg := segs[0]
	if seg.Population != "EAS" {
		t.Errorf("fallback must come from the prior: %+v", seg)
	}
	if !strings.HasPrefix(seg.Category, "East") {
		t.Errorf("category: %+v", seg)
	}
	if math.Abs(seg.Confidence-0.7/(0.7+0.3+3e-6)) > 1e-6 {
		t.Errorf("fallback confidence should be the renormalized prior: %f", seg.Confidence)
	}
}
