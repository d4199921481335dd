package localancestry

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/chrlen"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

// chr21 (grch37) is small enough to reason about window boundaries by hand.
const chr21Length = 48129895

// addMarkers appends n markers on the given chromosome, evenly spaced over
// [start, end], with the user's genotype chosen to favor one population:
// "CC" favors EUR (alt freq 0.05 there, 0.95 in AFR) and "TT" favors AFR.
func addMarkers(file *snpparser.ParsedFile, markers *[]aim.Marker, chromosome string, start, end, n int, genotype string) {
	step := (end - start) / n
	for i := 0; i < n; i++ {
		rsid := fmt.Sprintf("rs%s_%d_%d", chromosome, start, i)
		pos := start + i*step
		*markers = append(*markers, aim.Marker{
			RSID:       rsid,
			Chromosome: chromosome,
			Position:   pos,
			Ref:        "C",
			Alt:        "T",
			Frequencies: map[string]float64{
				"EUR": 0.05, "AFR": 0.95, "EAS": 0.5, "SAS": 0.5, "AMR": 0.5,
			},
		})
		file.SNPs[rsid] = snpparser.SNPGenotype{
			RSID: rsid, Chromosome: chromosome, Position: pos, Genotype: genotype,
		}
	}
}

func assertTiles(t *testing.T, segments []ancestry.Segment, length int) {
	t.Helper()

	if len(segments) == 0 {
		t.Fatal("no segments")
	}

	if segments[0].Start != 0 {
		t.Errorf("first segment starts at %d, want 0", segments[0].Start)
	}

	for i := 1; i < len(segments); i++ {
		if segments[i].Start != segments[i-1].End {
			t.Errorf("segments %d and %d are not contiguous: %d != %d",
				i-1, i, segments[i-1].End, segments[i].Start)
		}
	}

	if last := segments[len(segments)-1]; last.End != length {
		t.Errorf("last segment ends at %d, want %d", last.End, length)
	}

	for _, seg := range segments {
		if seg.Length() <= 0 {
			t.Errorf("empty or inverted segment: %+v", seg)
		}
		if math.IsNaN(seg.Confidence) || seg.Confidence < 0 || seg.Confidence > 1 {
			t.Errorf("confidence out of range: %+v", seg)
		}
	}
}

func TestWindowCallsSingleAncestry(t *testing.T) {
	file := &snpparser.ParsedFile{SNPs: make(map[string]snpparser.SNPGenotype)}
	var markers []aim.Marker
	addMarkers(file, &markers, "21", 1000000, 47000000, 40, "CC")

	engine := &Engine{Table: aim.NewTable(markers)}
	calls, err := engine.WindowCalls(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}

	segments := calls["21"]
	assertTiles(t, segments, chr21Length)

	for _, seg := range segments {
		if seg.Population != "EUR" {
			t.Errorf("expected EUR everywhere, got %+v", seg)
		}
	}
}

func TestWindowCallsNoMarkers(t *testing.T) {
	file := &snpparser.ParsedFile{SNPs: make(map[string]snpparser.SNPGenotype)}
	var markers []aim.Marker
	addMarkers(file, &markers, "21", 1000000, 47000000, 5, "--")

	engine := &Engine{Table: aim.NewTable(markers)}
	calls, err := engine.WindowCalls(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}

	if len(calls["21"]) != 0 {
		t.Errorf("no-call genotypes should produce no segments, got %+v", calls["21"])
	}
}

func TestHMMCallsTwoAncestries(t *testing.T) {
	file := &snpparser.ParsedFile{SNPs: make(map[string]snpparser.SNPGenotype)}
	var markers []aim.Marker
	addMarkers(file, &markers, "21", 10000000, 20000000, 6, "CC") // EUR half
	addMarkers(file, &markers, "21", 30000000, 40000000, 6, "TT") // AFR half

	global := &ancestry.Result{Proportions: map[string]float64{
		"EUR": 0.5, "AFR": 0.5,
	}}

	engine := &Engine{Table: aim.NewTable(markers)}
	calls, err := engine.HMMCalls(context.Background(), file, global)
	if err != nil {
		t.Fatal(err)
	}

	segments := calls["21"]
	assertTiles(t, segments, chr21Length)

	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %+v", segments)
	}

	if segments[0].Population != "EUR" || segments[1].Population != "AFR" {
		t.Errorf("populations: got %s then %s", segments[0].Population, segments[1].Population)
	}

	// The boundary must sit at the midpoint between the flanking markers.
	lastEUR := 10000000 + 5*(10000000/6)
	firstAFR := 30000000
	wantBoundary := (lastEUR + firstAFR) / 2
	if segments[0].End != wantBoundary {
		t.Errorf("boundary: got %d, want %d", segments[0].End, wantBoundary)
	}
}

func TestHMMFastPathEquivalence(t *testing.T) {
	file := &snpparser.ParsedFile{SNPs: make(map[string]snpparser.SNPGenotype)}
	var markers []aim.Marker
	addMarkers(file, &markers, "21", 1000000, 47000000, 20, "CC")

	global := &ancestry.Result{Proportions: map[string]float64{
		"EUR": 0.96, "AFR": 0.01, "EAS": 0.01, "SAS": 0.01, "AMR": 0.01,
	}}

	engine := &Engine{Table: aim.NewTable(markers)}
	calls, err := engine.HMMCalls(context.Background(), file, global)
	if err != nil {
		t.Fatal(err)
	}

	segments := calls["21"]
	if len(segments) != 1 {
		t.Fatalf("fast path should emit one segment, got %+v", segments)
	}

	seg := segments[0]
	if seg.Start != 0 || seg.End != chr21Length {
		t.Errorf("fast-path segment must span the chromosome: %+v", seg)
	}
	if seg.Population != "EUR" {
		t.Errorf("population: got %s", seg.Population)
	}
	if math.Abs(seg.Confidence-0.96) > 1e-9 {
		t.Errorf("confidence must equal the prior: got %f", seg.Confidence)
	}

	// The full Forward-Backward on the same inputs agrees: EUR-favoring
	// emissions with an overwhelming EUR prior keep the posterior argmax at
	// EUR for every marker.
	chromMarkers := engine.chromosomeMarkers(file, "21", hmmInformativeness)
	positions := make([]int, len(chromMarkers))
	logEmit := make([][]float64, len(chromMarkers))
	for i, m := range chromMarkers {
		positions[i] = m.position
		logEmit[i] = m.logEmit
	}
	logPrior := make([]float64, len(aim.Populations))
	prior := PriorVector(global)
	for i, p := range prior {
		logPrior[i] = math.Log(p)
	}

	post := Posteriors(positions, logEmit, logPrior)
	full := SegmentsFromPosteriors("21", positions, post, chr21Length, "")
	if len(full) != 1 || full[0].Population != "EUR" {
		t.Fatalf("full Forward-Backward disagrees with the fast path: %+v", full)
	}
	if math.Abs(full[0].Confidence-seg.Confidence) > 0.05 {
		t.Errorf("fast path confidence %f vs full %f", seg.Confidence, full[0].Confidence)
	}
}

func TestSwitchProbability(t *testing.T) {
	if got := SwitchProbability(1000000); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("1 Mb gap: got %g, want 0.01", got)
	}

	if got := SwitchProbability(100000000); got != 0.5 {
		t.Errorf("huge gap must cap at 0.5, got %g", got)
	}

	if got := SwitchProbability(0); got != 0 {
		t.Errorf("zero gap: got %g", got)
	}
}

func TestAssemblyDefault(t *testing.T) {
	engine := &Engine{Table: aim.NewTable(nil)}
	if engine.assembly() != chrlen.DefaultAssembly {
		t.Errorf("default assembly: got %s", engine.assembly())
	}
}
