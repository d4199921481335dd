package refpanel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

const panelJSON = `{
	"sampleIds": ["HG00096", "HG00097", "NA18525", "NA19017"],
	"rsids": ["rs1", "rs2"],
	"genotypes": {
		"rs1": "0129",
		"rs2": "2101"
	}
}`

const samplesTSV = "sample\tpop\tsuper_pop\tgender\n" +
	"HG00096\tGBR\tEUR\tmale\n" +
	"HG00097\tGBR\tEUR\tfemale\n" +
	"NA18525\tCHB\tEAS\tfemale\n" +
	"NA19017\tLWK\tAFR\tfemale\n"

const phasedJSON = `{
	"sampleIds": ["HG00096", "HG00097"],
	"rsids": ["rs1"],
	"genotypes": {
		"rs1": "0119"
	}
}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func testStore(t *testing.T) *Store {
	t.Helper()

	return NewStore(Config{
		PanelPath:       writeFixture(t, "panel.json", panelJSON),
		SamplesPath:     writeFixture(t, "samples.tsv", samplesTSV),
		PhasedPanelPath: writeFixture(t, "phased.json", phasedJSON),
	})
}

func TestPanelLoad(t *testing.T) {
	store := testStore(t)

	panel, err := store.Panel(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if panel.SampleCount() != 4 {
		t.Errorf("samples: got %d", panel.SampleCount())
	}

	if d, ok := panel.Dosage("rs1", 1); !ok || d != 1 {
		t.Errorf("rs1 sample 1: got (%d,%v)", d, ok)
	}

	if _, ok := panel.Dosage("rs1", 3); ok {
		t.Error("missing dosage (9) should not be ok")
	}

	if got := panel.SubPopulation(2); got != "CHB" {
		t.Errorf("sample 2 sub-population: got %q", got)
	}

	if got := len(panel.SamplesInSubPopulation("GBR")); got != 2 {
		t.Errorf("GBR samples: got %d", got)
	}

	if got := SuperPopulationOf("LWK"); got != "AFR" {
		t.Errorf("LWK super-population: got %q", got)
	}
}

func TestPanelLoadCoalescesAndCaches(t *testing.T) {
	store := testStore(t)

	var wg sync.WaitGroup
	panels := make([]*Panel, 8)
	for i := 0; i < len(panels); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := store.Panel(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			panels[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range panels[1:] {
		if p != panels[0] {
			t.Fatal("concurrent loads must return the same cached panel")
		}
	}
}

func TestLateFlightReturnsCachedPanel(t *testing.T) {
	store := testStore(t)

	first, err := store.Panel(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// A caller that raced past the nil check can start a fresh flight after
	// the first load has finished. Removing the file makes any second read
	// fail, so only the cached panel can come back.
	if err := os.Remove(store.cfg.PanelPath); err != nil {
		t.Fatal(err)
	}

	v, err := store.loadPanelOnce()
	if err != nil {
		t.Fatalf("late flight must reuse the cached panel: %v", err)
	}
	if v.(*Panel) != first {
		t.Error("late flight returned a distinct panel")
	}

	again, err := store.Panel(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("cached panel changed identity")
	}
}

func TestFailedLoadDoesNotPoisonCache(t *testing.T) {
	dir := t.TempDir()
	panelPath := filepath.Join(dir, "panel.json")

	store := NewStore(Config{
		PanelPath:   panelPath,
		SamplesPath: writeFixture(t, "samples.tsv", samplesTSV),
	})

	if _, err := store.Panel(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable for a missing file, got %v", err)
	}

	// The panel appears later; a retry must succeed.
	if err := os.WriteFile(panelPath, []byte(panelJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := store.Panel(context.Background()); err != nil {
		t.Fatalf("retry after failed load: %v", err)
	}
}

func TestPlaceholderPanelUnavailable(t *testing.T) {
	store := NewStore(Config{
		PanelPath:   writeFixture(t, "panel.json", `{"sampleIds": [], "rsids": [], "genotypes": {}}`),
		SamplesPath: writeFixture(t, "samples.tsv", samplesTSV),
	})

	if _, err := store.Panel(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("placeholder panel should be unavailable, got %v", err)
	}
}

func TestUnconfiguredPhasedPanel(t *testing.T) {
	store := NewStore(Config{})

	if _, err := store.PhasedPanel(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestPhasedPanelLoad(t *testing.T) {
	store := testStore(t)

	panel, err := store.PhasedPanel(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if panel.HaplotypeCount() != 4 {
		t.Errorf("haplotypes: got %d", panel.HaplotypeCount())
	}

	if a, ok := panel.HaplotypeAllele("rs1", 1); !ok || a != '1' {
		t.Errorf("rs1 haplotype 1: got (%c,%v)", a, ok)
	}

	if _, ok := panel.HaplotypeAllele("rs1", 3); ok {
		t.Error("missing haplotype allele (9) should not be ok")
	}
}
