// Package localancestry assigns ancestry along each chromosome rather than
// genome-wide. Two independent callers are provided: a sliding-window caller
// that is always available, and a hidden-Markov-model caller that smooths
// per-marker posteriors with a genetic-distance-aware transition model. They
// use different thresholds and fallbacks and are deliberately not unified;
// downstream consumers invoke and compare them separately.
package localancestry

import (
	"context"
	"fmt"

	"github.com/marseneaul/chromokin-sub000/aim"
	"github.com/marseneaul/chromokin-sub000/ancestry"
	"github.com/marseneaul/chromokin-sub000/chrlen"
	"github.com/marseneaul/chromokin-sub000/snpparser"
)

// Engine runs the per-chromosome ancestry callers against one AIM table.
type Engine struct {
	Table *aim.Table
	// Assembly selects the chromosome-length table; empty means
	// chrlen.DefaultAssembly.
	Assembly string
}

func (e *Engine) assembly() string {
	if e.Assembly == "" {
		return chrlen.DefaultAssembly
	}

	return e.Assembly
}

// chromosomeMarker is one informative marker on a chromosome: its position
// and the per-population emission log-likelihoods of the user's genotype.
type chromosomeMarker struct {
	position int
	logEmit  []float64
}

// chromosomeMarkers collects the informative markers for one chromosome, in
// ascending position order (the table guarantees the sort). Markers whose
// genotype is uninformative are excluded entirely rather than entered with a
// placeholder emission.
func (e *Engine) chromosomeMarkers(file *snpparser.ParsedFile, chromosome string, minInformativeness float64) []chromosomeMarker {
	var out []chromosomeMarker

	for _, m := range e.Table.ForChromosome(chromosome) {
		if m.Informativeness() < minInformativeness {
			continue
		}

		snp, ok := file.SNPs[m.RSID]
		if !ok {
			continue
		}

		liks, ok := ancestry.PopulationLikelihoods(&m, snp.Genotype)
		if !ok {
			continue
		}

		logEmit := make([]float64, len(liks))
		for i, lik := range liks {
			logEmit[i] = logOf(lik)
		}

		out = append(out, chromosomeMarker{position: m.Position, logEmit: logEmit})
	}

	return out
}

// chromosomeLengths returns the length table for the engine's assembly.
func (e *Engine) chromosomeLengths() (map[string]int, error) {
	lengths, err := chrlen.Lengths(e.assembly())
	if err != nil {
		return nil, fmt.Errorf("localancestry: %w", err)
	}

	return lengths, nil
}

// checkpoint honors caller cancellation between chromosomes.
func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
