package refpanel

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/carbocation/pfx"
	"github.com/gocarina/gocsv"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Store owns the lazily loaded reference panels. Construct one Store per
// process and pass it into every panel-backed inference call; there is no
// module-level singleton. Concurrent first accesses coalesce into a single
// load, and a failed load is not cached, so a later call retries.
type Store struct {
	cfg Config

	group singleflight.Group

	mu     sync.Mutex
	panel  *Panel
	phased *PhasedPanel
}

// NewStore builds a Store over the given data files. Nothing is read until
// the first Panel or PhasedPanel call.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Panel returns the dosage panel, loading it on first use.
func (s *Store) Panel(ctx context.Context) (*Panel, error) {
	s.mu.Lock()
	if s.panel != nil {
		defer s.mu.Unlock()
		return s.panel, nil
	}
	s.mu.Unlock()

	v, err := s.do(ctx, "panel", s.loadPanelOnce)
	if err != nil {
		return nil, err
	}

	return v.(*Panel), nil
}

// loadPanelOnce runs inside the singleflight group. A caller can reach the
// group after an earlier flight has already completed; re-checking under the
// lock keeps the load exactly-once.
func (s *Store) loadPanelOnce() (interface{}, error) {
	s.mu.Lock()
	if s.panel != nil {
		defer s.mu.Unlock()
		return s.panel, nil
	}
	s.mu.Unlock()

	p, err := loadPanel(s.cfg.PanelPath, s.cfg.SamplesPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.panel = p
	s.mu.Unlock()

	return p, nil
}

// PhasedPanel returns the haplotype panel, loading it on first use.
func (s *Store) PhasedPanel(ctx context.Context) (*PhasedPanel, error) {
	s.mu.Lock()
	if s.phased != nil {
		defer s.mu.Unlock()
		return s.phased, nil
	}
	s.mu.Unlock()

	v, err := s.do(ctx, "phased", s.loadPhasedPanelOnce)
	if err != nil {
		return nil, err
	}

	return v.(*PhasedPanel), nil
}

func (s *Store) loadPhasedPanelOnce() (interface{}, error) {
	s.mu.Lock()
	if s.phased != nil {
		defer s.mu.Unlock()
		return s.phased, nil
	}
	s.mu.Unlock()

	p, err := loadPhasedPanel(s.cfg.PhasedPanelPath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.phased = p
	s.mu.Unlock()

	return p, nil
}

// do runs fn through the singleflight group while honoring context
// cancellation for the waiting caller. The load itself is not aborted: a
// result that arrives after cancellation is still cached for the next caller.
func (s *Store) do(ctx context.Context, key string, fn func() (interface{}, error)) (interface{}, error) {
	ch := s.group.DoChan(key, fn)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &gzipReadCloser{gz: gz, file: f}, nil
}

type gzipReadCloser struct {
	gz   *pgzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.file.Close()
	if gzErr != nil {
		return gzErr
	}

	return fErr
}

func loadPanel(panelPath, samplesPath string) (*Panel, error) {
	if panelPath == "" {
		return nil, fmt.Errorf("no dosage panel configured: %w", ErrUnavailable)
	}

	start := time.Now()

	r, err := openMaybeGzip(panelPath)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	defer r.Close()

	var panel Panel
	if err := json.NewDecoder(r).Decode(&panel); err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", panelPath, err, ErrUnavailable)
	}

	if err := panel.validate(); err != nil {
		return nil, err
	}

	samples, err := loadSamples(samplesPath)
	if err != nil {
		return nil, err
	}
	panel.attachSamples(samples)

	log.WithFields(log.Fields{
		"samples": panel.SampleCount(),
		"markers": len(panel.RSIDs),
		"subpops": len(panel.SubPopulations()),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("loaded reference panel")

	return &panel, nil
}

func loadPhasedPanel(path string) (*PhasedPanel, error) {
	if path == "" {
		return nil, fmt.Errorf("no phased panel configured: %w", ErrUnavailable)
	}

	start := time.Now()

	r, err := openMaybeGzip(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	defer r.Close()

	var panel PhasedPanel
	if err := json.NewDecoder(r).Decode(&panel); err != nil {
		return nil, fmt.Errorf("decoding %s: %v: %w", path, err, ErrUnavailable)
	}

	if err := panel.validate(); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"haplotypes": panel.HaplotypeCount(),
		"markers":    len(panel.RSIDs),
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("loaded phased reference panel")

	return &panel, nil
}

// loadSamples reads the tab-separated sample metadata table (sample, pop,
// super_pop, gender).
func loadSamples(path string) ([]Sample, error) {
	if path == "" {
		return nil, fmt.Errorf("no sample metadata configured: %w", ErrUnavailable)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	cr.LazyQuotes = true

	var samples []Sample
	if err := gocsv.UnmarshalCSV(cr, &samples); err != nil {
		return nil, pfx.Err(fmt.Errorf("decoding %s: %v: %w", path, err, ErrUnavailable))
	}

	return samples, nil
}
