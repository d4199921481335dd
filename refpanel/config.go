package refpanel

import (
	"github.com/kelseyhightower/envconfig"
)

// Config points the Store at its data files. Paths ending in .gz are
// transparently decompressed. Any path may be left empty, in which case the
// corresponding panel is reported unavailable and callers fall back to the
// non-panel algorithms.
type Config struct {
	// PanelPath is the 1000 Genomes dosage panel JSON.
	PanelPath string `envconfig:"CHROMOKIN_REFERENCE_PANEL"`
	// SamplesPath is the tab-separated sample→population metadata table.
	SamplesPath string `envconfig:"CHROMOKIN_REFERENCE_SAMPLES"`
	// PhasedPanelPath is the phased haplotype panel JSON.
	PhasedPanelPath string `envconfig:"CHROMOKIN_PHASED_PANEL"`
}

// ConfigFromEnv builds a Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
