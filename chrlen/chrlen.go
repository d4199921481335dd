// Package chrlen provides chromosome lengths for the assemblies consumer
// genotyping chips are aligned against. The embedded lookup tables are derived
// from the UCSC chrom.sizes files for each assembly and cover the autosomes
// plus X, Y, and MT.
package chrlen

import (
	"bytes"
	"embed"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/carbocation/pfx"
)

//go:embed lookups/*
var embeddedLookups embed.FS

// DefaultAssembly is what the major consumer chips currently report positions
// against.
const DefaultAssembly = "grch37"

// Lengths returns a map from chromosome name (without any "chr" prefix) to
// chromosome length in base pairs. Valid values for assembly are grch37 and
// grch38.
func Lengths(assembly string) (map[string]int, error) {
	fileBytes, err := embeddedLookups.ReadFile("lookups/" + assembly)
	if err != nil {
		return nil, fmt.Errorf("chrlen: unknown assembly %q: %w", assembly, err)
	}

	buf := bytes.NewReader(fileBytes)
	cr := csv.NewReader(buf)
	cr.Comma = '\t'
	entries, err := cr.ReadAll()
	if err != nil {
		return nil, pfx.Err(err)
	}

	lengths := make(map[string]int)
	header := make(map[string]int)

	for i, v := range entries {
		if i == 0 {
			for key, name := range v {
				header[name] = key
			}
			continue
		}

		end, err := strconv.Atoi(v[header["chromEnd"]])
		if err != nil {
			return nil, pfx.Err(err)
		}
		lengths[v[header["name"]]] = end
	}

	return lengths, nil
}

// Length returns the length of one chromosome within the given assembly.
func Length(assembly, chromosome string) (int, error) {
	lengths, err := Lengths(assembly)
	if err != nil {
		return 0, err
	}

	l, exists := lengths[chromosome]
	if !exists {
		return 0, fmt.Errorf("chrlen: assembly %s has no chromosome %q", assembly, chromosome)
	}

	return l, nil
}

// SortValue assigns each chromosome name an integer so that 1..22 come first
// in numeric order, followed by X, Y, and MT. Unknown names sort last.
func SortValue(chromosome string) int {
	if v, err := strconv.Atoi(chromosome); err == nil {
		return v
	}

	switch chromosome {
	case "X":
		return 23
	case "Y":
		return 24
	case "M", "MT":
		return 25
	}

	return 100
}
