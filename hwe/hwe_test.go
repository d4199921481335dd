package hwe

import (
	"math"
	"testing"
)

func TestGenotypeLikelihood(t *testing.T) {
	// q = 0.2, p = 0.8 at a C/T site
	cases := []struct {
		genotype string
		want     float64
		ok       bool
	}{
		{"CC", 0.64, true},
		{"CT", 0.32, true},
		{"TT", 0.04, true},
		{"C", 0.8, true},
		{"T", 0.2, true},
		{"--", 0, false},
		{"DD", 0, false},
		{"DI", 0, false},
		{"AG", 0, false}, // matches neither allele
	}

	for _, c := range cases {
		got, ok := GenotypeLikelihood(c.genotype, "C", "T", 0.2)
		if ok != c.ok {
			t.Errorf("%s: informative=%v, want %v", c.genotype, ok, c.ok)
			continue
		}
		if ok && math.Abs(got-c.want) > 1e-12 {
			t.Errorf("%s: got %f, want %f", c.genotype, got, c.want)
		}
	}
}

func TestGenotypeLikelihoodClamping(t *testing.T) {
	// A fixed allele must not produce a zero likelihood for the opposite
	// homozygote.
	got, ok := GenotypeLikelihood("TT", "C", "T", 0)
	if !ok {
		t.Fatal("expected an informative likelihood")
	}
	if got <= 0 {
		t.Errorf("clamping failed: got %g", got)
	}
	if want := MinFreq * MinFreq; math.Abs(got-want) > 1e-12 {
		t.Errorf("got %g, want %g", got, want)
	}
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{math.Log(0.25), math.Log(0.25), math.Log(0.5)})
	if math.Abs(got) > 1e-12 {
		t.Errorf("log-sum-exp over a simplex should be 0, got %g", got)
	}

	if LogSumExp(nil) != LogZero {
		t.Error("empty input should return the LogZero sentinel")
	}

	if got := LogAddExp(LogZero, LogZero); got != LogZero {
		t.Errorf("two sentinels should stay a sentinel, got %g", got)
	}
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float64{-1000001, -1000002, -1000000})

	var sum float64
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			t.Fatalf("softmax produced a non-finite value: %v", probs)
		}
		sum += p
	}

	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("softmax must sum to 1, got %f", sum)
	}

	if probs[2] < probs[0] || probs[0] < probs[1] {
		t.Errorf("softmax must preserve ordering: %v", probs)
	}
}
