package ephys

import (
	"errors"
	"math"
	"testing"
)

func TestNewSegmentValidatesSampleCount(t *testing.T) {
	samples := make([]float64, 2000)

	seg, err := NewSegment("rec1", "Ch1", 1000, 2, 4, samples)
	if err != nil {
		t.Fatalf("valid segment rejected: %v", err)
	}
	if seg.Len() != 2000 || seg.Duration() != 2 || seg.Nyquist() != 500 {
		t.Fatalf("segment accessors wrong: len=%d dur=%g nyq=%g", seg.Len(), seg.Duration(), seg.Nyquist())
	}

	if _, err := NewSegment("rec1", "Ch1", 1000, 2, 4, samples[:1999]); !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("short sample slice: got %v, want ErrMalformedSegment", err)
	}
	if _, err := NewSegment("rec1", "Ch1", 0, 2, 4, samples); !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("zero rate: got %v, want ErrMalformedSegment", err)
	}
	if _, err := NewSegment("rec1", "Ch1", 1000, 4, 4, samples); !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("empty time range: got %v, want ErrMalformedSegment", err)
	}
}

func TestSegmentOverlap(t *testing.T) {
	a, _ := NewSegment("rec1", "Ch1", 100, 0, 10, make([]float64, 1000))
	b, _ := NewSegment("rec1", "Ch2", 100, 4, 14, make([]float64, 1000))

	got, err := a.Overlap(b)
	if err != nil {
		t.Fatalf("overlap failed: %v", err)
	}
	if got.Start != 4 || got.End != 10 || got.Len() != 600 {
		t.Fatalf("overlap wrong: [%g, %g] with %d samples", got.Start, got.End, got.Len())
	}

	c, _ := NewSegment("rec1", "Ch3", 100, 20, 30, make([]float64, 1000))
	if _, err := a.Overlap(c); !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("disjoint overlap: got %v, want ErrMalformedSegment", err)
	}

	d, _ := NewSegment("rec1", "Ch4", 200, 0, 5, make([]float64, 1000))
	if _, err := a.Overlap(d); !errors.Is(err, ErrMalformedSegment) {
		t.Fatalf("rate mismatch: got %v, want ErrMalformedSegment", err)
	}
}

func TestBandValidation(t *testing.T) {
	if _, err := NewBand(8, 4); err == nil {
		t.Fatal("inverted band accepted")
	}
	if _, err := NewBand(-1, 4); err == nil {
		t.Fatal("negative low edge accepted")
	}

	b, err := NewBand(4, 8)
	if err != nil {
		t.Fatalf("theta band rejected: %v", err)
	}
	if b.Center() != 6 || b.Width() != 4 {
		t.Fatalf("band accessors wrong: center=%g width=%g", b.Center(), b.Width())
	}

	if err := b.CheckNyquist(1000); err != nil {
		t.Fatalf("band under Nyquist rejected: %v", err)
	}
	if err := b.CheckNyquist(10); !errors.Is(err, ErrFrequencyRange) {
		t.Fatalf("band above Nyquist: got %v, want ErrFrequencyRange", err)
	}
}

func TestOrderedBandsRespectsNyquist(t *testing.T) {
	names, bands := OrderedBands(2000)
	if len(names) != len(BandOrder) || len(bands) != len(names) {
		t.Fatalf("expected all %d bands at 2 kHz, got %d", len(BandOrder), len(names))
	}

	// At 100 Hz the gamma bands no longer fit under Nyquist (50 Hz).
	names, _ = OrderedBands(100)
	for _, n := range names {
		if n == "Low Gamma" || n == "High Gamma" {
			t.Fatalf("band %q should be excluded at 100 Hz", n)
		}
	}
	if math.Abs(DefaultBands[names[len(names)-1]].High-30) > 1e-12 {
		t.Fatalf("highest surviving band should be Beta, got %q", names[len(names)-1])
	}
}
