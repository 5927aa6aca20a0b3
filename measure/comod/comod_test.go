package comod

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Tousak/spectral-analysis/ephys"
	"github.com/Tousak/spectral-analysis/measure/pac"
)

const testRate = 1000.0

func coupledSegment(t *testing.T) *ephys.Segment {
	t.Helper()

	n := int(10 * testRate)
	samples := make([]float64, n)
	for i := range samples {
		ts := float64(i) / testRate
		slow := math.Sin(2 * math.Pi * 6 * ts)
		samples[i] = slow + 0.4*(0.5+0.5*slow)*math.Sin(2*math.Pi*60*ts)
	}

	seg, err := ephys.NewSegment("rec", "Ch1", testRate, 0, 10, samples)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}

	return seg
}

func TestBuildGridShape(t *testing.T) {
	seg := coupledSegment(t)

	phaseBands := []ephys.Band{{Low: 4, High: 8}, {Low: 8, High: 13}}
	ampBands := []ephys.Band{{Low: 30, High: 80}, {Low: 80, High: 150}, {Low: 150, High: 300}}

	m, err := Build(context.Background(), seg, phaseBands, ampBands)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	if len(m.MI) != 2 {
		t.Fatalf("got %d rows, want 2", len(m.MI))
	}
	for i, row := range m.MI {
		if len(row) != 3 {
			t.Fatalf("row %d has %d cells, want 3", i, len(row))
		}
		for j, v := range row {
			if math.IsNaN(v) || v < 0 || v > 1 {
				t.Fatalf("cell [%d][%d] = %g out of range", i, j, v)
			}
		}
	}

	// The 6 Hz phase modulates the 60 Hz amplitude: the theta x low-gamma
	// cell dominates its row.
	if m.MI[0][0] <= m.MI[0][1] || m.MI[0][0] <= m.MI[0][2] {
		t.Fatalf("theta x low-gamma MI %g not dominant in row %v", m.MI[0][0], m.MI[0])
	}
}

func TestBuildMatchesDirectComputation(t *testing.T) {
	seg := coupledSegment(t)

	phaseBand := ephys.Band{Low: 4, High: 8}
	ampBand := ephys.Band{Low: 30, High: 80}

	m, err := Build(context.Background(), seg, []ephys.Band{phaseBand}, []ephys.Band{ampBand})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	ex := pac.NewExtractor(pac.ExtractConfig{})
	ph, err := ex.Extract(seg, phaseBand)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	am, err := ex.Extract(seg, ampBand)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want, err := pac.ModulationIndex(ph.Phase, am.Amp, pac.DefaultPhaseBins)
	if err != nil {
		t.Fatalf("direct MI: %v", err)
	}

	if m.MI[0][0] != want {
		t.Fatalf("1x1 grid MI %g differs from direct %g", m.MI[0][0], want)
	}
}

func TestBuildRepeatedOnSameContext(t *testing.T) {
	seg := coupledSegment(t)
	ctx := context.Background()

	phaseBands := []ephys.Band{{Low: 4, High: 8}}
	ampBands := []ephys.Band{{Low: 30, High: 80}}

	// Both internal stages and repeated builds must leave the caller's
	// context usable.
	for i := 0; i < 2; i++ {
		if _, err := Build(ctx, seg, phaseBands, ampBands); err != nil {
			t.Fatalf("build %d failed: %v", i, err)
		}
	}

	if ctx.Err() != nil {
		t.Fatalf("caller context canceled: %v", ctx.Err())
	}
}

func TestBuildCanceledContext(t *testing.T) {
	seg := coupledSegment(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, seg, []ephys.Band{{Low: 4, High: 8}}, []ephys.Band{{Low: 30, High: 80}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled context: got %v, want context.Canceled", err)
	}
}

func TestBuildAbortsOnBadBand(t *testing.T) {
	seg := coupledSegment(t)

	phaseBands := []ephys.Band{{Low: 4, High: 8}}
	ampBands := []ephys.Band{{Low: 30, High: 80}, {Low: 400, High: 600}}

	if _, err := Build(context.Background(), seg, phaseBands, ampBands); !errors.Is(err, ephys.ErrFrequencyRange) {
		t.Fatalf("band above Nyquist: got %v, want ErrFrequencyRange", err)
	}
}

func TestBuildCrossChannelAlignment(t *testing.T) {
	seg := coupledSegment(t)

	other, err := ephys.NewSegment("rec", "Ch2", testRate, 0, 5, make([]float64, 5000))
	if err != nil {
		t.Fatalf("segment: %v", err)
	}

	_, err = Build(context.Background(), seg,
		[]ephys.Band{{Low: 4, High: 8}}, []ephys.Band{{Low: 30, High: 80}},
		WithAmplitudeSegment(other))
	if !errors.Is(err, ephys.ErrMalformedSegment) {
		t.Fatalf("misaligned amplitude segment: got %v, want ErrMalformedSegment", err)
	}
}

func TestBuildEmptyBands(t *testing.T) {
	seg := coupledSegment(t)

	if _, err := Build(context.Background(), seg, nil, []ephys.Band{{Low: 30, High: 80}}); err == nil {
		t.Fatal("empty phase bands accepted")
	}
}

func TestBandGrid(t *testing.T) {
	bands, err := BandGrid(4, 10, 2, 0)
	if err != nil {
		t.Fatalf("grid failed: %v", err)
	}

	// Centers 4, 6, 8 with default width 2*step = 4.
	want := []ephys.Band{{Low: 2, High: 6}, {Low: 4, High: 8}, {Low: 6, High: 10}}
	if len(bands) != len(want) {
		t.Fatalf("got %d bands, want %d", len(bands), len(want))
	}
	for i := range want {
		if math.Abs(bands[i].Low-want[i].Low) > 1e-12 || math.Abs(bands[i].High-want[i].High) > 1e-12 {
			t.Fatalf("band %d is %v, want %v", i, bands[i], want[i])
		}
	}

	if _, err := BandGrid(1, 10, 2, 0); !errors.Is(err, ephys.ErrFrequencyRange) {
		t.Fatalf("grid reaching 0 Hz: got %v, want ErrFrequencyRange", err)
	}
	if _, err := BandGrid(10, 4, 2, 0); !errors.Is(err, ephys.ErrFrequencyRange) {
		t.Fatalf("inverted grid: got %v, want ErrFrequencyRange", err)
	}
}
