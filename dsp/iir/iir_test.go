package iir

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"
)

func TestSectionPassthrough(t *testing.T) {
	s := NewSection(Coefficients{B0: 1})

	for i, x := range []float64{1, -2, 3.5, 0, 7} {
		if y := s.ProcessSample(x); y != x {
			t.Fatalf("sample %d: got %g, want %g", i, y, x)
		}
	}
}

func TestSectionBlockMatchesSamples(t *testing.T) {
	c := Coefficients{B0: 0.2, B1: 0.4, B2: 0.2, A1: -0.5, A2: 0.25}

	input := make([]float64, 256)
	for i := range input {
		input[i] = math.Sin(0.1 * float64(i))
	}

	bySample := NewSection(c)
	want := make([]float64, len(input))
	for i, x := range input {
		want[i] = bySample.ProcessSample(x)
	}

	got := make([]float64, len(input))
	copy(got, input)
	byBlock := NewSection(c)
	byBlock.ProcessBlock(got)

	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-15 {
			t.Fatalf("sample %d: block %g, per-sample %g", i, got[i], want[i])
		}
	}
}

func TestButterworthBandpassResponse(t *testing.T) {
	const rate = 1000.0

	sections, err := ButterworthBandpass(4, 4, 8, rate)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}
	if len(sections) != 4 {
		t.Fatalf("expected 4 sections for order 4, got %d", len(sections))
	}

	center := math.Sqrt(4 * 8)
	if mag := cmplx.Abs(Response(sections, center, rate)); math.Abs(mag-1) > 1e-9 {
		t.Fatalf("center magnitude %g, want 1", mag)
	}

	// Butterworth edges sit at -3 dB.
	for _, edge := range []float64{4, 8} {
		mag := cmplx.Abs(Response(sections, edge, rate))
		if math.Abs(mag-math.Sqrt2/2) > 1e-6 {
			t.Fatalf("edge %g Hz magnitude %g, want %g", edge, mag, math.Sqrt2/2)
		}
	}

	// Strong rejection well outside the band.
	for _, f := range []float64{0.1, 100} {
		if mag := cmplx.Abs(Response(sections, f, rate)); mag > 1e-3 {
			t.Fatalf("stopband %g Hz magnitude %g, want < 1e-3", f, mag)
		}
	}
}

func TestButterworthBandpassRejectsBadEdges(t *testing.T) {
	cases := []struct {
		order     int
		low, high float64
	}{
		{0, 4, 8},
		{4, 8, 4},
		{4, 0, 8},
		{4, 80, 600},
	}

	for _, tc := range cases {
		if _, err := ButterworthBandpass(tc.order, tc.low, tc.high, 1000); !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("order=%d %g-%g Hz: got %v, want ErrInvalidParams", tc.order, tc.low, tc.high, err)
		}
	}
}

func TestNotchResponse(t *testing.T) {
	const rate = 1000.0

	c, err := Notch(50, 25, rate)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}

	sections := []Coefficients{c}

	if mag := cmplx.Abs(Response(sections, 50, rate)); mag > 1e-10 {
		t.Fatalf("magnitude at notch %g, want ~0", mag)
	}
	for _, f := range []float64{1, 30, 70, 200} {
		if mag := cmplx.Abs(Response(sections, f, rate)); math.Abs(mag-1) > 0.05 {
			t.Fatalf("magnitude at %g Hz is %g, want ~1", f, mag)
		}
	}

	if _, err := Notch(600, 25, rate); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("notch above Nyquist: got %v, want ErrInvalidParams", err)
	}
}

func TestFiltFiltZeroPhase(t *testing.T) {
	const rate = 1000.0

	sections, err := ButterworthBandpass(4, 4, 8, rate)
	if err != nil {
		t.Fatalf("design failed: %v", err)
	}

	// A tone at the band center must come through with unit gain and no lag.
	f := math.Sqrt(4 * 8)
	n := int(10 * rate)
	input := make([]float64, n)
	for i := range input {
		input[i] = math.Sin(2 * math.Pi * f * float64(i) / rate)
	}

	out, err := FiltFilt(sections, input)
	if err != nil {
		t.Fatalf("filtfilt failed: %v", err)
	}
	if len(out) != len(input) {
		t.Fatalf("length changed: %d -> %d", len(input), len(out))
	}

	// Compare away from the ends where reflection effects concentrate.
	var maxErr float64
	for i := n / 4; i < 3*n/4; i++ {
		if d := math.Abs(out[i] - input[i]); d > maxErr {
			maxErr = d
		}
	}
	if maxErr > 0.01 {
		t.Fatalf("center-band tone distorted by %g, want < 0.01", maxErr)
	}
}

func TestFiltFiltRejectsOutOfBand(t *testing.T) {
	const rate = 1000.0

	sections, _ := ButterworthBandpass(4, 30, 80, rate)

	n := int(4 * rate)
	input := make([]float64, n)
	for i := range input {
		input[i] = math.Sin(2 * math.Pi * 2 * float64(i) / rate)
	}

	out, err := FiltFilt(sections, input)
	if err != nil {
		t.Fatalf("filtfilt failed: %v", err)
	}

	var maxAbs float64
	for i := n / 4; i < 3*n/4; i++ {
		if a := math.Abs(out[i]); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs > 1e-6 {
		t.Fatalf("2 Hz leakage %g through 30-80 Hz band, want < 1e-6", maxAbs)
	}
}

func TestFiltFiltShortInput(t *testing.T) {
	sections, _ := ButterworthBandpass(4, 4, 8, 1000)

	if _, err := FiltFilt(sections, make([]float64, 20)); !errors.Is(err, ErrInputTooShort) {
		t.Fatalf("short input: got %v, want ErrInputTooShort", err)
	}
}
