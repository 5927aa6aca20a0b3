package batch

import (
	"fmt"
	"math"

	"github.com/Tousak/spectral-analysis/dsp/iir"
	"github.com/Tousak/spectral-analysis/ephys"
)

// PowerlineNotch removes mains interference with a comb of zero-phase
// notches at every harmonic of base (50 or 60 Hz) up to maxHz, bounded by
// the segment's Nyquist frequency. Each notch uses Q = f0/2, a constant
// 2 Hz rejection bandwidth across harmonics.
func PowerlineNotch(seg *ephys.Segment, base, maxHz float64) (*ephys.Segment, error) {
	if base <= 0 {
		return nil, fmt.Errorf("batch: powerline base %g Hz: %w", base, ephys.ErrFrequencyRange)
	}

	ceiling := math.Min(maxHz, seg.Nyquist()-1)

	var sections []iir.Coefficients
	for f := base; f <= ceiling; f += base {
		c, err := iir.Notch(f, f/2, seg.Rate)
		if err != nil {
			return nil, fmt.Errorf("batch: notch at %g Hz: %w", f, err)
		}

		sections = append(sections, c)
	}

	if len(sections) == 0 {
		return seg, nil
	}

	filtered, err := iir.FiltFilt(sections, seg.Samples)
	if err != nil {
		return nil, fmt.Errorf("batch: %s/%s: %w", seg.File, seg.Channel, err)
	}

	return seg.WithSamples(filtered)
}

// ZScore normalizes the segment to zero mean and unit deviation. A flat
// trace returns an error wrapping [ephys.ErrMalformedSegment].
func ZScore(seg *ephys.Segment) (*ephys.Segment, error) {
	n := float64(seg.Len())

	var sum float64
	for _, v := range seg.Samples {
		sum += v
	}
	mean := sum / n

	var ss float64
	for _, v := range seg.Samples {
		d := v - mean
		ss += d * d
	}

	sd := math.Sqrt(ss / n)
	if sd == 0 {
		return nil, fmt.Errorf("batch: %s/%s: flat trace cannot be z-scored: %w",
			seg.File, seg.Channel, ephys.ErrMalformedSegment)
	}

	out := make([]float64, seg.Len())
	for i, v := range seg.Samples {
		out[i] = (v - mean) / sd
	}

	return seg.WithSamples(out)
}
