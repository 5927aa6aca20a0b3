// Package psd estimates power spectral densities of recorded segments and
// reduces them to per-band powers.
package psd

import (
	"fmt"

	"gonum.org/v1/gonum/integrate"

	"github.com/Tousak/spectral-analysis/dsp/welch"
	"github.com/Tousak/spectral-analysis/dsp/window"
	"github.com/Tousak/spectral-analysis/ephys"
)

// Config controls the Welch framing of the estimate. Overlap follows the
// welch package convention: 0 means no overlap, [welch.DefaultOverlap]
// selects half-frame overlap.
type Config struct {
	WindowLength int         // samples per frame; 0 selects 2 seconds of samples
	Overlap      int         // overlapping samples; welch.DefaultOverlap selects half a frame
	Window       window.Type // defaults to Hann
}

// Spectrum is a one-sided power spectral density with its frequency axis.
type Spectrum struct {
	Frequencies []float64 // Hz, ascending
	Power       []float64 // power per Hz
	Resolution  float64   // Hz between bins
}

// BandPower is the integrated power of one frequency band.
type BandPower struct {
	Band  ephys.Band
	Power float64

	// LowResolution flags a band narrower than the spectral resolution:
	// fewer than two bins fell inside it, so Power is reported as 0.
	LowResolution bool
}

// Estimate computes the Welch PSD of a segment.
func Estimate(seg *ephys.Segment, cfg Config) (*Spectrum, error) {
	winLen := cfg.WindowLength
	if winLen == 0 {
		winLen = int(2 * seg.Rate)
	}

	est, err := welch.New(welch.Config{
		SampleRate:   seg.Rate,
		WindowLength: winLen,
		Overlap:      cfg.Overlap,
		Window:       cfg.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("psd: %s/%s %s: %w", seg.File, seg.Channel, seg.TimeRange(), err)
	}

	power, err := est.PSD(seg.Samples)
	if err != nil {
		return nil, fmt.Errorf("psd: %s/%s %s: %w", seg.File, seg.Channel, seg.TimeRange(), err)
	}

	return &Spectrum{
		Frequencies: est.Frequencies(),
		Power:       power,
		Resolution:  seg.Rate / float64(winLen),
	}, nil
}

// BandPower integrates the spectrum over the band with the trapezoid rule,
// using the bins whose frequency lies inside [Low, High]. A band spanning
// fewer than two bins reports zero power with LowResolution set.
func (s *Spectrum) BandPower(b ephys.Band) (BandPower, error) {
	if err := b.Validate(); err != nil {
		return BandPower{}, err
	}

	lo, hi := s.binRange(b)
	if hi-lo < 2 {
		return BandPower{Band: b, LowResolution: true}, nil
	}

	return BandPower{
		Band:  b,
		Power: integrate.Trapezoidal(s.Frequencies[lo:hi], s.Power[lo:hi]),
	}, nil
}

// BandPowers reduces the spectrum over several bands, preserving order.
func (s *Spectrum) BandPowers(bands []ephys.Band) ([]BandPower, error) {
	out := make([]BandPower, len(bands))

	for i, b := range bands {
		bp, err := s.BandPower(b)
		if err != nil {
			return nil, err
		}

		out[i] = bp
	}

	return out, nil
}

// binRange returns the half-open index range of bins inside [Low, High].
func (s *Spectrum) binRange(b ephys.Band) (lo, hi int) {
	lo = len(s.Frequencies)
	for i, f := range s.Frequencies {
		if f >= b.Low {
			lo = i

			break
		}
	}

	hi = lo
	for hi < len(s.Frequencies) && s.Frequencies[hi] <= b.High {
		hi++
	}

	return lo, hi
}
