// Package coherence estimates magnitude-squared coherence between channel
// pairs: per-frequency, reduced to bands, and over sliding time windows.
package coherence

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/Tousak/spectral-analysis/dsp/welch"
	"github.com/Tousak/spectral-analysis/dsp/window"
	"github.com/Tousak/spectral-analysis/ephys"
)

// Config controls the Welch framing, as in the psd estimator. Overlap
// follows the welch package convention: 0 means no overlap,
// [welch.DefaultOverlap] selects half-frame overlap.
type Config struct {
	WindowLength int         // samples per frame; 0 selects 2 seconds of samples
	Overlap      int         // overlapping samples; welch.DefaultOverlap selects half a frame
	Window       window.Type // defaults to Hann
}

// Coherence is a one-sided magnitude-squared coherence spectrum, each value
// in [0, 1].
type Coherence struct {
	Frequencies []float64
	Cxy         []float64
	Resolution  float64
}

// BandCoherence is the coherence of one band: the mean over in-band bins
// and the standard error of that mean.
type BandCoherence struct {
	Band ephys.Band
	Mean float64
	SEM  float64
}

// Estimate computes the magnitude-squared coherence between two segments,
// |Sxy|^2 / (Sxx * Syy) from frame-averaged spectra. The segments must
// share a sample rate and cover equal or overlapping time ranges; when the
// ranges differ, both are restricted to the shared span first. Disjoint
// ranges return an error wrapping [ephys.ErrMalformedSegment]. Bins where
// either auto-spectrum vanishes report zero.
func Estimate(a, b *ephys.Segment, cfg Config) (*Coherence, error) {
	a, b, err := align(a, b)
	if err != nil {
		return nil, err
	}

	winLen := cfg.WindowLength
	if winLen == 0 {
		winLen = int(2 * a.Rate)
	}

	est, err := welch.New(welch.Config{
		SampleRate:   a.Rate,
		WindowLength: winLen,
		Overlap:      cfg.Overlap,
		Window:       cfg.Window,
	})
	if err != nil {
		return nil, fmt.Errorf("coherence: %s vs %s: %w", a.Channel, b.Channel, err)
	}

	sxx, syy, sxy, err := est.CrossSpectra(a.Samples, b.Samples)
	if err != nil {
		return nil, fmt.Errorf("coherence: %s vs %s: %w", a.Channel, b.Channel, err)
	}

	cxy := make([]float64, len(sxx))
	for k := range cxy {
		den := sxx[k] * syy[k]
		if den <= 0 {
			continue
		}

		re, im := real(sxy[k]), imag(sxy[k])
		v := (re*re + im*im) / den

		// Numerical noise can push single-frame estimates past 1.
		cxy[k] = math.Min(math.Max(v, 0), 1)
	}

	return &Coherence{
		Frequencies: est.Frequencies(),
		Cxy:         cxy,
		Resolution:  a.Rate / float64(winLen),
	}, nil
}

// align restricts both segments to their shared time range. Segments
// covering equal ranges pass through untouched.
func align(a, b *ephys.Segment) (*ephys.Segment, *ephys.Segment, error) {
	if a.Rate != b.Rate {
		return nil, nil, fmt.Errorf("coherence: %s/%s vs %s/%s: rates differ (%g != %g): %w",
			a.File, a.Channel, b.File, b.Channel, a.Rate, b.Rate, ephys.ErrMalformedSegment)
	}

	if a.Start == b.Start && a.End == b.End {
		return a, b, nil
	}

	aa, err := a.Overlap(b)
	if err != nil {
		return nil, nil, fmt.Errorf("coherence: %w", err)
	}

	bb, err := b.Overlap(a)
	if err != nil {
		return nil, nil, fmt.Errorf("coherence: %w", err)
	}

	if aa.Len() != bb.Len() {
		return nil, nil, fmt.Errorf("coherence: %s/%s vs %s/%s: aligned lengths differ (%d != %d): %w",
			aa.File, aa.Channel, bb.File, bb.Channel, aa.Len(), bb.Len(), ephys.ErrMalformedSegment)
	}

	return aa, bb, nil
}

// BandCoherence reduces the spectrum over one band: mean and standard error
// of the in-band bins. A band containing no bins returns an error wrapping
// [ephys.ErrFrequencyRange].
func (c *Coherence) BandCoherence(b ephys.Band) (BandCoherence, error) {
	if err := b.Validate(); err != nil {
		return BandCoherence{}, err
	}

	var inBand []float64
	for k, f := range c.Frequencies {
		if b.Contains(f) {
			inBand = append(inBand, c.Cxy[k])
		}
	}

	if len(inBand) == 0 {
		return BandCoherence{}, fmt.Errorf("coherence: no bins inside band %s at resolution %g Hz: %w",
			b, c.Resolution, ephys.ErrFrequencyRange)
	}

	mean, err := stats.Mean(inBand)
	if err != nil {
		return BandCoherence{}, fmt.Errorf("coherence: band %s: %w", b, err)
	}

	var sem float64
	if len(inBand) > 1 {
		sd, err := stats.StandardDeviationSample(inBand)
		if err != nil {
			return BandCoherence{}, fmt.Errorf("coherence: band %s: %w", b, err)
		}
		sem = sd / math.Sqrt(float64(len(inBand)))
	}

	return BandCoherence{Band: b, Mean: mean, SEM: sem}, nil
}

// BandCoherences reduces over several bands, preserving order.
func (c *Coherence) BandCoherences(bands []ephys.Band) ([]BandCoherence, error) {
	out := make([]BandCoherence, len(bands))

	for i, b := range bands {
		bc, err := c.BandCoherence(b)
		if err != nil {
			return nil, err
		}

		out[i] = bc
	}

	return out, nil
}

// Coheregram repeats the coherence estimate over sliding time windows of
// slideLength samples advancing by slideStep, yielding a time-by-frequency
// grid. Each row is the full Welch-averaged estimate of its window.
func Coheregram(a, b *ephys.Segment, cfg Config, slideLength, slideStep int) (times []float64, freqs []float64, grid [][]float64, err error) {
	a, b, err = align(a, b)
	if err != nil {
		return nil, nil, nil, err
	}

	if slideLength <= 0 || slideStep <= 0 {
		return nil, nil, nil, fmt.Errorf("coherence: slide %d/%d samples: %w",
			slideLength, slideStep, ephys.ErrInvalidWindow)
	}

	if a.Len() < slideLength {
		return nil, nil, nil, fmt.Errorf("coherence: %d samples shorter than slide window %d: %w",
			a.Len(), slideLength, ephys.ErrInvalidWindow)
	}

	for off := 0; off+slideLength <= a.Len(); off += slideStep {
		start := a.Start + float64(off)/a.Rate
		end := start + float64(slideLength)/a.Rate

		wa, err := ephys.NewSegment(a.File, a.Channel, a.Rate, start, end, a.Samples[off:off+slideLength])
		if err != nil {
			return nil, nil, nil, err
		}
		wb, err := ephys.NewSegment(b.File, b.Channel, b.Rate, start, end, b.Samples[off:off+slideLength])
		if err != nil {
			return nil, nil, nil, err
		}

		c, err := Estimate(wa, wb, cfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("window at %g s: %w", start, err)
		}

		if freqs == nil {
			freqs = c.Frequencies
		}

		times = append(times, start)
		grid = append(grid, c.Cxy)
	}

	return times, freqs, grid, nil
}
