// Package comod builds comodulograms: rectangular grids of modulation
// index values over the cartesian product of phase bands and amplitude
// bands, within one channel or across two.
package comod

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Tousak/spectral-analysis/ephys"
	"github.com/Tousak/spectral-analysis/measure/pac"
)

// Matrix is a comodulogram: MI[i][j] couples PhaseBands[i] against
// AmpBands[j].
type Matrix struct {
	PhaseBands []ephys.Band
	AmpBands   []ephys.Band
	MI         [][]float64
}

// Option configures a build.
type Option func(*builder)

// WithAmplitudeSegment computes the amplitude series from a different
// segment, for cross-channel comodulograms. The two segments must share
// rate and length.
func WithAmplitudeSegment(seg *ephys.Segment) Option {
	return func(b *builder) {
		b.ampSegment = seg
	}
}

// WithExtractConfig overrides the band extraction settings.
func WithExtractConfig(cfg pac.ExtractConfig) Option {
	return func(b *builder) {
		b.extract = cfg
	}
}

// WithPhaseBins overrides the modulation index bin count.
func WithPhaseBins(bins int) Option {
	return func(b *builder) {
		b.phaseBins = bins
	}
}

type builder struct {
	ampSegment *ephys.Segment
	extract    pac.ExtractConfig
	phaseBins  int
}

// Build computes the full grid. Cells are independent and run concurrently,
// bounded by GOMAXPROCS; the first failing cell cancels the rest and Build
// returns its error, never a partial matrix.
func Build(ctx context.Context, seg *ephys.Segment, phaseBands, ampBands []ephys.Band, opts ...Option) (*Matrix, error) {
	if len(phaseBands) == 0 || len(ampBands) == 0 {
		return nil, fmt.Errorf("comod: %d phase bands, %d amplitude bands: %w",
			len(phaseBands), len(ampBands), ephys.ErrFrequencyRange)
	}

	var b builder
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}

	ampSeg := seg
	if b.ampSegment != nil {
		ampSeg = b.ampSegment

		if ampSeg.Rate != seg.Rate || ampSeg.Len() != seg.Len() {
			return nil, fmt.Errorf("comod: amplitude segment %s/%s does not align with %s/%s: %w",
				ampSeg.File, ampSeg.Channel, seg.File, seg.Channel, ephys.ErrMalformedSegment)
		}
	}

	extractor := pac.NewExtractor(b.extract)

	// Each band is extracted once and shared across its row or column.
	phaseSeries := make([]*pac.Series, len(phaseBands))
	ampSeries := make([]*pac.Series, len(ampBands))

	// The extraction group's context dies with its Wait; the cell group
	// below must derive from the caller's context instead.
	parent := ctx

	g, ctx := errgroup.WithContext(parent)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, band := range phaseBands {
		g.Go(func() error {
			s, err := extractor.Extract(seg, band)
			if err != nil {
				return err
			}
			phaseSeries[i] = s

			return ctx.Err()
		})
	}
	for j, band := range ampBands {
		g.Go(func() error {
			s, err := extractor.Extract(ampSeg, band)
			if err != nil {
				return err
			}
			ampSeries[j] = s

			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comod: %w", err)
	}

	mi := make([][]float64, len(phaseBands))
	for i := range mi {
		mi[i] = make([]float64, len(ampBands))
	}

	g, ctx = errgroup.WithContext(parent)
	g.SetLimit(runtime.GOMAXPROCS(0))

	bins := b.phaseBins
	if bins == 0 {
		bins = pac.DefaultPhaseBins
	}

	for i := range phaseBands {
		for j := range ampBands {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}

				v, err := pac.ModulationIndex(phaseSeries[i].Phase, ampSeries[j].Amp, bins)
				if err != nil {
					return fmt.Errorf("phase %s x amp %s: %w",
						phaseBands[i], ampBands[j], err)
				}
				mi[i][j] = v

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("comod: %w", err)
	}

	return &Matrix{
		PhaseBands: phaseBands,
		AmpBands:   ampBands,
		MI:         mi,
	}, nil
}

// BandGrid builds evenly spaced overlapping bands: centers at start,
// start+step, ... up to but excluding stop, each width wide. A width of 0
// selects 2*step. Returns an error wrapping [ephys.ErrFrequencyRange] for a
// degenerate grid or bands reaching at or below 0 Hz.
func BandGrid(start, stop, step, width float64) ([]ephys.Band, error) {
	if step <= 0 || stop <= start {
		return nil, fmt.Errorf("comod: grid %g..%g step %g: %w",
			start, stop, step, ephys.ErrFrequencyRange)
	}

	if width == 0 {
		width = 2 * step
	}

	var out []ephys.Band
	for c := start; c < stop-1e-9; c += step {
		b := ephys.Band{Low: c - width/2, High: c + width/2}
		if b.Low <= 0 {
			return nil, fmt.Errorf("comod: band %s from center %g: %w",
				b, c, ephys.ErrFrequencyRange)
		}

		out = append(out, b)
	}

	return out, nil
}
