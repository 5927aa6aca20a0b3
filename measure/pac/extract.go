package pac

import (
	"fmt"

	"github.com/Tousak/spectral-analysis/dsp/analytic"
	"github.com/Tousak/spectral-analysis/dsp/iir"
	"github.com/Tousak/spectral-analysis/ephys"
)

// DefaultFilterOrder is the Butterworth prototype order used for band
// extraction when none is configured.
const DefaultFilterOrder = 4

// ExtractConfig controls band extraction.
type ExtractConfig struct {
	// FilterOrder is the Butterworth prototype order; 0 selects
	// DefaultFilterOrder.
	FilterOrder int

	// TransientMargin is the number of edge samples flagged as filter
	// transient on each end of the series; 0 selects FilterOrder/2 and a
	// negative value disables the margin.
	TransientMargin int
}

func (c ExtractConfig) filterOrder() int {
	if c.FilterOrder == 0 {
		return DefaultFilterOrder
	}

	return c.FilterOrder
}

func (c ExtractConfig) margin() int {
	switch {
	case c.TransientMargin > 0:
		return c.TransientMargin
	case c.TransientMargin < 0:
		return 0
	default:
		return c.filterOrder() / 2
	}
}

// Extractor derives band-limited phase and envelope series from segments.
type Extractor struct {
	cfg ExtractConfig
}

// NewExtractor returns an extractor with the given configuration.
func NewExtractor(cfg ExtractConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Series is a band-limited view of one segment: instantaneous phase in
// (-pi, pi] and non-negative amplitude envelope, sample-aligned with the
// source segment.
type Series struct {
	Band    ephys.Band
	Rate    float64
	Phase   []float64
	Amp     []float64
	Segment *ephys.Segment

	// TransientMargin is the number of samples at each end still carrying
	// filter edge effects. Metrics may trim it before computing.
	TransientMargin int
}

// Len returns the series length in samples.
func (s *Series) Len() int { return len(s.Phase) }

// Trimmed returns the phase and amplitude slices with the transient margin
// removed from both ends. When trimming would leave nothing, the full
// series is returned.
func (s *Series) Trimmed() (phase, amp []float64) {
	m := s.TransientMargin
	if 2*m >= len(s.Phase) {
		return s.Phase, s.Amp
	}

	return s.Phase[m : len(s.Phase)-m], s.Amp[m : len(s.Amp)-m]
}

// Extract band-pass filters the segment zero-phase and derives the analytic
// phase and envelope. The band must sit strictly below the segment's
// Nyquist frequency, otherwise an error wrapping [ephys.ErrFrequencyRange]
// is returned; an edge exactly at Nyquist leaves no room for the band-pass
// rolloff.
func (e *Extractor) Extract(seg *ephys.Segment, band ephys.Band) (*Series, error) {
	if err := band.Validate(); err != nil {
		return nil, err
	}

	if err := band.CheckNyquist(seg.Rate); err != nil {
		return nil, fmt.Errorf("pac: %s/%s: %w", seg.File, seg.Channel, err)
	}

	if band.High >= seg.Nyquist() {
		return nil, fmt.Errorf("pac: %s/%s: band %s touches Nyquist %g Hz: %w",
			seg.File, seg.Channel, band, seg.Nyquist(), ephys.ErrFrequencyRange)
	}

	sections, err := iir.ButterworthBandpass(e.cfg.filterOrder(), band.Low, band.High, seg.Rate)
	if err != nil {
		return nil, fmt.Errorf("pac: %s/%s band %s: %w", seg.File, seg.Channel, band, err)
	}

	filtered, err := iir.FiltFilt(sections, seg.Samples)
	if err != nil {
		return nil, fmt.Errorf("pac: %s/%s band %s: %w", seg.File, seg.Channel, band, err)
	}

	phase, amp, err := analytic.PhaseEnvelope(filtered)
	if err != nil {
		return nil, fmt.Errorf("pac: %s/%s band %s: %w", seg.File, seg.Channel, band, err)
	}

	return &Series{
		Band:            band,
		Rate:            seg.Rate,
		Phase:           phase,
		Amp:             amp,
		Segment:         seg,
		TransientMargin: e.cfg.margin(),
	}, nil
}
