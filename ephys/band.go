package ephys

import "fmt"

// Band is a frequency interval in Hz with Low < High. Whether High fits
// under a segment's Nyquist frequency depends on the segment, so that check
// happens at the point of use via [Band.CheckNyquist].
type Band struct {
	Low  float64
	High float64
}

// NewBand validates Low < High with Low >= 0.
func NewBand(low, high float64) (Band, error) {
	b := Band{Low: low, High: high}
	if err := b.Validate(); err != nil {
		return Band{}, err
	}

	return b, nil
}

// Validate checks the band edges.
func (b Band) Validate() error {
	if b.Low < 0 || !(b.High > b.Low) {
		return fmt.Errorf("band %s: edges must satisfy 0 <= low < high: %w", b, ErrFrequencyRange)
	}

	return nil
}

// CheckNyquist returns an error wrapping [ErrFrequencyRange] when the band's
// upper edge exceeds the Nyquist frequency for the given sample rate.
func (b Band) CheckNyquist(rate float64) error {
	if b.High > rate/2 {
		return fmt.Errorf("band %s exceeds Nyquist %g Hz: %w", b, rate/2, ErrFrequencyRange)
	}

	return nil
}

// Center returns the band's center frequency in Hz.
func (b Band) Center() float64 { return (b.Low + b.High) / 2 }

// Width returns the band width in Hz.
func (b Band) Width() float64 { return b.High - b.Low }

// Contains reports whether f lies inside [Low, High].
func (b Band) Contains(f float64) bool { return f >= b.Low && f <= b.High }

// String renders the band as "low-high Hz".
func (b Band) String() string { return fmt.Sprintf("%g-%g Hz", b.Low, b.High) }

// Canonical band names in display order. The map below can be extended or
// replaced by callers; these six are the labels the analysis results and
// exports use by default.
var BandOrder = []string{"Delta", "Theta", "Alpha", "Beta", "Low Gamma", "High Gamma"}

// DefaultBands maps the canonical band names to their conventional edges.
var DefaultBands = map[string]Band{
	"Delta":      {Low: 0.5, High: 4},
	"Theta":      {Low: 4, High: 8},
	"Alpha":      {Low: 8, High: 13},
	"Beta":       {Low: 13, High: 30},
	"Low Gamma":  {Low: 30, High: 80},
	"High Gamma": {Low: 80, High: 150},
}

// OrderedBands returns the default bands in display order, restricted to
// those fitting under the given sample rate's Nyquist frequency.
func OrderedBands(rate float64) ([]string, []Band) {
	names := make([]string, 0, len(BandOrder))
	bands := make([]Band, 0, len(BandOrder))

	for _, name := range BandOrder {
		b, ok := DefaultBands[name]
		if !ok || b.CheckNyquist(rate) != nil {
			continue
		}

		names = append(names, name)
		bands = append(bands, b)
	}

	return names, bands
}
