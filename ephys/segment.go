package ephys

import (
	"fmt"
	"math"
)

// Segment is one contiguous slice of a recorded voltage trace: a channel
// name, the recording file it came from, the sample rate, the time range it
// covers, and the samples themselves. Segments are value objects: once
// constructed they are never mutated, and analysis code treats Samples as
// read-only.
type Segment struct {
	File    string
	Channel string
	Rate    float64 // Hz
	Start   float64 // s
	End     float64 // s
	Samples []float64
}

// NewSegment validates the segment invariants and returns the assembled
// segment. The sample slice is retained, not copied; the loading boundary
// owns it and must not modify it afterwards.
//
// Invariants: Rate > 0, End > Start, len(samples) == round((End-Start)*Rate).
// Violations return an error wrapping [ErrMalformedSegment].
func NewSegment(file, channel string, rate, start, end float64, samples []float64) (*Segment, error) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil, fmt.Errorf("%s/%s: sample rate must be > 0, got %g: %w",
			file, channel, rate, ErrMalformedSegment)
	}

	if !(end > start) {
		return nil, fmt.Errorf("%s/%s: time range [%g, %g] is empty: %w",
			file, channel, start, end, ErrMalformedSegment)
	}

	want := int(math.Round((end - start) * rate))
	if len(samples) != want {
		return nil, fmt.Errorf("%s/%s: %d samples for %gs at %g Hz, want %d: %w",
			file, channel, len(samples), end-start, rate, want, ErrMalformedSegment)
	}

	return &Segment{
		File:    file,
		Channel: channel,
		Rate:    rate,
		Start:   start,
		End:     end,
		Samples: samples,
	}, nil
}

// Len returns the number of samples.
func (s *Segment) Len() int { return len(s.Samples) }

// Duration returns the covered time span in seconds.
func (s *Segment) Duration() float64 { return s.End - s.Start }

// Nyquist returns half the sample rate in Hz.
func (s *Segment) Nyquist() float64 { return s.Rate / 2 }

// TimeRange returns a "start-end s" label for the segment, the form used to
// key per-slice results in exports.
func (s *Segment) TimeRange() string {
	return fmt.Sprintf("%g-%gs", s.Start, s.End)
}

// WithSamples returns a copy of the segment metadata carrying a different
// sample slice of the same length. Preprocessing steps use this to derive
// filtered segments without touching the original.
func (s *Segment) WithSamples(samples []float64) (*Segment, error) {
	if len(samples) != len(s.Samples) {
		return nil, fmt.Errorf("%s/%s: replacement has %d samples, want %d: %w",
			s.File, s.Channel, len(samples), len(s.Samples), ErrMalformedSegment)
	}

	out := *s
	out.Samples = samples

	return &out, nil
}

// Overlap returns the segment restricted to the time range shared with
// other, or an error wrapping [ErrMalformedSegment] when the ranges are
// disjoint or the sample rates differ. The returned segment aliases the
// receiver's samples.
func (s *Segment) Overlap(other *Segment) (*Segment, error) {
	if s.Rate != other.Rate {
		return nil, fmt.Errorf("%s/%s vs %s/%s: sample rates differ (%g != %g): %w",
			s.File, s.Channel, other.File, other.Channel, s.Rate, other.Rate, ErrMalformedSegment)
	}

	start := math.Max(s.Start, other.Start)
	end := math.Min(s.End, other.End)
	if !(end > start) {
		return nil, fmt.Errorf("%s/%s vs %s/%s: time ranges do not overlap: %w",
			s.File, s.Channel, other.File, other.Channel, ErrMalformedSegment)
	}

	i0 := int(math.Round((start - s.Start) * s.Rate))
	i1 := int(math.Round((end - s.Start) * s.Rate))
	if i0 < 0 {
		i0 = 0
	}
	if i1 > len(s.Samples) {
		i1 = len(s.Samples)
	}

	return NewSegment(s.File, s.Channel, s.Rate, start, end, s.Samples[i0:i1])
}
