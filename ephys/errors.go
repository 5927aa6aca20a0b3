package ephys

import "errors"

// Validation failures shared across the analysis packages. All of them are
// deterministic precondition violations: retrying with the same inputs will
// fail the same way. Call sites wrap these with segment, channel, and band
// context via fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidWindow reports Welch or sliding-window parameters that
	// cannot produce a single full frame (window longer than the data,
	// or overlap >= window length).
	ErrInvalidWindow = errors.New("ephys: invalid analysis window")

	// ErrFrequencyRange reports band edges that are out of order, negative,
	// or above the Nyquist frequency of the segment they apply to.
	ErrFrequencyRange = errors.New("ephys: frequency band out of range")

	// ErrEmptyBin reports a phase bin with no samples during modulation
	// index estimation. The result would require dividing by zero, so the
	// computation is aborted instead of silently coerced.
	ErrEmptyBin = errors.New("ephys: empty phase bin")

	// ErrInsufficientWindow reports a sliding window shorter than one
	// cycle of the phase band's lowest frequency.
	ErrInsufficientWindow = errors.New("ephys: window shorter than one phase cycle")

	// ErrMalformedSegment reports a segment violating the sample-count,
	// time-range, or sample-rate invariants.
	ErrMalformedSegment = errors.New("ephys: malformed segment")

	// ErrEmptyGroup reports an aggregation group with zero contributing
	// leaves.
	ErrEmptyGroup = errors.New("ephys: group has no contributing values")
)
