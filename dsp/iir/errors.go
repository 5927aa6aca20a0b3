package iir

import "errors"

var (
	// ErrInvalidParams reports filter design parameters outside their valid
	// domain, such as band edges at or above Nyquist.
	ErrInvalidParams = errors.New("iir: invalid filter parameters")

	// ErrInputTooShort reports an input shorter than the reflection padding
	// required for zero-phase filtering.
	ErrInputTooShort = errors.New("iir: input too short for zero-phase filtering")
)
