// Package welch implements Welch's method of averaged modified
// periodograms: power spectral density, cross-spectral density, and
// spectrogram frames over windowed, overlapping segments.
//
// Frames are mean-detrended, windowed with a periodic window, and
// transformed; one-sided densities are scaled to power per Hz so that
// integrating the PSD over frequency recovers the signal variance.
package welch
