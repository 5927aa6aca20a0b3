// Package pac quantifies phase-amplitude coupling: how strongly the
// amplitude envelope of a fast oscillation locks to the phase of a slow
// one. It extracts band-limited phase and envelope series from recorded
// segments and computes the Tort modulation index, the mean vector length,
// and phase-locking values, whole-segment or over sliding windows.
package pac
