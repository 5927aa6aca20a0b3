// Package iir provides the recursive filters used by the band extraction
// pipeline: cascaded biquad sections, Butterworth bandpass design, a notch
// for powerline rejection, and zero-phase forward-backward filtering.
//
// All filters are expressed as second-order sections to keep the high-order
// bandpass designs numerically stable at the narrow relative bandwidths
// typical of low-frequency physiological bands.
package iir
