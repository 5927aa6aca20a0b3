// Package analytic computes the discrete analytic signal of a real trace
// via the frequency-domain Hilbert construction, and derives instantaneous
// phase and amplitude envelope from it.
package analytic

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrEmptyInput reports a zero-length trace.
var ErrEmptyInput = errors.New("analytic: empty input")

// Transform returns the analytic signal of x: a complex sequence whose real
// part is x and whose imaginary part is the Hilbert transform of x. The
// instantaneous phase and envelope fall out as argument and magnitude.
func Transform(x []float64) ([]complex128, error) {
	n := len(x)
	if n == 0 {
		return nil, ErrEmptyInput
	}

	fft := fourier.NewCmplxFFT(n)

	buf := make([]complex128, n)
	for i, v := range x {
		buf[i] = complex(v, 0)
	}

	coeffs := make([]complex128, n)
	fft.Coefficients(coeffs, buf)

	// Zero the negative frequencies and double the positive ones. DC stays,
	// and so does Nyquist for even n.
	half := n / 2
	for i := 1; i < half; i++ {
		coeffs[i] *= 2
	}
	if n%2 != 0 && half >= 1 {
		coeffs[half] *= 2
	}
	for i := half + 1; i < n; i++ {
		coeffs[i] = 0
	}

	fft.Sequence(buf, coeffs)

	scale := complex(1/float64(n), 0)
	for i := range buf {
		buf[i] *= scale
	}

	return buf, nil
}

// Phase returns the instantaneous phase of x in radians, in (-pi, pi].
func Phase(x []float64) ([]float64, error) {
	sig, err := Transform(x)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(sig))
	for i, v := range sig {
		out[i] = cmplx.Phase(v)
	}

	return out, nil
}

// Envelope returns the instantaneous amplitude envelope of x.
func Envelope(x []float64) ([]float64, error) {
	sig, err := Transform(x)
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(sig))
	for i, v := range sig {
		out[i] = cmplx.Abs(v)
	}

	return out, nil
}

// PhaseEnvelope returns instantaneous phase and envelope from a single
// transform.
func PhaseEnvelope(x []float64) (phase, envelope []float64, err error) {
	sig, err := Transform(x)
	if err != nil {
		return nil, nil, err
	}

	phase = make([]float64, len(sig))
	envelope = make([]float64, len(sig))
	for i, v := range sig {
		phase[i] = math.Atan2(imag(v), real(v))
		envelope[i] = cmplx.Abs(v)
	}

	return phase, envelope, nil
}
