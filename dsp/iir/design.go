package iir

import (
	"fmt"
	"math"
	"math/cmplx"
)

// ButterworthBandpass designs a Butterworth bandpass filter of the given
// prototype order as a cascade of second-order sections. The resulting
// cascade has 2*order poles. Edges are prewarped and mapped with the
// bilinear transform; the passband gain is normalized to 1 at the band's
// geometric center frequency.
//
// Returns an error wrapping [ErrInvalidParams] when order < 1 or the edges
// do not satisfy 0 < low < high < rate/2.
func ButterworthBandpass(order int, lowHz, highHz, rate float64) ([]Coefficients, error) {
	if order < 1 {
		return nil, fmt.Errorf("bandpass order %d: %w", order, ErrInvalidParams)
	}

	if !(lowHz > 0 && highHz > lowHz && highHz < rate/2) {
		return nil, fmt.Errorf("bandpass edges %g-%g Hz at rate %g Hz: %w",
			lowHz, highHz, rate, ErrInvalidParams)
	}

	// Prewarped analog edge frequencies for the bilinear transform.
	w1 := prewarp(lowHz, rate)
	w2 := prewarp(highHz, rate)
	w0 := math.Sqrt(w1 * w2)
	bw := w2 - w1

	sections := make([]Coefficients, 0, order)

	// Butterworth prototype poles on the unit circle's left half,
	// p_k = exp(i*pi*(2k+n-1)/(2n)). Poles with negative imaginary part are
	// conjugates of those already handled.
	for k := 1; k <= order; k++ {
		p := cmplx.Exp(complex(0, math.Pi*float64(2*k+order-1)/float64(2*order)))
		if imag(p) < -1e-12 {
			continue
		}
		if math.Abs(imag(p)) <= 1e-12 {
			p = complex(real(p), 0)
		}

		// The lowpass-to-bandpass substitution s -> (s^2 + w0^2)/(bw*s)
		// splits each prototype pole into the roots of
		// s^2 - bw*p*s + w0^2 = 0.
		bp := complex(bw, 0) * p
		disc := cmplx.Sqrt(bp*bp - complex(4*w0*w0, 0))
		s1 := (bp + disc) / 2
		s2 := (bp - disc) / 2

		z1 := bilinear(s1, rate)
		z2 := bilinear(s2, rate)

		if imag(p) > 0 {
			// Complex prototype pole: s1 and s2 each pair with their own
			// conjugate (contributed by the conjugate prototype pole).
			sections = append(sections,
				sectionFromConjugatePole(z1),
				sectionFromConjugatePole(z2))
		} else {
			// Real prototype pole: s1, s2 form one section together.
			sections = append(sections, sectionFromPolePair(z1, z2))
		}
	}

	normalizeAtFrequency(sections, math.Sqrt(lowHz*highHz), rate)

	return sections, nil
}

// Notch designs a single-section notch filter rejecting f0 with the given
// quality factor (RBJ cookbook form).
func Notch(f0, q, rate float64) (Coefficients, error) {
	if !(f0 > 0 && f0 < rate/2) || q <= 0 {
		return Coefficients{}, fmt.Errorf("notch at %g Hz, Q=%g, rate %g Hz: %w",
			f0, q, rate, ErrInvalidParams)
	}

	w0 := 2 * math.Pi * f0 / rate
	alpha := math.Sin(w0) / (2 * q)
	cosw0 := math.Cos(w0)
	a0 := 1 + alpha

	return Coefficients{
		B0: 1 / a0,
		B1: -2 * cosw0 / a0,
		B2: 1 / a0,
		A1: -2 * cosw0 / a0,
		A2: (1 - alpha) / a0,
	}, nil
}

// Response evaluates the cascade's complex frequency response at f Hz.
func Response(sections []Coefficients, f, rate float64) complex128 {
	z := cmplx.Exp(complex(0, -2*math.Pi*f/rate))
	h := complex(1, 0)

	for _, s := range sections {
		num := complex(s.B0, 0) + complex(s.B1, 0)*z + complex(s.B2, 0)*z*z
		den := complex(1, 0) + complex(s.A1, 0)*z + complex(s.A2, 0)*z*z
		h *= num / den
	}

	return h
}

func prewarp(f, rate float64) float64 {
	return 2 * rate * math.Tan(math.Pi*f/rate)
}

// bilinear maps an analog pole to the z-plane, z = (2*fs + s)/(2*fs - s).
func bilinear(s complex128, rate float64) complex128 {
	fs2 := complex(2*rate, 0)

	return (fs2 + s) / (fs2 - s)
}

// sectionFromConjugatePole builds a bandpass section from z and its
// conjugate, with the unnormalized numerator (z-1)(z+1).
func sectionFromConjugatePole(z complex128) Coefficients {
	return Coefficients{
		B0: 1, B2: -1,
		A1: -2 * real(z),
		A2: real(z)*real(z) + imag(z)*imag(z),
	}
}

// sectionFromPolePair builds a bandpass section from two poles whose product
// and sum are real.
func sectionFromPolePair(z1, z2 complex128) Coefficients {
	return Coefficients{
		B0: 1, B2: -1,
		A1: -real(z1 + z2),
		A2: real(z1 * z2),
	}
}

// normalizeAtFrequency scales the first section so the cascade has unit
// magnitude at f Hz.
func normalizeAtFrequency(sections []Coefficients, f, rate float64) {
	mag := cmplx.Abs(Response(sections, f, rate))
	if mag == 0 || len(sections) == 0 {
		return
	}

	g := 1 / mag
	sections[0].B0 *= g
	sections[0].B1 *= g
	sections[0].B2 *= g
}
