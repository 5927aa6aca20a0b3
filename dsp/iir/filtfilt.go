package iir

import "fmt"

// FiltFilt applies the cascade forward and then backward, yielding zero
// phase distortion and the squared magnitude response. The input is
// extended at both ends by odd reflection before filtering and the
// extensions are discarded afterwards; each pass starts from the
// steady-state initial conditions for its first sample, which suppresses
// the startup transient.
//
// Returns an error wrapping [ErrInputTooShort] when the input does not
// exceed the padding length 3*(2*len(sections)+1).
func FiltFilt(sections []Coefficients, x []float64) ([]float64, error) {
	if len(sections) == 0 {
		out := make([]float64, len(x))
		copy(out, x)

		return out, nil
	}

	padlen := 3 * (2*len(sections) + 1)
	if len(x) <= padlen {
		return nil, fmt.Errorf("%d samples, need more than %d: %w",
			len(x), padlen, ErrInputTooShort)
	}

	ext := oddReflect(x, padlen)

	filtOnce(sections, ext)
	reverse(ext)
	filtOnce(sections, ext)
	reverse(ext)

	out := make([]float64, len(x))
	copy(out, ext[padlen:len(ext)-padlen])

	return out, nil
}

// filtOnce runs one causal pass over buf in-place, seeding each section with
// its steady-state response to buf[0].
func filtOnce(sections []Coefficients, buf []float64) {
	chain := NewChain(sections)

	scale := buf[0]
	for _, s := range chain.Sections() {
		d0, d1 := stepState(s.Coefficients)
		s.SetState([2]float64{d0 * scale, d1 * scale})
		scale *= s.DCGain()
	}

	chain.ProcessBlock(buf)
}

// stepState returns the delay-line state a section settles into under a
// sustained unit input.
func stepState(c Coefficients) (d0, d1 float64) {
	y := c.DCGain()
	d1 = c.B2 - c.A2*y
	d0 = c.B1 - c.A1*y + d1

	return d0, d1
}

// oddReflect extends x by n samples on each side, reflecting about the end
// values so the extension is continuous in value and slope.
func oddReflect(x []float64, n int) []float64 {
	out := make([]float64, 0, len(x)+2*n)

	for i := n; i >= 1; i-- {
		out = append(out, 2*x[0]-x[i])
	}

	out = append(out, x...)

	last := len(x) - 1
	for i := 1; i <= n; i++ {
		out = append(out, 2*x[last]-x[last-i])
	}

	return out
}

func reverse(buf []float64) {
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
}
