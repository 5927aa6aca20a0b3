package welch

import (
	algofft "github.com/cwbudde/algo-fft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// transformer is the forward DFT backend for one frame length.
type transformer interface {
	forward(dst, src []complex128) error
}

// newTransformer picks the radix-2 plan for power-of-two frame lengths and
// falls back to the generic mixed-radix transform otherwise. Typical
// electrophysiology frame lengths (2*rate with rates like 2000 Hz) are not
// powers of two, so both paths see real use.
func newTransformer(n int) (transformer, error) {
	if isPowerOfTwo(n) {
		plan, err := algofft.NewPlan64(n)
		if err != nil {
			return nil, err
		}

		return &radix2Transform{plan: plan}, nil
	}

	return &genericTransform{fft: fourier.NewCmplxFFT(n)}, nil
}

type radix2Transform struct {
	plan *algofft.Plan[complex128]
}

func (t *radix2Transform) forward(dst, src []complex128) error {
	return t.plan.Forward(dst, src)
}

type genericTransform struct {
	fft *fourier.CmplxFFT
}

func (t *genericTransform) forward(dst, src []complex128) error {
	t.fft.Coefficients(dst, src)

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
