package welch

import (
	"fmt"
	"math/cmplx"

	"github.com/Tousak/spectral-analysis/dsp/window"
	"github.com/Tousak/spectral-analysis/ephys"
)

// Config describes the framing of a Welch estimate.
type Config struct {
	SampleRate   float64
	WindowLength int         // samples per frame (nperseg)
	Overlap      int         // overlapping samples between frames; -1 selects WindowLength/2
	Window       window.Type // defaults to Hann
}

// DefaultOverlap marks the Overlap field as unset, selecting half-frame
// overlap.
const DefaultOverlap = -1

// Validate checks the configuration, wrapping [ephys.ErrInvalidWindow] on
// violations.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate %g: %w", c.SampleRate, ephys.ErrInvalidWindow)
	}

	if c.WindowLength < 2 {
		return fmt.Errorf("window length %d, need >= 2: %w", c.WindowLength, ephys.ErrInvalidWindow)
	}

	overlap := c.overlap()
	if overlap < 0 || overlap >= c.WindowLength {
		return fmt.Errorf("overlap %d with window length %d: %w",
			overlap, c.WindowLength, ephys.ErrInvalidWindow)
	}

	return nil
}

func (c Config) overlap() int {
	if c.Overlap == DefaultOverlap {
		return c.WindowLength / 2
	}

	return c.Overlap
}

func (c Config) step() int { return c.WindowLength - c.overlap() }

// Estimator computes Welch estimates for one frame configuration, reusing
// the window coefficients and FFT plan across calls.
type Estimator struct {
	cfg    Config
	coeffs []float64
	sumSq  float64
	fft    transformer
}

// New builds an estimator from the configuration.
func New(cfg Config) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fft, err := newTransformer(cfg.WindowLength)
	if err != nil {
		return nil, fmt.Errorf("welch: fft plan for length %d: %w", cfg.WindowLength, err)
	}

	coeffs := window.Generate(cfg.Window, cfg.WindowLength, window.WithPeriodic())

	return &Estimator{
		cfg:    cfg,
		coeffs: coeffs,
		sumSq:  window.SumSquares(coeffs),
		fft:    fft,
	}, nil
}

// NumBins returns the number of one-sided frequency bins.
func (e *Estimator) NumBins() int { return e.cfg.WindowLength/2 + 1 }

// Frequencies returns the one-sided frequency axis in Hz, bin k at
// k*rate/WindowLength.
func (e *Estimator) Frequencies() []float64 {
	out := make([]float64, e.NumBins())
	for k := range out {
		out[k] = float64(k) * e.cfg.SampleRate / float64(e.cfg.WindowLength)
	}

	return out
}

// NumFrames returns how many frames a trace of length n yields.
func (e *Estimator) NumFrames(n int) int {
	if n < e.cfg.WindowLength {
		return 0
	}

	return (n-e.cfg.WindowLength)/e.cfg.step() + 1
}

// PSD estimates the one-sided power spectral density of x in power per Hz.
func (e *Estimator) PSD(x []float64) ([]float64, error) {
	nframes := e.NumFrames(len(x))
	if nframes == 0 {
		return nil, fmt.Errorf("%d samples shorter than window length %d: %w",
			len(x), e.cfg.WindowLength, ephys.ErrInvalidWindow)
	}

	bins := e.NumBins()
	acc := make([]float64, bins)
	frame := make([]complex128, e.cfg.WindowLength)
	spec := make([]complex128, e.cfg.WindowLength)

	for f := 0; f < nframes; f++ {
		e.loadFrame(frame, x[f*e.cfg.step():])
		if err := e.fft.forward(spec, frame); err != nil {
			return nil, fmt.Errorf("welch: forward fft: %w", err)
		}

		for k := 0; k < bins; k++ {
			re, im := real(spec[k]), imag(spec[k])
			acc[k] += re*re + im*im
		}
	}

	e.finishDensity(acc, nframes)

	return acc, nil
}

// CrossSpectra estimates the one-sided auto spectra of x and y together with
// their cross-spectral density conj(X)*Y, all averaged over the same frames.
// The inputs must have the same length.
func (e *Estimator) CrossSpectra(x, y []float64) (sxx, syy []float64, sxy []complex128, err error) {
	if len(x) != len(y) {
		return nil, nil, nil, fmt.Errorf("traces have %d and %d samples: %w",
			len(x), len(y), ephys.ErrInvalidWindow)
	}

	nframes := e.NumFrames(len(x))
	if nframes == 0 {
		return nil, nil, nil, fmt.Errorf("%d samples shorter than window length %d: %w",
			len(x), e.cfg.WindowLength, ephys.ErrInvalidWindow)
	}

	bins := e.NumBins()
	sxx = make([]float64, bins)
	syy = make([]float64, bins)
	sxy = make([]complex128, bins)

	frameX := make([]complex128, e.cfg.WindowLength)
	frameY := make([]complex128, e.cfg.WindowLength)
	specX := make([]complex128, e.cfg.WindowLength)
	specY := make([]complex128, e.cfg.WindowLength)

	for f := 0; f < nframes; f++ {
		off := f * e.cfg.step()
		e.loadFrame(frameX, x[off:])
		e.loadFrame(frameY, y[off:])

		if err := e.fft.forward(specX, frameX); err != nil {
			return nil, nil, nil, fmt.Errorf("welch: forward fft: %w", err)
		}
		if err := e.fft.forward(specY, frameY); err != nil {
			return nil, nil, nil, fmt.Errorf("welch: forward fft: %w", err)
		}

		for k := 0; k < bins; k++ {
			sxx[k] += real(specX[k])*real(specX[k]) + imag(specX[k])*imag(specX[k])
			syy[k] += real(specY[k])*real(specY[k]) + imag(specY[k])*imag(specY[k])
			sxy[k] += cmplx.Conj(specX[k]) * specY[k]
		}
	}

	e.finishDensity(sxx, nframes)
	e.finishDensity(syy, nframes)
	e.finishDensityCmplx(sxy, nframes)

	return sxx, syy, sxy, nil
}

// Spectrogram returns the per-frame one-sided densities without averaging,
// together with each frame's center time in seconds.
func (e *Estimator) Spectrogram(x []float64) (times []float64, frames [][]float64, err error) {
	nframes := e.NumFrames(len(x))
	if nframes == 0 {
		return nil, nil, fmt.Errorf("%d samples shorter than window length %d: %w",
			len(x), e.cfg.WindowLength, ephys.ErrInvalidWindow)
	}

	bins := e.NumBins()
	times = make([]float64, nframes)
	frames = make([][]float64, nframes)

	frame := make([]complex128, e.cfg.WindowLength)
	spec := make([]complex128, e.cfg.WindowLength)

	for f := 0; f < nframes; f++ {
		off := f * e.cfg.step()
		times[f] = (float64(off) + float64(e.cfg.WindowLength)/2) / e.cfg.SampleRate

		e.loadFrame(frame, x[off:])
		if err := e.fft.forward(spec, frame); err != nil {
			return nil, nil, fmt.Errorf("welch: forward fft: %w", err)
		}

		row := make([]float64, bins)
		for k := 0; k < bins; k++ {
			row[k] = real(spec[k])*real(spec[k]) + imag(spec[k])*imag(spec[k])
		}
		e.finishDensity(row, 1)
		frames[f] = row
	}

	return times, frames, nil
}

// loadFrame detrends one frame by its mean, applies the window, and widens
// to complex.
func (e *Estimator) loadFrame(dst []complex128, src []float64) {
	n := e.cfg.WindowLength

	var mean float64
	for i := 0; i < n; i++ {
		mean += src[i]
	}
	mean /= float64(n)

	for i := 0; i < n; i++ {
		dst[i] = complex((src[i]-mean)*e.coeffs[i], 0)
	}
}

// finishDensity converts accumulated frame powers into an averaged one-sided
// density: scale by 1/(rate*sum(w^2)*nframes) and double the interior bins.
func (e *Estimator) finishDensity(acc []float64, nframes int) {
	scale := 1 / (e.cfg.SampleRate * e.sumSq * float64(nframes))

	for k := range acc {
		acc[k] *= scale
		if e.interiorBin(k) {
			acc[k] *= 2
		}
	}
}

func (e *Estimator) finishDensityCmplx(acc []complex128, nframes int) {
	scale := complex(1/(e.cfg.SampleRate*e.sumSq*float64(nframes)), 0)

	for k := range acc {
		acc[k] *= scale
		if e.interiorBin(k) {
			acc[k] *= 2
		}
	}
}

// interiorBin reports whether bin k is doubled in the one-sided spectrum:
// everything except DC and, for even frame lengths, Nyquist.
func (e *Estimator) interiorBin(k int) bool {
	if k == 0 {
		return false
	}
	if e.cfg.WindowLength%2 == 0 && k == e.cfg.WindowLength/2 {
		return false
	}

	return true
}
