package pac

import (
	"fmt"
	"math"

	"github.com/Tousak/spectral-analysis/dsp/analytic"
	"github.com/Tousak/spectral-analysis/ephys"
)

// DefaultPhaseBins is the number of phase bins for the modulation index
// when none is configured.
const DefaultPhaseBins = 18

// Config controls coupling computation.
type Config struct {
	// PhaseBins is the number of equal bins over (-pi, pi] for the
	// modulation index; 0 selects DefaultPhaseBins.
	PhaseBins int

	// TrimTransients drops each series' transient margin before computing.
	TrimTransients bool
}

func (c Config) phaseBins() int {
	if c.PhaseBins == 0 {
		return DefaultPhaseBins
	}

	return c.PhaseBins
}

// Coupling bundles the three coupling metrics of one phase/amplitude pair.
type Coupling struct {
	MI  float64 // Tort modulation index, in [0, 1]
	MVL float64 // mean vector length, amplitude-scaled
	PLV float64 // phase-locking value, in [0, 1]
}

// Compute evaluates all coupling metrics between a phase series and an
// amplitude series. Both must come from the same sample rate and have equal
// length.
func Compute(phase, amp *Series, cfg Config) (Coupling, error) {
	if phase.Rate != amp.Rate {
		return Coupling{}, fmt.Errorf("pac: rates differ (%g != %g): %w",
			phase.Rate, amp.Rate, ephys.ErrMalformedSegment)
	}

	if phase.Len() != amp.Len() {
		return Coupling{}, fmt.Errorf("pac: lengths differ (%d != %d): %w",
			phase.Len(), amp.Len(), ephys.ErrMalformedSegment)
	}

	ph := phase.Phase
	am := amp.Amp
	if cfg.TrimTransients {
		ph, _ = phase.Trimmed()
		_, am = amp.Trimmed()

		if len(ph) != len(am) {
			return Coupling{}, fmt.Errorf("pac: trimmed lengths differ (%d != %d): %w",
				len(ph), len(am), ephys.ErrMalformedSegment)
		}
	}

	return computeRaw(ph, am, cfg.phaseBins())
}

func computeRaw(phase, amp []float64, bins int) (Coupling, error) {
	mi, err := ModulationIndex(phase, amp, bins)
	if err != nil {
		return Coupling{}, err
	}

	plv, err := envelopePLV(phase, amp)
	if err != nil {
		return Coupling{}, err
	}

	return Coupling{
		MI:  mi,
		MVL: MeanVectorLength(phase, amp),
		PLV: plv,
	}, nil
}

// ModulationIndex computes the Tort modulation index: the mean amplitude
// per phase bin, normalized to a distribution, scored by its
// Kullback-Leibler distance from uniform, (ln N - H)/ln N.
//
// A phase bin receiving no samples, or an amplitude distribution with zero
// total mass, returns an error wrapping [ephys.ErrEmptyBin].
func ModulationIndex(phase, amp []float64, bins int) (float64, error) {
	if bins < 2 {
		return 0, fmt.Errorf("pac: %d phase bins, need >= 2: %w", bins, ephys.ErrInvalidWindow)
	}

	if len(phase) == 0 || len(phase) != len(amp) {
		return 0, fmt.Errorf("pac: phase/amp lengths %d/%d: %w",
			len(phase), len(amp), ephys.ErrMalformedSegment)
	}

	sums := make([]float64, bins)
	counts := make([]int, bins)

	width := 2 * math.Pi / float64(bins)
	for i, p := range phase {
		// Bin index over (-pi, pi]; the wrap point itself lands in the last
		// bin.
		k := int(math.Floor((p + math.Pi) / width))
		if k < 0 {
			k = 0
		}
		if k >= bins {
			k = bins - 1
		}

		sums[k] += amp[i]
		counts[k]++
	}

	var total float64
	for k := range sums {
		if counts[k] == 0 {
			return 0, fmt.Errorf("pac: phase bin %d of %d received no samples: %w",
				k, bins, ephys.ErrEmptyBin)
		}

		sums[k] /= float64(counts[k])
		total += sums[k]
	}

	if total <= 0 {
		return 0, fmt.Errorf("pac: amplitude distribution has zero mass: %w", ephys.ErrEmptyBin)
	}

	var entropy float64
	for _, s := range sums {
		p := s / total
		if p > 0 {
			entropy -= p * math.Log(p)
		}
	}

	logN := math.Log(float64(bins))

	return (logN - entropy) / logN, nil
}

// MeanVectorLength computes |mean(amp * e^(i*phase))|. Unlike MI and PLV it
// scales with the amplitude envelope.
func MeanVectorLength(phase, amp []float64) float64 {
	if len(phase) == 0 {
		return 0
	}

	var re, im float64
	for i, p := range phase {
		re += amp[i] * math.Cos(p)
		im += amp[i] * math.Sin(p)
	}

	n := float64(len(phase))

	return math.Hypot(re/n, im/n)
}

// envelopePLV computes the within-pair phase-locking value: the phase of
// the amplitude envelope's own oscillation against the slow phase.
func envelopePLV(phase, amp []float64) (float64, error) {
	envPhase, err := analytic.Phase(amp)
	if err != nil {
		return 0, fmt.Errorf("pac: envelope phase: %w", err)
	}

	return PLVPhases(phase, envPhase), nil
}

// PLVPhases computes the phase-locking value |mean e^(i*(a-b))| between two
// phase series of equal length.
func PLVPhases(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var re, im float64
	for i := range a {
		d := a[i] - b[i]
		re += math.Cos(d)
		im += math.Sin(d)
	}

	n := float64(len(a))

	return math.Hypot(re/n, im/n)
}
