package pac

import (
	"fmt"

	"github.com/Tousak/spectral-analysis/ephys"
)

// Window frames a sliding coupling analysis, both fields in samples. Step
// may exceed Length, leaving gaps between windows.
type Window struct {
	Length int
	Step   int
}

// WindowCoupling is the coupling of one sliding window, stamped with the
// window's start time in seconds relative to the series start.
type WindowCoupling struct {
	Start float64
	Coupling
}

// ComputeSliding evaluates the coupling metrics over sliding windows. The
// window must cover at least one full cycle of the phase band's low edge,
// otherwise an error wrapping [ephys.ErrInsufficientWindow] is returned.
// With cfg.TrimTransients set, the transient margins are removed before
// windowing; window start times still count from the untrimmed series
// start.
func ComputeSliding(phase, amp *Series, w Window, cfg Config) ([]WindowCoupling, error) {
	if phase.Rate != amp.Rate || phase.Len() != amp.Len() {
		return nil, fmt.Errorf("pac: series mismatch (rate %g/%g, len %d/%d): %w",
			phase.Rate, amp.Rate, phase.Len(), amp.Len(), ephys.ErrMalformedSegment)
	}

	if w.Length <= 0 || w.Step <= 0 {
		return nil, fmt.Errorf("pac: window %d/%d samples: %w",
			w.Length, w.Step, ephys.ErrInvalidWindow)
	}

	if phase.Band.Low > 0 {
		cycle := phase.Rate / phase.Band.Low
		if float64(w.Length) < cycle {
			return nil, fmt.Errorf("pac: window of %d samples shorter than one %g Hz cycle (%g samples): %w",
				w.Length, phase.Band.Low, cycle, ephys.ErrInsufficientWindow)
		}
	}

	ph, am := phase.Phase, amp.Amp
	margin := 0
	if cfg.TrimTransients {
		ph, _ = phase.Trimmed()
		_, am = amp.Trimmed()

		if len(ph) != len(am) {
			return nil, fmt.Errorf("pac: trimmed lengths differ (%d != %d): %w",
				len(ph), len(am), ephys.ErrMalformedSegment)
		}

		margin = (phase.Len() - len(ph)) / 2
	}

	if len(ph) < w.Length {
		return nil, fmt.Errorf("pac: series of %d samples shorter than window %d: %w",
			len(ph), w.Length, ephys.ErrInsufficientWindow)
	}

	bins := cfg.phaseBins()

	var out []WindowCoupling
	for off := 0; off+w.Length <= len(ph); off += w.Step {
		c, err := computeRaw(ph[off:off+w.Length], am[off:off+w.Length], bins)
		if err != nil {
			return nil, fmt.Errorf("pac: window at sample %d: %w", margin+off, err)
		}

		out = append(out, WindowCoupling{
			Start:    float64(margin+off) / phase.Rate,
			Coupling: c,
		})
	}

	return out, nil
}
