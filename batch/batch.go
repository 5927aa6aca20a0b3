// Package batch orchestrates whole analysis runs: preprocessing,
// per-segment spectral, coupling, and comodulogram measures plus
// per-channel-pair coherence fanned out over a bounded worker group, and
// hierarchical aggregation of the survivors. A failing segment is recorded
// and skipped, never aborting unrelated work.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tousak/spectral-analysis/ephys"
	"github.com/Tousak/spectral-analysis/measure/coherence"
	"github.com/Tousak/spectral-analysis/measure/comod"
	"github.com/Tousak/spectral-analysis/measure/pac"
	"github.com/Tousak/spectral-analysis/measure/psd"
	"github.com/Tousak/spectral-analysis/stats/agg"
)

// BandPair names one phase band driving one amplitude band.
type BandPair struct {
	Phase ephys.Band
	Amp   ephys.Band
}

// ChannelPair names two channels of the same recording compared against
// each other.
type ChannelPair struct {
	A string
	B string
}

// String renders the pair as "A+B", the label used in aggregation trees.
func (p ChannelPair) String() string { return p.A + "+" + p.B }

// Config is the configuration surface of one analysis run.
type Config struct {
	// Welch framing for the spectral estimates. WindowLength 0 picks 2 s
	// frames; Overlap follows the welch convention, 0 meaning no overlap
	// and welch.DefaultOverlap half a frame.
	WindowLength int
	Overlap      int

	// BandNames/Bands are the power bands, in export order. Empty selects
	// the default bands that fit each segment's rate.
	BandNames []string
	Bands     []ephys.Band

	// CouplingPairs are the phase/amplitude band pairs to evaluate per
	// segment. Empty disables coupling.
	CouplingPairs []BandPair
	PhaseBins     int

	// ComodPhaseBands and ComodAmpBands span the per-segment comodulogram
	// grid. Both must be set to enable it.
	ComodPhaseBands []ephys.Band
	ComodAmpBands   []ephys.Band

	// CoherencePairs are channel pairs compared within each file and time
	// slice. A pair whose channels are not both queued for a slice is
	// skipped. Empty disables coherence.
	CoherencePairs []ChannelPair

	// CoherenceBands reduce each coherence spectrum; empty selects the
	// default bands that fit the pair's rate.
	CoherenceBands []ephys.Band

	// Powerline enables the notch comb at 50 or 60 Hz up to PowerlineMax.
	Powerline    float64
	PowerlineMax float64

	// Normalize z-scores each segment before analysis.
	Normalize bool

	// Groups maps recording files to experimental groups; unmapped files
	// fall into the grand group.
	Groups agg.Grouping
}

// Unit is one segment queued for analysis.
type Unit struct {
	Segment *ephys.Segment
	Group   string
}

// PairCoupling is the coupling of one configured band pair.
type PairCoupling struct {
	Pair BandPair
	pac.Coupling
}

// SegmentResult is the per-segment outcome of a run.
type SegmentResult struct {
	Segment    *ephys.Segment
	Group      string
	BandNames  []string
	BandPowers []psd.BandPower
	Coupling   []PairCoupling

	// Comodulogram is set when the configuration spans a grid.
	Comodulogram *comod.Matrix
}

// PairResult is the coherence outcome of one channel pair and time slice.
type PairResult struct {
	A, B      *ephys.Segment
	Pair      ChannelPair
	Group     string
	Bands     []ephys.Band
	Coherence []coherence.BandCoherence
}

// UnitError records one failed segment without naming the others.
type UnitError struct {
	File    string
	Channel string
	Segment string
	Err     error
}

func (e UnitError) Error() string {
	return fmt.Sprintf("%s/%s %s: %v", e.File, e.Channel, e.Segment, e.Err)
}

func (e UnitError) Unwrap() error { return e.Err }

// Output bundles everything a run produced.
type Output struct {
	Results []SegmentResult
	Pairs   []PairResult
	Errors  []UnitError

	// BandPowerTrees aggregates the per-segment band power vectors, one
	// tree per group; nil when no segment succeeded.
	BandPowerTrees []*agg.Node

	// MITrees aggregates the modulation indices of the configured pairs.
	MITrees []*agg.Node

	// ComodTrees aggregates the row-major flattened comodulogram cells.
	ComodTrees []*agg.Node

	// CoherenceTrees aggregates the per-pair band coherence means, the
	// pair label standing in for the channel level.
	CoherenceTrees []*agg.Node
}

// Runner executes analysis runs.
type Runner struct {
	cfg   Config
	log   *zap.Logger
	limit int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger attaches a structured logger; the default is a no-op logger.
func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// WithConcurrency bounds the number of units analyzed at once. Zero or
// negative selects GOMAXPROCS.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		r.limit = n
	}
}

// NewRunner builds a runner for one configuration.
func NewRunner(cfg Config, opts ...RunnerOption) *Runner {
	r := &Runner{cfg: cfg, log: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Run analyzes all units. Per-unit failures land in Output.Errors; Run
// itself fails only on cancellation or when aggregation of the survivors
// fails.
func (r *Runner) Run(ctx context.Context, units []Unit) (*Output, error) {
	out := &Output{}

	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	} else {
		g.SetLimit(runtime.GOMAXPROCS(0))
	}

	for _, u := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := r.analyze(ctx, u)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				out.Errors = append(out.Errors, UnitError{
					File:    u.Segment.File,
					Channel: u.Segment.Channel,
					Segment: u.Segment.TimeRange(),
					Err:     err,
				})

				r.log.Warn("segment failed",
					zap.String("file", u.Segment.File),
					zap.String("channel", u.Segment.Channel),
					zap.String("range", u.Segment.TimeRange()),
					zap.Error(err))

				return nil
			}

			out.Results = append(out.Results, *res)

			r.log.Info("segment analyzed",
				zap.String("file", u.Segment.File),
				zap.String("channel", u.Segment.Channel),
				zap.String("range", u.Segment.TimeRange()))

			return nil
		})
	}

	for _, j := range r.pairJobs(units) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			res, err := r.analyzePair(j)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				out.Errors = append(out.Errors, UnitError{
					File:    j.a.Segment.File,
					Channel: j.pair.String(),
					Segment: j.a.Segment.TimeRange(),
					Err:     err,
				})

				r.log.Warn("channel pair failed",
					zap.String("file", j.a.Segment.File),
					zap.String("pair", j.pair.String()),
					zap.String("range", j.a.Segment.TimeRange()),
					zap.Error(err))

				return nil
			}

			out.Pairs = append(out.Pairs, *res)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}

	if err := r.aggregate(out); err != nil {
		return nil, err
	}

	return out, nil
}

// preprocess applies the configured notch comb and normalization.
func (r *Runner) preprocess(seg *ephys.Segment) (*ephys.Segment, error) {
	var err error
	if r.cfg.Powerline > 0 {
		maxHz := r.cfg.PowerlineMax
		if maxHz == 0 {
			maxHz = seg.Nyquist()
		}

		seg, err = PowerlineNotch(seg, r.cfg.Powerline, maxHz)
		if err != nil {
			return nil, err
		}
	}

	if r.cfg.Normalize {
		seg, err = ZScore(seg)
		if err != nil {
			return nil, err
		}
	}

	return seg, nil
}

// analyze runs preprocessing and all configured measures on one segment.
func (r *Runner) analyze(ctx context.Context, u Unit) (*SegmentResult, error) {
	seg, err := r.preprocess(u.Segment)
	if err != nil {
		return nil, err
	}

	names, bands := r.cfg.BandNames, r.cfg.Bands
	if len(bands) == 0 {
		names, bands = ephys.OrderedBands(seg.Rate)
	}

	spectrum, err := psd.Estimate(seg, psd.Config{
		WindowLength: r.cfg.WindowLength,
		Overlap:      r.cfg.Overlap,
	})
	if err != nil {
		return nil, err
	}

	powers, err := spectrum.BandPowers(bands)
	if err != nil {
		return nil, err
	}

	res := &SegmentResult{
		Segment:    u.Segment,
		Group:      u.Group,
		BandNames:  names,
		BandPowers: powers,
	}

	extractor := pac.NewExtractor(pac.ExtractConfig{})
	for _, pair := range r.cfg.CouplingPairs {
		phase, err := extractor.Extract(seg, pair.Phase)
		if err != nil {
			return nil, err
		}

		amp, err := extractor.Extract(seg, pair.Amp)
		if err != nil {
			return nil, err
		}

		c, err := pac.Compute(phase, amp, pac.Config{PhaseBins: r.cfg.PhaseBins})
		if err != nil {
			return nil, err
		}

		res.Coupling = append(res.Coupling, PairCoupling{Pair: pair, Coupling: c})
	}

	if len(r.cfg.ComodPhaseBands) > 0 && len(r.cfg.ComodAmpBands) > 0 {
		m, err := comod.Build(ctx, seg, r.cfg.ComodPhaseBands, r.cfg.ComodAmpBands,
			comod.WithPhaseBins(r.cfg.PhaseBins))
		if err != nil {
			return nil, err
		}

		res.Comodulogram = m
	}

	return res, nil
}

// pairJob is one coherence comparison: both channels of one time slice.
type pairJob struct {
	a, b Unit
	pair ChannelPair
}

// pairJobs matches the configured channel pairs against the queued units,
// one job per file, time slice, and pair. Pairs missing a channel are
// logged and skipped.
func (r *Runner) pairJobs(units []Unit) []pairJob {
	if len(r.cfg.CoherencePairs) == 0 {
		return nil
	}

	type sliceKey struct {
		file string
		span string
	}

	index := make(map[sliceKey]map[string]Unit)
	for _, u := range units {
		k := sliceKey{u.Segment.File, u.Segment.TimeRange()}
		if index[k] == nil {
			index[k] = make(map[string]Unit)
		}

		index[k][u.Segment.Channel] = u
	}

	// Driven by the unit order so identical input yields identical jobs.
	var jobs []pairJob
	for _, u := range units {
		k := sliceKey{u.Segment.File, u.Segment.TimeRange()}

		for _, p := range r.cfg.CoherencePairs {
			if p.A != u.Segment.Channel {
				continue
			}

			other, ok := index[k][p.B]
			if !ok {
				r.log.Warn("coherence pair incomplete",
					zap.String("file", u.Segment.File),
					zap.String("pair", p.String()),
					zap.String("range", u.Segment.TimeRange()))

				continue
			}

			jobs = append(jobs, pairJob{a: u, b: other, pair: p})
		}
	}

	return jobs
}

// analyzePair preprocesses both channels and estimates their band
// coherences.
func (r *Runner) analyzePair(j pairJob) (*PairResult, error) {
	a, err := r.preprocess(j.a.Segment)
	if err != nil {
		return nil, err
	}

	b, err := r.preprocess(j.b.Segment)
	if err != nil {
		return nil, err
	}

	c, err := coherence.Estimate(a, b, coherence.Config{
		WindowLength: r.cfg.WindowLength,
		Overlap:      r.cfg.Overlap,
	})
	if err != nil {
		return nil, err
	}

	bands := r.cfg.CoherenceBands
	if len(bands) == 0 {
		_, bands = ephys.OrderedBands(a.Rate)
	}

	bcs, err := c.BandCoherences(bands)
	if err != nil {
		return nil, err
	}

	return &PairResult{
		A:         j.a.Segment,
		B:         j.b.Segment,
		Pair:      j.pair,
		Group:     j.a.Group,
		Bands:     bands,
		Coherence: bcs,
	}, nil
}

// aggregate rolls the successful results into per-group trees, one set per
// analysis: band power, coupling, comodulogram, and coherence. Results with
// differing band sets cannot share a tree and surface as an error.
func (r *Runner) aggregate(out *Output) error {
	powerLeaves := make([]agg.Leaf, 0, len(out.Results))
	var miLeaves, comodLeaves []agg.Leaf

	for _, res := range out.Results {
		values := make([]float64, len(res.BandPowers))
		for i, bp := range res.BandPowers {
			values[i] = bp.Power
		}

		powerLeaves = append(powerLeaves, agg.Leaf{
			Group:   res.Group,
			File:    res.Segment.File,
			Channel: res.Segment.Channel,
			Segment: res.Segment.TimeRange(),
			Values:  values,
		})

		if len(res.Coupling) > 0 {
			mis := make([]float64, len(res.Coupling))
			for i, c := range res.Coupling {
				mis[i] = c.MI
			}

			miLeaves = append(miLeaves, agg.Leaf{
				Group:   res.Group,
				File:    res.Segment.File,
				Channel: res.Segment.Channel,
				Segment: res.Segment.TimeRange(),
				Values:  mis,
			})
		}

		if res.Comodulogram != nil {
			var cells []float64
			for _, row := range res.Comodulogram.MI {
				cells = append(cells, row...)
			}

			comodLeaves = append(comodLeaves, agg.Leaf{
				Group:   res.Group,
				File:    res.Segment.File,
				Channel: res.Segment.Channel,
				Segment: res.Segment.TimeRange(),
				Values:  cells,
			})
		}
	}

	var coherenceLeaves []agg.Leaf
	for _, p := range out.Pairs {
		means := make([]float64, len(p.Coherence))
		for i, bc := range p.Coherence {
			means[i] = bc.Mean
		}

		coherenceLeaves = append(coherenceLeaves, agg.Leaf{
			Group:   p.Group,
			File:    p.A.File,
			Channel: p.Pair.String(),
			Segment: p.A.TimeRange(),
			Values:  means,
		})
	}

	if len(powerLeaves) > 0 {
		trees, err := agg.Aggregate(powerLeaves, r.cfg.Groups)
		if err != nil {
			return fmt.Errorf("batch: band power aggregation: %w", err)
		}
		out.BandPowerTrees = trees
	}

	if len(miLeaves) > 0 {
		trees, err := agg.Aggregate(miLeaves, r.cfg.Groups)
		if err != nil {
			return fmt.Errorf("batch: coupling aggregation: %w", err)
		}
		out.MITrees = trees
	}

	if len(comodLeaves) > 0 {
		trees, err := agg.Aggregate(comodLeaves, r.cfg.Groups)
		if err != nil {
			return fmt.Errorf("batch: comodulogram aggregation: %w", err)
		}
		out.ComodTrees = trees
	}

	if len(coherenceLeaves) > 0 {
		trees, err := agg.Aggregate(coherenceLeaves, r.cfg.Groups)
		if err != nil {
			return fmt.Errorf("batch: coherence aggregation: %w", err)
		}
		out.CoherenceTrees = trees
	}

	return nil
}
