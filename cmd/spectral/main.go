// Command spectral analyzes EDF recordings: Welch band powers per channel
// and time slice, optional phase-amplitude coupling, hierarchical
// group/file/channel aggregation, and a multi-sheet .xlsx report.
//
// Usage:
//
//	spectral [flags] recording.edf [more.edf ...]
//
// Examples:
//
//	spectral -out results.xlsx baseline.edf
//	spectral -channels Ch1,Ch2 -ranges "0 60; 120 180" session.edf
//	spectral -phase 4-8 -amp 30-80 -groups "rec1=ctrl,rec2=treated" *.edf
//	spectral -pairs Ch1+Ch2 -comod-phase 4:12:2 -comod-amp 20:100:10 session.edf
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Tousak/spectral-analysis/batch"
	"github.com/Tousak/spectral-analysis/dsp/welch"
	"github.com/Tousak/spectral-analysis/edfio"
	"github.com/Tousak/spectral-analysis/ephys"
	"github.com/Tousak/spectral-analysis/exportxlsx"
	"github.com/Tousak/spectral-analysis/measure/comod"
	"github.com/Tousak/spectral-analysis/stats/agg"
)

func main() {
	var (
		channelsFlag  = flag.String("channels", "", "comma-separated channel labels (default: all)")
		rangesFlag    = flag.String("ranges", "", `time slices in seconds, e.g. "10 20; 30 40" (default: whole recording)`)
		groupsFlag    = flag.String("groups", "", `file-to-group assignments, e.g. "rec1=ctrl,rec2=treated"`)
		outFlag       = flag.String("out", "results.xlsx", "output workbook path")
		windowFlag    = flag.Int("window", 0, "Welch frame length in samples (default: 2 s of samples)")
		overlapFlag   = flag.Int("overlap", welch.DefaultOverlap, "Welch frame overlap in samples (-1 selects half a frame, 0 none)")
		phaseFlag     = flag.String("phase", "", `coupling phase band, e.g. "4-8" (requires -amp)`)
		ampFlag       = flag.String("amp", "", `coupling amplitude band, e.g. "30-80"`)
		pairsFlag     = flag.String("pairs", "", `coherence channel pairs, e.g. "Ch1+Ch2,Ch1+Ch3"`)
		comodPhFlag   = flag.String("comod-phase", "", `comodulogram phase grid "start:stop:step[:width]", e.g. "4:12:2"`)
		comodAmpFlag  = flag.String("comod-amp", "", `comodulogram amplitude grid, e.g. "20:100:10"`)
		binsFlag      = flag.Int("bins", 0, "modulation index phase bins (default 18)")
		powerlineFlag = flag.Float64("powerline", 0, "mains frequency for notch comb, 50 or 60 (0 disables)")
		plMaxFlag     = flag.Float64("powerline-max", 0, "highest notched harmonic in Hz (default: Nyquist)")
		zscoreFlag    = flag.Bool("zscore", false, "z-score each segment before analysis")
		verboseFlag   = flag.Bool("v", false, "verbose progress logging")
	)

	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: spectral [flags] recording.edf [more.edf ...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log := zap.NewNop()
	if *verboseFlag {
		var err error

		log, err = zap.NewDevelopment()
		if err != nil {
			fatal(err)
		}
	}
	defer log.Sync()

	cfg := batch.Config{
		WindowLength: *windowFlag,
		Overlap:      *overlapFlag,
		PhaseBins:    *binsFlag,
		Powerline:    *powerlineFlag,
		PowerlineMax: *plMaxFlag,
		Normalize:    *zscoreFlag,
	}

	groups, err := parseGroups(*groupsFlag)
	if err != nil {
		fatal(err)
	}
	cfg.Groups = groups

	if (*phaseFlag == "") != (*ampFlag == "") {
		fatal(fmt.Errorf("-phase and -amp must be given together"))
	}
	if *phaseFlag != "" {
		phase, err := parseBand(*phaseFlag)
		if err != nil {
			fatal(err)
		}

		amp, err := parseBand(*ampFlag)
		if err != nil {
			fatal(err)
		}

		cfg.CouplingPairs = []batch.BandPair{{Phase: phase, Amp: amp}}
	}

	pairs, err := parsePairs(*pairsFlag)
	if err != nil {
		fatal(err)
	}
	cfg.CoherencePairs = pairs

	if (*comodPhFlag == "") != (*comodAmpFlag == "") {
		fatal(fmt.Errorf("-comod-phase and -comod-amp must be given together"))
	}
	if *comodPhFlag != "" {
		if cfg.ComodPhaseBands, err = parseGrid(*comodPhFlag); err != nil {
			fatal(err)
		}
		if cfg.ComodAmpBands, err = parseGrid(*comodAmpFlag); err != nil {
			fatal(err)
		}
	}

	ranges, err := parseRanges(*rangesFlag)
	if err != nil {
		fatal(err)
	}

	units, err := loadUnits(flag.Args(), splitList(*channelsFlag), ranges, log)
	if err != nil {
		fatal(err)
	}

	runner := batch.NewRunner(cfg, batch.WithLogger(log))

	out, err := runner.Run(context.Background(), units)
	if err != nil {
		fatal(err)
	}

	for _, ue := range out.Errors {
		fmt.Fprintf(os.Stderr, "spectral: skipped %s\n", ue.Error())
	}

	if len(out.Results) == 0 {
		fatal(fmt.Errorf("no segment analyzed successfully"))
	}

	if err := writeWorkbook(*outFlag, out); err != nil {
		fatal(err)
	}

	fmt.Printf("%d segments analyzed (%d skipped), results in %s\n",
		len(out.Results), len(out.Errors), *outFlag)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "spectral: %v\n", err)
	os.Exit(1)
}

// loadUnits reads the requested slices of every file and channel.
func loadUnits(paths, channels []string, ranges [][2]float64, log *zap.Logger) ([]batch.Unit, error) {
	var units []batch.Unit

	for _, path := range paths {
		f, err := edfio.Open(path)
		if err != nil {
			return nil, err
		}

		fileRanges := ranges
		if len(fileRanges) == 0 {
			fileRanges = [][2]float64{{0, f.Duration()}}
		}

		wanted := channels
		if len(wanted) == 0 {
			for _, c := range f.Channels() {
				wanted = append(wanted, c.Label)
			}
		}

		for _, label := range wanted {
			segs, err := f.ReadSegments(label, fileRanges)
			if err != nil {
				f.Close()

				return nil, err
			}

			for _, seg := range segs {
				units = append(units, batch.Unit{Segment: seg})
			}
		}

		log.Info("recording loaded",
			zap.String("file", f.Name()),
			zap.Int("channels", len(wanted)),
			zap.Float64("duration", f.Duration()))

		f.Close()
	}

	return units, nil
}

func writeWorkbook(path string, out *batch.Output) error {
	w := exportxlsx.New()
	defer w.Close()

	var powerRows []exportxlsx.BandPowerRow
	var couplingRows []exportxlsx.CouplingRow

	for _, res := range out.Results {
		for i, bp := range res.BandPowers {
			powerRows = append(powerRows, exportxlsx.BandPowerRow{
				File:    res.Segment.File,
				Channel: res.Segment.Channel,
				Segment: res.Segment.TimeRange(),
				Band:    res.BandNames[i],
				Result:  bp,
			})
		}

		for _, c := range res.Coupling {
			couplingRows = append(couplingRows, exportxlsx.CouplingRow{
				File:      res.Segment.File,
				Channel:   res.Segment.Channel,
				Segment:   res.Segment.TimeRange(),
				PhaseBand: c.Pair.Phase.String(),
				AmpBand:   c.Pair.Amp.String(),
				MI:        c.MI,
				MVL:       c.MVL,
				PLV:       c.PLV,
			})
		}
	}

	if err := w.AddBandPowers("Band Powers", powerRows); err != nil {
		return err
	}

	if len(couplingRows) > 0 {
		if err := w.AddCoupling("PAC", couplingRows); err != nil {
			return err
		}
	}

	var coherenceRows []exportxlsx.CoherenceRow
	for _, p := range out.Pairs {
		for _, bc := range p.Coherence {
			coherenceRows = append(coherenceRows, exportxlsx.CoherenceRow{
				File:     p.A.File,
				ChannelA: p.Pair.A,
				ChannelB: p.Pair.B,
				Segment:  p.A.TimeRange(),
				Band:     bc.Band.String(),
				Mean:     bc.Mean,
				SEM:      bc.SEM,
			})
		}
	}
	if len(coherenceRows) > 0 {
		if err := w.AddCoherence("Coherence", coherenceRows); err != nil {
			return err
		}
	}

	comodSheets := 0
	for _, res := range out.Results {
		if res.Comodulogram == nil {
			continue
		}

		comodSheets++
		if err := w.AddComodulogram(fmt.Sprintf("Comod %d", comodSheets), res.Comodulogram); err != nil {
			return err
		}
	}

	if err := w.AddSummary("Summary", out.BandPowerTrees); err != nil {
		return err
	}

	if len(out.MITrees) > 0 {
		if err := w.AddSummary("PAC Summary", out.MITrees); err != nil {
			return err
		}
	}

	if len(out.ComodTrees) > 0 {
		if err := w.AddSummary("Comod Summary", out.ComodTrees); err != nil {
			return err
		}
	}

	if len(out.CoherenceTrees) > 0 {
		if err := w.AddSummary("Coherence Summary", out.CoherenceTrees); err != nil {
			return err
		}
	}

	return w.Save(path)
}

// parseRanges parses "10 20; 30 40" into start/end pairs.
func parseRanges(s string) ([][2]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var out [][2]float64
	for _, part := range strings.Split(s, ";") {
		fields := strings.Fields(part)
		if len(fields) != 2 {
			return nil, fmt.Errorf("range %q: want two numbers per slice", strings.TrimSpace(part))
		}

		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", part, err)
		}

		end, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", part, err)
		}

		if !(end > start) {
			return nil, fmt.Errorf("range %q: end must exceed start", strings.TrimSpace(part))
		}

		out = append(out, [2]float64{start, end})
	}

	return out, nil
}

// parseBand parses "4-8" into a validated band.
func parseBand(s string) (ephys.Band, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "-", 2)
	if len(parts) != 2 {
		return ephys.Band{}, fmt.Errorf("band %q: want low-high", s)
	}

	low, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return ephys.Band{}, fmt.Errorf("band %q: %w", s, err)
	}

	high, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return ephys.Band{}, fmt.Errorf("band %q: %w", s, err)
	}

	return ephys.NewBand(low, high)
}

// parsePairs parses "Ch1+Ch2,Ch1+Ch3" into coherence channel pairs.
func parsePairs(s string) ([]batch.ChannelPair, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var out []batch.ChannelPair
	for _, part := range strings.Split(s, ",") {
		ab := strings.SplitN(strings.TrimSpace(part), "+", 2)
		if len(ab) != 2 || ab[0] == "" || ab[1] == "" {
			return nil, fmt.Errorf("pair %q: want A+B", strings.TrimSpace(part))
		}

		out = append(out, batch.ChannelPair{A: ab[0], B: ab[1]})
	}

	return out, nil
}

// parseGrid parses "start:stop:step" or "start:stop:step:width" into a
// comodulogram band grid.
func parseGrid(s string) ([]ephys.Band, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 && len(parts) != 4 {
		return nil, fmt.Errorf("grid %q: want start:stop:step or start:stop:step:width", s)
	}

	vals := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("grid %q: %w", s, err)
		}
		vals[i] = v
	}

	width := 0.0
	if len(vals) == 4 {
		width = vals[3]
	}

	return comod.BandGrid(vals[0], vals[1], vals[2], width)
}

// parseGroups parses "rec1=ctrl,rec2=treated" into a grouping.
func parseGroups(s string) (agg.Grouping, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	out := agg.Grouping{}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" || strings.TrimSpace(kv[1]) == "" {
			return nil, fmt.Errorf("group assignment %q: want file=group", pair)
		}

		out[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	return out, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
