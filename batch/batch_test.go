package batch

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tousak/spectral-analysis/ephys"
	"github.com/Tousak/spectral-analysis/stats/agg"
)

const testRate = 1000.0

func segment(t *testing.T, file, channel string, seconds float64, gen func(ts float64) float64) *ephys.Segment {
	t.Helper()

	n := int(testRate * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = gen(float64(i) / testRate)
	}

	seg, err := ephys.NewSegment(file, channel, testRate, 0, seconds, samples)
	require.NoError(t, err)

	return seg
}

func rms(x []float64) float64 {
	var ss float64
	for _, v := range x {
		ss += v * v
	}

	return math.Sqrt(ss / float64(len(x)))
}

func TestPowerlineNotchRemovesMains(t *testing.T) {
	seg := segment(t, "rec", "Ch1", 10, func(ts float64) float64 {
		return math.Sin(2*math.Pi*10*ts) + math.Sin(2*math.Pi*50*ts) + 0.5*math.Sin(2*math.Pi*100*ts)
	})

	clean, err := PowerlineNotch(seg, 50, 200)
	require.NoError(t, err)

	// The 10 Hz component alone has RMS 1/sqrt(2); mains and its harmonic
	// held another factor of ~sqrt(1.25).
	got := rms(clean.Samples[1000:9000])
	if math.Abs(got-1/math.Sqrt2) > 0.05 {
		t.Fatalf("post-notch RMS %g, want ~%g", got, 1/math.Sqrt2)
	}

	// Original segment untouched.
	assert.Greater(t, rms(seg.Samples), 1.0)
}

func TestPowerlineNotchBadBase(t *testing.T) {
	seg := segment(t, "rec", "Ch1", 2, func(float64) float64 { return 0 })

	_, err := PowerlineNotch(seg, 0, 200)
	assert.ErrorIs(t, err, ephys.ErrFrequencyRange)
}

func TestZScore(t *testing.T) {
	seg := segment(t, "rec", "Ch1", 2, func(ts float64) float64 {
		return 5 + 3*math.Sin(2*math.Pi*7*ts)
	})

	z, err := ZScore(seg)
	require.NoError(t, err)

	var sum, ss float64
	for _, v := range z.Samples {
		sum += v
	}
	mean := sum / float64(len(z.Samples))
	for _, v := range z.Samples {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / float64(len(z.Samples)))

	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, sd, 1e-9)

	flat := segment(t, "rec", "Ch2", 2, func(float64) float64 { return 4 })
	_, err = ZScore(flat)
	assert.ErrorIs(t, err, ephys.ErrMalformedSegment)
}

func TestRunnerCollectsFailuresAndAggregates(t *testing.T) {
	gen := func(ts float64) float64 {
		slow := math.Sin(2 * math.Pi * 6 * ts)
		return slow + 0.4*(0.5+0.5*slow)*math.Sin(2*math.Pi*60*ts)
	}

	units := []Unit{
		{Segment: segment(t, "rec1", "Ch1", 10, gen)},
		{Segment: segment(t, "rec1", "Ch2", 10, gen)},
		// Too short for 2 s Welch frames: fails without sinking the run.
		{Segment: segment(t, "rec1", "Ch3", 1, gen)},
	}

	runner := NewRunner(Config{
		CouplingPairs: []BandPair{{Phase: ephys.Band{Low: 4, High: 8}, Amp: ephys.Band{Low: 30, High: 80}}},
	})

	out, err := runner.Run(context.Background(), units)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "Ch3", out.Errors[0].Channel)
	assert.ErrorIs(t, out.Errors[0], ephys.ErrInvalidWindow)

	require.Len(t, out.BandPowerTrees, 1)
	assert.Equal(t, agg.DefaultGroup, out.BandPowerTrees[0].Label)

	file := out.BandPowerTrees[0].Find("rec1")
	require.NotNil(t, file)
	assert.Len(t, file.Children, 2)

	require.Len(t, out.MITrees, 1)
	for _, res := range out.Results {
		require.Len(t, res.Coupling, 1)
		assert.Greater(t, res.Coupling[0].MI, 0.0)
	}
}

func TestRunnerCoherencePairs(t *testing.T) {
	gen := func(ts float64) float64 { return math.Sin(2 * math.Pi * 10 * ts) }

	units := []Unit{
		{Segment: segment(t, "rec1", "Ch1", 6, gen)},
		{Segment: segment(t, "rec1", "Ch2", 6, gen)},
		{Segment: segment(t, "rec1", "Ch3", 6, gen)},
	}

	// Ch9 never shows up: that pair is skipped, not an error.
	runner := NewRunner(Config{
		CoherencePairs: []ChannelPair{{A: "Ch1", B: "Ch2"}, {A: "Ch1", B: "Ch9"}},
		CoherenceBands: []ephys.Band{{Low: 8, High: 12}},
	})

	out, err := runner.Run(context.Background(), units)
	require.NoError(t, err)
	require.Empty(t, out.Errors)

	require.Len(t, out.Pairs, 1)
	p := out.Pairs[0]
	assert.Equal(t, "Ch1+Ch2", p.Pair.String())
	require.Len(t, p.Coherence, 1)

	// Identical traces cohere perfectly.
	assert.InDelta(t, 1, p.Coherence[0].Mean, 1e-9)

	require.Len(t, out.CoherenceTrees, 1)
	file := out.CoherenceTrees[0].Find("rec1")
	require.NotNil(t, file)
	require.Len(t, file.Children, 1)
	assert.Equal(t, "Ch1+Ch2", file.Children[0].Label)
}

func TestRunnerComodulogram(t *testing.T) {
	gen := func(ts float64) float64 {
		slow := math.Sin(2 * math.Pi * 6 * ts)
		return slow + 0.4*(0.5+0.5*slow)*math.Sin(2*math.Pi*60*ts)
	}

	runner := NewRunner(Config{
		ComodPhaseBands: []ephys.Band{{Low: 4, High: 8}},
		ComodAmpBands:   []ephys.Band{{Low: 30, High: 80}, {Low: 80, High: 150}},
	})

	out, err := runner.Run(context.Background(), []Unit{
		{Segment: segment(t, "rec1", "Ch1", 10, gen)},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)

	m := out.Results[0].Comodulogram
	require.NotNil(t, m)
	require.Len(t, m.MI, 1)
	require.Len(t, m.MI[0], 2)

	// The 6 Hz phase drives the 60 Hz amplitude, not high gamma.
	assert.Greater(t, m.MI[0][0], m.MI[0][1])

	require.Len(t, out.ComodTrees, 1)
	assert.Equal(t, agg.DefaultGroup, out.ComodTrees[0].Label)
	assert.Len(t, out.ComodTrees[0].Mean, 2)
}

func TestRunnerGrouping(t *testing.T) {
	gen := func(ts float64) float64 { return math.Sin(2 * math.Pi * 10 * ts) }

	units := []Unit{
		{Segment: segment(t, "rec1", "Ch1", 6, gen)},
		{Segment: segment(t, "rec2", "Ch1", 6, gen)},
	}

	runner := NewRunner(Config{
		Groups: agg.Grouping{"rec1": "treated", "rec2": "ctrl"},
	}, WithConcurrency(1))

	out, err := runner.Run(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, out.BandPowerTrees, 2)

	labels := []string{out.BandPowerTrees[0].Label, out.BandPowerTrees[1].Label}
	assert.ElementsMatch(t, []string{"treated", "ctrl"}, labels)
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	units := []Unit{
		{Segment: segment(t, "rec1", "Ch1", 6, func(ts float64) float64 { return math.Sin(ts) })},
	}

	_, err := NewRunner(Config{}).Run(ctx, units)
	assert.ErrorIs(t, err, context.Canceled)
}
