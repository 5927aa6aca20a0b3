package edfio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tousak/spectral-analysis/ephys"
)

// writeTestEDF creates a 4 second recording with a 5 Hz tone on Ch1 at
// 256 Hz and a constant level on Ch2 at 128 Hz.
func writeTestEDF(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "session01.edf")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	defer f.Close()

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "subject 1",
		RecordingID:        "baseline",
		StartTime:          time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []edf.SignalHeader{
			{
				Label:             "Ch1",
				PhysicalDimension: "uV",
				PhysicalMin:       -1000,
				PhysicalMax:       1000,
				DigitalMin:        -32768,
				DigitalMax:        32767,
				SamplesPerRecord:  256,
			},
			{
				Label:             "Ch2",
				PhysicalDimension: "uV",
				PhysicalMin:       -1000,
				PhysicalMax:       1000,
				DigitalMin:        -32768,
				DigitalMax:        32767,
				SamplesPerRecord:  128,
			},
		},
	}

	w, err := edf.Create(f, hdr)
	require.NoError(t, err)

	for rec := 0; rec < 4; rec++ {
		ch1 := make([]float64, 256)
		for i := range ch1 {
			ts := float64(rec) + float64(i)/256
			ch1[i] = 100 * math.Sin(2*math.Pi*5*ts)
		}

		ch2 := make([]float64, 128)
		for i := range ch2 {
			ch2[i] = 250
		}

		require.NoError(t, w.WriteRecord([][]float64{ch1, ch2}))
	}

	require.NoError(t, w.Close())

	return path
}

func TestOpenScansChannels(t *testing.T) {
	f, err := Open(writeTestEDF(t))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, "session01", f.Name())
	assert.InDelta(t, 4, f.Duration(), 1e-12)

	chs := f.Channels()
	require.Len(t, chs, 2)
	assert.Equal(t, "Ch1", chs[0].Label)
	assert.InDelta(t, 256, chs[0].Rate, 1e-12)
	assert.Equal(t, "Ch2", chs[1].Label)
	assert.InDelta(t, 128, chs[1].Rate, 1e-12)
}

func TestReadSegmentValues(t *testing.T) {
	f, err := Open(writeTestEDF(t))
	require.NoError(t, err)
	defer f.Close()

	seg, err := f.ReadSegment("Ch1", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, "session01", seg.File)
	assert.Equal(t, "Ch1", seg.Channel)
	assert.Equal(t, 512, seg.Len())
	assert.Equal(t, "1-3s", seg.TimeRange())

	// 16-bit quantization over +-1000 uV leaves ~0.03 uV steps.
	for i, v := range seg.Samples {
		ts := 1 + float64(i)/256
		want := 100 * math.Sin(2*math.Pi*5*ts)
		if math.Abs(v-want) > 0.1 {
			t.Fatalf("sample %d: %g, want %g", i, v, want)
		}
	}

	flat, err := f.ReadSegment("Ch2", 0, 4)
	require.NoError(t, err)
	for i, v := range flat.Samples {
		if math.Abs(v-250) > 0.1 {
			t.Fatalf("Ch2 sample %d: %g, want 250", i, v)
		}
	}
}

func TestReadSegmentsMultipleRanges(t *testing.T) {
	f, err := Open(writeTestEDF(t))
	require.NoError(t, err)
	defer f.Close()

	segs, err := f.ReadSegments("Ch1", [][2]float64{{0, 1}, {2, 4}})
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, 256, segs[0].Len())
	assert.Equal(t, 512, segs[1].Len())
}

func TestReadSegmentErrors(t *testing.T) {
	f, err := Open(writeTestEDF(t))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.ReadSegment("Ch9", 0, 1)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = f.ReadSegment("Ch1", 2, 10)
	assert.ErrorIs(t, err, ephys.ErrMalformedSegment)

	_, err = f.ReadSegment("Ch1", 3, 3)
	assert.ErrorIs(t, err, ephys.ErrMalformedSegment)
}

func TestOpenRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.edf")
	require.NoError(t, os.WriteFile(path, []byte("not an edf file"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}
