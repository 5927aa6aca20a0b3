// Package edfio loads recorded traces from EDF/EDF+ files into segments.
//
// Calibrated sample data comes through the edf package's signal readers;
// the channel inventory (labels, sample rates, record count) is scanned
// from the fixed-size header directly, which the edf reader does not
// expose.
package edfio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"

	"github.com/Tousak/spectral-analysis/ephys"
)

// Channel describes one signal in an EDF file.
type Channel struct {
	Index int
	Label string
	Rate  float64 // Hz
}

// File is an open EDF recording.
type File struct {
	f        *os.File
	reader   *edf.Reader
	name     string
	channels []Channel
	duration float64
}

// Open opens an EDF file for segment reads. The caller owns the returned
// File and must Close it.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("edfio: %w", err)
	}

	channels, duration, err := scanHeader(f)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("edfio: %s: %w", path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()

		return nil, fmt.Errorf("edfio: %s: %w", path, err)
	}

	reader, err := edf.Open(f)
	if err != nil {
		f.Close()

		return nil, fmt.Errorf("edfio: %s: %w", path, err)
	}

	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &File{
		f:        f,
		reader:   reader,
		name:     name,
		channels: channels,
		duration: duration,
	}, nil
}

// Close releases the underlying file.
func (f *File) Close() error { return f.f.Close() }

// Name returns the recording label used in segment metadata: the file name
// without directory or extension.
func (f *File) Name() string { return f.name }

// Channels lists the file's signals in header order.
func (f *File) Channels() []Channel { return f.channels }

// Duration returns the recording length in seconds.
func (f *File) Duration() float64 { return f.duration }

// Channel looks a signal up by label.
func (f *File) Channel(label string) (Channel, error) {
	for _, c := range f.channels {
		if c.Label == label {
			return c, nil
		}
	}

	return Channel{}, fmt.Errorf("%w: %q in %s", ErrChannelNotFound, label, f.name)
}

// ReadSegment reads the channel's samples over [start, end) seconds into a
// validated segment. Requests outside the recording, or on a channel with
// no usable rate, return an error wrapping [ephys.ErrMalformedSegment].
func (f *File) ReadSegment(label string, start, end float64) (*ephys.Segment, error) {
	ch, err := f.Channel(label)
	if err != nil {
		return nil, err
	}

	if ch.Rate <= 0 {
		return nil, fmt.Errorf("edfio: %s/%s: no sample rate: %w",
			f.name, label, ephys.ErrMalformedSegment)
	}

	if start < 0 || end > f.duration+1e-9 || !(end > start) {
		return nil, fmt.Errorf("edfio: %s/%s: range [%g, %g] outside recording of %g s: %w",
			f.name, label, start, end, f.duration, ephys.ErrMalformedSegment)
	}

	sr, err := f.reader.Signal(ch.Index)
	if err != nil {
		return nil, fmt.Errorf("edfio: %s/%s: %w", f.name, label, err)
	}

	skip := int(math.Round(start * ch.Rate))
	want := int(math.Round((end - start) * ch.Rate))

	if err := discard(sr, skip); err != nil {
		return nil, fmt.Errorf("edfio: %s/%s: %w", f.name, label, err)
	}

	samples := make([]float64, want)
	if err := readFull(sr, samples); err != nil {
		return nil, fmt.Errorf("edfio: %s/%s: %w", f.name, label, err)
	}

	return ephys.NewSegment(f.name, label, ch.Rate, start, end, samples)
}

// ReadSegments reads several time ranges of one channel.
func (f *File) ReadSegments(label string, ranges [][2]float64) ([]*ephys.Segment, error) {
	out := make([]*ephys.Segment, 0, len(ranges))

	for _, r := range ranges {
		seg, err := f.ReadSegment(label, r[0], r[1])
		if err != nil {
			return nil, err
		}

		out = append(out, seg)
	}

	return out, nil
}

func discard(sr *edf.SignalReader, n int) error {
	const chunk = 4096

	buf := make([]float64, chunk)
	for n > 0 {
		take := n
		if take > chunk {
			take = chunk
		}

		if err := readFull(sr, buf[:take]); err != nil {
			return err
		}

		n -= take
	}

	return nil
}

func readFull(sr *edf.SignalReader, dst []float64) error {
	got := 0
	for got < len(dst) {
		n, err := sr.Read(dst[got:])
		got += n

		if err != nil {
			if err == io.EOF && got == len(dst) {
				break
			}

			return err
		}

		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}

	return nil
}

// scanHeader parses the fixed EDF header: record geometry from the first
// 256 bytes, then the per-signal label and samples-per-record tables.
func scanHeader(r io.Reader) ([]Channel, float64, error) {
	fixed := make([]byte, 256)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}

	records, err := headerInt(fixed[236:244])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: data record count: %v", ErrBadHeader, err)
	}

	recordSeconds, err := headerFloat(fixed[244:252])
	if err != nil || recordSeconds <= 0 {
		return nil, 0, fmt.Errorf("%w: data record duration %q", ErrBadHeader, strings.TrimSpace(string(fixed[244:252])))
	}

	count, err := headerInt(fixed[252:256])
	if err != nil || count <= 0 {
		return nil, 0, fmt.Errorf("%w: signal count %q", ErrBadHeader, strings.TrimSpace(string(fixed[252:256])))
	}

	labels := make([]string, count)
	for i := range labels {
		b := make([]byte, 16)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, 0, fmt.Errorf("%w: label table: %v", ErrBadHeader, err)
		}

		labels[i] = strings.TrimSpace(string(b))
	}

	// Transducer, dimension, physical and digital ranges, prefiltering.
	if err := skipBytes(r, count*(80+8+8+8+8+8+80)); err != nil {
		return nil, 0, fmt.Errorf("%w: signal tables: %v", ErrBadHeader, err)
	}

	channels := make([]Channel, count)
	for i := range channels {
		b := make([]byte, 8)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, 0, fmt.Errorf("%w: samples-per-record table: %v", ErrBadHeader, err)
		}

		perRecord, err := headerInt(b)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: samples per record %q", ErrBadHeader, strings.TrimSpace(string(b)))
		}

		channels[i] = Channel{
			Index: i,
			Label: labels[i],
			Rate:  float64(perRecord) / recordSeconds,
		}
	}

	return channels, float64(records) * recordSeconds, nil
}

func skipBytes(r io.Reader, n int) error {
	_, err := io.CopyN(io.Discard, r, int64(n))

	return err
}

func headerInt(b []byte) (int, error) {
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

func headerFloat(b []byte) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}
