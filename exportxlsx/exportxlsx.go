// Package exportxlsx writes analysis results into multi-sheet Excel
// workbooks: spectra, band powers, coupling metrics, comodulograms,
// coherence tables, and aggregation summaries.
package exportxlsx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Tousak/spectral-analysis/measure/comod"
	"github.com/Tousak/spectral-analysis/measure/psd"
	"github.com/Tousak/spectral-analysis/stats/agg"
)

// Workbook accumulates result sheets and saves them as one .xlsx file.
type Workbook struct {
	f *excelize.File
}

// New returns an empty workbook.
func New() *Workbook {
	return &Workbook{f: excelize.NewFile()}
}

// Save writes the workbook to path, dropping the default empty sheet first.
func (w *Workbook) Save(path string) error {
	sheets := w.f.GetSheetList()
	if len(sheets) > 1 {
		if err := w.f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("exportxlsx: %w", err)
		}
	}

	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("exportxlsx: save %s: %w", path, err)
	}

	return nil
}

// Close releases the workbook resources.
func (w *Workbook) Close() error { return w.f.Close() }

// AddSpectra writes one sheet of spectra sharing a frequency axis: the axis
// in the first column, one power column per label. All spectra must have
// the same number of bins.
func (w *Workbook) AddSpectra(sheet string, labels []string, spectra []*psd.Spectrum) error {
	if len(labels) != len(spectra) || len(spectra) == 0 {
		return fmt.Errorf("exportxlsx: %d labels for %d spectra", len(labels), len(spectra))
	}

	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	if err := w.setRow(sheet, 1, append([]any{"Frequency (Hz)"}, toAny(labels)...)); err != nil {
		return err
	}

	axis := spectra[0].Frequencies
	for _, s := range spectra {
		if len(s.Power) != len(axis) {
			return fmt.Errorf("exportxlsx: spectra bin counts differ (%d != %d)", len(s.Power), len(axis))
		}
	}

	for i, f := range axis {
		row := make([]any, 0, len(spectra)+1)
		row = append(row, f)
		for _, s := range spectra {
			row = append(row, s.Power[i])
		}

		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}

	return nil
}

// BandPowerRow is one band power result with its position in the hierarchy.
type BandPowerRow struct {
	File    string
	Channel string
	Segment string
	Band    string
	Result  psd.BandPower
}

// AddBandPowers writes a band power table.
func (w *Workbook) AddBandPowers(sheet string, rows []BandPowerRow) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	header := []any{"File", "Channel", "Segment", "Band", "Range", "Power", "Low Resolution"}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}

	for i, r := range rows {
		row := []any{r.File, r.Channel, r.Segment, r.Band, r.Result.Band.String(), r.Result.Power, r.Result.LowResolution}
		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}

	return nil
}

// CouplingRow is one phase-amplitude coupling result.
type CouplingRow struct {
	File      string
	Channel   string
	Segment   string
	PhaseBand string
	AmpBand   string
	MI        float64
	MVL       float64
	PLV       float64
}

// AddCoupling writes a coupling metrics table.
func (w *Workbook) AddCoupling(sheet string, rows []CouplingRow) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	header := []any{"File", "Channel", "Segment", "Phase Band", "Amplitude Band", "MI", "MVL", "PLV"}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}

	for i, r := range rows {
		row := []any{r.File, r.Channel, r.Segment, r.PhaseBand, r.AmpBand, r.MI, r.MVL, r.PLV}
		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}

	return nil
}

// AddComodulogram writes a comodulogram matrix: phase bands down the rows,
// amplitude bands across the columns.
func (w *Workbook) AddComodulogram(sheet string, m *comod.Matrix) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	header := make([]any, 0, len(m.AmpBands)+1)
	header = append(header, "Phase \\ Amplitude")
	for _, b := range m.AmpBands {
		header = append(header, b.String())
	}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}

	for i, b := range m.PhaseBands {
		row := make([]any, 0, len(m.AmpBands)+1)
		row = append(row, b.String())
		for _, v := range m.MI[i] {
			row = append(row, v)
		}

		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}

	return nil
}

// CoherenceRow is one band coherence result for a channel pair.
type CoherenceRow struct {
	File     string
	ChannelA string
	ChannelB string
	Segment  string
	Band     string
	Mean     float64
	SEM      float64
}

// AddCoherence writes a band coherence table.
func (w *Workbook) AddCoherence(sheet string, rows []CoherenceRow) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	header := []any{"File", "Channel A", "Channel B", "Segment", "Band", "Coherence", "SEM"}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}

	for i, r := range rows {
		row := []any{r.File, r.ChannelA, r.ChannelB, r.Segment, r.Band, r.Mean, r.SEM}
		if err := w.setRow(sheet, i+2, row); err != nil {
			return err
		}
	}

	return nil
}

// AddSummary flattens aggregation trees into one sheet, one row per node.
func (w *Workbook) AddSummary(sheet string, trees []*agg.Node) error {
	if _, err := w.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("exportxlsx: %w", err)
	}

	header := []any{"Level", "Group", "File", "Channel", "Segment", "Mean", "SEM", "N", "Single Sample"}
	if err := w.setRow(sheet, 1, header); err != nil {
		return err
	}

	row := 2
	for _, tree := range trees {
		var err error

		row, err = w.writeNode(sheet, row, tree, make([]string, 0, 4))
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *Workbook) writeNode(sheet string, row int, n *agg.Node, path []string) (int, error) {
	path = append(path, n.Label)

	cells := make([]any, 0, 9)
	cells = append(cells, n.Level.String())
	for i := 0; i < 4; i++ {
		if i < len(path) {
			cells = append(cells, path[i])
		} else {
			cells = append(cells, "")
		}
	}
	cells = append(cells, vectorCell(n.Mean), vectorCell(n.SEM), n.N, n.SingleSample)

	if err := w.setRow(sheet, row, cells); err != nil {
		return 0, err
	}

	row++
	for _, c := range n.Children {
		var err error

		row, err = w.writeNode(sheet, row, c, path)
		if err != nil {
			return 0, err
		}
	}

	return row, nil
}

func (w *Workbook) setRow(sheet string, row int, values []any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("exportxlsx: %w", err)
		}

		if err := w.f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("exportxlsx: %s!%s: %w", sheet, cell, err)
		}
	}

	return nil
}

// vectorCell renders a metric vector for one cell: scalars as numbers,
// longer vectors as a comma-separated list.
func vectorCell(v []float64) any {
	if len(v) == 1 {
		return v[0]
	}

	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}

	return strings.Join(parts, ", ")
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}

	return out
}
