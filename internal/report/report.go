// Package report writes runs and surfaces to disk and to the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/surface"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// File names written into the output directory.
const (
	RunFile     = "volatility.json"
	RecordsFile = "volatility.csv"
	SurfaceFile = "surface.csv"
)

// recordRow is the CSV shape of a record. Unavailable volatilities are
// empty cells.
type recordRow struct {
	Expiry  string `csv:"expiry"`
	Strike  string `csv:"strike"`
	VolCall string `csv:"implied_vol_call"`
	VolPut  string `csv:"implied_vol_put"`
}

// gridRow is one grid cell in long format.
type gridRow struct {
	TimeToMaturity string `csv:"time_to_maturity"`
	Moneyness      string `csv:"moneyness"`
	ImpliedVol     string `csv:"implied_vol"`
}

func WriteJSON(run *storage.Run, outdir string) error {
	b, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outdir, RunFile), b, 0644)
}

func WriteCSV(records []volatility.Record, outdir string) error {
	rows := make([]*recordRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, &recordRow{
			Expiry:  r.Expiry,
			Strike:  formatFloat(r.Strike),
			VolCall: formatVol(r.VolCall),
			VolPut:  formatVol(r.VolPut),
		})
	}
	return writeRows(filepath.Join(outdir, RecordsFile), &rows)
}

// WriteGridCSV writes every grid cell, row by row. Cells outside the
// sampled hull have an empty implied_vol.
func WriteGridCSV(grid *surface.Grid, outdir string) error {
	var rows []*gridRow
	for i := range grid.IV {
		for j, v := range grid.IV[i] {
			row := &gridRow{
				TimeToMaturity: formatFloat(grid.T[i][j]),
				Moneyness:      formatFloat(grid.M[i][j]),
			}
			if !math.IsNaN(v) {
				row.ImpliedVol = formatFloat(v)
			}
			rows = append(rows, row)
		}
	}
	return writeRows(filepath.Join(outdir, SurfaceFile), &rows)
}

func writeRows(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RenderTable prints the run header and its records. Unavailable
// volatilities show as "-".
func RenderTable(w io.Writer, run *storage.Run) {
	fmt.Fprintf(w, "%s  spot %.2f  rate %.4f  valued %s  (%d/%d quotes solved)\n",
		run.Underlying, run.UnderlyingPrice, run.RiskFreeRate,
		run.ValuationTime.Format("2006-01-02 15:04"), run.Available, run.Quotes)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Expiry", "Strike", "IV Call", "IV Put"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range run.Records {
		table.Append([]string{r.Expiry, formatFloat(r.Strike), percent(r.VolCall), percent(r.VolPut)})
	}
	table.Render()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatVol(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', 6, 64)
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}
