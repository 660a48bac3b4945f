package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/surface"
	"github.com/contactkeval/option-volsurface/internal/testutil"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

func vol(v float64) *float64 { return &v }

func testRun() *storage.Run {
	valued := time.Date(2025, 1, 2, 16, 0, 0, 0, time.UTC)
	return &storage.Run{
		ID:              "run-1",
		Underlying:      "IBEX",
		Source:          "files",
		UnderlyingPrice: 11000.5,
		RiskFreeRate:    0,
		ValuationTime:   valued,
		CreatedAt:       valued,
		Quotes:          6,
		Available:       4,
		Unavailable:     map[string]int{"no_usable_quote": 2},
		Records: []volatility.Record{
			{Expiry: "2025-02-21", Strike: 90, VolPut: vol(0.25)},
			{Expiry: "2025-02-21", Strike: 100, VolCall: vol(0.2), VolPut: vol(0.21)},
			{Expiry: "2025-03-21", Strike: 110, VolCall: vol(0.215)},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteJSON(testRun(), dir))

	b, err := os.ReadFile(filepath.Join(dir, RunFile))
	require.NoError(t, err)
	testutil.CompareWithGolden(t, "run_json", b)
	testutil.CompareJSONWithGolden(t, "run_json", testRun())
}

func TestWriteCSV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteCSV(testRun().Records, dir))

	b, err := os.ReadFile(filepath.Join(dir, RecordsFile))
	require.NoError(t, err)
	testutil.CompareWithGolden(t, "records_csv", b)
}

func TestWriteGridCSV(t *testing.T) {
	grid := &surface.Grid{
		TAxis: []float64{0.5, 1},
		MAxis: []float64{0.9, 1.1},
		T:     [][]float64{{0.5, 1}, {0.5, 1}},
		M:     [][]float64{{0.9, 0.9}, {1.1, 1.1}},
		IV:    [][]float64{{0.22, 0.2}, {math.NaN(), 0.19}},
	}
	dir := t.TempDir()
	require.NoError(t, WriteGridCSV(grid, dir))

	b, err := os.ReadFile(filepath.Join(dir, SurfaceFile))
	require.NoError(t, err)
	assert.Equal(t, "time_to_maturity,moneyness,implied_vol\n"+
		"0.5,0.9,0.22\n"+
		"1,0.9,0.2\n"+
		"0.5,1.1,\n"+
		"1,1.1,0.19\n", string(b))
}

func TestWriteToMissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	assert.Error(t, WriteCSV(nil, missing))
	assert.Error(t, WriteJSON(testRun(), missing))
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	RenderTable(&buf, testRun())
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "IBEX  spot 11000.50  rate 0.0000  valued 2025-01-02 16:00  (4/6 quotes solved)\n"))
	assert.Contains(t, out, "EXPIRY")
	assert.Contains(t, out, "25.00%")
	assert.Contains(t, out, "21.50%")

	lines := strings.Split(out, "\n")
	var row90 string
	for _, l := range lines {
		if strings.Contains(l, " 90 ") {
			row90 = l
		}
	}
	require.NotEmpty(t, row90)
	assert.Contains(t, row90, " - |")
	assert.NotContains(t, row90, "0.00%")
}
