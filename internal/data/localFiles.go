package data

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/contactkeval/option-volsurface/internal/logger"
)

const (
	optionsFile = "options.csv"
	futuresFile = "futures.csv"
)

// localFileDataProvider implements Data Provider from local files.
//
// The directory holds two CSV files, the shape the exchange scraper
// produces:
//
//	options.csv  kind,expiry,strike,bid,ask,last
//	futures.csv  expiry,last
//
// Numbers may use the European format (1.234,5). The first futures row with
// a price is the underlying reference for the whole chain; every futures row
// is kept as the chain's futures curve.
type localFileDataProvider struct {
	dir       string
	secondary Provider
}

type optionRow struct {
	Kind   string `csv:"kind"`
	Expiry string `csv:"expiry"`
	Strike string `csv:"strike"`
	Bid    string `csv:"bid"`
	Ask    string `csv:"ask"`
	Last   string `csv:"last"`
}

type futureRow struct {
	Expiry string `csv:"expiry"`
	Last   string `csv:"last"`
}

// NewLocalFileDataProvider convenience constructor.
func NewLocalFileDataProvider(dir string, secondary Provider) *localFileDataProvider {
	return &localFileDataProvider{dir: dir, secondary: secondary}
}

func (localFileDataProv *localFileDataProvider) Secondary() Provider {
	return localFileDataProv.secondary
}

func (localFileDataProv *localFileDataProvider) GetOptionChain(ctx context.Context, underlying string) (*Chain, error) {
	chain, err := localFileDataProv.readChain(underlying)
	if err != nil {
		logger.Errorf("local files chain: %v", err)
		return fallback(ctx, localFileDataProv, underlying, err)
	}
	return chain, nil
}

func (localFileDataProv *localFileDataProvider) readChain(underlying string) (*Chain, error) {
	var futures []futureRow
	if err := unmarshalFile(filepath.Join(localFileDataProv.dir, futuresFile), &futures); err != nil {
		return nil, err
	}
	spot := 0.0
	for _, f := range futures {
		if v := parseNumber(f.Last); v != nil && *v > 0 {
			spot = *v
			break
		}
	}
	if spot <= 0 {
		return nil, fmt.Errorf("no underlying price in %s", futuresFile)
	}

	var curve []FuturePrice
	for i, f := range futures {
		expiry, err := parseExpiry(f.Expiry)
		if err != nil {
			logger.Warnf("%s row %d: skipping (expiry=%q)", futuresFile, i+2, f.Expiry)
			continue
		}
		curve = append(curve, FuturePrice{Expiry: expiry, Price: parseNumber(f.Last)})
	}

	var rows []optionRow
	path := filepath.Join(localFileDataProv.dir, optionsFile)
	if err := unmarshalFile(path, &rows); err != nil {
		return nil, err
	}

	chain := &Chain{
		Underlying:      strings.ToUpper(underlying),
		UnderlyingPrice: spot,
		AsOf:            time.Now().UTC(),
		Source:          "files",
		Futures:         curve,
	}
	if info, err := os.Stat(path); err == nil {
		chain.AsOf = info.ModTime().UTC()
	}

	for i, r := range rows {
		strike := parseNumber(r.Strike)
		expiry, err := parseExpiry(r.Expiry)
		if strike == nil || err != nil {
			logger.Warnf("%s row %d: skipping (strike=%q expiry=%q)", optionsFile, i+2, r.Strike, r.Expiry)
			continue
		}
		chain.Quotes = append(chain.Quotes, RawQuote{
			Strike: *strike,
			Expiry: expiry,
			Kind:   strings.TrimSpace(r.Kind),
			Bid:    parseNumber(r.Bid),
			Ask:    parseNumber(r.Ask),
			Last:   parseNumber(r.Last),
		})
	}

	logger.Debugf("read %d option rows from %s", len(chain.Quotes), path)
	return chain, nil
}

func unmarshalFile(path string, out any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.UnmarshalFile(f, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// thousandsGrouped matches European integers such as 11.000 or 1.250.000.
var thousandsGrouped = regexp.MustCompile(`^-?[1-9]\d{0,2}(\.\d{3})+$`)

// parseNumber reads plain (1234.5) or European (1.234,5) decimals. A lone
// dot followed by exactly three digits is a thousands separator, so 11.000
// is eleven thousand. Blank cells and dashes are absent values.
func parseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}
	if strings.Contains(s, ",") || thousandsGrouped.MatchString(s) {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	v, _ := d.Float64()
	return &v
}

var expiryLayouts = []string{"2006-01-02", "20060102", "02 Jan 2006", "2 Jan 2006"}

func parseExpiry(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised expiry %q", s)
}
