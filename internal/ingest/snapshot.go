// Package ingest loads the procurement training snapshot.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openaudit/kestrel/internal/domain"
)

var (
	// ErrMissingColumn means a required column is absent from the
	// snapshot header. Fatal to training: no engine without valid
	// statistics.
	ErrMissingColumn = errors.New("required column missing")
)

// Required snapshot columns.
const (
	ColAmount = "awarded_amt"
	ColVendor = "supplier_name"
	ColAgency = "agency"
	ColDate   = "award_date"
)

// Row is one training observation after cleansing.
type Row struct {
	Amount float64
	Vendor string
	Agency string

	// AwardDate is the zero value when the source date failed to
	// parse; HasDate distinguishes that from a real epoch date. Rows
	// with bad dates are kept, their seasonality features become 0.
	AwardDate time.Time
	HasDate   bool
}

// Snapshot is a cleansed training dataset.
type Snapshot struct {
	Rows []Row

	// Degraded marks the deterministic fallback dataset, used when the
	// configured snapshot file is absent.
	Degraded bool

	// Source describes where the rows came from (path or "fallback").
	Source string
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2006/01/02",
}

// LoadCSV reads and cleanses a procurement snapshot. Column order in
// the file is arbitrary; the header names are the contract. Rows with
// an unparseable amount are dropped, rows with an unparseable date are
// kept with no date.
func LoadCSV(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{ColAmount, ColVendor, ColAgency, ColDate} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	snap := &Snapshot{Source: path}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed line, skip and keep scanning.
			continue
		}

		amount, err := ParseAmount(field(record, cols[ColAmount]))
		if err != nil || amount < 0 {
			continue
		}

		row := Row{
			Amount: amount,
			Vendor: defaultEntity(field(record, cols[ColVendor])),
			Agency: defaultEntity(field(record, cols[ColAgency])),
		}
		if t, ok := parseDate(field(record, cols[ColDate])); ok {
			row.AwardDate = t
			row.HasDate = true
		}
		snap.Rows = append(snap.Rows, row)
	}

	if len(snap.Rows) == 0 {
		return nil, fmt.Errorf("snapshot %s contains no usable rows", path)
	}
	return snap, nil
}

// ParseAmount converts a possibly currency-formatted amount string
// ("$1,234.56") to a float. Decimal arithmetic avoids the string
// mangling a float round-trip would need.
func ParseAmount(s string) (float64, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// Sample bounds the snapshot to limit rows using a fixed-seed draw
// without replacement. The seed is part of the determinism contract:
// same snapshot + same seed produces the identical subset, in original
// row order.
func (s *Snapshot) Sample(limit int, seed int64) {
	if limit <= 0 || len(s.Rows) <= limit {
		return
	}

	rng := rand.New(rand.NewSource(seed))
	picked := rng.Perm(len(s.Rows))[:limit]
	sort.Ints(picked)

	sampled := make([]Row, 0, limit)
	for _, i := range picked {
		sampled = append(sampled, s.Rows[i])
	}
	s.Rows = sampled
}

// Fallback returns the small deterministic snapshot substituted when
// the configured file is absent. The engine keeps operating but is
// reported degraded.
func Fallback() *Snapshot {
	vendors := []string{"Vendor A", "Vendor B", "Vendor C", "Vendor D", "Vendor E", "Vendor F"}
	agencies := []string{"Agency 1", "Agency 2", "Agency 1", "Agency 3", "Agency 2", "Agency 1"}
	amounts := []float64{1000, 5000, 10000, 50000, 100000, 500000}

	snap := &Snapshot{Degraded: true, Source: "fallback"}
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range amounts {
		snap.Rows = append(snap.Rows, Row{
			Amount:    amounts[i],
			Vendor:    vendors[i],
			Agency:    agencies[i],
			AwardDate: base.AddDate(0, 0, i),
			HasDate:   true,
		})
	}
	return snap
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func defaultEntity(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.UnknownEntity
	}
	return s
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
