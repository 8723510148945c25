package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openaudit/kestrel/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write csv: %v", err)
	}
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeCSV(t, `awarded_amt,supplier_name,agency,award_date
"$1,234.56",Acme Pte,Ministry of Works,2023-04-01
5000,,Ministry of Works,2023-05-02
750.25,Beta Supplies,Ministry of Health,not-a-date
abc,Gamma,Ministry of Health,2023-06-01
`)

	snap, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}

	// The row with an unparseable amount is dropped.
	if len(snap.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(snap.Rows))
	}

	if snap.Rows[0].Amount != 1234.56 {
		t.Errorf("currency amount not stripped: got %v", snap.Rows[0].Amount)
	}
	if snap.Rows[1].Vendor != domain.UnknownEntity {
		t.Errorf("missing supplier should default to %s, got %q", domain.UnknownEntity, snap.Rows[1].Vendor)
	}
	if snap.Rows[2].HasDate {
		t.Error("unparseable date should yield HasDate=false")
	}
	if !snap.Rows[0].HasDate || snap.Rows[0].AwardDate.Year() != 2023 {
		t.Errorf("date not parsed: %+v", snap.Rows[0])
	}
	if snap.Degraded {
		t.Error("snapshot loaded from file must not be degraded")
	}
}

func TestLoadCSVMissingColumn(t *testing.T) {
	path := writeCSV(t, "awarded_amt,agency,award_date\n100,A,2023-01-01\n")

	_, err := LoadCSV(path)
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,234.56", 1234.56, true},
		{"1000", 1000, true},
		{" 42.50 ", 42.5, true},
		{"", 0, false},
		{"n/a", 0, false},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Errorf("ParseAmount(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Errorf("ParseAmount(%q) should fail", tc.in)
		}
	}
}

func TestSampleDeterminism(t *testing.T) {
	build := func() *Snapshot {
		snap := &Snapshot{}
		for i := 0; i < 500; i++ {
			snap.Rows = append(snap.Rows, Row{Amount: float64(i), Vendor: "V", Agency: "A"})
		}
		return snap
	}

	a := build()
	b := build()
	a.Sample(100, domain.DefaultSeed)
	b.Sample(100, domain.DefaultSeed)

	if len(a.Rows) != 100 {
		t.Fatalf("expected 100 sampled rows, got %d", len(a.Rows))
	}
	if !reflect.DeepEqual(a.Rows, b.Rows) {
		t.Error("same seed must produce identical samples")
	}

	c := build()
	c.Sample(100, domain.DefaultSeed+1)
	if reflect.DeepEqual(a.Rows, c.Rows) {
		t.Error("different seed should produce a different sample")
	}
}

func TestSampleBelowLimit(t *testing.T) {
	snap := &Snapshot{Rows: []Row{{Amount: 1}, {Amount: 2}}}
	snap.Sample(100, domain.DefaultSeed)
	if len(snap.Rows) != 2 {
		t.Errorf("small snapshots must not be sampled, got %d rows", len(snap.Rows))
	}
}

func TestFallback(t *testing.T) {
	snap := Fallback()
	if !snap.Degraded {
		t.Error("fallback snapshot must be marked degraded")
	}
	if len(snap.Rows) != 6 {
		t.Errorf("expected 6 fallback rows, got %d", len(snap.Rows))
	}
	for i, row := range snap.Rows {
		if !row.HasDate {
			t.Errorf("fallback row %d missing date", i)
		}
	}
}
