// Package stats computes training aggregates for the scoring engine.
package stats

import (
	"math"
	"sort"

	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/ingest"
)

// Build computes per-agency, per-vendor and global aggregates from a
// cleansed snapshot. The result is read-only for the lifetime of the
// trained engine; unknown entities at inference read as zero records.
func Build(rows []ingest.Row) *domain.StatisticsSet {
	set := &domain.StatisticsSet{
		Agencies: make(map[string]domain.AgencyStats),
		Vendors:  make(map[string]domain.VendorStats),
	}
	if len(rows) == 0 {
		return set
	}

	type acc struct {
		sum   float64
		sumSq float64
		count int
	}
	agencies := make(map[string]*acc)
	vendors := make(map[string]*acc)

	amounts := make([]float64, 0, len(rows))
	var total float64

	for _, row := range rows {
		a := agencies[row.Agency]
		if a == nil {
			a = &acc{}
			agencies[row.Agency] = a
		}
		a.sum += row.Amount
		a.sumSq += row.Amount * row.Amount
		a.count++

		v := vendors[row.Vendor]
		if v == nil {
			v = &acc{}
			vendors[row.Vendor] = v
		}
		v.sum += row.Amount
		v.count++

		amounts = append(amounts, row.Amount)
		total += row.Amount
	}

	for name, a := range agencies {
		mean := a.sum / float64(a.count)
		set.Agencies[name] = domain.AgencyStats{
			AverageAmount: mean,
			StdDeviation:  sampleStd(a.sum, a.sumSq, a.count),
			ContractCount: a.count,
		}
	}
	for name, v := range vendors {
		set.Vendors[name] = domain.VendorStats{
			AverageAmount: v.sum / float64(v.count),
			ContractCount: v.count,
		}
	}

	set.Global = domain.GlobalStats{
		MeanAmount: total / float64(len(amounts)),
		P99Amount:  Percentile(amounts, 0.99),
	}
	return set
}

// sampleStd is the n-1 standard deviation; zero for singleton groups
// so the agency z-score layer stays quiet where a deviation is
// meaningless.
func sampleStd(sum, sumSq float64, n int) float64 {
	if n < 2 {
		return 0
	}
	mean := sum / float64(n)
	variance := (sumSq - float64(n)*mean*mean) / float64(n-1)
	if variance < 0 {
		// Floating point cancellation on near-constant groups.
		return 0
	}
	return math.Sqrt(variance)
}

// Percentile returns the q-th quantile (0..1) of values using linear
// interpolation between order statistics.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
