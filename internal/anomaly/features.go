// Package anomaly implements the unsupervised model ensemble: a
// standard scaler, an isolation forest (primary), an optional
// autoencoder (secondary) and the min-max score normalizer. Everything
// here is fit exactly once, with a fixed seed, and immutable after.
package anomaly

import (
	"math"

	"github.com/openaudit/kestrel/internal/domain"
	"github.com/openaudit/kestrel/internal/ingest"
)

// FeatureDim is the fixed width of the feature vector. The fitted
// scaler and both models expect exactly this order and dimensionality:
// amount, log1p(amount), vendor avg, vendor count, agency avg,
// agency count, year, month.
const FeatureDim = 8

// FeatureNames lists the feature vector columns in model order.
var FeatureNames = []string{
	"amount",
	"amount_log",
	"vendor_avg_amount",
	"vendor_contract_count",
	"agency_avg_amount",
	"agency_contract_count",
	"year",
	"month",
}

// Inference does not ask the caller for seasonality; year and month
// are pinned and the agency contract count is forced to zero. Minor
// accuracy traded for API simplicity.
const (
	inferenceYear  = 2024
	inferenceMonth = 1
)

// TrainingVector builds the feature row for one training observation.
// Rows without a parseable award date get zero year/month.
func TrainingVector(row ingest.Row, set *domain.StatisticsSet) []float64 {
	vendor := set.Vendor(row.Vendor)
	agency := set.Agency(row.Agency)

	var year, month float64
	if row.HasDate {
		year = float64(row.AwardDate.Year())
		month = float64(int(row.AwardDate.Month()))
	}

	return []float64{
		row.Amount,
		math.Log1p(row.Amount),
		vendor.AverageAmount,
		float64(vendor.ContractCount),
		agency.AverageAmount,
		float64(agency.ContractCount),
		year,
		month,
	}
}

// InferenceVector builds the feature row for a scored transaction.
func InferenceVector(amount float64, vendor domain.VendorStats, agency domain.AgencyStats) []float64 {
	return []float64{
		amount,
		math.Log1p(amount),
		vendor.AverageAmount,
		float64(vendor.ContractCount),
		agency.AverageAmount,
		0, // agency contract count is not used at inference
		inferenceYear,
		inferenceMonth,
	}
}
