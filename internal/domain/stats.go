package domain

// AgencyStats holds per-agency training aggregates.
type AgencyStats struct {
	AverageAmount float64 `json:"average_amount"`
	StdDeviation  float64 `json:"std_deviation"`
	ContractCount int     `json:"contract_count"`
}

// VendorStats holds per-vendor training aggregates.
type VendorStats struct {
	AverageAmount float64 `json:"average_amount"`
	ContractCount int     `json:"contract_count"`
}

// GlobalStats holds snapshot-wide training aggregates.
type GlobalStats struct {
	MeanAmount float64 `json:"mean_amount"`
	P99Amount  float64 `json:"p99_amount"`
}

// StatisticsSet is the complete set of training aggregates. Built once
// per training cycle and read-only during inference.
type StatisticsSet struct {
	Agencies map[string]AgencyStats `json:"agencies"`
	Vendors  map[string]VendorStats `json:"vendors"`
	Global   GlobalStats            `json:"global"`
}

// Agency returns the aggregates for an agency, or an all-zero record
// when the agency was not seen in training.
func (s *StatisticsSet) Agency(name string) AgencyStats {
	if s == nil || s.Agencies == nil {
		return AgencyStats{}
	}
	return s.Agencies[name]
}

// Vendor returns the aggregates for a vendor, or an all-zero record
// when the vendor was not seen in training.
func (s *StatisticsSet) Vendor(name string) VendorStats {
	if s == nil || s.Vendors == nil {
		return VendorStats{}
	}
	return s.Vendors[name]
}
