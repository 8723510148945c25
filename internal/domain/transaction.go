// Package domain defines the core types and interfaces for Kestrel.
package domain

// UnknownEntity is substituted for absent vendor or agency identifiers.
const UnknownEntity = "UNKNOWN"

// Transaction is a procurement transaction submitted for scoring.
// It is immutable input: no component mutates it after receipt.
type Transaction struct {
	// Awarded amount, non-negative.
	Amount float64 `json:"amount"`

	// Awarding agency identifier.
	Agency string `json:"agency"`

	// Vendor (supplier) identifier. Defaults to UNKNOWN when absent.
	Vendor string `json:"vendor,omitempty"`

	// Optional wall-clock time of the transaction, "HH:MM[...]".
	TransactionTime string `json:"transaction_time,omitempty"`
}

// Normalized returns a copy with defaults applied.
func (t Transaction) Normalized() Transaction {
	if t.Vendor == "" {
		t.Vendor = UnknownEntity
	}
	if t.Agency == "" {
		t.Agency = UnknownEntity
	}
	return t
}
