package domain

import (
	"fmt"
	"strings"
)

// Medicine is a catalog entry. Interactions are keyed by medicine, not by
// stock-keeping item, so two batches of the same drug never interact.
type Medicine struct {
	ID           int64  `db:"id" json:"id"`
	BrandID      int64  `db:"brand_id" json:"brand_id"`
	BrandName    string `db:"brand_name" json:"brand_name"`
	Type         string `db:"type" json:"type"`
	GenericName  string `db:"generic_name" json:"generic_name"`
	Manufacturer string `db:"manufacturer" json:"manufacturer"`
}

// Severity classifies a drug-drug interaction.
type Severity string

const (
	SeverityMinor    Severity = "MINOR"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

// ParseSeverity accepts any casing of the three known levels.
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToUpper(strings.TrimSpace(s))); sev {
	case SeverityMinor, SeverityModerate, SeveritySevere:
		return sev, nil
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidArgument, s)
}

// Rank orders severities; unknown values rank below MINOR.
func (s Severity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return 0
	}
}

// Blocks reports whether an interaction of this severity stops a dispense.
func (s Severity) Blocks() bool {
	return s == SeveritySevere
}

// Interaction is one row of the reference table. MedicineA < MedicineB always
// holds for stored rows.
type Interaction struct {
	ID          int64    `db:"id" json:"id,omitempty"`
	MedicineA   int64    `db:"medicine_a" json:"medicine_a"`
	MedicineB   int64    `db:"medicine_b" json:"medicine_b"`
	Severity    Severity `db:"severity" json:"severity"`
	Description string   `db:"description" json:"description"`
}

// PairKey is the canonical unordered key for two medicines.
type PairKey struct {
	A, B int64
}

// NewPairKey orders the two ids so that lookups are symmetric.
func NewPairKey(x, y int64) PairKey {
	if x > y {
		x, y = y, x
	}
	return PairKey{A: x, B: y}
}

// Key returns the canonical pair for the interaction.
func (i Interaction) Key() PairKey {
	return NewPairKey(i.MedicineA, i.MedicineB)
}
