package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingType selects the charging model of a course.
type PricingType string

const (
	PricingSession PricingType = "SESSION"
	PricingMonthly PricingType = "MONTHLY"
)

// Valid returns true when the pricing type is supported.
func (p PricingType) Valid() bool {
	return p == PricingSession || p == PricingMonthly
}

// Course describes a subject offering and its pricing configuration. Pricing
// fields are read-only inputs to the billing rules for the duration of a
// billing cycle.
type Course struct {
	ID           string          `db:"id" json:"id"`
	Name         string          `db:"name" json:"name"`
	Level        string          `db:"level" json:"level"`
	PricingType  PricingType     `db:"pricing_type" json:"pricing_type"`
	SessionPrice decimal.Decimal `db:"session_price" json:"session_price"`
	MonthlyPrice decimal.Decimal `db:"monthly_price" json:"monthly_price"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// UnitPrice returns the charge for a single counted session under the given
// payment type.
func (c Course) UnitPrice(t PaymentType) decimal.Decimal {
	if t == PaymentMonthly {
		return c.MonthlyPrice
	}
	return c.SessionPrice
}

// CourseFilter describes query params for listing courses.
type CourseFilter struct {
	Search      string
	PricingType *PricingType
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
