// Package core provides the domain types of the resale dashboard.
//
// This file contains the conversion of the string-encoded numeric fields
// published upstream into decimals.
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseNumber converts a string-encoded upstream number to a decimal.
//
// Surrounding whitespace and thousands separators are tolerated:
//
//	ParseNumber("500000")   -> 500000
//	ParseNumber(" 67.0 ")   -> 67
//	ParseNumber("1,250.50") -> 1250.5
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty value", ErrInvalidNumber)
	}
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return d, nil
}

// Price returns the effective price of a record for the given metric.
func (r Record) Price(m Metric) (decimal.Decimal, error) {
	price, err := ParseNumber(r.ResalePrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("resale_price of %s %s %s: %w", r.Month, r.Town, r.FlatType, err)
	}
	if m != MetricPricePerArea {
		return price, nil
	}
	area, err := ParseNumber(r.FloorAreaSqm)
	if err != nil {
		return decimal.Zero, fmt.Errorf("floor_area_sqm of %s %s %s: %w", r.Month, r.Town, r.FlatType, err)
	}
	if area.IsZero() {
		return decimal.Zero, fmt.Errorf("floor_area_sqm of %s %s %s is zero: %w", r.Month, r.Town, r.FlatType, ErrDivision)
	}
	return price.Div(area), nil
}
