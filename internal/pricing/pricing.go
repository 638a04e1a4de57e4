// Package pricing turns a unit price and a quantity into the immutable
// price snapshot stored on a booking.
//
// All amounts are int64 minor units of the venue currency. Percentages
// are expressed in basis points and rounded half-up to the minor unit
// with integer arithmetic, so the same input always produces the same
// breakdown.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultPlatformFeeBps = 500 // 5%
	DefaultVATBps         = 750 // 7.5%
	DefaultMaxQuantity    = 10
	DefaultCurrency       = "NGN"

	// MaxUnitPrice is the largest unit price, in minor units, the catalog
	// accepts.
	MaxUnitPrice int64 = 1_000_000_000_000

	bpsDenominator = 10000
)

var ErrInvalidPrice = errors.New("invalid price")

// Policy holds the commercial constants that control pricing and the
// per-booking quantity cap.
type Policy struct {
	PlatformFeeBps int64  `yaml:"platform_fee_bps"`
	VATBps         int64  `yaml:"vat_bps"`
	MaxQuantity    int    `yaml:"max_quantity"`
	Currency       string `yaml:"currency"`
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		PlatformFeeBps: DefaultPlatformFeeBps,
		VATBps:         DefaultVATBps,
		MaxQuantity:    DefaultMaxQuantity,
		Currency:       DefaultCurrency,
	}
}

// Breakdown is the result of pricing a selection.
type Breakdown struct {
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
	PlatformFee int64  `json:"platform_fee"`
	VAT         int64  `json:"vat"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

// Free reports whether the breakdown describes free admission.
func (b Breakdown) Free() bool {
	return b.UnitPrice == 0
}

type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

func (c *Calculator) Policy() Policy {
	return c.policy
}

// Price computes subtotal, platform fee, VAT and total. Fees are never
// applied to free ticket types.
func (c *Calculator) Price(unitPrice int64, quantity int) (Breakdown, error) {
	if unitPrice < 0 {
		return Breakdown{}, fmt.Errorf("%w: unit price %d is negative", ErrInvalidPrice, unitPrice)
	}
	if quantity < 1 {
		return Breakdown{}, fmt.Errorf("%w: quantity %d is below 1", ErrInvalidPrice, quantity)
	}

	b := Breakdown{
		UnitPrice: unitPrice,
		Quantity:  quantity,
		Currency:  c.policy.Currency,
	}
	if unitPrice == 0 {
		return b, nil
	}

	if unitPrice > math.MaxInt64/int64(quantity) {
		return Breakdown{}, fmt.Errorf("%w: %d x %d overflows", ErrInvalidPrice, unitPrice, quantity)
	}
	b.Subtotal = unitPrice * int64(quantity)

	var feeOK, vatOK bool
	b.PlatformFee, feeOK = percentOf(b.Subtotal, c.policy.PlatformFeeBps)
	b.VAT, vatOK = percentOf(b.Subtotal, c.policy.VATBps)
	if !feeOK || !vatOK || b.PlatformFee > math.MaxInt64-b.Subtotal-b.VAT {
		return Breakdown{}, fmt.Errorf("%w: total for subtotal %d overflows", ErrInvalidPrice, b.Subtotal)
	}
	b.Total = b.Subtotal + b.PlatformFee + b.VAT
	return b, nil
}

// percentOf rounds half-up; amount and bps are never negative here.
// ok is false when the product does not fit in int64.
func percentOf(amount, bps int64) (v int64, ok bool) {
	if bps > 0 && amount > (math.MaxInt64-bpsDenominator/2)/bps {
		return 0, false
	}
	return (amount*bps + bpsDenominator/2) / bpsDenominator, true
}
