package entity

import (
	"github.com/shopspring/decimal"
)

// Pricing is the commercial breakdown of a booking
type Pricing struct {
	ResourcePrice  decimal.Decimal
	OperatorPrice  decimal.Decimal
	TotalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalPrice     decimal.Decimal
}

// PriceInput is the caller-supplied pricing; nil fields take defaults
type PriceInput struct {
	ResourcePrice  *decimal.Decimal
	OperatorPrice  *decimal.Decimal
	TotalPrice     *decimal.Decimal
	DiscountAmount *decimal.Decimal
}

// HasTotal reports whether the caller supplied a total price
func (in PriceInput) HasTotal() bool {
	return in.TotalPrice != nil
}

// ResolvePricing fills defaults: operator 0, resource total-operator,
// discount 0, final total-discount. Every amount must be non-negative.
func ResolvePricing(in PriceInput) (Pricing, error) {
	if in.TotalPrice == nil {
		return Pricing{}, &ValidationError{Field: "totalPrice", Message: "total price is required"}
	}

	p := Pricing{
		TotalPrice:     *in.TotalPrice,
		OperatorPrice:  valueOrZero(in.OperatorPrice),
		DiscountAmount: valueOrZero(in.DiscountAmount),
	}
	if in.ResourcePrice != nil {
		p.ResourcePrice = *in.ResourcePrice
	} else {
		p.ResourcePrice = p.TotalPrice.Sub(p.OperatorPrice)
	}
	p.FinalPrice = p.TotalPrice.Sub(p.DiscountAmount)

	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"resourcePrice", p.ResourcePrice},
		{"operatorPrice", p.OperatorPrice},
		{"totalPrice", p.TotalPrice},
		{"discountAmount", p.DiscountAmount},
		{"finalPrice", p.FinalPrice},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return Pricing{}, &ValidationError{Field: f.name, Message: "must not be negative"}
		}
	}
	return p, nil
}

// AmountMinorUnits converts the final price to the gateway's smallest currency unit
func (p Pricing) AmountMinorUnits() int64 {
	return p.FinalPrice.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func valueOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
