// Package profit splits the profit of a loan between the lender and the partner.
//
// Amounts are rounded to cents only at the installment level: the partner's
// share of an installment is rounded up and the lender's net is rounded down.
// For cent-exact installment amounts floor(a-x) == a-ceil(x), so the projected
// value of an installment and the cash credited when it is paid always agree.
package profit

import (
	"errors"

	"github.com/shopspring/decimal"
)

const centPlaces = 2

var two = decimal.NewFromInt(2)

// ErrInvalidInstallmentCount is returned for loans with no installments.
var ErrInvalidInstallmentCount = errors.New("installment count must be positive")

// Split is the profit breakdown of a whole loan.
type Split struct {
	Profit         decimal.Decimal // TotalBilled - Principal, may be negative
	PartnerShare   decimal.Decimal // Profit / 2
	LenderNetTotal decimal.Decimal // TotalBilled - PartnerShare
}

// SplitLoanProfit derives the profit, the partner's half and what is left for
// the lender out of the total billed amount.
func SplitLoanProfit(totalBilled, principal decimal.Decimal) Split {
	p := totalBilled.Sub(principal)
	partner := p.Div(two)
	return Split{
		Profit:         p,
		PartnerShare:   partner,
		LenderNetTotal: totalBilled.Sub(partner),
	}
}

// EffectivePrincipal returns the recorded principal, or totalBilled for loans
// that never stored one. Such loans carry no profit.
func EffectivePrincipal(totalBilled decimal.Decimal, principal decimal.NullDecimal) decimal.Decimal {
	if !principal.Valid {
		return totalBilled
	}
	return principal.Decimal
}

// NetPerInstallment is the lender's net value of one installment, floored to cents.
func NetPerInstallment(lenderNetTotal decimal.Decimal, installmentCount int) (decimal.Decimal, error) {
	if installmentCount <= 0 {
		return decimal.Zero, ErrInvalidInstallmentCount
	}
	return lenderNetTotal.Div(decimal.NewFromInt(int64(installmentCount))).RoundFloor(centPlaces), nil
}

// NetPerPaymentEvent returns the amount credited to the lender when one
// installment is collected, and the partner's share of that installment.
func NetPerPaymentEvent(installmentAmount, totalBilled, principal decimal.Decimal, installmentCount int) (lenderNet, partnerShare decimal.Decimal, err error) {
	if installmentCount <= 0 {
		return decimal.Zero, decimal.Zero, ErrInvalidInstallmentCount
	}
	p := totalBilled.Sub(principal)
	partnerShare = p.Div(decimal.NewFromInt(int64(installmentCount) * 2)).RoundCeil(centPlaces)
	return installmentAmount.Sub(partnerShare), partnerShare, nil
}

// RemainingValue is the lender's net claim on the unpaid installments of a loan.
func RemainingValue(lenderNetPerInstallment decimal.Decimal, remaining int) decimal.Decimal {
	if remaining <= 0 {
		return decimal.Zero
	}
	return lenderNetPerInstallment.Mul(decimal.NewFromInt(int64(remaining)))
}
