// Package rules contains the pure calculation logic for the banking mechanics.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import "github.com/shopspring/decimal"

var one = decimal.NewFromInt(1)

// InUnitInterval reports whether v lies in [0,1]. Every rate and ratio in the
// simulation is held to it.
func InUnitInterval(v decimal.Decimal) bool {
	return !v.IsNegative() && v.LessThanOrEqual(one)
}

// InterestAccrual is one tick of interest on a bank's sheet.
type InterestAccrual struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// AccrueInterest computes the tick's interest: loans earn the loan rate,
// deposits cost the deposit rate.
func AccrueInterest(loans, loanRate, deposit, depositRate decimal.Decimal) InterestAccrual {
	income := loans.Mul(loanRate)
	expense := deposit.Mul(depositRate)
	return InterestAccrual{
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}
}

// RequiredReserve is the reserve a bank must hold against deposit.
func RequiredReserve(deposit, reserveRatio decimal.Decimal) decimal.Decimal {
	return deposit.Mul(reserveRatio)
}

// MeetsReserveRequirement reports compliance. Equality is compliant.
func MeetsReserveRequirement(reserve, deposit, reserveRatio decimal.Decimal) bool {
	return reserve.GreaterThanOrEqual(RequiredReserve(deposit, reserveRatio))
}

// ClampRunRatio caps ratio at 1. ok is false for a non-positive ratio, which
// callers treat as a no-op run.
func ClampRunRatio(ratio decimal.Decimal) (clamped decimal.Decimal, ok bool) {
	if !ratio.IsPositive() {
		return decimal.Zero, false
	}
	if ratio.GreaterThan(one) {
		return one, true
	}
	return ratio, true
}

// BankRunOutcome is the post-run sheet of a bank before the bankruptcy
// decision is applied.
type BankRunOutcome struct {
	Withdrawn decimal.Decimal
	Shortfall decimal.Decimal
	Reserve   decimal.Decimal
	Deposit   decimal.Decimal
	Equity    decimal.Decimal
}

// Insolvent reports whether the run wiped out the equity buffer.
func (o BankRunOutcome) Insolvent() bool {
	return o.Equity.IsNegative()
}

// ResolveBankRun withdraws deposit*ratio. Reserve pays first; whatever it
// cannot cover comes out of equity. ratio must already be clamped.
func ResolveBankRun(reserve, deposit, equity, ratio decimal.Decimal) BankRunOutcome {
	withdraw := deposit.Mul(ratio)
	out := BankRunOutcome{
		Withdrawn: withdraw,
		Shortfall: decimal.Zero,
		Deposit:   deposit.Sub(withdraw),
		Equity:    equity,
	}

	if reserve.GreaterThanOrEqual(withdraw) {
		out.Reserve = reserve.Sub(withdraw)
		return out
	}

	out.Shortfall = withdraw.Sub(reserve)
	out.Reserve = decimal.Zero
	out.Equity = equity.Sub(out.Shortfall)
	return out
}
