package agent

import (
	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/domain/rules"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

var (
	DefaultFedPool         = decimal.NewFromInt(6_587_000_000_000)
	DefaultFedDiscountRate = decimal.RequireFromString("0.04")
	DefaultFedReserveRatio = decimal.RequireFromString("0.03")
)

// Fed is the central bank. One instance lives for the whole simulation and
// is handed to the engine explicitly.
type Fed struct {
	guard

	Name         string          `json:"name"`
	Pool         decimal.Decimal `json:"pool"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
	// ReserveRatio is the system-wide requirement used by every compliance check.
	ReserveRatio decimal.Decimal `json:"reserve_ratio"`

	Ledger ledger.Ledger `json:"-"`
}

// NewFed builds the central bank. Both rates must lie in [0,1] and the pool
// must not be negative.
func NewFed(pool, discountRate, reserveRatio decimal.Decimal) (*Fed, error) {
	if pool.IsNegative() {
		return nil, apperr.New(apperr.KindInvalidAmount, "fed pool %s is negative", pool)
	}
	if !rules.InUnitInterval(discountRate) {
		return nil, apperr.New(apperr.KindInvalidParameter, "discount rate %s outside [0,1]", discountRate)
	}
	if !rules.InUnitInterval(reserveRatio) {
		return nil, apperr.New(apperr.KindInvalidParameter, "reserve ratio %s outside [0,1]", reserveRatio)
	}
	return &Fed{
		guard:        guard{key: ident.Fed},
		Name:         "Fed",
		Pool:         pool,
		DiscountRate: discountRate,
		ReserveRatio: reserveRatio,
	}, nil
}

// NewDefaultFed builds the central bank with the stock parameters.
func NewDefaultFed() *Fed {
	f, _ := NewFed(DefaultFedPool, DefaultFedDiscountRate, DefaultFedReserveRatio)
	return f
}

func (f *Fed) Kind() Kind            { return KindFed }
func (f *Fed) AgentID() ident.ID     { return ident.Fed }
func (f *Fed) AgentName() string     { return f.Name }
func (f *Fed) Cash() decimal.Decimal { return f.Pool }

// View copies the Fed's current state. Caller holds the lock.
func (f *Fed) View() FedView {
	return FedView{
		ID:           ident.Fed,
		Name:         f.Name,
		Pool:         f.Pool,
		DiscountRate: f.DiscountRate,
		ReserveRatio: f.ReserveRatio,
		Relations:    f.Ledger.Records(),
	}
}
