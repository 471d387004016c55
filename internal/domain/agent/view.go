package agent

import (
	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
)

// Views are value snapshots handed to the presentation side. Mutating one
// changes nothing in the simulation.

type BankView struct {
	ID           ident.ID          `json:"id"`
	RegisteredID ident.ID          `json:"registered_id"`
	Name         string            `json:"name"`
	Status       Status            `json:"status"`
	Reserve      decimal.Decimal   `json:"reserve"`
	Loans        decimal.Decimal   `json:"loans"`
	Deposit      decimal.Decimal   `json:"deposit"`
	Equity       decimal.Decimal   `json:"equity"`
	Total        decimal.Decimal   `json:"total"`
	LoanRate     decimal.Decimal   `json:"loan_rate"`
	DepositRate  decimal.Decimal   `json:"deposit_rate"`
	Relations    []ledger.Relation `json:"relations"`
}

type HouseholdView struct {
	ID        ident.ID          `json:"id"`
	Name      string            `json:"name"`
	Cash      decimal.Decimal   `json:"cash"`
	Relations []ledger.Relation `json:"relations"`
}

type FedView struct {
	ID           ident.ID          `json:"id"`
	Name         string            `json:"name"`
	Pool         decimal.Decimal   `json:"pool"`
	DiscountRate decimal.Decimal   `json:"discount_rate"`
	ReserveRatio decimal.Decimal   `json:"reserve_ratio"`
	Relations    []ledger.Relation `json:"relations"`
}
