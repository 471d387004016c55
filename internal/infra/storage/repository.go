// Package storage exports the simulation's current state to SQLite for
// offline inspection. The export is write-only: the engine never reads it
// back, and the tables are emptied on every boot.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
)

// Snapshot is one export of the whole simulation.
type Snapshot struct {
	Tick       int64
	TakenAt    time.Time
	Fed        agent.FedView
	Banks      []agent.BankView
	Households []agent.HouseholdView
}

// SimState is the exported sim_state row.
type SimState struct {
	Tick         int64           `json:"tick" db:"tick"`
	FedPool      decimal.Decimal `json:"fed_pool" db:"fed_pool"`
	DiscountRate decimal.Decimal `json:"discount_rate" db:"discount_rate"`
	ReserveRatio decimal.Decimal `json:"reserve_ratio" db:"reserve_ratio"`
	BankCount    int             `json:"bank_count" db:"bank_count"`
	TakenAt      time.Time       `json:"taken_at" db:"taken_at"`
}

// BankRow is one exported bank. RegisteredID is the key; ID is -2 for a
// failed bank.
type BankRow struct {
	RegisteredID ident.ID        `json:"registered_id" db:"registered_id"`
	ID           ident.ID        `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Status       agent.Status    `json:"status" db:"status"`
	Reserve      decimal.Decimal `json:"reserve" db:"reserve"`
	Loans        decimal.Decimal `json:"loans" db:"loans"`
	Deposit      decimal.Decimal `json:"deposit" db:"deposit"`
	Equity       decimal.Decimal `json:"equity" db:"equity"`
	Total        decimal.Decimal `json:"total" db:"total"`
	LoanRate     decimal.Decimal `json:"loan_rate" db:"loan_rate"`
	DepositRate  decimal.Decimal `json:"deposit_rate" db:"deposit_rate"`
}

// RelationRow is one ledger record as seen by its holder.
type RelationRow struct {
	HolderID       ident.ID        `json:"holder_id" db:"holder_id"`
	CounterpartyID ident.ID        `json:"counterparty_id" db:"counterparty_id"`
	Payable        decimal.Decimal `json:"payable" db:"payable"`
	Receivable     decimal.Decimal `json:"receivable" db:"receivable"`
}

// SnapshotRepository persists the latest snapshot.
type SnapshotRepository interface {
	// Reset drops whatever a previous run left behind.
	Reset(ctx context.Context) error

	// Save replaces the stored snapshot with snap atomically.
	Save(ctx context.Context, snap Snapshot) error

	GetSimState(ctx context.Context) (*SimState, error)
	GetBanks(ctx context.Context) ([]BankRow, error)
	GetRelations(ctx context.Context, holderID ident.ID) ([]RelationRow, error)
}
