package agent

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/domain/rules"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// Status is the bank lifecycle state. Bankrupt is terminal.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusBankrupt Status = "BANKRUPT"
)

// Default balance sheet for a bank created by name only.
var (
	DefaultBankReserve     = decimal.NewFromInt(50_000_000_000)
	DefaultBankDeposit     = decimal.NewFromInt(50_000_000_000)
	DefaultBankEquity      = decimal.NewFromInt(100_000_000_000)
	DefaultBankLoanRate    = decimal.RequireFromString("0.023")
	DefaultBankDepositRate = decimal.RequireFromString("0.03")
)

// BankMode selects how a BankSpec is turned into an opening balance sheet.
type BankMode string

const (
	// BankModeDefault uses the default sheet; only the name is read.
	BankModeDefault BankMode = "DEFAULT"
	// BankModeBalances takes reserve, deposit and equity as given.
	BankModeBalances BankMode = "BALANCES"
	// BankModeReserveRatio splits TotalMoney minus equity between deposit and
	// reserve so that reserve/deposit equals ReserveRatio.
	BankModeReserveRatio BankMode = "RESERVE_RATIO"
)

// BankSpec describes a bank to be registered.
type BankSpec struct {
	Name         string              `json:"name"`
	Mode         BankMode            `json:"mode"`
	Reserve      decimal.Decimal     `json:"reserve"`
	Deposit      decimal.Decimal     `json:"deposit"`
	Equity       decimal.Decimal     `json:"equity"`
	TotalMoney   decimal.Decimal     `json:"total_money"`
	ReserveRatio decimal.Decimal     `json:"reserve_ratio"`
	LoanRate     decimal.NullDecimal `json:"loan_rate"`
	DepositRate  decimal.NullDecimal `json:"deposit_rate"`
}

// Bank is a commercial bank's balance sheet plus its relation ledger.
// Callers mutate the four quantities under the bank's lock and then call
// Recompute; total is never written any other way.
type Bank struct {
	guard

	ID   ident.ID `json:"id"`
	Name string   `json:"name"`

	Reserve decimal.Decimal `json:"reserve"`
	Loans   decimal.Decimal `json:"loans"`
	Deposit decimal.Decimal `json:"deposit"`
	Equity  decimal.Decimal `json:"equity"`

	LoanRate    decimal.Decimal `json:"loan_rate"`
	DepositRate decimal.Decimal `json:"deposit_rate"`

	Ledger ledger.Ledger `json:"-"`

	total  decimal.Decimal
	status Status
}

// NewBank builds an unregistered bank from spec.
func NewBank(spec BankSpec) (*Bank, error) {
	b := &Bank{
		guard:       guard{key: ident.Unassigned},
		ID:          ident.Unassigned,
		Name:        spec.Name,
		Loans:       decimal.Zero,
		LoanRate:    DefaultBankLoanRate,
		DepositRate: DefaultBankDepositRate,
		status:      StatusActive,
	}

	switch spec.Mode {
	case "", BankModeDefault:
		b.Reserve = DefaultBankReserve
		b.Deposit = DefaultBankDeposit
		b.Equity = DefaultBankEquity
	case BankModeBalances:
		b.Reserve = spec.Reserve
		b.Deposit = spec.Deposit
		b.Equity = spec.Equity
	case BankModeReserveRatio:
		if !rules.InUnitInterval(spec.ReserveRatio) {
			return nil, apperr.New(apperr.KindInvalidParameter, "reserve ratio %s outside [0,1]", spec.ReserveRatio)
		}
		b.Equity = spec.Equity
		base := spec.TotalMoney.Sub(b.Equity).Sub(b.Loans)
		b.Deposit = base.Div(decimal.NewFromInt(1).Add(spec.ReserveRatio))
		b.Reserve = spec.TotalMoney.Sub(b.Deposit).Sub(b.Equity).Sub(b.Loans)
	default:
		return nil, apperr.New(apperr.KindInvalidParameter, "unknown bank mode %q", spec.Mode)
	}

	opening := []struct {
		name string
		v    decimal.Decimal
	}{{"reserve", b.Reserve}, {"deposit", b.Deposit}, {"equity", b.Equity}}
	for _, q := range opening {
		if q.v.IsNegative() {
			return nil, apperr.New(apperr.KindInvalidAmount, "opening %s %s is negative", q.name, q.v)
		}
	}

	if spec.LoanRate.Valid {
		if !rules.InUnitInterval(spec.LoanRate.Decimal) {
			return nil, apperr.New(apperr.KindInvalidParameter, "loan rate %s outside [0,1]", spec.LoanRate.Decimal)
		}
		b.LoanRate = spec.LoanRate.Decimal
	}
	if spec.DepositRate.Valid {
		if !rules.InUnitInterval(spec.DepositRate.Decimal) {
			return nil, apperr.New(apperr.KindInvalidParameter, "deposit rate %s outside [0,1]", spec.DepositRate.Decimal)
		}
		b.DepositRate = spec.DepositRate.Decimal
	}

	b.Recompute()
	return b, nil
}

func (b *Bank) Kind() Kind            { return KindBank }
func (b *Bank) AgentID() ident.ID     { return b.ID }
func (b *Bank) AgentName() string     { return b.Name }
func (b *Bank) Cash() decimal.Decimal { return b.total }

// Assign gives the bank its directory identifier. It also fixes the
// registration key.
func (b *Bank) Assign(id ident.ID) {
	b.ID = id
	b.key = id
	if b.Name == "" {
		b.Name = fmt.Sprintf("Bank%d", id)
	}
}

// Total is reserve + loans + deposit + equity as of the last Recompute.
func (b *Bank) Total() decimal.Decimal { return b.total }

// Recompute derives total from the four balance-sheet quantities.
func (b *Bank) Recompute() {
	b.total = b.Reserve.Add(b.Loans).Add(b.Deposit).Add(b.Equity)
}

// Status reports the lifecycle state.
func (b *Bank) Status() Status { return b.status }

// Active reports whether the bank can still transact.
func (b *Bank) Active() bool { return b.status == StatusActive }

// Fail moves the bank into the terminal Bankrupt state: sentinel identifier,
// zeroed sheet, empty ledger.
func (b *Bank) Fail() {
	b.status = StatusBankrupt
	b.ID = ident.Bankrupt
	b.Reserve = decimal.Zero
	b.Loans = decimal.Zero
	b.Deposit = decimal.Zero
	b.Equity = decimal.Zero
	b.Ledger.Clear()
	b.Recompute()
}

// View copies the bank's current state. Caller holds the lock.
func (b *Bank) View() BankView {
	return BankView{
		ID:           b.ID,
		RegisteredID: b.key,
		Name:         b.Name,
		Status:       b.status,
		Reserve:      b.Reserve,
		Loans:        b.Loans,
		Deposit:      b.Deposit,
		Equity:       b.Equity,
		Total:        b.total,
		LoanRate:     b.LoanRate,
		DepositRate:  b.DepositRate,
		Relations:    b.Ledger.Records(),
	}
}
