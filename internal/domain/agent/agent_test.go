package agent

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewBankDefaults(t *testing.T) {
	b, err := NewBank(BankSpec{})
	require.NoError(t, err)

	assert.True(t, b.Reserve.Equal(DefaultBankReserve))
	assert.True(t, b.Deposit.Equal(DefaultBankDeposit))
	assert.True(t, b.Equity.Equal(DefaultBankEquity))
	assert.True(t, b.Loans.IsZero())
	assert.True(t, b.Total().Equal(dec("200000000000")))
	assert.True(t, b.LoanRate.Equal(dec("0.023")))
	assert.True(t, b.DepositRate.Equal(dec("0.03")))
	assert.Equal(t, ident.Unassigned, b.ID)
	assert.True(t, b.Active())

	b.Assign(7)
	assert.Equal(t, "Bank7", b.Name)
	assert.Equal(t, ident.ID(7), b.Key())
}

func TestNewBankBalances(t *testing.T) {
	b, err := NewBank(BankSpec{
		Name:    "First",
		Mode:    BankModeBalances,
		Reserve: dec("1000"),
		Deposit: dec("1000"),
		Equity:  dec("1000"),
	})
	require.NoError(t, err)
	assert.True(t, b.Total().Equal(dec("3000")))

	b.Assign(3)
	assert.Equal(t, "First", b.Name, "explicit names are kept")
}

func TestNewBankReserveRatio(t *testing.T) {
	b, err := NewBank(BankSpec{
		Mode:         BankModeReserveRatio,
		TotalMoney:   dec("3200"),
		ReserveRatio: dec("0.1"),
		Equity:       dec("1000"),
	})
	require.NoError(t, err)

	assert.True(t, b.Deposit.Equal(dec("2000")))
	assert.True(t, b.Reserve.Equal(dec("200")))
	assert.True(t, b.Total().Equal(dec("3200")), "sheet sums to the requested total")
}

func TestNewBankRejectsBadInput(t *testing.T) {
	_, err := NewBank(BankSpec{Mode: BankModeBalances, Reserve: dec("-1"), Deposit: dec("1"), Equity: dec("1")})
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount))

	_, err = NewBank(BankSpec{Mode: BankModeReserveRatio, TotalMoney: dec("10"), ReserveRatio: dec("1.5")})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	_, err = NewBank(BankSpec{LoanRate: decimal.NewNullDecimal(dec("2"))})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	_, err = NewBank(BankSpec{Mode: "SIDEWAYS"})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestBankFailIsTerminal(t *testing.T) {
	b, err := NewBank(BankSpec{})
	require.NoError(t, err)
	b.Assign(4)
	b.Ledger.Upsert(501, dec("10"), dec("0"))

	b.Fail()

	assert.Equal(t, StatusBankrupt, b.Status())
	assert.False(t, b.Active())
	assert.Equal(t, ident.Bankrupt, b.ID)
	assert.Equal(t, ident.ID(4), b.Key(), "registration key survives")
	assert.True(t, b.Total().IsZero())
	assert.Equal(t, 0, b.Ledger.Len())

	v := b.View()
	assert.Equal(t, ident.ID(4), v.RegisteredID)
	assert.Empty(t, v.Relations)
}

func TestNewHousehold(t *testing.T) {
	h, err := NewHousehold(HouseholdSpec{})
	require.NoError(t, err)
	assert.True(t, h.Cash().Equal(DefaultHouseholdCash))

	h.Assign(501)
	assert.Equal(t, "HH501", h.Name)

	_, err = NewHousehold(HouseholdSpec{Cash: decimal.NewNullDecimal(dec("-5"))})
	assert.True(t, errors.Is(err, apperr.ErrInvalidAmount))
}

func TestNewFed(t *testing.T) {
	f := NewDefaultFed()
	assert.Equal(t, ident.Fed, f.AgentID())
	assert.Equal(t, ident.Fed, f.Key())
	assert.True(t, f.Cash().Equal(DefaultFedPool))

	_, err := NewFed(dec("1"), dec("1.2"), dec("0.03"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
}

func TestViewIsDetached(t *testing.T) {
	h, _ := NewHousehold(HouseholdSpec{})
	h.Ledger.Upsert(1, dec("0"), dec("200"))

	v := h.View()
	v.Relations[0].Receivable = dec("1")
	v.Cash = dec("0")

	r, _ := h.Ledger.Find(1)
	assert.True(t, r.Receivable.Equal(dec("200")))
	assert.True(t, h.Balance.Equal(DefaultHouseholdCash))
}

func TestLockOrdersByKeyAndDedupes(t *testing.T) {
	a, _ := NewBank(BankSpec{})
	a.Assign(1)
	b, _ := NewBank(BankSpec{})
	b.Assign(2)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := Lock(a, b)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := Lock(b, a, b)
			unlock()
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite-order locking deadlocked")
	}
}
