package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return New(agent.NewDefaultFed(), directory.New(), opts...)
}

func registerBank(t *testing.T, e *Engine, reserve, deposit, equity string) ident.ID {
	t.Helper()
	id, err := e.RegisterBank(agent.BankSpec{
		Mode:    agent.BankModeBalances,
		Reserve: dec(reserve),
		Deposit: dec(deposit),
		Equity:  dec(equity),
	})
	require.NoError(t, err)
	return id
}

func registerHousehold(t *testing.T, e *Engine, cash string) ident.ID {
	t.Helper()
	id, err := e.RegisterHousehold(agent.HouseholdSpec{Cash: decimal.NewNullDecimal(dec(cash))})
	require.NoError(t, err)
	return id
}

func assertTotal(t *testing.T, v agent.BankView) {
	t.Helper()
	sum := v.Reserve.Add(v.Loans).Add(v.Deposit).Add(v.Equity)
	assert.True(t, v.Total.Equal(sum), "total %s != components %s", v.Total, sum)
}

func assertMirror(t *testing.T, holderID ident.ID, holder []ledger.Relation, counterpartyID ident.ID, counterparty []ledger.Relation) {
	t.Helper()
	mine, ok := findRelation(holder, counterpartyID)
	require.True(t, ok, "holder has no record of the counterparty")
	theirs, ok := findRelation(counterparty, holderID)
	require.True(t, ok, "counterparty has no record of the holder")
	assert.True(t, mine.Receivable.Equal(theirs.Payable))
	assert.True(t, mine.Payable.Equal(theirs.Receivable))
}

// Scenarios A through C run against one bank and one household. Totals are
// always the sum of the four sheet quantities.
func TestDepositLoanInterestScenario(t *testing.T) {
	// Setup
	e := newTestEngine(t)
	bankID := registerBank(t, e, "1000", "1000", "1000")
	hhID := registerHousehold(t, e, "500")

	bank, err := e.Bank(bankID)
	require.NoError(t, err)
	require.True(t, bank.Total.Equal(dec("3000")))

	// A: deposit 200
	res, err := e.Deposit(dec("200"), hhID, bankID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	bank, _ = e.Bank(bankID)
	hh, _ := e.Household(hhID)
	assert.True(t, hh.Cash.Equal(dec("300")))
	assert.True(t, bank.Deposit.Equal(dec("1200")))
	assert.True(t, bank.Reserve.Equal(dec("1200")))
	assert.True(t, bank.Total.Equal(dec("3400")))
	assertTotal(t, bank)

	// B: loan 500
	_, err = e.GiveLoan(dec("500"), hhID, bankID)
	require.NoError(t, err)

	bank, _ = e.Bank(bankID)
	hh, _ = e.Household(hhID)
	assert.True(t, bank.Reserve.Equal(dec("700")))
	assert.True(t, bank.Loans.Equal(dec("500")))
	assert.True(t, bank.Total.Equal(dec("3400")))
	assert.True(t, hh.Cash.Equal(dec("800")))

	rel := hh.Relations[0]
	assert.Equal(t, bankID, rel.Counterparty)
	assert.True(t, rel.Receivable.Equal(dec("200")), "bank owes the deposit")
	assert.True(t, rel.Payable.Equal(dec("500")), "household owes the loan")
	assertMirror(t, hhID, hh.Relations, bankID, bank.Relations)

	// C: one tick at loanRate 0.02, depositRate 0.01
	b, err := e.dir.Bank(bankID)
	require.NoError(t, err)
	b.LoanRate = dec("0.02")
	b.DepositRate = dec("0.01")

	report := e.AdvanceTick()
	assert.Equal(t, int64(1), report.TickNumber)

	bank, _ = e.Bank(bankID)
	assert.True(t, bank.Reserve.Equal(dec("698")))
	assert.True(t, bank.Equity.Equal(dec("998")))
	assert.True(t, bank.Total.Equal(dec("3396")))
	assertTotal(t, bank)
}

// Scenario D and everything after it.
func TestBankRunBankruptcy(t *testing.T) {
	// Setup
	bus := events.NewBus()
	feed, cancel := bus.Subscribe(64)
	defer cancel()
	e := newTestEngine(t, WithPublisher(bus))

	bankID := registerBank(t, e, "100", "1000", "50")
	otherID := registerBank(t, e, "1000", "1000", "1000")
	hhID := registerHousehold(t, e, "500")
	_, err := e.Deposit(dec("10"), hhID, bankID)
	require.NoError(t, err)

	b, err := e.dir.Bank(bankID)
	require.NoError(t, err)
	// put the sheet back to the scenario's numbers
	unlock := agent.Lock(b)
	b.Reserve, b.Deposit = dec("100"), dec("1000")
	b.Recompute()
	unlock()

	// Act
	res, err := e.HandleBankRun(bankID, dec("0.5"))

	// Assert
	require.NoError(t, err)
	assert.True(t, res.Bankrupt)
	assert.True(t, res.Withdrawn.Equal(dec("500")))
	assert.True(t, res.Shortfall.Equal(dec("400")))

	assert.Equal(t, ident.Bankrupt, b.ID)
	assert.True(t, b.Reserve.IsZero())
	assert.True(t, b.Loans.IsZero())
	assert.True(t, b.Deposit.IsZero())
	assert.True(t, b.Equity.IsZero())
	assert.True(t, b.Total().IsZero())
	assert.Equal(t, 0, b.Ledger.Len())

	_, err = e.Bank(bankID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "queries no longer resolve a failed bank")

	// Every later operation on the failed bank is inactive.
	inactive := []func() error{
		func() error { _, err := e.Deposit(dec("1"), hhID, bankID); return err },
		func() error { _, err := e.GiveLoan(dec("1"), hhID, bankID); return err },
		func() error { _, err := e.RepayLoan(dec("1"), hhID, bankID); return err },
		func() error { _, err := e.BorrowFromBank(dec("1"), otherID, bankID); return err },
		func() error { _, err := e.RepayToBank(dec("1"), bankID, otherID); return err },
		func() error { _, err := e.FedLend(dec("1"), bankID); return err },
		func() error { _, err := e.FedRepay(dec("1"), bankID); return err },
		func() error { _, err := e.CheckReserveRequirement(bankID); return err },
		func() error { _, err := e.HandleBankRun(bankID, dec("0.1")); return err },
		func() error { _, err := e.Deposit(dec("1"), hhID, ident.Bankrupt); return err },
	}
	for i, op := range inactive {
		assert.True(t, errors.Is(op(), apperr.ErrInactiveAgent), "op %d", i)
	}

	// The tick sweep skips it.
	report := e.AdvanceTick()
	assert.NotContains(t, report.NonCompliant, bankID)

	seen := map[events.EventType]bool{}
	for len(feed) > 0 {
		ev := <-feed
		seen[ev.Type] = true
	}
	assert.True(t, seen[events.EventTypeBankRun])
	assert.True(t, seen[events.EventTypeBankruptcy])
	assert.True(t, seen[events.EventTypeTransactionRejected])
}

func TestBankRunCoveredByReserveAndEquity(t *testing.T) {
	e := newTestEngine(t)
	rich := registerBank(t, e, "600", "1000", "50")
	thin := registerBank(t, e, "100", "1000", "500")

	res, err := e.HandleBankRun(rich, dec("0.5"))
	require.NoError(t, err)
	assert.False(t, res.Bankrupt)
	v, _ := e.Bank(rich)
	assert.True(t, v.Reserve.Equal(dec("100")))
	assert.True(t, v.Deposit.Equal(dec("500")))
	assertTotal(t, v)

	res, err = e.HandleBankRun(thin, dec("0.5"))
	require.NoError(t, err)
	assert.False(t, res.Bankrupt)
	v, _ = e.Bank(thin)
	assert.True(t, v.Reserve.IsZero())
	assert.True(t, v.Equity.Equal(dec("100")))
	assert.Equal(t, agent.StatusActive, v.Status)
}

func TestBankRunRatioClamps(t *testing.T) {
	e := newTestEngine(t)
	a := registerBank(t, e, "5000", "1000", "100")
	b := registerBank(t, e, "5000", "1000", "100")

	before, _ := e.Bank(a)
	res, err := e.HandleBankRun(a, dec("0"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Message)
	res, err = e.HandleBankRun(a, dec("-0.3"))
	require.NoError(t, err)
	after, _ := e.Bank(a)
	assert.Equal(t, before, after, "a non-positive ratio mutates nothing")

	_, err = e.HandleBankRun(a, dec("7"))
	require.NoError(t, err)
	_, err = e.HandleBankRun(b, dec("1"))
	require.NoError(t, err)

	va, _ := e.Bank(a)
	vb, _ := e.Bank(b)
	assert.True(t, va.Reserve.Equal(vb.Reserve))
	assert.True(t, va.Deposit.Equal(vb.Deposit))
	assert.True(t, va.Deposit.IsZero())
}

func TestTransactionPreconditions(t *testing.T) {
	e := newTestEngine(t)
	bankID := registerBank(t, e, "100", "100", "100")
	otherID := registerBank(t, e, "50", "100", "100")
	hhID := registerHousehold(t, e, "10")

	cases := []struct {
		name string
		run  func() (Result, error)
		want error
	}{
		{"zero amount", func() (Result, error) { return e.Deposit(dec("0"), hhID, bankID) }, apperr.ErrInvalidAmount},
		{"negative amount", func() (Result, error) { return e.FedLend(dec("-5"), bankID) }, apperr.ErrInvalidAmount},
		{"deposit beyond cash", func() (Result, error) { return e.Deposit(dec("11"), hhID, bankID) }, apperr.ErrInsufficientFunds},
		{"loan beyond reserve", func() (Result, error) { return e.GiveLoan(dec("101"), hhID, bankID) }, apperr.ErrInsufficientReserve},
		{"repay beyond cash", func() (Result, error) { return e.RepayLoan(dec("11"), hhID, bankID) }, apperr.ErrInsufficientFunds},
		{"interbank beyond lender reserve", func() (Result, error) { return e.BorrowFromBank(dec("51"), otherID, bankID) }, apperr.ErrInsufficientReserve},
		{"interbank repay beyond borrower reserve", func() (Result, error) { return e.RepayToBank(dec("51"), bankID, otherID) }, apperr.ErrInsufficientFunds},
		{"fed repay beyond reserve", func() (Result, error) { return e.FedRepay(dec("101"), bankID) }, apperr.ErrInsufficientReserve},
		{"fed lend beyond pool", func() (Result, error) { return e.FedLend(agent.DefaultFedPool.Add(dec("1")), bankID) }, apperr.ErrInsufficientFunds},
		{"self dealing", func() (Result, error) { return e.BorrowFromBank(dec("1"), bankID, bankID) }, apperr.ErrInvalidParameter},
		{"unknown bank", func() (Result, error) { return e.Deposit(dec("1"), hhID, 42) }, apperr.ErrNotFound},
		{"household id as bank", func() (Result, error) { return e.GiveLoan(dec("1"), hhID, hhID) }, apperr.ErrNotFound},
		{"bank id as household", func() (Result, error) { return e.Deposit(dec("1"), bankID, bankID) }, apperr.ErrNotFound},
	}

	before := e.Overview()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := tc.run()
			assert.False(t, res.Success)
			assert.NotEmpty(t, res.Message)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
	assert.Equal(t, before, e.Overview(), "rejected operations mutate nothing")
}

func TestRepayLoanFloorsAtZero(t *testing.T) {
	e := newTestEngine(t)
	bankID := registerBank(t, e, "1000", "0", "0")
	hhID := registerHousehold(t, e, "1000")

	_, err := e.GiveLoan(dec("100"), hhID, bankID)
	require.NoError(t, err)
	_, err = e.RepayLoan(dec("150"), hhID, bankID)
	require.NoError(t, err)

	v, _ := e.Bank(bankID)
	assert.True(t, v.Loans.IsZero())
	assert.True(t, v.Reserve.Equal(dec("1050")))
	assertTotal(t, v)

	r, ok := findRelation(v.Relations, hhID)
	require.True(t, ok)
	assert.True(t, r.Receivable.Equal(dec("-50")))
}

func TestInterbankAndFedMirrors(t *testing.T) {
	e := newTestEngine(t)
	lender := registerBank(t, e, "1000", "0", "0")
	borrower := registerBank(t, e, "10", "0", "0")

	_, err := e.BorrowFromBank(dec("300"), lender, borrower)
	require.NoError(t, err)
	_, err = e.RepayToBank(dec("100"), lender, borrower)
	require.NoError(t, err)
	_, err = e.FedLend(dec("40"), borrower)
	require.NoError(t, err)
	_, err = e.FedRepay(dec("15"), borrower)
	require.NoError(t, err)

	l, _ := e.Bank(lender)
	b, _ := e.Bank(borrower)
	fed := e.Fed()

	assert.True(t, l.Reserve.Equal(dec("800")))
	assert.True(t, b.Reserve.Equal(dec("235")))
	assert.True(t, fed.Pool.Equal(agent.DefaultFedPool.Sub(dec("25"))))

	lr, _ := findRelation(l.Relations, borrower)
	br, _ := findRelation(b.Relations, lender)
	assert.True(t, lr.Receivable.Equal(dec("200")))
	assert.True(t, lr.Receivable.Equal(br.Payable))

	fr, _ := findRelation(fed.Relations, borrower)
	bf, _ := findRelation(b.Relations, ident.Fed)
	assert.True(t, fr.Receivable.Equal(dec("25")))
	assert.True(t, fr.Receivable.Equal(bf.Payable))
}

func TestReserveRequirementBoundary(t *testing.T) {
	e := newTestEngine(t)
	exact := registerBank(t, e, "30", "1000", "0")
	short := registerBank(t, e, "29", "1000", "0")

	res, err := e.CheckReserveRequirement(exact)
	require.NoError(t, err)
	assert.True(t, res.Compliant, "reserve == ratio*deposit is compliant")

	res, err = e.CheckReserveRequirement(short)
	require.NoError(t, err)
	assert.False(t, res.Compliant)

	// rates are zero so the tick changes no balances
	for _, id := range []ident.ID{exact, short} {
		b, _ := e.dir.Bank(id)
		b.LoanRate, b.DepositRate = decimal.Zero, decimal.Zero
	}
	report := e.AdvanceTick()
	assert.Equal(t, []ident.ID{short}, report.NonCompliant)
}

func TestTickReportsNegativeEquity(t *testing.T) {
	e := newTestEngine(t)
	id := registerBank(t, e, "1000", "1000", "1")
	b, _ := e.dir.Bank(id)
	b.LoanRate, b.DepositRate = decimal.Zero, dec("0.5")

	report := e.AdvanceTick()
	assert.Equal(t, []ident.ID{id}, report.NegativeEquity)
	assert.Equal(t, []ident.ID{id}, e.NegativeEquityBanks())

	v, err := e.Bank(id)
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, v.Status, "interest losses never fail a bank")
}

func TestPolicyChanges(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ChangeReserveRatio(dec("1.01"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))
	_, err = e.ChangeDiscountRate(dec("-0.01"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	res, err := e.ChangeReserveRatio(dec("0.1"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	_, err = e.ChangeDiscountRate(dec("1"))
	require.NoError(t, err)

	fed := e.Fed()
	assert.True(t, fed.ReserveRatio.Equal(dec("0.1")))
	assert.True(t, fed.DiscountRate.Equal(dec("1")))
}

func TestRegistrationErrors(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.RegisterBank(agent.BankSpec{LoanRate: decimal.NewNullDecimal(dec("1.5"))})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParameter))

	id, err := e.RegisterBank(agent.BankSpec{})
	require.NoError(t, err)
	v, _ := e.Bank(id)
	assert.Equal(t, "Bank1", v.Name)

	hh, err := e.RegisterHousehold(agent.HouseholdSpec{})
	require.NoError(t, err)
	assert.Equal(t, ident.ID(501), hh)
}

func TestConcurrentTransfersKeepInvariants(t *testing.T) {
	e := newTestEngine(t)
	banks := []ident.ID{
		registerBank(t, e, "100000", "0", "0"),
		registerBank(t, e, "100000", "0", "0"),
		registerBank(t, e, "100000", "0", "0"),
	}
	hh := registerHousehold(t, e, "100000")

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := banks[i%3], banks[(i+1)%3]
			_, _ = e.BorrowFromBank(dec("10"), a, b)
			_, _ = e.RepayToBank(dec("5"), b, a)
			_, _ = e.Deposit(dec("3"), hh, a)
			_, _ = e.GiveLoan(dec("2"), hh, b)
			_, _ = e.FedLend(dec("1"), a)
			if i%10 == 0 {
				e.AdvanceTick()
			}
		}(i)
	}
	wg.Wait()

	ov := e.Overview()
	byID := map[ident.ID]agent.BankView{}
	for _, v := range ov.Banks {
		assertTotal(t, v)
		byID[v.ID] = v
	}
	for _, v := range ov.Banks {
		for _, r := range v.Relations {
			if cp, ok := byID[r.Counterparty]; ok {
				back, found := findRelation(cp.Relations, v.ID)
				require.True(t, found)
				assert.True(t, r.Receivable.Equal(back.Payable))
				assert.True(t, r.Payable.Equal(back.Receivable))
			}
		}
	}
}

func findRelation(rel []ledger.Relation, id ident.ID) (ledger.Relation, bool) {
	for _, r := range rel {
		if r.Counterparty == id {
			return r, true
		}
	}
	return ledger.Relation{}, false
}

func TestRegistrationAnnounced(t *testing.T) {
	bus := events.NewBus()
	ch, cancel := bus.Subscribe(4)
	defer cancel()

	e := newTestEngine(t, WithPublisher(bus))
	bankID := registerBank(t, e, "1000", "1000", "1000")
	hhID := registerHousehold(t, e, "500")

	ev := <-ch
	assert.Equal(t, events.EventTypeAgentRegistered, ev.Type)
	assert.Equal(t, bankID, ev.ActorID)
	p, ok := ev.Payload.(events.RegisteredPayload)
	require.True(t, ok)
	assert.Equal(t, "BANK", p.Kind)
	assert.Equal(t, "Bank1", p.Name)
	assert.True(t, p.Cash.Equal(dec("3000")), "bank cash is its sheet total, got %s", p.Cash)

	ev = <-ch
	assert.Equal(t, hhID, ev.ActorID)
	p, ok = ev.Payload.(events.RegisteredPayload)
	require.True(t, ok)
	assert.Equal(t, "HOUSEHOLD", p.Kind)
	assert.Equal(t, "HH501", p.Name)
	assert.True(t, p.Cash.Equal(dec("500")))
}
