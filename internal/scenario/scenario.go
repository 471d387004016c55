// Package scenario runs scripted end-to-end checks against a fresh engine
// and reports pass/fail per step. cmd/scenario-runner prints the results;
// the package tests require them all to pass.
package scenario

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/platform/apperr"
	"github.com/fracreserve/banksim/internal/platform/logger"
)

// Result captures the outcome of one check.
type Result struct {
	Scenario string `json:"scenario"`
	Check    string `json:"check"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Suite holds the results of one run.
type Suite struct {
	logger  *logger.Logger
	seed    int64
	results []Result
}

// NewSuite creates a suite. seed drives the randomized mirror sweep.
func NewSuite(log *logger.Logger, seed int64) *Suite {
	if log == nil {
		log = logger.NewNop()
	}
	return &Suite{logger: log, seed: seed}
}

func (s *Suite) newEngine() *engine.Engine {
	return engine.New(agent.NewDefaultFed(), directory.New(), engine.WithLogger(s.logger))
}

func (s *Suite) check(scenario, name string, expected, actual fmt.Stringer) {
	r := Result{
		Scenario: scenario,
		Check:    name,
		Expected: expected.String(),
		Actual:   actual.String(),
	}
	r.Passed = r.Expected == r.Actual
	s.record(r)
}

func (s *Suite) checkDec(scenario, name, expected string, actual decimal.Decimal) {
	exp := decimal.RequireFromString(expected)
	s.record(Result{
		Scenario: scenario,
		Check:    name,
		Expected: exp.String(),
		Actual:   actual.String(),
		Passed:   exp.Equal(actual),
	})
}

func (s *Suite) checkTrue(scenario, name string, ok bool, detail string) {
	actual := "ok"
	if !ok {
		actual = detail
	}
	s.record(Result{Scenario: scenario, Check: name, Expected: "ok", Actual: actual, Passed: ok})
}

func (s *Suite) checkErr(scenario, name string, err error) bool {
	if err == nil {
		return true
	}
	s.record(Result{Scenario: scenario, Check: name, Expected: "no error", Actual: err.Error()})
	return false
}

func (s *Suite) record(r Result) {
	if r.Passed {
		s.logger.Debug("scenario check passed", "scenario", r.Scenario, "check", r.Check)
	} else {
		s.logger.Warn("scenario check failed", "scenario", r.Scenario, "check", r.Check,
			"expected", r.Expected, "actual", r.Actual)
	}
	s.results = append(s.results, r)
}

type kindString apperr.Kind

func (k kindString) String() string {
	if k == "" {
		return "<none>"
	}
	return string(k)
}

type idString ident.ID

func (i idString) String() string { return fmt.Sprintf("%d", int(i)) }

// Run executes every scenario in order. It stops early only if ctx is done.
func (s *Suite) Run(ctx context.Context) []Result {
	steps := []func(){
		s.depositLoanInterest,
		s.bankRunBankruptcy,
		s.fedRoundTrip,
		s.mirrorSweep,
	}
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		step()
	}
	return s.Results()
}

// Results returns a copy of everything recorded so far.
func (s *Suite) Results() []Result {
	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Summary counts passed and failed checks.
func Summary(results []Result) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// depositLoanInterest covers scenarios A, B and C on one bank.
func (s *Suite) depositLoanInterest() {
	e := s.newEngine()
	bankID, err := e.RegisterBank(agent.BankSpec{
		Mode:        agent.BankModeBalances,
		Reserve:     decimal.NewFromInt(1000),
		Deposit:     decimal.NewFromInt(1000),
		Equity:      decimal.NewFromInt(1000),
		LoanRate:    decimal.NewNullDecimal(decimal.RequireFromString("0.02")),
		DepositRate: decimal.NewNullDecimal(decimal.RequireFromString("0.01")),
	})
	if !s.checkErr("A", "register bank", err) {
		return
	}
	hhID, err := e.RegisterHousehold(agent.HouseholdSpec{Cash: decimal.NewNullDecimal(decimal.NewFromInt(500))})
	if !s.checkErr("A", "register household", err) {
		return
	}

	_, err = e.Deposit(decimal.NewFromInt(200), hhID, bankID)
	if !s.checkErr("A", "deposit 200", err) {
		return
	}
	b, _ := e.Bank(bankID)
	h, _ := e.Household(hhID)
	s.checkDec("A", "household cash", "300", h.Cash)
	s.checkDec("A", "bank deposit", "1200", b.Deposit)
	s.checkDec("A", "bank reserve", "1200", b.Reserve)
	s.checkDec("A", "bank total", "3400", b.Total)

	_, err = e.GiveLoan(decimal.NewFromInt(500), hhID, bankID)
	if !s.checkErr("B", "loan 500", err) {
		return
	}
	b, _ = e.Bank(bankID)
	h, _ = e.Household(hhID)
	s.checkDec("B", "bank reserve", "700", b.Reserve)
	s.checkDec("B", "bank loans", "500", b.Loans)
	s.checkDec("B", "bank total", "3400", b.Total)
	s.checkDec("B", "household cash", "800", h.Cash)

	e.AdvanceTick()
	b, _ = e.Bank(bankID)
	s.checkDec("C", "bank reserve", "698", b.Reserve)
	s.checkDec("C", "bank equity", "998", b.Equity)
	s.checkDec("C", "bank total", "3396", b.Total)
}

// bankRunBankruptcy covers scenario D and every operation afterwards.
func (s *Suite) bankRunBankruptcy() {
	e := s.newEngine()
	bankID, err := e.RegisterBank(agent.BankSpec{
		Mode:    agent.BankModeBalances,
		Reserve: decimal.NewFromInt(100),
		Deposit: decimal.NewFromInt(1000),
		Equity:  decimal.NewFromInt(50),
	})
	if !s.checkErr("D", "register bank", err) {
		return
	}
	otherID, _ := e.RegisterBank(agent.BankSpec{})
	hhID, _ := e.RegisterHousehold(agent.HouseholdSpec{})

	res, err := e.HandleBankRun(bankID, decimal.RequireFromString("0.5"))
	if !s.checkErr("D", "bank run", err) {
		return
	}
	s.checkTrue("D", "bankruptcy reported", res.Bankrupt, res.Message)
	s.checkDec("D", "shortfall", "400", res.Shortfall)

	var failed *agent.BankView
	for _, v := range e.Overview().Banks {
		if v.RegisteredID == bankID {
			v := v
			failed = &v
		}
	}
	if failed == nil {
		s.checkTrue("D", "failed bank listed", false, "missing from overview")
		return
	}
	s.check("D", "identifier", idString(ident.Bankrupt), idString(failed.ID))
	for name, q := range map[string]decimal.Decimal{
		"reserve": failed.Reserve, "loans": failed.Loans, "deposit": failed.Deposit,
		"equity": failed.Equity, "total": failed.Total,
	} {
		s.checkDec("D", name+" zeroed", "0", q)
	}
	s.checkTrue("D", "ledger empty", len(failed.Relations) == 0, fmt.Sprintf("%d relations", len(failed.Relations)))

	one := decimal.NewFromInt(1)
	ops := []struct {
		name string
		run  func() error
	}{
		{"deposit", func() error { _, err := e.Deposit(one, hhID, bankID); return err }},
		{"give loan", func() error { _, err := e.GiveLoan(one, hhID, bankID); return err }},
		{"repay loan", func() error { _, err := e.RepayLoan(one, hhID, bankID); return err }},
		{"borrow as lender", func() error { _, err := e.BorrowFromBank(one, bankID, otherID); return err }},
		{"borrow as borrower", func() error { _, err := e.BorrowFromBank(one, otherID, bankID); return err }},
		{"repay to bank", func() error { _, err := e.RepayToBank(one, otherID, bankID); return err }},
		{"fed lend", func() error { _, err := e.FedLend(one, bankID); return err }},
		{"fed repay", func() error { _, err := e.FedRepay(one, bankID); return err }},
		{"check reserve", func() error { _, err := e.CheckReserveRequirement(bankID); return err }},
		{"bank run", func() error { _, err := e.HandleBankRun(bankID, one); return err }},
	}
	for _, op := range ops {
		s.check("D", op.name+" after bankruptcy", kindString(apperr.KindInactiveAgent), kindString(apperr.KindOf(op.run())))
	}
}

// fedRoundTrip lends from the Fed and repays it in full.
func (s *Suite) fedRoundTrip() {
	e := s.newEngine()
	bankID, err := e.RegisterBank(agent.BankSpec{})
	if !s.checkErr("FED", "register bank", err) {
		return
	}
	pool := e.Fed().Pool
	amount := decimal.NewFromInt(1_000_000)

	if _, err := e.FedLend(amount, bankID); !s.checkErr("FED", "lend", err) {
		return
	}
	s.checkDec("FED", "pool after lend", pool.Sub(amount).String(), e.Fed().Pool)

	if _, err := e.FedRepay(amount, bankID); !s.checkErr("FED", "repay", err) {
		return
	}
	s.checkDec("FED", "pool after repay", pool.String(), e.Fed().Pool)

	b, _ := e.Bank(bankID)
	rel, _ := findRelation(b.Relations, ident.Fed)
	s.checkDec("FED", "bank owes the Fed nothing", "0", rel.Payable)
}

// mirrorSweep drives random traffic and then checks that every pair of
// ledgers mirrors and every bank's total matches its sheet.
func (s *Suite) mirrorSweep() {
	e := s.newEngine()
	rng := rand.New(rand.NewSource(s.seed))

	var banks, households []ident.ID
	for i := 0; i < 5; i++ {
		id, err := e.RegisterBank(agent.BankSpec{
			Mode:    agent.BankModeBalances,
			Reserve: decimal.NewFromInt(10_000),
			Deposit: decimal.NewFromInt(10_000),
			Equity:  decimal.NewFromInt(5_000),
		})
		if !s.checkErr("MIRROR", "register bank", err) {
			return
		}
		banks = append(banks, id)
	}
	for i := 0; i < 10; i++ {
		id, err := e.RegisterHousehold(agent.HouseholdSpec{Cash: decimal.NewNullDecimal(decimal.NewFromInt(5_000))})
		if !s.checkErr("MIRROR", "register household", err) {
			return
		}
		households = append(households, id)
	}

	applied := 0
	for i := 0; i < 500; i++ {
		amount := decimal.NewFromInt(int64(rng.Intn(900) + 1))
		b := banks[rng.Intn(len(banks))]
		b2 := banks[rng.Intn(len(banks))]
		h := households[rng.Intn(len(households))]

		var err error
		switch rng.Intn(8) {
		case 0:
			_, err = e.Deposit(amount, h, b)
		case 1:
			_, err = e.GiveLoan(amount, h, b)
		case 2:
			_, err = e.RepayLoan(amount, h, b)
		case 3:
			_, err = e.BorrowFromBank(amount, b, b2)
		case 4:
			_, err = e.RepayToBank(amount, b, b2)
		case 5:
			_, err = e.FedLend(amount, b)
		case 6:
			_, err = e.FedRepay(amount, b)
		default:
			e.AdvanceTick()
		}
		if err == nil {
			applied++
		}
	}
	s.checkTrue("MIRROR", "traffic applied", applied > 0, "no transaction succeeded")

	ov := e.Overview()
	holders := map[ident.ID][]ledger.Relation{ident.Fed: ov.Fed.Relations}
	for _, b := range ov.Banks {
		holders[b.ID] = b.Relations
		sum := b.Reserve.Add(b.Loans).Add(b.Deposit).Add(b.Equity)
		s.checkTrue("MIRROR", fmt.Sprintf("bank %d total", b.ID), sum.Equal(b.Total),
			fmt.Sprintf("total %s, sheet sums to %s", b.Total, sum))
	}
	for _, h := range ov.Households {
		holders[h.ID] = h.Relations
	}

	mismatches := 0
	for holder, rels := range holders {
		for _, r := range rels {
			back, ok := findRelation(holders[r.Counterparty], holder)
			if !ok || !back.Payable.Equal(r.Receivable) || !back.Receivable.Equal(r.Payable) {
				mismatches++
			}
		}
	}
	s.checkTrue("MIRROR", "ledgers mirror", mismatches == 0, fmt.Sprintf("%d mismatched records", mismatches))
}

func findRelation(rels []ledger.Relation, counterparty ident.ID) (ledger.Relation, bool) {
	for _, r := range rels {
		if r.Counterparty == counterparty {
			return r, true
		}
	}
	return ledger.Relation{}, false
}
