package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// Operation names, as they appear in logs and rejection events.
const (
	OpDeposit        = "deposit"
	OpGiveLoan       = "give_loan"
	OpRepayLoan      = "repay_loan"
	OpBorrowFromBank = "borrow_from_bank"
	OpRepayToBank    = "repay_to_bank"
	OpFedLend        = "fed_lend"
	OpFedRepay       = "fed_repay"
)

// transfer describes an applied transaction for the bus and the log.
type transfer struct {
	op       string
	typ      events.EventType
	payer    ident.ID
	payee    ident.ID
	creditor ident.ID
	debtor   ident.ID
	amount   decimal.Decimal
	message  string
}

func (e *Engine) applied(t transfer) (Result, error) {
	e.metrics.RecordTransaction(nil)
	e.logger.Event(string(t.typ), t.payer, t.message, "op", t.op, "target", t.payee, "amount", t.amount)
	e.bus.Publish(events.NewEvent(t.typ, t.payer, t.payee, e.CurrentTick(), events.TransactionPayload{
		Amount:     t.amount,
		CreditorID: t.creditor,
		DebtorID:   t.debtor,
	}))
	return Result{Success: true, Message: t.message}, nil
}

func (e *Engine) rejected(op string, actor ident.ID, err error) (Result, error) {
	e.metrics.RecordTransaction(err)
	e.logger.Debug("transaction rejected", "op", op, "actor", actor, "error", err)
	e.bus.Publish(events.NewEvent(events.EventTypeTransactionRejected, actor, 0, e.CurrentTick(), events.RejectedPayload{
		Operation: op,
		Kind:      string(apperr.KindOf(err)),
		Reason:    err.Error(),
	}))
	return Result{Success: false, Message: err.Error()}, err
}

func (e *Engine) householdAndBank(householdID, bankID ident.ID) (*agent.Household, *agent.Bank, error) {
	h, err := e.dir.Household(householdID)
	if err != nil {
		return nil, nil, err
	}
	b, err := e.bank(bankID)
	if err != nil {
		return nil, nil, err
	}
	return h, b, nil
}

func (e *Engine) bankPair(lenderID, borrowerID ident.ID) (*agent.Bank, *agent.Bank, error) {
	if lenderID == borrowerID {
		return nil, nil, apperr.New(apperr.KindInvalidParameter, "bank %d cannot deal with itself", lenderID)
	}
	lender, err := e.bank(lenderID)
	if err != nil {
		return nil, nil, err
	}
	borrower, err := e.bank(borrowerID)
	if err != nil {
		return nil, nil, err
	}
	return lender, borrower, nil
}

// Deposit moves amount of a household's cash into a bank's reserve, raising
// the bank's deposit liability. The bank owes the household.
func (e *Engine) Deposit(amount decimal.Decimal, householdID, bankID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpDeposit, householdID, err)
	}
	h, b, err := e.householdAndBank(householdID, bankID)
	if err != nil {
		return e.rejected(OpDeposit, householdID, err)
	}

	unlock := agent.Lock(h, b)
	defer unlock()

	if err := activeAfterLock(b); err != nil {
		return e.rejected(OpDeposit, householdID, err)
	}
	if h.Balance.LessThan(amount) {
		return e.rejected(OpDeposit, householdID, apperr.New(apperr.KindInsufficientFunds,
			"household %d holds %s, cannot deposit %s", h.ID, h.Balance, amount))
	}

	h.Balance = h.Balance.Sub(amount)
	b.Reserve = b.Reserve.Add(amount)
	b.Deposit = b.Deposit.Add(amount)
	b.Recompute()
	ledger.Record(h.ID, &h.Ledger, b.ID, &b.Ledger, amount)

	return e.applied(transfer{
		op: OpDeposit, typ: events.EventTypeDeposit,
		payer: h.ID, payee: b.ID, creditor: h.ID, debtor: b.ID, amount: amount,
		message: fmt.Sprintf("Deposited %s into %s.", amount, b.Name),
	})
}

// GiveLoan lends amount of a bank's reserve to a household.
func (e *Engine) GiveLoan(amount decimal.Decimal, householdID, bankID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpGiveLoan, bankID, err)
	}
	h, b, err := e.householdAndBank(householdID, bankID)
	if err != nil {
		return e.rejected(OpGiveLoan, bankID, err)
	}

	unlock := agent.Lock(h, b)
	defer unlock()

	if err := activeAfterLock(b); err != nil {
		return e.rejected(OpGiveLoan, bankID, err)
	}
	if b.Reserve.LessThan(amount) {
		return e.rejected(OpGiveLoan, bankID, apperr.New(apperr.KindInsufficientReserve,
			"bank %d reserve %s cannot fund a loan of %s", b.ID, b.Reserve, amount))
	}

	b.Reserve = b.Reserve.Sub(amount)
	b.Loans = b.Loans.Add(amount)
	b.Recompute()
	h.Balance = h.Balance.Add(amount)
	ledger.Record(b.ID, &b.Ledger, h.ID, &h.Ledger, amount)

	return e.applied(transfer{
		op: OpGiveLoan, typ: events.EventTypeLoanGiven,
		payer: b.ID, payee: h.ID, creditor: b.ID, debtor: h.ID, amount: amount,
		message: fmt.Sprintf("Loan of %s granted to %s.", amount, h.Name),
	})
}

// RepayLoan pays amount of a household's cash back to a bank. Outstanding
// loans never drop below zero; an overpayment still lands in reserve.
func (e *Engine) RepayLoan(amount decimal.Decimal, householdID, bankID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpRepayLoan, householdID, err)
	}
	h, b, err := e.householdAndBank(householdID, bankID)
	if err != nil {
		return e.rejected(OpRepayLoan, householdID, err)
	}

	unlock := agent.Lock(h, b)
	defer unlock()

	if err := activeAfterLock(b); err != nil {
		return e.rejected(OpRepayLoan, householdID, err)
	}
	if h.Balance.LessThan(amount) {
		return e.rejected(OpRepayLoan, householdID, apperr.New(apperr.KindInsufficientFunds,
			"household %d holds %s, cannot repay %s", h.ID, h.Balance, amount))
	}

	h.Balance = h.Balance.Sub(amount)
	b.Reserve = b.Reserve.Add(amount)
	b.Loans = decimal.Max(decimal.Zero, b.Loans.Sub(amount))
	b.Recompute()
	ledger.Record(b.ID, &b.Ledger, h.ID, &h.Ledger, amount.Neg())

	return e.applied(transfer{
		op: OpRepayLoan, typ: events.EventTypeLoanRepaid,
		payer: h.ID, payee: b.ID, creditor: b.ID, debtor: h.ID, amount: amount,
		message: "Successfully repaid.",
	})
}

// BorrowFromBank moves amount of reserve from lender to borrower on credit.
func (e *Engine) BorrowFromBank(amount decimal.Decimal, lenderID, borrowerID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpBorrowFromBank, borrowerID, err)
	}
	lender, borrower, err := e.bankPair(lenderID, borrowerID)
	if err != nil {
		return e.rejected(OpBorrowFromBank, borrowerID, err)
	}

	unlock := agent.Lock(lender, borrower)
	defer unlock()

	if err := activeAfterLock(lender, borrower); err != nil {
		return e.rejected(OpBorrowFromBank, borrowerID, err)
	}
	if lender.Reserve.LessThan(amount) {
		return e.rejected(OpBorrowFromBank, borrowerID, apperr.New(apperr.KindInsufficientReserve,
			"lending bank %d reserve %s cannot cover %s", lender.ID, lender.Reserve, amount))
	}

	lender.Reserve = lender.Reserve.Sub(amount)
	lender.Recompute()
	borrower.Reserve = borrower.Reserve.Add(amount)
	borrower.Recompute()
	ledger.Record(lender.ID, &lender.Ledger, borrower.ID, &borrower.Ledger, amount)

	return e.applied(transfer{
		op: OpBorrowFromBank, typ: events.EventTypeInterbankBorrow,
		payer: lender.ID, payee: borrower.ID, creditor: lender.ID, debtor: borrower.ID, amount: amount,
		message: "Successfully borrowed.",
	})
}

// RepayToBank returns amount of reserve from borrower to lender.
func (e *Engine) RepayToBank(amount decimal.Decimal, lenderID, borrowerID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpRepayToBank, borrowerID, err)
	}
	lender, borrower, err := e.bankPair(lenderID, borrowerID)
	if err != nil {
		return e.rejected(OpRepayToBank, borrowerID, err)
	}

	unlock := agent.Lock(lender, borrower)
	defer unlock()

	if err := activeAfterLock(lender, borrower); err != nil {
		return e.rejected(OpRepayToBank, borrowerID, err)
	}
	if borrower.Reserve.LessThan(amount) {
		return e.rejected(OpRepayToBank, borrowerID, apperr.New(apperr.KindInsufficientFunds,
			"borrowing bank %d reserve %s cannot repay %s", borrower.ID, borrower.Reserve, amount))
	}

	borrower.Reserve = borrower.Reserve.Sub(amount)
	borrower.Recompute()
	lender.Reserve = lender.Reserve.Add(amount)
	lender.Recompute()
	ledger.Record(lender.ID, &lender.Ledger, borrower.ID, &borrower.Ledger, amount.Neg())

	return e.applied(transfer{
		op: OpRepayToBank, typ: events.EventTypeInterbankRepay,
		payer: borrower.ID, payee: lender.ID, creditor: lender.ID, debtor: borrower.ID, amount: amount,
		message: "Successfully repaid.",
	})
}

// FedLend lends amount from the Fed's pool into a bank's reserve.
func (e *Engine) FedLend(amount decimal.Decimal, bankID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpFedLend, ident.Fed, err)
	}
	b, err := e.bank(bankID)
	if err != nil {
		return e.rejected(OpFedLend, ident.Fed, err)
	}

	unlock := agent.Lock(e.fed, b)
	defer unlock()

	if err := activeAfterLock(b); err != nil {
		return e.rejected(OpFedLend, ident.Fed, err)
	}
	if e.fed.Pool.LessThan(amount) {
		return e.rejected(OpFedLend, ident.Fed, apperr.New(apperr.KindInsufficientFunds,
			"fed pool %s cannot cover %s", e.fed.Pool, amount))
	}

	e.fed.Pool = e.fed.Pool.Sub(amount)
	b.Reserve = b.Reserve.Add(amount)
	b.Recompute()
	ledger.Record(ident.Fed, &e.fed.Ledger, b.ID, &b.Ledger, amount)

	return e.applied(transfer{
		op: OpFedLend, typ: events.EventTypeFedLend,
		payer: ident.Fed, payee: b.ID, creditor: ident.Fed, debtor: b.ID, amount: amount,
		message: "Successfully borrowed from Fed.",
	})
}

// FedRepay returns amount of a bank's reserve to the Fed's pool.
func (e *Engine) FedRepay(amount decimal.Decimal, bankID ident.ID) (Result, error) {
	if err := checkAmount(amount); err != nil {
		return e.rejected(OpFedRepay, bankID, err)
	}
	b, err := e.bank(bankID)
	if err != nil {
		return e.rejected(OpFedRepay, bankID, err)
	}

	unlock := agent.Lock(e.fed, b)
	defer unlock()

	if err := activeAfterLock(b); err != nil {
		return e.rejected(OpFedRepay, bankID, err)
	}
	if b.Reserve.LessThan(amount) {
		return e.rejected(OpFedRepay, bankID, apperr.New(apperr.KindInsufficientReserve,
			"bank %d reserve %s cannot repay %s to the Fed", b.ID, b.Reserve, amount))
	}

	b.Reserve = b.Reserve.Sub(amount)
	b.Recompute()
	e.fed.Pool = e.fed.Pool.Add(amount)
	ledger.Record(ident.Fed, &e.fed.Ledger, b.ID, &b.Ledger, amount.Neg())

	return e.applied(transfer{
		op: OpFedRepay, typ: events.EventTypeFedRepay,
		payer: b.ID, payee: ident.Fed, creditor: ident.Fed, debtor: b.ID, amount: amount,
		message: "Successfully repaid the Fed.",
	})
}
