package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/rules"
	"github.com/fracreserve/banksim/internal/events"
)

// HandleBankRun withdraws deposit*runRatio from a bank at once. A ratio above
// one is treated as one; a non-positive ratio changes nothing. Reserve pays
// first and equity absorbs the rest. If equity goes negative the bank fails:
// it takes the bankrupt sentinel, its sheet and ledger are wiped and it
// leaves the live directory.
func (e *Engine) HandleBankRun(bankID ident.ID, runRatio decimal.Decimal) (BankRunResult, error) {
	b, err := e.bank(bankID)
	if err != nil {
		return BankRunResult{BankID: bankID, Message: err.Error()}, err
	}

	ratio, ok := rules.ClampRunRatio(runRatio)
	if !ok {
		return BankRunResult{
			BankID:    bankID,
			Message:   "run ratio is negative or zero",
			Withdrawn: decimal.Zero,
			Shortfall: decimal.Zero,
		}, nil
	}

	unlock := agent.Lock(b)
	if err := activeAfterLock(b); err != nil {
		unlock()
		return BankRunResult{BankID: bankID, Message: err.Error()}, err
	}

	out := rules.ResolveBankRun(b.Reserve, b.Deposit, b.Equity, ratio)
	res := BankRunResult{
		BankID:    bankID,
		Withdrawn: out.Withdrawn,
		Shortfall: out.Shortfall,
	}

	switch {
	case out.Shortfall.IsZero():
		res.Message = "Bank run handled with reserve."
	case !out.Insolvent():
		res.Message = "Reserve was lacking, but the bank run is covered with equity."
	default:
		res.Message = fmt.Sprintf("%s could not handle the bank run and is bankrupt.", b.Name)
		res.Bankrupt = true
	}

	if res.Bankrupt {
		b.Fail()
	} else {
		b.Reserve = out.Reserve
		b.Deposit = out.Deposit
		b.Equity = out.Equity
		b.Recompute()
	}
	unlock()

	if res.Bankrupt {
		// Directory lock is taken only after the agent lock is released.
		e.dir.Retire(bankID)
	}

	tick := e.CurrentTick()
	payload := events.BankRunPayload{
		RunRatio:  ratio,
		Withdrawn: out.Withdrawn,
		Shortfall: out.Shortfall,
		Bankrupt:  res.Bankrupt,
	}
	e.metrics.RecordBankRun(res.Bankrupt)
	e.logger.Event(string(events.EventTypeBankRun), bankID, res.Message,
		"ratio", ratio, "withdrawn", out.Withdrawn, "shortfall", out.Shortfall)
	e.bus.Publish(events.NewEvent(events.EventTypeBankRun, bankID, 0, tick, payload))
	if res.Bankrupt {
		e.logger.Warn("bank failed", "bank", bankID, "equity_after_run", out.Equity)
		e.bus.Publish(events.NewEvent(events.EventTypeBankruptcy, bankID, 0, tick, payload))
	}
	return res, nil
}
