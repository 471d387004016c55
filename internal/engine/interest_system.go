package engine

import (
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/rules"
	"github.com/fracreserve/banksim/internal/events"
)

// AdvanceTick runs one interest and compliance sweep over every active bank,
// in ascending identifier order. Net interest is credited to both reserve and
// equity, so system money is not conserved across ticks. Breaches of the
// reserve requirement are reported, never corrected.
func (e *Engine) AdvanceTick() TickReport {
	start := time.Now()

	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	ratio := e.reserveRatio()
	tick := atomic.AddInt64(&e.tick, 1)
	report := TickReport{
		TickNumber:     tick,
		NonCompliant:   []ident.ID{},
		NegativeEquity: []ident.ID{},
	}

	banks := e.dir.ActiveBanks()
	for _, b := range banks {
		e.sweepBank(b, tick, ratio, &report)
	}

	e.metrics.RecordTick(time.Since(start))
	e.metrics.RecordReserveBreaches(len(report.NonCompliant))
	e.logger.Event(string(events.EventTypeTimeTick), ident.Fed, "tick advanced",
		"tick", tick, "banks", len(banks), "non_compliant", len(report.NonCompliant))
	e.bus.Publish(events.NewEvent(events.EventTypeTimeTick, ident.Fed, 0, tick, events.TickPayload{
		TickNumber:     tick,
		ActiveBanks:    len(banks),
		NonCompliant:   report.NonCompliant,
		NegativeEquity: report.NegativeEquity,
	}))
	return report
}

func (e *Engine) sweepBank(b *agent.Bank, tick int64, ratio decimal.Decimal, report *TickReport) {
	unlock := agent.Lock(b)
	defer unlock()

	if !b.Active() {
		return
	}

	accrual := rules.AccrueInterest(b.Loans, b.LoanRate, b.Deposit, b.DepositRate)
	b.Reserve = b.Reserve.Add(accrual.Net)
	b.Equity = b.Equity.Add(accrual.Net)
	b.Recompute()

	if !rules.MeetsReserveRequirement(b.Reserve, b.Deposit, ratio) {
		report.NonCompliant = append(report.NonCompliant, b.ID)
		e.logger.Warn("bank does not meet reserve requirement", "bank", b.ID, "tick", tick)
		e.bus.Publish(events.NewEvent(events.EventTypeReserveBreach, b.ID, 0, tick, events.ReserveBreachPayload{
			Reserve:  b.Reserve,
			Required: rules.RequiredReserve(b.Deposit, ratio),
		}))
	}
	if b.Equity.IsNegative() {
		report.NegativeEquity = append(report.NegativeEquity, b.ID)
	}
}
