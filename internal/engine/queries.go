package engine

import (
	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// Overview is a read-only snapshot of the whole simulation.
type Overview struct {
	Tick         int64                 `json:"tick"`
	Fed          agent.FedView         `json:"fed"`
	Banks        []agent.BankView      `json:"banks"`
	Households   []agent.HouseholdView `json:"households"`
	ActiveBanks  int                   `json:"active_banks"`
	RetiredBanks int                   `json:"retired_banks"`
}

// Bank returns a snapshot of a live bank. A failed bank is NotFound here.
func (e *Engine) Bank(id ident.ID) (agent.BankView, error) {
	b, err := e.dir.Bank(id)
	if err != nil {
		return agent.BankView{}, err
	}
	unlock := agent.Lock(b)
	defer unlock()
	if !b.Active() {
		return agent.BankView{}, apperr.New(apperr.KindNotFound, "bank %d not found", id)
	}
	return b.View(), nil
}

// Household returns a snapshot of a household.
func (e *Engine) Household(id ident.ID) (agent.HouseholdView, error) {
	h, err := e.dir.Household(id)
	if err != nil {
		return agent.HouseholdView{}, err
	}
	unlock := agent.Lock(h)
	defer unlock()
	return h.View(), nil
}

// Fed returns a snapshot of the central bank.
func (e *Engine) Fed() agent.FedView {
	unlock := agent.Lock(e.fed)
	defer unlock()
	return e.fed.View()
}

// Overview snapshots every agent. Failed banks are listed with their
// bankrupt status so the presentation can still show them. Each agent is
// copied under its own lock; the overview as a whole is not a single atomic
// cut across agents.
func (e *Engine) Overview() Overview {
	ov := Overview{
		Tick: e.CurrentTick(),
		Fed:  e.Fed(),
	}

	for _, b := range e.dir.Banks() {
		unlock := agent.Lock(b)
		v := b.View()
		unlock()
		ov.Banks = append(ov.Banks, v)
		if v.Status == agent.StatusActive {
			ov.ActiveBanks++
		} else {
			ov.RetiredBanks++
		}
	}
	for _, h := range e.dir.Households() {
		unlock := agent.Lock(h)
		ov.Households = append(ov.Households, h.View())
		unlock()
	}
	return ov
}

// NegativeEquityBanks lists live banks whose equity is below zero.
func (e *Engine) NegativeEquityBanks() []ident.ID {
	out := []ident.ID{}
	for _, b := range e.dir.ActiveBanks() {
		unlock := agent.Lock(b)
		if b.Active() && b.Equity.LessThan(decimal.Zero) {
			out = append(out, b.ID)
		}
		unlock()
	}
	return out
}
