// Package ledger keeps each agent's bilateral exposure to its counterparties.
// This package is PURE: it knows identifiers and amounts, nothing about agents.
package ledger

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
)

// Relation is the holder's view of one counterparty.
type Relation struct {
	Counterparty ident.ID        `json:"counterparty_id"`
	Payable      decimal.Decimal `json:"payable"`    // owed by the holder to the counterparty
	Receivable   decimal.Decimal `json:"receivable"` // owed by the counterparty to the holder
}

// Ledger is a holder's list of relations, in first-contact order.
// The zero value is ready to use.
type Ledger struct {
	records []Relation
}

// Upsert adds the deltas to the record for counterparty, appending a new
// record when the holder has never dealt with it.
func (l *Ledger) Upsert(counterparty ident.ID, deltaPayable, deltaReceivable decimal.Decimal) {
	for i := range l.records {
		if l.records[i].Counterparty == counterparty {
			l.records[i].Payable = l.records[i].Payable.Add(deltaPayable)
			l.records[i].Receivable = l.records[i].Receivable.Add(deltaReceivable)
			return
		}
	}
	l.records = append(l.records, Relation{
		Counterparty: counterparty,
		Payable:      deltaPayable,
		Receivable:   deltaReceivable,
	})
}

// Find returns the record for counterparty.
func (l *Ledger) Find(counterparty ident.ID) (Relation, bool) {
	for _, r := range l.records {
		if r.Counterparty == counterparty {
			return r, true
		}
	}
	return Relation{}, false
}

// Records returns a copy of every relation.
func (l *Ledger) Records() []Relation {
	out := make([]Relation, len(l.records))
	copy(out, l.records)
	return out
}

// Len is the number of counterparties on record.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Clear drops every relation.
func (l *Ledger) Clear() {
	l.records = nil
}

// MarshalJSON renders the ledger as its list of relations.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Records())
}

// Record books one exposure on both sides: the creditor's receivable from the
// debtor and the debtor's payable to the creditor both move by amount. A
// negative amount unwinds exposure. Each side is keyed by the other party's id
// inside its own ledger.
func Record(creditorID ident.ID, creditor *Ledger, debtorID ident.ID, debtor *Ledger, amount decimal.Decimal) {
	creditor.Upsert(debtorID, decimal.Zero, amount)
	debtor.Upsert(creditorID, amount, decimal.Zero)
}

// Consistent reports whether two holders' mirror records agree: what a says b
// owes it equals what b says it owes a, in both directions. Holders that have
// never dealt with each other are trivially consistent.
func Consistent(aID ident.ID, a *Ledger, bID ident.ID, b *Ledger) bool {
	ab, okA := a.Find(bID)
	ba, okB := b.Find(aID)
	if !okA && !okB {
		return true
	}
	return ab.Receivable.Equal(ba.Payable) && ab.Payable.Equal(ba.Receivable)
}
