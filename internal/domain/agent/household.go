package agent

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/ledger"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// DefaultHouseholdCash is the opening balance when none is given.
var DefaultHouseholdCash = decimal.NewFromInt(100_000_000_000_000)

// HouseholdSpec describes a household to be registered.
type HouseholdSpec struct {
	Name string              `json:"name"`
	Cash decimal.NullDecimal `json:"cash"`
}

// Household holds a flat cash balance. It never goes bankrupt.
type Household struct {
	guard

	ID      ident.ID        `json:"id"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"cash"`

	Ledger ledger.Ledger `json:"-"`
}

// NewHousehold builds an unregistered household from spec.
func NewHousehold(spec HouseholdSpec) (*Household, error) {
	h := &Household{
		guard:   guard{key: ident.Unassigned},
		ID:      ident.Unassigned,
		Name:    spec.Name,
		Balance: DefaultHouseholdCash,
	}
	if spec.Cash.Valid {
		if spec.Cash.Decimal.IsNegative() {
			return nil, apperr.New(apperr.KindInvalidAmount, "opening cash %s is negative", spec.Cash.Decimal)
		}
		h.Balance = spec.Cash.Decimal
	}
	return h, nil
}

func (h *Household) Kind() Kind            { return KindHousehold }
func (h *Household) AgentID() ident.ID     { return h.ID }
func (h *Household) AgentName() string     { return h.Name }
func (h *Household) Cash() decimal.Decimal { return h.Balance }

// Assign gives the household its directory identifier.
func (h *Household) Assign(id ident.ID) {
	h.ID = id
	h.key = id
	if h.Name == "" {
		h.Name = fmt.Sprintf("HH%d", id)
	}
}

// View copies the household's current state. Caller holds the lock.
func (h *Household) View() HouseholdView {
	return HouseholdView{
		ID:        h.ID,
		Name:      h.Name,
		Cash:      h.Balance,
		Relations: h.Ledger.Records(),
	}
}
