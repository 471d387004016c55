package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/domain/rules"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

func (e *Engine) reserveRatio() decimal.Decimal {
	unlock := agent.Lock(e.fed)
	defer unlock()
	return e.fed.ReserveRatio
}

// ChangeReserveRatio sets the system-wide reserve requirement.
func (e *Engine) ChangeReserveRatio(r decimal.Decimal) (Result, error) {
	return e.changePolicy("reserve_ratio", "Reserve ratio", r, &e.fed.ReserveRatio)
}

// ChangeDiscountRate sets the Fed's discount rate.
func (e *Engine) ChangeDiscountRate(r decimal.Decimal) (Result, error) {
	return e.changePolicy("discount_rate", "Discount rate", r, &e.fed.DiscountRate)
}

func (e *Engine) changePolicy(field, label string, r decimal.Decimal, dst *decimal.Decimal) (Result, error) {
	if !rules.InUnitInterval(r) {
		err := apperr.New(apperr.KindInvalidParameter, "invalid %s %s: must lie in [0,1]", field, r)
		return Result{Success: false, Message: err.Error()}, err
	}

	unlock := agent.Lock(e.fed)
	old := *dst
	*dst = r
	unlock()

	e.metrics.RecordPolicyChange()
	e.logger.Event(string(events.EventTypePolicyChanged), ident.Fed, "policy changed", "field", field, "old", old, "new", r)
	e.bus.Publish(events.NewEvent(events.EventTypePolicyChanged, ident.Fed, 0, e.CurrentTick(),
		events.PolicyPayload{Field: field, Old: old, New: r}))
	return Result{Success: true, Message: fmt.Sprintf("%s updated to %s.", label, r)}, nil
}

// CheckReserveRequirement evaluates one bank against the Fed's reserve ratio.
// Equality is compliant.
func (e *Engine) CheckReserveRequirement(bankID ident.ID) (ComplianceResult, error) {
	b, err := e.bank(bankID)
	if err != nil {
		return ComplianceResult{BankID: bankID, Message: err.Error()}, err
	}
	ratio := e.reserveRatio()

	unlock := agent.Lock(b)
	defer unlock()
	if err := activeAfterLock(b); err != nil {
		return ComplianceResult{BankID: bankID, Message: err.Error()}, err
	}

	res := ComplianceResult{
		BankID:    bankID,
		Compliant: rules.MeetsReserveRequirement(b.Reserve, b.Deposit, ratio),
		Reserve:   b.Reserve,
		Required:  rules.RequiredReserve(b.Deposit, ratio),
	}
	if res.Compliant {
		res.Message = "Reserve meets the requirement."
	} else {
		res.Message = "Reserve lacks the requirement."
	}
	return res, nil
}
