package network

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// Operator is the slice of the engine call API reachable over the socket.
type Operator interface {
	Deposit(amount decimal.Decimal, householdID, bankID ident.ID) (engine.Result, error)
	GiveLoan(amount decimal.Decimal, householdID, bankID ident.ID) (engine.Result, error)
	RepayLoan(amount decimal.Decimal, householdID, bankID ident.ID) (engine.Result, error)
	BorrowFromBank(amount decimal.Decimal, lenderID, borrowerID ident.ID) (engine.Result, error)
	RepayToBank(amount decimal.Decimal, lenderID, borrowerID ident.ID) (engine.Result, error)
	FedLend(amount decimal.Decimal, bankID ident.ID) (engine.Result, error)
	FedRepay(amount decimal.Decimal, bankID ident.ID) (engine.Result, error)
	CheckReserveRequirement(bankID ident.ID) (engine.ComplianceResult, error)
	HandleBankRun(bankID ident.ID, runRatio decimal.Decimal) (engine.BankRunResult, error)
	ChangeReserveRatio(r decimal.Decimal) (engine.Result, error)
	ChangeDiscountRate(r decimal.Decimal) (engine.Result, error)
	Overview() engine.Overview
}

// Command types a client may send.
const (
	CmdDeposit            = "DEPOSIT"
	CmdGiveLoan           = "GIVE_LOAN"
	CmdRepayLoan          = "REPAY_LOAN"
	CmdBorrowFromBank     = "BORROW_FROM_BANK"
	CmdRepayToBank        = "REPAY_TO_BANK"
	CmdFedLend            = "FED_LEND"
	CmdFedRepay           = "FED_REPAY"
	CmdCheckReserve       = "CHECK_RESERVE"
	CmdBankRun            = "BANK_RUN"
	CmdChangeReserveRatio = "CHANGE_RESERVE_RATIO"
	CmdChangeDiscountRate = "CHANGE_DISCOUNT_RATE"
	CmdOverview           = "OVERVIEW"
)

// Command represents an incoming request from a dashboard or agitator.
type Command struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Reply is sent back on the same connection for every command.
type Reply struct {
	Type      string      `json:"type"` // always "REPLY"
	RequestID string      `json:"request_id,omitempty"`
	Command   string      `json:"command"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	ErrorKind apperr.Kind `json:"error_kind,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// commandPayload covers every command's arguments; each command reads the
// fields it needs.
type commandPayload struct {
	Amount      decimal.Decimal `json:"amount"`
	Ratio       decimal.Decimal `json:"ratio"`
	HouseholdID ident.ID        `json:"household_id"`
	BankID      ident.ID        `json:"bank_id"`
	LenderID    ident.ID        `json:"lender_id"`
	BorrowerID  ident.ID        `json:"borrower_id"`
}

// Dispatch parses cmd and runs it against op.
func Dispatch(op Operator, cmd Command) Reply {
	reply := Reply{Type: "REPLY", RequestID: cmd.RequestID, Command: cmd.Type}

	var p commandPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return fail(reply, apperr.New(apperr.KindInvalidParameter, "bad payload: %v", err))
		}
	}

	var (
		res  engine.Result
		data interface{}
		err  error
	)
	switch cmd.Type {
	case CmdDeposit:
		res, err = op.Deposit(p.Amount, p.HouseholdID, p.BankID)
	case CmdGiveLoan:
		res, err = op.GiveLoan(p.Amount, p.HouseholdID, p.BankID)
	case CmdRepayLoan:
		res, err = op.RepayLoan(p.Amount, p.HouseholdID, p.BankID)
	case CmdBorrowFromBank:
		res, err = op.BorrowFromBank(p.Amount, p.LenderID, p.BorrowerID)
	case CmdRepayToBank:
		res, err = op.RepayToBank(p.Amount, p.LenderID, p.BorrowerID)
	case CmdFedLend:
		res, err = op.FedLend(p.Amount, p.BankID)
	case CmdFedRepay:
		res, err = op.FedRepay(p.Amount, p.BankID)
	case CmdChangeReserveRatio:
		res, err = op.ChangeReserveRatio(p.Ratio)
	case CmdChangeDiscountRate:
		res, err = op.ChangeDiscountRate(p.Ratio)
	case CmdCheckReserve:
		var c engine.ComplianceResult
		c, err = op.CheckReserveRequirement(p.BankID)
		res = engine.Result{Success: err == nil, Message: c.Message}
		data = c
	case CmdBankRun:
		var r engine.BankRunResult
		r, err = op.HandleBankRun(p.BankID, p.Ratio)
		res = engine.Result{Success: err == nil, Message: r.Message}
		data = r
	case CmdOverview:
		res = engine.Result{Success: true, Message: "overview"}
		data = op.Overview()
	default:
		return fail(reply, apperr.New(apperr.KindInvalidParameter, "unknown command %q", cmd.Type))
	}

	if err != nil {
		return fail(reply, err)
	}
	reply.Success = res.Success
	reply.Message = res.Message
	reply.Data = data
	return reply
}

func fail(reply Reply, err error) Reply {
	reply.Success = false
	reply.Message = err.Error()
	reply.ErrorKind = apperr.KindOf(err)
	return reply
}

// rateLimited builds the reply for a command dropped by the rate limiter.
func rateLimited(cmd Command) Reply {
	return Reply{
		Type:      "REPLY",
		RequestID: cmd.RequestID,
		Command:   cmd.Type,
		Message:   fmt.Sprintf("rate limit: %s ignored", cmd.Type),
	}
}
