package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// SimulationHandler serves the engine call API over HTTP.
type SimulationHandler struct {
	eng    *engine.Engine
	ticker *engine.Ticker
	// ctx bounds the automatic ticker started through the API.
	ctx context.Context
}

func NewSimulationHandler(ctx context.Context, eng *engine.Engine, ticker *engine.Ticker) *SimulationHandler {
	return &SimulationHandler{eng: eng, ticker: ticker, ctx: ctx}
}

type transactionRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	HouseholdID ident.ID        `json:"household_id"`
	BankID      ident.ID        `json:"bank_id"`
	LenderID    ident.ID        `json:"lender_id"`
	BorrowerID  ident.ID        `json:"borrower_id"`
}

type ratioRequest struct {
	Value decimal.Decimal `json:"value"`
}

type bankRunRequest struct {
	Ratio decimal.Decimal `json:"ratio"`
}

type registeredResponse struct {
	ID ident.ID `json:"id"`
}

type statusResponse struct {
	Running         bool               `json:"running"`
	Tick            int64              `json:"tick"`
	IntervalSeconds float64            `json:"interval_seconds"`
	LastReport      *engine.TickReport `json:"last_report,omitempty"`
}

func pathID(c *gin.Context) (ident.ID, bool) {
	n, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		RespondError(c, apperr.New(apperr.KindInvalidParameter, "bad id %q", c.Param("id")))
		return 0, false
	}
	return ident.ID(n), true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, apperr.New(apperr.KindInvalidParameter, "bad request body: %v", err))
		return false
	}
	return true
}

// POST /api/banks
func (h *SimulationHandler) RegisterBank(c *gin.Context) {
	var spec agent.BankSpec
	if !bindJSON(c, &spec) {
		return
	}
	id, err := h.eng.RegisterBank(spec)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, registeredResponse{ID: id})
}

// POST /api/households
func (h *SimulationHandler) RegisterHousehold(c *gin.Context) {
	var spec agent.HouseholdSpec
	if !bindJSON(c, &spec) {
		return
	}
	id, err := h.eng.RegisterHousehold(spec)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, registeredResponse{ID: id})
}

// GET /api/banks
func (h *SimulationHandler) ListBanks(c *gin.Context) {
	RespondOK(c, h.eng.Overview().Banks)
}

// GET /api/banks/:id
func (h *SimulationHandler) GetBank(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.eng.Bank(id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, v)
}

// GET /api/households/:id
func (h *SimulationHandler) GetHousehold(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	v, err := h.eng.Household(id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, v)
}

// GET /api/fed
func (h *SimulationHandler) GetFed(c *gin.Context) {
	RespondOK(c, h.eng.Fed())
}

// GET /api/overview
func (h *SimulationHandler) GetOverview(c *gin.Context) {
	RespondOK(c, h.eng.Overview())
}

// GET /api/banks/:id/compliance
func (h *SimulationHandler) CheckCompliance(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.eng.CheckReserveRequirement(id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

// POST /api/banks/:id/run
func (h *SimulationHandler) BankRun(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req bankRunRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.eng.HandleBankRun(id, req.Ratio)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

// Transaction returns the handler for one of the seven transaction
// operations, keyed by engine operation name.
func (h *SimulationHandler) Transaction(op string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transactionRequest
		if !bindJSON(c, &req) {
			return
		}

		var (
			res engine.Result
			err error
		)
		switch op {
		case engine.OpDeposit:
			res, err = h.eng.Deposit(req.Amount, req.HouseholdID, req.BankID)
		case engine.OpGiveLoan:
			res, err = h.eng.GiveLoan(req.Amount, req.HouseholdID, req.BankID)
		case engine.OpRepayLoan:
			res, err = h.eng.RepayLoan(req.Amount, req.HouseholdID, req.BankID)
		case engine.OpBorrowFromBank:
			res, err = h.eng.BorrowFromBank(req.Amount, req.LenderID, req.BorrowerID)
		case engine.OpRepayToBank:
			res, err = h.eng.RepayToBank(req.Amount, req.LenderID, req.BorrowerID)
		case engine.OpFedLend:
			res, err = h.eng.FedLend(req.Amount, req.BankID)
		case engine.OpFedRepay:
			res, err = h.eng.FedRepay(req.Amount, req.BankID)
		default:
			c.Status(http.StatusNotFound)
			return
		}
		if err != nil {
			RespondError(c, err)
			return
		}
		RespondOK(c, res)
	}
}

// PUT /api/fed/reserve-ratio
func (h *SimulationHandler) ChangeReserveRatio(c *gin.Context) {
	var req ratioRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.eng.ChangeReserveRatio(req.Value)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

// PUT /api/fed/discount-rate
func (h *SimulationHandler) ChangeDiscountRate(c *gin.Context) {
	var req ratioRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.eng.ChangeDiscountRate(req.Value)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, res)
}

// POST /api/simulation/step
func (h *SimulationHandler) Step(c *gin.Context) {
	RespondOK(c, h.ticker.Step())
}

// POST /api/simulation/start
func (h *SimulationHandler) Start(c *gin.Context) {
	h.ticker.Start(h.ctx)
	RespondOK(c, h.status())
}

// POST /api/simulation/stop
func (h *SimulationHandler) Stop(c *gin.Context) {
	h.ticker.Stop()
	RespondOK(c, h.status())
}

// GET /api/simulation/status
func (h *SimulationHandler) Status(c *gin.Context) {
	RespondOK(c, h.status())
}

func (h *SimulationHandler) status() statusResponse {
	st := statusResponse{
		Running:         h.ticker.Running(),
		Tick:            h.eng.CurrentTick(),
		IntervalSeconds: h.ticker.Interval().Seconds(),
	}
	if last, ok := h.ticker.LastReport(); ok {
		st.LastReport = &last
	}
	return st
}

func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
