package engine

import (
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/apperr"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

// Result is the outcome every mutating call reports alongside its error.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ComplianceResult is the outcome of a reserve requirement check.
type ComplianceResult struct {
	BankID    ident.ID        `json:"bank_id"`
	Compliant bool            `json:"compliant"`
	Reserve   decimal.Decimal `json:"reserve"`
	Required  decimal.Decimal `json:"required"`
	Message   string          `json:"message"`
}

// BankRunResult is the outcome of a bank run.
type BankRunResult struct {
	BankID    ident.ID        `json:"bank_id"`
	Message   string          `json:"message"`
	Bankrupt  bool            `json:"bankruptcy"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// TickReport summarises one interest and compliance sweep.
type TickReport struct {
	TickNumber     int64      `json:"tick_number"`
	NonCompliant   []ident.ID `json:"non_compliant_bank_ids"`
	NegativeEquity []ident.ID `json:"negative_equity_bank_ids"`
}

type nopPublisher struct{}

func (nopPublisher) Publish(events.Event) {}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sends every state change to p.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.bus = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine is the central orchestrator. Every call locks exactly the agents it
// touches, in ascending registration-key order, so calls from any number of
// goroutines are atomic with respect to each other.
type Engine struct {
	fed     *agent.Fed
	dir     *directory.Directory
	bus     events.Publisher
	logger  *logger.Logger
	metrics *metrics.Collector

	tickMu sync.Mutex
	tick   int64
}

// New wires the engine around an explicitly constructed Fed and directory.
func New(fed *agent.Fed, dir *directory.Directory, opts ...Option) *Engine {
	e := &Engine{
		fed:     fed,
		dir:     dir,
		bus:     nopPublisher{},
		logger:  logger.NewNop(),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CurrentTick is the number of ticks advanced so far.
func (e *Engine) CurrentTick() int64 {
	return atomic.LoadInt64(&e.tick)
}

// RegisterBank builds a bank from spec and assigns it an identifier.
func (e *Engine) RegisterBank(spec agent.BankSpec) (ident.ID, error) {
	b, err := agent.NewBank(spec)
	if err != nil {
		return ident.Unassigned, err
	}
	id, err := e.dir.RegisterBank(b)
	if err != nil {
		e.logger.Warn("bank registration refused", "error", err)
		return ident.Unassigned, err
	}
	e.registered(b)
	return id, nil
}

// RegisterHousehold builds a household from spec and assigns it an identifier.
func (e *Engine) RegisterHousehold(spec agent.HouseholdSpec) (ident.ID, error) {
	h, err := agent.NewHousehold(spec)
	if err != nil {
		return ident.Unassigned, err
	}
	id, err := e.dir.RegisterHousehold(h)
	if err != nil {
		e.logger.Warn("household registration refused", "error", err)
		return ident.Unassigned, err
	}
	e.registered(h)
	return id, nil
}

// registered announces a freshly assigned agent. Must be called without the
// agent's lock held.
func (e *Engine) registered(a agent.Agent) {
	unlock := agent.Lock(a)
	payload := events.RegisteredPayload{
		Kind: string(a.Kind()),
		Name: a.AgentName(),
		Cash: a.Cash(),
	}
	id := a.AgentID()
	unlock()

	e.metrics.RecordRegistration()
	e.logger.Event(string(events.EventTypeAgentRegistered), id, "agent registered",
		"kind", payload.Kind, "name", payload.Name, "cash", payload.Cash)
	e.bus.Publish(events.NewEvent(events.EventTypeAgentRegistered, id, 0, e.CurrentTick(), payload))
}

// bank resolves id for a mutating call. A bank that has failed, or the
// bankrupt sentinel itself, is reported as inactive rather than missing.
func (e *Engine) bank(id ident.ID) (*agent.Bank, error) {
	if id == ident.Bankrupt || e.dir.IsRetired(id) {
		return nil, apperr.New(apperr.KindInactiveAgent, "bank %d is bankrupt", id)
	}
	return e.dir.Bank(id)
}

// activeAfterLock re-checks state once the caller holds the locks, since a
// concurrent run may have failed the bank in between.
func activeAfterLock(banks ...*agent.Bank) error {
	for _, b := range banks {
		if !b.Active() {
			return apperr.New(apperr.KindInactiveAgent, "bank %d is bankrupt", b.Key())
		}
	}
	return nil
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.New(apperr.KindInvalidAmount, "amount must be positive, got %s", amount)
	}
	return nil
}
