package cache

import (
	"context"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/apperr"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

// ViewSource is the read side of the engine.
type ViewSource interface {
	Bank(id ident.ID) (agent.BankView, error)
	Household(id ident.ID) (agent.HouseholdView, error)
	Fed() agent.FedView
	Overview() engine.Overview
}

// Refresher rewrites cache entries for the agents each event touched.
type Refresher struct {
	cache   *AgentCache
	source  ViewSource
	logger  *logger.Logger
	metrics *metrics.Collector
}

func NewRefresher(c *AgentCache, source ViewSource, log *logger.Logger, m *metrics.Collector) *Refresher {
	if m == nil {
		m = metrics.Get()
	}
	return &Refresher{cache: c, source: source, logger: log, metrics: m}
}

// Run consumes feed until ctx is done or the feed closes. It starts with a
// full refresh.
func (r *Refresher) Run(ctx context.Context, feed <-chan events.Event) error {
	r.RefreshAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-feed:
			if !ok {
				return nil
			}
			r.Handle(ctx, ev)
		}
	}
}

// Handle applies one event.
func (r *Refresher) Handle(ctx context.Context, ev events.Event) {
	switch ev.Type {
	case events.EventTypeTimeTick:
		// Interest moves every bank.
		r.RefreshAll(ctx)
	case events.EventTypePolicyChanged:
		r.record(r.cache.SetFed(ctx, r.source.Fed()))
	case events.EventTypeTransactionRejected, events.EventTypeReserveBreach:
		// Nothing changed.
	case events.EventTypeAgentRegistered, events.EventTypeBankRun, events.EventTypeBankruptcy:
		// Single-agent events; a zero target is not the Fed.
		r.refreshAgent(ctx, ev.ActorID)
	default:
		r.refreshAgent(ctx, ev.ActorID)
		if ev.TargetID != ev.ActorID {
			r.refreshAgent(ctx, ev.TargetID)
		}
	}
}

// RefreshAll rewrites every agent from one overview.
func (r *Refresher) RefreshAll(ctx context.Context) {
	ov := r.source.Overview()
	r.record(r.cache.SetFed(ctx, ov.Fed))
	for _, b := range ov.Banks {
		if b.Status == agent.StatusActive {
			r.record(r.cache.SetBank(ctx, b))
		} else {
			r.record(r.cache.DropBank(ctx, b.RegisteredID))
		}
	}
	for _, h := range ov.Households {
		r.record(r.cache.SetHousehold(ctx, h))
	}
}

func (r *Refresher) refreshAgent(ctx context.Context, id ident.ID) {
	switch {
	case id == ident.Fed:
		r.record(r.cache.SetFed(ctx, r.source.Fed()))
	case ident.IsBank(id):
		v, err := r.source.Bank(id)
		if apperr.KindOf(err) == apperr.KindNotFound {
			// Failed banks leave the cache.
			r.record(r.cache.DropBank(ctx, id))
			return
		}
		if err != nil {
			r.record(err)
			return
		}
		r.record(r.cache.SetBank(ctx, v))
	case ident.IsHousehold(id):
		v, err := r.source.Household(id)
		if err != nil {
			r.record(err)
			return
		}
		r.record(r.cache.SetHousehold(ctx, v))
	}
}

func (r *Refresher) record(err error) {
	r.metrics.RecordCacheWrite(err)
	if err != nil {
		r.logger.Warn("cache refresh failed", "error", err)
	}
}
