// Package metrics provides observability counters for the simulation server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers simulation and transport counters.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	LastTickTime   time.Time

	// Core operations
	TxApplied     int64
	TxRejected    int64
	BankRuns      int64
	Bankruptcies  int64
	ReserveBreach int64
	PolicyChanges int64
	Registrations int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// Snapshot exports (sqlite) and cache writes (redis)
	Exports      int64
	ExportLatSum int64
	ExportErrors int64
	CacheWrites  int64
	CacheErrors  int64

	StartTime time.Time
	mu        sync.RWMutex

	// dropped reads the event bus's count of skipped deliveries.
	dropped func() int64
}

// New returns an empty collector.
func New() *Collector {
	return &Collector{StartTime: time.Now()}
}

var collector = New()

// Get returns the process-wide collector.
func Get() *Collector {
	return collector
}

// RecordTick records a completed tick sweep.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordTransaction counts one transaction attempt.
func (c *Collector) RecordTransaction(err error) {
	if err != nil {
		atomic.AddInt64(&c.TxRejected, 1)
		return
	}
	atomic.AddInt64(&c.TxApplied, 1)
}

// RecordBankRun counts a handled run and whether it ended in bankruptcy.
func (c *Collector) RecordBankRun(bankrupt bool) {
	atomic.AddInt64(&c.BankRuns, 1)
	if bankrupt {
		atomic.AddInt64(&c.Bankruptcies, 1)
	}
}

func (c *Collector) RecordReserveBreaches(n int) {
	atomic.AddInt64(&c.ReserveBreach, int64(n))
}

func (c *Collector) RecordPolicyChange() {
	atomic.AddInt64(&c.PolicyChanges, 1)
}

func (c *Collector) RecordRegistration() {
	atomic.AddInt64(&c.Registrations, 1)
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// RecordExport records one snapshot export to the database.
func (c *Collector) RecordExport(latency time.Duration, err error) {
	atomic.AddInt64(&c.Exports, 1)
	atomic.AddInt64(&c.ExportLatSum, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.ExportErrors, 1)
	}
}

// RecordCacheWrite records one cache refresh.
func (c *Collector) RecordCacheWrite(err error) {
	atomic.AddInt64(&c.CacheWrites, 1)
	if err != nil {
		atomic.AddInt64(&c.CacheErrors, 1)
	}
}

// TrackEventDrops makes the collector report the value of fn as the number
// of bus deliveries dropped because a subscriber was full.
func (c *Collector) TrackEventDrops(fn func() int64) {
	c.mu.Lock()
	c.dropped = fn
	c.mu.Unlock()
}

// EventsDropped is the tracked drop count, zero when nothing is tracked.
func (c *Collector) EventsDropped() int64 {
	c.mu.RLock()
	fn := c.dropped
	c.mu.RUnlock()
	if fn == nil {
		return 0
	}
	return fn()
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	dropped := c.EventsDropped()

	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	exports := atomic.LoadInt64(&c.Exports)

	var tickAvg, exportAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if exports > 0 {
		exportAvg = float64(atomic.LoadInt64(&c.ExportLatSum)) / float64(exports) / 1e6
	}

	lastTick := ""
	if !c.LastTickTime.IsZero() {
		lastTick = c.LastTickTime.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick,
		},

		"core": map[string]interface{}{
			"transactions_applied":  atomic.LoadInt64(&c.TxApplied),
			"transactions_rejected": atomic.LoadInt64(&c.TxRejected),
			"bank_runs":             atomic.LoadInt64(&c.BankRuns),
			"bankruptcies":          atomic.LoadInt64(&c.Bankruptcies),
			"reserve_breaches":      atomic.LoadInt64(&c.ReserveBreach),
			"policy_changes":        atomic.LoadInt64(&c.PolicyChanges),
			"registrations":         atomic.LoadInt64(&c.Registrations),
			"events_dropped":        dropped,
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},

		"storage": map[string]interface{}{
			"exports":           exports,
			"avg_export_lat_ms": exportAvg,
			"export_errors":     atomic.LoadInt64(&c.ExportErrors),
			"cache_writes":      atomic.LoadInt64(&c.CacheWrites),
			"cache_errors":      atomic.LoadInt64(&c.CacheErrors),
		},
	}
}

// Handler serves the JSON snapshot.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}

type promMetric struct {
	name, help, typ string
	value           func() string
}

// PrometheusHandler serves the counters in the Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	counter := func(p *int64) func() string {
		return func() string { return fmt.Sprintf("%d", atomic.LoadInt64(p)) }
	}
	list := []promMetric{
		{"banksim_tick_count", "Total tick sweeps", "counter", counter(&c.TickCount)},
		{"banksim_tick_latency_max_ms", "Maximum tick latency", "gauge", func() string {
			return fmt.Sprintf("%.2f", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)
		}},
		{"banksim_transactions_applied", "Transactions applied", "counter", counter(&c.TxApplied)},
		{"banksim_transactions_rejected", "Transactions rejected", "counter", counter(&c.TxRejected)},
		{"banksim_bank_runs", "Bank runs handled", "counter", counter(&c.BankRuns)},
		{"banksim_bankruptcies", "Banks driven bankrupt", "counter", counter(&c.Bankruptcies)},
		{"banksim_reserve_breaches", "Non-compliant bank observations", "counter", counter(&c.ReserveBreach)},
		{"banksim_events_dropped", "Bus deliveries dropped on full subscribers", "counter", func() string {
			return fmt.Sprintf("%d", c.EventsDropped())
		}},
		{"banksim_ws_connections", "Active WebSocket connections", "gauge", counter(&c.WSConnectionsActive)},
		{"banksim_snapshot_exports", "Snapshot exports", "counter", counter(&c.Exports)},
		{"banksim_snapshot_export_errors", "Failed snapshot exports", "counter", counter(&c.ExportErrors)},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, m := range list {
			fmt.Fprintf(w, "# HELP %s %s\n", m.name, m.help)
			fmt.Fprintf(w, "# TYPE %s %s\n", m.name, m.typ)
			fmt.Fprintf(w, "%s %s\n\n", m.name, m.value())
		}
		fmt.Fprintf(w, "# HELP banksim_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE banksim_ws_messages_total counter\n")
		fmt.Fprintf(w, "banksim_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "banksim_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
