package engine

import (
	"context"
	"sync"
	"time"

	"github.com/fracreserve/banksim/internal/platform/logger"
)

// DefaultTickInterval is the real time between automatic ticks.
const DefaultTickInterval = 7 * time.Second

// Stepper is what the ticker drives.
type Stepper interface {
	AdvanceTick() TickReport
}

// Ticker manages the simulation heartbeat. It knows nothing about banks,
// only when to call AdvanceTick. It can be started, stopped and restarted,
// and stepped by hand while stopped.
type Ticker struct {
	stepper  Stepper
	logger   *logger.Logger
	interval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	last    *TickReport
}

// NewTicker creates a stopped ticker.
func NewTicker(stepper Stepper, interval time.Duration, log *logger.Logger) *Ticker {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Ticker{
		stepper:  stepper,
		logger:   log,
		interval: interval,
	}
}

// Start begins the automatic loop in its own goroutine. It stops when ctx is
// cancelled or Stop is called. Starting a running ticker does nothing.
func (t *Ticker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true
	go t.loop(loopCtx, t.done)

	t.logger.Info("ticker started", "interval", t.interval)
}

// Stop halts the automatic loop and waits for it to exit.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.running = false
	t.mu.Unlock()

	cancel()
	<-done
}

// Step advances exactly one tick now, whether or not the loop is running.
func (t *Ticker) Step() TickReport {
	report := t.stepper.AdvanceTick()
	t.mu.Lock()
	t.last = &report
	t.mu.Unlock()
	return report
}

// Running reports whether the automatic loop is active.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Interval is the time between automatic ticks.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// LastReport is the most recent tick's report, if any tick has run.
func (t *Ticker) LastReport() (TickReport, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return TickReport{}, false
	}
	return *t.last, true
}

func (t *Ticker) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(t.interval)
	defer func() {
		ticker.Stop()
		t.mu.Lock()
		if t.done == done {
			t.running = false
		}
		t.mu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopped")
			return
		case <-ticker.C:
			t.Step()
		}
	}
}
