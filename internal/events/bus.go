// Package events is the in-process notification bus. The engine publishes a
// record of every state change; the WebSocket hub, the cache and the logger
// subscribe. Nothing is retained: a subscriber sees only what is published
// while it is attached.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeTimeTick            EventType = "TIME_TICK"
	EventTypeAgentRegistered     EventType = "AGENT_REGISTERED"
	EventTypeDeposit             EventType = "DEPOSIT"
	EventTypeLoanGiven           EventType = "LOAN_GIVEN"
	EventTypeLoanRepaid          EventType = "LOAN_REPAID"
	EventTypeInterbankBorrow     EventType = "INTERBANK_BORROW"
	EventTypeInterbankRepay      EventType = "INTERBANK_REPAY"
	EventTypeFedLend             EventType = "FED_LEND"
	EventTypeFedRepay            EventType = "FED_REPAY"
	EventTypeTransactionRejected EventType = "TRANSACTION_REJECTED"
	EventTypeReserveBreach       EventType = "RESERVE_BREACH"
	EventTypeBankRun             EventType = "BANK_RUN"
	EventTypeBankruptcy          EventType = "BANKRUPTCY"
	EventTypePolicyChanged       EventType = "POLICY_CHANGED"
)

// Event is one notification.
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   ident.ID    `json:"actor_id"`            // Who moved value
	TargetID  ident.ID    `json:"target_id,omitempty"` // Who received it
	Tick      int64       `json:"tick"`
	Payload   interface{} `json:"payload,omitempty"`
}

// TickPayload accompanies TIME_TICK.
type TickPayload struct {
	TickNumber     int64      `json:"tick_number"`
	ActiveBanks    int        `json:"active_banks"`
	NonCompliant   []ident.ID `json:"non_compliant_bank_ids"`
	NegativeEquity []ident.ID `json:"negative_equity_bank_ids"`
}

// TransactionPayload accompanies the seven transaction event types.
type TransactionPayload struct {
	Amount     decimal.Decimal `json:"amount"`
	CreditorID ident.ID        `json:"creditor_id"`
	DebtorID   ident.ID        `json:"debtor_id"`
}

// RejectedPayload accompanies TRANSACTION_REJECTED.
type RejectedPayload struct {
	Operation string `json:"operation"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// BankRunPayload accompanies BANK_RUN and BANKRUPTCY.
type BankRunPayload struct {
	RunRatio  decimal.Decimal `json:"run_ratio"`
	Withdrawn decimal.Decimal `json:"withdrawn"`
	Shortfall decimal.Decimal `json:"shortfall"`
	Bankrupt  bool            `json:"bankrupt"`
}

// ReserveBreachPayload accompanies RESERVE_BREACH.
type ReserveBreachPayload struct {
	Reserve  decimal.Decimal `json:"reserve"`
	Required decimal.Decimal `json:"required"`
}

// PolicyPayload accompanies POLICY_CHANGED.
type PolicyPayload struct {
	Field string          `json:"field"`
	Old   decimal.Decimal `json:"old"`
	New   decimal.Decimal `json:"new"`
}

// RegisteredPayload accompanies AGENT_REGISTERED.
type RegisteredPayload struct {
	Kind string          `json:"kind"`
	Name string          `json:"name"`
	Cash decimal.Decimal `json:"cash"` // balance for a household, sheet total for a bank
}

// Publisher is the bus as seen by producers.
type Publisher interface {
	Publish(Event)
}

// NewEvent stamps an event with a fresh identifier and the current time.
func NewEvent(typ EventType, actor, target ident.ID, tick int64, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      typ,
		ActorID:   actor,
		TargetID:  target,
		Tick:      tick,
		Payload:   payload,
	}
}

// Bus fans events out to subscribers without blocking the publisher. A
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	dropped int64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			atomic.AddInt64(&b.dropped, 1)
		}
	}
}

// Subscribe attaches a new subscriber with the given buffer. The returned
// cancel detaches it and closes the channel; calling it twice is safe.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped is the number of deliveries skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// Subscribers is the number of attached subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
