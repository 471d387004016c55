// Package directory owns the bank and household rosters: it assigns
// identifiers from each kind's range, enforces the population caps and keeps
// the live index used for lookups.
package directory

import (
	"sort"
	"sync"

	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/platform/apperr"
)

// member is what a roster needs from its entries.
type member interface {
	*agent.Bank | *agent.Household
	Assign(id ident.ID)
	Key() ident.ID
}

// roster is one kind's population. Identifiers come from a high-water mark
// and are never handed out twice.
type roster[T member] struct {
	kind    string
	ids     ident.Range
	highest ident.ID
	order   []T
	live    map[ident.ID]T
}

func newRoster[T member](kind string, ids ident.Range) roster[T] {
	return roster[T]{
		kind:    kind,
		ids:     ids,
		highest: ids.First - 1,
		live:    make(map[ident.ID]T),
	}
}

func (r *roster[T]) add(m T) (ident.ID, error) {
	next := r.highest + 1
	if !r.ids.Contains(next) {
		return ident.Unassigned, apperr.New(apperr.KindCapacityExceeded,
			"%s capacity of %d reached", r.kind, r.ids.Size())
	}
	m.Assign(next)
	r.highest = next
	r.order = append(r.order, m)
	r.live[next] = m
	return next, nil
}

func (r *roster[T]) get(id ident.ID) (T, bool) {
	m, ok := r.live[id]
	return m, ok
}

func (r *roster[T]) list() []T {
	out := make([]T, len(r.order))
	copy(out, r.order)
	return out
}

// Directory is safe for concurrent use. Its lock is never held while an agent
// lock is being acquired.
type Directory struct {
	mu         sync.RWMutex
	banks      roster[*agent.Bank]
	households roster[*agent.Household]
	retired    map[ident.ID]struct{}
}

func New() *Directory {
	return &Directory{
		banks:      newRoster[*agent.Bank]("bank", ident.BankRange),
		households: newRoster[*agent.Household]("household", ident.HouseholdRange),
		retired:    make(map[ident.ID]struct{}),
	}
}

// RegisterBank assigns the next bank identifier.
func (d *Directory) RegisterBank(b *agent.Bank) (ident.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.banks.add(b)
}

// RegisterHousehold assigns the next household identifier.
func (d *Directory) RegisterHousehold(h *agent.Household) (ident.ID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.households.add(h)
}

// Bank resolves a live bank. Retired and unknown ids both miss; use
// IsRetired to tell them apart.
func (d *Directory) Bank(id ident.ID) (*agent.Bank, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if b, ok := d.banks.get(id); ok {
		return b, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "bank %d not found", id)
}

// Household resolves a household.
func (d *Directory) Household(id ident.ID) (*agent.Household, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if h, ok := d.households.get(id); ok {
		return h, nil
	}
	return nil, apperr.New(apperr.KindNotFound, "household %d not found", id)
}

// Retire drops a failed bank from the live index. It stays in the
// registration-order listing.
func (d *Directory) Retire(key ident.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.banks.live[key]; !ok {
		return
	}
	delete(d.banks.live, key)
	d.retired[key] = struct{}{}
}

// IsRetired reports whether key belonged to a bank that has failed.
func (d *Directory) IsRetired(key ident.ID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.retired[key]
	return ok
}

// Banks lists every registered bank, failed ones included, in registration order.
func (d *Directory) Banks() []*agent.Bank {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.banks.list()
}

// ActiveBanks lists the live banks in ascending identifier order.
func (d *Directory) ActiveBanks() []*agent.Bank {
	d.mu.RLock()
	out := make([]*agent.Bank, 0, len(d.banks.live))
	for _, b := range d.banks.live {
		out = append(out, b)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Households lists every household in registration order.
func (d *Directory) Households() []*agent.Household {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.households.list()
}

// Counts returns the live bank count, retired bank count and household count.
func (d *Directory) Counts() (activeBanks, retiredBanks, households int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.banks.live), len(d.retired), len(d.households.order)
}
