// Package agent defines the balance-sheet entities of the simulation: banks,
// households and the Fed.
// This package is PURE: apart from apperr and its sibling domain packages it
// must NOT import infrastructure packages (network, events, storage, logger).
package agent

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fracreserve/banksim/internal/domain/ident"
)

// Kind tags the agent variant.
type Kind string

const (
	KindBank      Kind = "BANK"
	KindHousehold Kind = "HOUSEHOLD"
	KindFed       Kind = "FED"
)

// Agent is the shape shared by every participant. It is sealed: only the
// types in this package implement it.
type Agent interface {
	Kind() Kind
	AgentID() ident.ID
	AgentName() string
	// Cash is the agent's liquid quantity: a household's balance, the Fed's
	// lendable pool, a bank's balance-sheet total.
	Cash() decimal.Decimal
	// Key is the identifier assigned at registration. It survives bankruptcy
	// and orders lock acquisition.
	Key() ident.ID

	lockGuard() *guard
}

// guard carries the per-agent lock and registration key.
type guard struct {
	mu  sync.Mutex
	key ident.ID
}

func (g *guard) lockGuard() *guard { return g }

func (g *guard) Key() ident.ID { return g.key }

// Lock acquires the locks of every given agent in ascending key order and
// returns the matching unlock. Duplicates are locked once.
func Lock(agents ...Agent) (unlock func()) {
	guards := make([]*guard, 0, len(agents))
	seen := make(map[*guard]bool, len(agents))
	for _, a := range agents {
		g := a.lockGuard()
		if seen[g] {
			continue
		}
		seen[g] = true
		guards = append(guards, g)
	}
	sort.Slice(guards, func(i, j int) bool { return guards[i].key < guards[j].key })

	for _, g := range guards {
		g.mu.Lock()
	}
	return func() {
		for i := len(guards) - 1; i >= 0; i-- {
			guards[i].mu.Unlock()
		}
	}
}
