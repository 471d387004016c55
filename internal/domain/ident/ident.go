// Package ident defines the identifier space shared by every agent kind.
// Banks and households draw from disjoint ranges; the Fed and the bankrupt
// sentinel sit outside both.
package ident

// ID identifies an agent.
type ID int

const (
	// Unassigned marks an agent that has not been through the directory yet.
	Unassigned ID = -1
	// Bankrupt replaces a bank's identifier once it fails.
	Bankrupt ID = -2
	// Fed is the central bank's fixed identifier.
	Fed ID = 0

	FirstBank      ID = 1
	LastBank       ID = 500
	FirstHousehold ID = 501
	LastHousehold  ID = 1000
)

// Range is an inclusive identifier range.
type Range struct {
	First ID
	Last  ID
}

var (
	BankRange      = Range{First: FirstBank, Last: LastBank}
	HouseholdRange = Range{First: FirstHousehold, Last: LastHousehold}
)

// Contains reports whether id falls inside r.
func (r Range) Contains(id ID) bool {
	return id >= r.First && id <= r.Last
}

// Size is the number of identifiers in r.
func (r Range) Size() int {
	return int(r.Last-r.First) + 1
}

// IsBank reports whether id lies in the bank range.
func IsBank(id ID) bool { return BankRange.Contains(id) }

// IsHousehold reports whether id lies in the household range.
func IsHousehold(id ID) bool { return HouseholdRange.Contains(id) }
