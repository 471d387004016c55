// Package engine is the simulation core: the transaction engine, the
// per-tick interest and compliance sweep, the bank-run protocol and the Fed
// policy controls, plus the ticker that drives time forward.
//
// ARCHITECTURAL RULE: presentation code never mutates agents. It reads views
// from the query methods and changes state only through the Engine's call API.
package engine
