// Package engine executes rules against the remote content service.
//
// Each rule moves through a fixed sequence of states:
//
//	validating  check the action, version the rule, load the service catalog
//	searching   translate conditions and search for matching assets
//	filtering   drop recently viewed assets, then assets another rule owns
//	acting      apply the action in batches (or relocate for force_in)
//	recording   claim overrides for assets acted on, append the audit trail
//
// and ends in one of three outcomes: success, partial failure, or aborted.
//
// RunAll executes an ordered rule set with conflict arbitration. RunOne
// executes a single rule in bypass mode: the override ledger is neither
// read nor written.
//
// Rules execute sequentially, each inside its own database transaction. A
// persistence error rolls back the current rule and aborts the run; rules
// already committed stand. Remote failures are never persistence errors.
package engine
