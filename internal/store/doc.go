// Package store provides SQLite-backed persistence for the rule engine.
//
// Tables:
//   - overrides: the conflict ledger, one winner per (asset, dimension, key)
//   - rule_versions: content-addressed rule snapshots
//   - execution_runs, rule_executions, file_action_details: the
//     append-only audit trail (run → rule execution → per-asset outcome)
//
// The engine never reads the audit tables to make decisions.
//
// # Sessions
//
// All reads and writes go through a Session. Store embeds one bound to the
// database; Begin returns one bound to a transaction. The engine runs each
// rule in its own transaction so a persistence failure rolls back only the
// rule in progress.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
