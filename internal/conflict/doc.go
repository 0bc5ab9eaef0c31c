// Package conflict arbitrates between rules that want different outcomes
// for the same asset.
//
// Placement actions (add_to, force_in) share one conflict dimension per
// asset. Rating actions conflict per rating service. Tag actions never
// conflict. The winner of each (asset, dimension, dimension key) is kept
// in an override ledger; Decide consults it before acting and
// ShouldRecord decides whether a successful action claims the key.
package conflict
