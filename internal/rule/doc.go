// Package rule defines automation rules: their conditions, their action,
// the deterministic execution order, and content-addressed versions.
//
// Rules are loaded from a YAML file that is checked against an embedded
// CUE schema before being decoded. Structural problems in a single rule's
// action do not fail the load; they surface as an Invalid action which the
// engine reports as a setup failure for that rule only.
package rule
