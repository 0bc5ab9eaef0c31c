// Package canon produces RFC 8785 canonical JSON and domain-separated
// content hashes.
//
// Rule versions are identified by the hash of their canonical encoding, so
// two snapshots with identical content always share one identifier
// regardless of map iteration order, key spelling in the source file, or
// Unicode normalization form.
package canon
