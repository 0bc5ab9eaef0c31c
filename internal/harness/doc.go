// Package harness runs conformance scenarios against the rule engine.
//
// A scenario is a YAML file naming a service catalog, the initial file
// domain membership of some assets, a rules document and a sequence of
// runs. Each run scripts what the remote search returns and which remote
// writes are refused, then states the run and per-rule outcome it
// expects. Assertions check the final override ledger, the audit trail,
// asset membership and the remote calls made.
//
// Scenarios run end to end: the engine talks to a scripted Hydrus API
// over HTTP through the real client, and writes to a fresh SQLite store.
// Clock and ids are deterministic, so the recorded call trace can be
// compared against a golden file.
//
// Example scenario:
//
//	name: add_to_claims_assets
//	description: An add_to rule claims the assets it places.
//	services:
//	  - {key: k-files, name: my files, type: 2}
//	  - {key: k-archive, name: archive, type: 2}
//	files:
//	  aa: [k-files]
//	rules: |
//	  rules:
//	    - id: keep
//	      conditions: [{type: tags, value: ["meta:old"]}]
//	      action: {type: add_to, destination_service_keys: [k-files]}
//	runs:
//	  - mode: all
//	    search: {"meta:old": [aa]}
//	    expect:
//	      status: success_completed
//	assertions:
//	  - {type: override, asset: aa, dimension: placement, rule: keep}
package harness
