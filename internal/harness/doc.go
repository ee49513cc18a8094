// Package harness runs package registry scenarios.
//
// A scenario is a YAML file naming CUE package sources and a flow of
// registry operations. Each operation runs against a fresh in-memory
// store and registry, and its actual outcome is recorded in a trace:
// one invocation event and one completion event per step, numbered by a
// logical sequence. Revisions come from a counter, so traces are
// reproducible and can be compared against golden files.
//
// # Scenario format
//
//	name: redeploy_trading
//	description: "Removing a rule and redeploying keeps the package valid"
//	framing: wrapped          # optional, framed by default
//	sources:
//	  trading: ../packages/trading.cue
//	flow:
//	  - invoke: deploy
//	    args: {source: trading}
//	    expect:
//	      case: Deployed
//	  - invoke: remove_rule
//	    args: {package: org.acme.trading, rule: cleanup}
//	  - invoke: redeploy
//	    args: {package: org.acme.trading}
//	assertions:
//	  - type: trace_order
//	    actions: [deploy, remove_rule, redeploy]
//	  - type: final_state
//	    package: org.acme.trading
//	    expect: {valid: true, rule_count: 1, revisions: 2}
//
// Source paths are resolved relative to the scenario file.
//
// # Operations
//
//	deploy           compile a source and deploy it
//	redeploy         deploy the live instance of a package again
//	get              look a package up
//	remove_rule      remove a rule from the live instance
//	remove_function  remove a function from the live instance
//	remove_ruleflow  remove a rule flow from the live instance
//	roundtrip        serialize and deserialize a package, comparing digests
//	undeploy         remove a package from the registry
//	flush            drop every cached package
//
// An expect clause is compared with the actual completion; a mismatch
// fails the scenario but does not stop the flow.
package harness
