// Package policy checks resolved configurations against Open Policy Agent
// (Rego) policies.
//
// Each policy is a Rego module whose package defines a `deny` set. Entries are
// either message strings or objects with `message`, and optionally `path` and
// `severity`. A violation with severity "error" rejects the configuration.
//
// The evaluation input has this shape:
//
//	{
//	  "values":   {"fake-hal.heap.size": 30000, ...},
//	  "config":   {"fake-hal": {"heap": {"size": 30000}}},
//	  "options":  [{"path": ..., "component": ..., "type": "u32", "value": ..., "defaulted": false}],
//	  "features": ["esp32s3"],
//	  "mode":     "strict",
//	  "diagnostics": [{"path": ..., "kind": ..., "severity": ..., "message": ...}]
//	}
//
// # Usage
//
//	eng, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//	result, err := eng.Evaluate(ctx, res, features)
//	if err != nil {
//	    return err
//	}
//	if !result.Allowed {
//	    ...
//	}
package policy
