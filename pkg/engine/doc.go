// Package engine compiles merged option trees into an evaluation order and
// resolves user values against them.
//
// # Overview
//
// Resolution is a two step pipeline:
//
//  1. BuildOrder - extract every reference from depends/valid clauses, build
//     the dependency graph, order it topologically and reject cycles and
//     dangling references (schema.SchemaError)
//  2. Resolve - walk the order once, computing activity, applying user values
//     or defaults, running valid clauses and collecting Diagnostics
//
// The EvaluationOrder is immutable and shared by every pass. Resolve is a pure
// function of (order, features, raw values, mode); an interactive editor
// simply calls it again after every edit.
//
// # Activity
//
// A node is active when its parent is active and its depends clause (if any)
// is truthy. When a node is inactive its whole subtree is inactive and the
// subtree's clauses are never evaluated.
//
// # Modes
//
//   - ModeStrict: every diagnostic is an error and any error fails the pass
//   - ModeLenient: diagnostics are warnings; rejected values fall back to defaults
//   - ModeForce: ModeLenient, and orphan keys are dropped without a warning
//
// # Diagnostics
//
//   - MissingValue: active option with neither a value nor a default
//   - TypeMismatch: value cannot be coerced to the declared type
//   - InvalidValue: value rejected by the valid clause
//   - OrphanKey: value for a path that is not an active option
//   - EvalFailure: depends clause failed to evaluate
//
// # Usage Example
//
//	tree, err := schema.Merge(components)
//	if err != nil {
//	    return err
//	}
//	order, err := engine.BuildOrder(tree)
//	if err != nil {
//	    return err
//	}
//	res := engine.Resolve(order, engine.NewFeatureSet("esp32s3"), raw, engine.ModeStrict)
//	if err := res.Err(); err != nil {
//	    return err
//	}
package engine
