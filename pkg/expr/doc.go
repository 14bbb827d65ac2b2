// Package expr implements the predicate language used by option `depends`
// and `valid` clauses.
//
// Expressions are parsed once into an immutable tree and evaluated many times
// against a Context. The grammar is closed: literals, `value`, `!`, `&&`, `||`,
// the six comparison operators and four builtins:
//
//	feature("esp32s3")       membership in the feature set
//	enabled("psram.enable")  option active and its value truthy
//	active("psram")          option active
//	option("heap.size")      the option's value, or null when inactive
//
// Path arguments must be string literals so every reference is known before
// evaluation; see Expression.References.
//
// # Example
//
//	e, err := expr.Parse(`feature("esp32s3") && enabled("psram.enable")`)
//	if err != nil {
//	    return err // *expr.SyntaxError
//	}
//	ok, err := e.Test(ctx) // err is an *expr.EvalError on type mismatches
package expr
