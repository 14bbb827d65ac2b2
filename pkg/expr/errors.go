package expr

import "fmt"

// SyntaxError reports malformed expression text.
type SyntaxError struct {
	// Source is the full expression text.
	Source string
	// Pos is the byte offset of the problem within Source.
	Pos int
	// Msg describes the problem.
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d in %q: %s", e.Pos, e.Source, e.Msg)
}

// EvalError reports a failure while evaluating a well-formed expression,
// such as comparing operands of different types.
type EvalError struct {
	// Owner is the option path whose expression failed, if known.
	Owner string
	// Expr is the offending sub-expression in canonical form.
	Expr string
	// Msg describes the problem.
	Msg string
}

func (e *EvalError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("%s: evaluating %s: %s", e.Owner, e.Expr, e.Msg)
	}
	return fmt.Sprintf("evaluating %s: %s", e.Expr, e.Msg)
}
