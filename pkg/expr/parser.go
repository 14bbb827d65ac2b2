package expr

import (
	"fmt"
	"math"
)

// Expression is a parsed, immutable predicate. It is safe for concurrent use.
type Expression struct {
	source string
	root   Node
	refs   []string
}

// Parse parses src into an Expression. Malformed text yields a *SyntaxError.
//
// Grammar, lowest precedence first:
//
//	or         = and { "||" and }
//	and        = comparison { "&&" comparison }
//	comparison = unary [ ( "==" | "!=" | "<" | "<=" | ">" | ">=" ) unary ]
//	unary      = "!" unary | "-" INT | primary
//	primary    = INT | STRING | "true" | "false" | "value" | call | "(" or ")"
//	call       = IDENT "(" [ or ] ")"
func Parse(src string) (*Expression, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, p.errorf(tok.pos, "unexpected %s after expression", tok.kind)
	}
	e := &Expression{source: src, root: root}
	e.refs = collectRefs(root, nil)
	return e, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// static tables.
func MustParse(src string) *Expression {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Source returns the text the expression was parsed from.
func (e *Expression) Source() string { return e.source }

// Root returns the top node of the tree.
func (e *Expression) Root() Node { return e.root }

// String returns the canonical rendering of the expression.
func (e *Expression) String() string { return e.root.String() }

// References returns the path arguments of every enabled/active/option call
// in source order, duplicates removed.
func (e *Expression) References() []string {
	out := make([]string, len(e.refs))
	copy(out, e.refs)
	return out
}

// UsesValue reports whether the expression reads the `value` binding.
func (e *Expression) UsesValue() bool { return usesValue(e.root) }

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	return &SyntaxError{Source: p.src, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.next()
	if tok.kind != kind {
		return tok, p.errorf(tok.pos, "expected %s, found %s", kind, tok.kind)
	}
	return tok, nil
}

func (p *parser) parseOr() (Node, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		op := p.next()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: OpOr, X: x, Y: y, At: op.pos}
	}
	return x, nil
}

func (p *parser) parseAnd() (Node, error) {
	x, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		op := p.next()
		y, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: OpAnd, X: x, Y: y, At: op.pos}
	}
	return x, nil
}

var comparisonOps = map[tokenKind]Op{
	tokEq:  OpEq,
	tokNeq: OpNeq,
	tokLt:  OpLt,
	tokLe:  OpLe,
	tokGt:  OpGt,
	tokGe:  OpGe,
}

func (p *parser) parseComparison() (Node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	op, ok := comparisonOps[p.peek().kind]
	if !ok {
		return x, nil
	}
	tok := p.next()
	y, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if _, chained := comparisonOps[p.peek().kind]; chained {
		return nil, p.errorf(p.peek().pos, "comparison operators cannot be chained")
	}
	return &Binary{Op: op, X: x, Y: y, At: tok.pos}, nil
}

func (p *parser) parseUnary() (Node, error) {
	switch tok := p.peek(); tok.kind {
	case tokNot:
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, X: x, At: tok.pos}, nil
	case tokMinus:
		p.next()
		num := p.next()
		if num.kind != tokInt {
			return nil, p.errorf(tok.pos, "'-' must be followed by an integer literal")
		}
		if num.num > 1<<63 {
			return nil, p.errorf(num.pos, "integer literal out of range")
		}
		return &Literal{Value: Int(-int64(num.num)), At: tok.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokInt:
		if tok.num > math.MaxInt64 {
			return nil, p.errorf(tok.pos, "integer literal out of range")
		}
		return &Literal{Value: Int(int64(tok.num)), At: tok.pos}, nil
	case tokString:
		return &Literal{Value: Str(tok.text), At: tok.pos}, nil
	case tokLParen:
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return &Literal{Value: Bool(true), At: tok.pos}, nil
		case "false":
			return &Literal{Value: Bool(false), At: tok.pos}, nil
		case "value":
			return &ValueRef{At: tok.pos}, nil
		}
		if p.peek().kind == tokLParen {
			return p.parseCall(tok)
		}
		return nil, p.errorf(tok.pos, "unknown identifier %q", tok.text)
	}
	return nil, p.errorf(tok.pos, "unexpected %s", tok.kind)
}

func (p *parser) parseCall(name token) (Node, error) {
	fn, ok := builtins[name.text]
	if !ok {
		return nil, p.errorf(name.pos, "unknown function %q", name.text)
	}
	p.next() // (
	var args []Node
	if p.peek().kind != tokRParen {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		for p.peek().kind == tokComma {
			p.next()
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, p.errorf(name.pos, "%s expects exactly one argument, got %d", fn, len(args))
	}
	// Path arguments must be literals so the dependency graph is known
	// without evaluating anything.
	if fn.TakesPath() {
		if _, ok := args[0].(*Literal); !ok {
			return nil, p.errorf(args[0].Pos(), "%s requires a literal path argument", fn)
		}
	}
	return &Call{Func: fn, Args: args, At: name.pos}, nil
}

func collectRefs(n Node, refs []string) []string {
	switch n := n.(type) {
	case *Unary:
		return collectRefs(n.X, refs)
	case *Binary:
		return collectRefs(n.Y, collectRefs(n.X, refs))
	case *Call:
		if n.Func.TakesPath() {
			lit := n.Args[0].(*Literal)
			if lit.Value.Kind() == KindString {
				path := lit.Value.AsString()
				for _, r := range refs {
					if r == path {
						return refs
					}
				}
				return append(refs, path)
			}
			return refs
		}
		for _, a := range n.Args {
			refs = collectRefs(a, refs)
		}
	}
	return refs
}

func usesValue(n Node) bool {
	switch n := n.(type) {
	case *ValueRef:
		return true
	case *Unary:
		return usesValue(n.X)
	case *Binary:
		return usesValue(n.X) || usesValue(n.Y)
	case *Call:
		for _, a := range n.Args {
			if usesValue(a) {
				return true
			}
		}
	}
	return false
}
