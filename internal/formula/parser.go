package formula

import (
	"fmt"
	"math"
	"strings"
)

// Expr is a compiled formula.
type Expr struct {
	Source string
	Root   Node
}

// Compile parses src into an Expr. Errors are *EvaluationError values carrying
// the source text.
func Compile(src string) (*Expr, error) {
	root, err := parse(src)
	if err != nil {
		return nil, &EvaluationError{Formula: src, Err: err}
	}
	return &Expr{Source: src, Root: root}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and fixed formulas.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expr) String() string { return e.Root.String() }

type parser struct {
	toks    []token
	pos     int
	itemVar string // name bound by the enclosing filter arrow, if any
}

func parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrSyntax)
	}
	toks, err := lex(src, false)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tEOF {
		return nil, p.unexpected(tok)
	}
	return n, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tEOF {
		p.pos++
	}
	return tok
}

func (p *parser) unexpected(tok token) error {
	return fmt.Errorf("%w: unexpected %s at offset %d", ErrSyntax, tok, tok.pos)
}

func (p *parser) expectOp(op string) error {
	tok := p.next()
	if !tok.is(op) {
		return fmt.Errorf("%w: expected %q, found %s at offset %d", ErrSyntax, op, tok, tok.pos)
	}
	return nil
}

func (p *parser) expectIdent() (string, error) {
	tok := p.next()
	if tok.kind != tIdent {
		return "", fmt.Errorf("%w: expected a name, found %s at offset %d", ErrSyntax, tok, tok.pos)
	}
	return tok.text, nil
}

func (p *parser) parseExpr() (Node, error) {
	x, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	switch tok := p.peek(); {
	case tok.is("?"):
		p.next()
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return Cond{Test: x, Then: then, Else: els}, nil
	case tok.isWord("if"):
		p.next()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if tok := p.next(); !tok.isWord("else") {
			return nil, fmt.Errorf("%w: expected else, found %s at offset %d", ErrSyntax, tok, tok.pos)
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return Cond{Test: test, Then: x, Else: els}, nil
	}
	return x, nil
}

func (p *parser) parseOr() (Node, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.is("||") || tok.isWord("or"); tok = p.peek() {
		p.next()
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = Binary{Op: "||", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Node, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.is("&&") || tok.isWord("and"); tok = p.peek() {
		p.next()
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = Binary{Op: "&&", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.peek().isWord("not") {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Unary{Op: "!", X: x}, nil
	}
	return p.parseComparison()
}

var comparisons = map[string]string{
	"==": "==", "===": "==", "!=": "!=", "!==": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

// parseComparison reads a comparison chain. a < b < c means a < b && b < c,
// never (a < b) < c.
func (p *parser) parseComparison() (Node, error) {
	x, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	var chain Node
	for {
		tok := p.peek()
		op, ok := comparisons[tok.text]
		if tok.kind != tOp || !ok {
			break
		}
		p.next()
		y, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp := Binary{Op: op, X: x, Y: y}
		if chain == nil {
			chain = cmp
		} else {
			chain = Binary{Op: "&&", X: chain, Y: cmp}
		}
		x = y
	}
	if chain == nil {
		return x, nil
	}
	return chain, nil
}

func (p *parser) parseAdditive() (Node, error) {
	x, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.is("+") || tok.is("-"); tok = p.peek() {
		p.next()
		y, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		x = Binary{Op: tok.text, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok.is("*") || tok.is("/") || tok.is("%"); tok = p.peek() {
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = Binary{Op: tok.text, X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.peek()
	if tok.is("-") || tok.is("+") || tok.is("!") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(NumberLit); ok && tok.text != "!" {
			if tok.text == "-" {
				lit.Value = -lit.Value
			}
			return lit, nil
		}
		return Unary{Op: tok.text, X: x}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Node, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().is("**") {
		p.next()
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Binary{Op: "**", X: x, Y: y}, nil
	}
	return x, nil
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tNumber:
		return NumberLit{Value: tok.num}, nil
	case tString:
		return StringLit{Value: tok.text}, nil
	case tIdent:
		return p.parseName(tok)
	case tOp:
		if tok.is("(") {
			x, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		}
	}
	return nil, p.unexpected(tok)
}

func (p *parser) parseName(tok token) (Node, error) {
	switch tok.text {
	case "true", "True":
		return BoolLit{Value: true}, nil
	case "false", "False":
		return BoolLit{Value: false}, nil
	case NSVariables, NSTotals, NSConstants:
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		return Ref{Namespace: tok.text, Name: key}, nil
	case "math":
		return p.parseMath()
	case "custom":
		if err := p.expectOp("."); err != nil {
			return nil, err
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return Call{Namespace: "custom", Name: name, Args: args}, nil
	case "items":
		return p.parseFilterReduce()
	}
	if p.itemVar != "" && tok.text == p.itemVar {
		key, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		return Ref{Namespace: NSItem, Name: key}, nil
	}
	if p.peek().is("(") {
		p.next()
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return builtinCall(tok.text, args)
	}
	return Ident{Name: tok.text}, nil
}

// parseKey reads ['name'], ["name"] or .name after a namespace.
func (p *parser) parseKey() (string, error) {
	tok := p.next()
	switch {
	case tok.is("["):
		key := p.next()
		if key.kind != tString {
			return "", fmt.Errorf("%w: expected a quoted name, found %s at offset %d", ErrSyntax, key, key.pos)
		}
		if err := p.expectOp("]"); err != nil {
			return "", err
		}
		return key.text, nil
	case tok.is("."):
		return p.expectIdent()
	}
	return "", fmt.Errorf("%w: expected [ or . after namespace, found %s at offset %d", ErrSyntax, tok, tok.pos)
}

// parseArgs reads a comma separated argument list; the opening paren is consumed.
func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.peek().is(")") {
		p.next()
		return args, nil
	}
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		tok := p.next()
		if tok.is(")") {
			return args, nil
		}
		if !tok.is(",") {
			return nil, fmt.Errorf("%w: expected , or ), found %s at offset %d", ErrSyntax, tok, tok.pos)
		}
	}
}

var mathConstants = map[string]float64{"pi": math.Pi, "e": math.E}

func (p *parser) parseMath() (Node, error) {
	if err := p.expectOp("."); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if !p.peek().is("(") {
		if c, ok := mathConstants[name]; ok {
			return NumberLit{Value: c}, nil
		}
		return nil, fmt.Errorf("%w: math.%s", ErrUndefined, name)
	}
	p.next()
	args, err := p.parseArgs()
	if err != nil {
		return nil, err
	}
	if _, ok := mathFuncs[name]; !ok {
		return nil, fmt.Errorf("%w: unknown function math.%s", ErrUndefined, name)
	}
	return Call{Namespace: "math", Name: name, Args: args}, nil
}

// builtinCall validates a call to an unqualified function name.
func builtinCall(name string, args []Node) (Node, error) {
	switch name {
	case "sum", "avg", "count", "distinct_count":
		if !isFieldArg(args) {
			return nil, fmt.Errorf("%w: %s expects a single quoted field name", ErrSyntax, name)
		}
	case "min", "max":
		if len(args) < 2 && !isFieldArg(args) {
			return nil, fmt.Errorf("%w: %s expects a quoted field name or at least two numbers", ErrSyntax, name)
		}
	default:
		if _, ok := mathFuncs[name]; !ok {
			return nil, fmt.Errorf("%w: unknown function %s", ErrUndefined, name)
		}
	}
	return Call{Name: name, Args: args}, nil
}

func isFieldArg(args []Node) bool {
	if len(args) != 1 {
		return false
	}
	_, ok := args[0].(StringLit)
	return ok
}

// isAggregate reports whether c reduces over the item collection.
func isAggregate(c Call) bool {
	if c.Namespace != "" {
		return false
	}
	switch c.Name {
	case "sum", "avg", "count", "distinct_count", "min", "max":
		return isFieldArg(c.Args)
	}
	return false
}

func (p *parser) parseFilterReduce() (Node, error) {
	if err := p.expectOp("."); err != nil {
		return nil, err
	}
	if tok := p.next(); !tok.isWord("filter") {
		return nil, fmt.Errorf("%w: items must be followed by .filter(...), found %s at offset %d", ErrSyntax, tok, tok.pos)
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	v, err := p.parseArrowParams(1)
	if err != nil {
		return nil, err
	}
	saved := p.itemVar
	p.itemVar = v[0]
	cond, err := p.parseExpr()
	p.itemVar = saved
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	filter, err := normalizeFilter(cond)
	if err != nil {
		return nil, err
	}
	fr := FilterReduce{Filter: filter}

	if tok := p.next(); !tok.is(".") {
		return nil, fmt.Errorf("%w: filter must be followed by a reduction, found %s at offset %d", ErrSyntax, tok, tok.pos)
	}
	method, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	switch method {
	case "reduce":
		field, initial, err := p.parseReduceSum()
		if err != nil {
			return nil, err
		}
		fr.Reduce, fr.Field, fr.Initial = ReduceSum, field, initial
	case ReduceSum, ReduceAvg, ReduceMin, ReduceMax:
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		if !isFieldArg(args) {
			return nil, fmt.Errorf("%w: %s expects a single quoted field name", ErrSyntax, method)
		}
		fr.Reduce, fr.Field = method, args[0].(StringLit).Value
	case ReduceCount:
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		fr.Reduce = ReduceCount
	case "length":
		fr.Reduce = ReduceCount
	default:
		return nil, fmt.Errorf("%w: unsupported reduction %q", ErrSyntax, method)
	}
	return fr, nil
}

// parseArrowParams reads "x =>" or "(x, y) =>" with n names.
func (p *parser) parseArrowParams(n int) ([]string, error) {
	var names []string
	paren := p.peek().is("(")
	if paren {
		p.next()
	}
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := p.expectOp(","); err != nil {
				return nil, err
			}
		}
		name, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if paren {
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	} else if n > 1 {
		return nil, fmt.Errorf("%w: arrow with %d parameters needs parentheses", ErrSyntax, n)
	}
	if err := p.expectOp("=>"); err != nil {
		return nil, err
	}
	return names, nil
}

// parseReduceSum reads ((acc, item) => acc + item.field, initial).
func (p *parser) parseReduceSum() (string, float64, error) {
	if err := p.expectOp("("); err != nil {
		return "", 0, err
	}
	names, err := p.parseArrowParams(2)
	if err != nil {
		return "", 0, err
	}
	acc := names[0]
	saved := p.itemVar
	p.itemVar = names[1]
	body, err := p.parseExpr()
	p.itemVar = saved
	if err != nil {
		return "", 0, err
	}
	field, ok := sumBody(body, acc)
	if !ok {
		return "", 0, fmt.Errorf("%w: reduce must accumulate %s + %s.<field>, found %s", ErrSyntax, acc, names[1], body)
	}
	var initial float64
	if p.peek().is(",") {
		p.next()
		init, err := p.parseUnary()
		if err != nil {
			return "", 0, err
		}
		lit, ok := init.(NumberLit)
		if !ok {
			return "", 0, fmt.Errorf("%w: reduce initial value must be a number", ErrSyntax)
		}
		initial = lit.Value
	}
	if err := p.expectOp(")"); err != nil {
		return "", 0, err
	}
	return field, initial, nil
}

func sumBody(body Node, acc string) (string, bool) {
	b, ok := body.(Binary)
	if !ok || b.Op != "+" {
		return "", false
	}
	x, y := b.X, b.Y
	if id, ok := y.(Ident); ok && id.Name == acc {
		x, y = y, x
	}
	if id, ok := x.(Ident); !ok || id.Name != acc {
		return "", false
	}
	ref, ok := y.(Ref)
	if !ok || ref.Namespace != NSItem {
		return "", false
	}
	return ref.Name, true
}

var flipped = map[string]string{"==": "==", "!=": "!=", "<": ">", "<=": ">=", ">": "<", ">=": "<="}

// normalizeFilter checks that n only combines item-field comparisons with && and ||
// and rewrites every comparison so the item field is on the left.
func normalizeFilter(n Node) (Node, error) {
	switch n := n.(type) {
	case Binary:
		switch n.Op {
		case "&&", "||":
			x, err := normalizeFilter(n.X)
			if err != nil {
				return nil, err
			}
			y, err := normalizeFilter(n.Y)
			if err != nil {
				return nil, err
			}
			return Binary{Op: n.Op, X: x, Y: y}, nil
		case "==", "!=", "<", "<=", ">", ">=":
			if isItemRef(n.X) && isLiteral(n.Y) {
				return n, nil
			}
			if isLiteral(n.X) && isItemRef(n.Y) {
				return Binary{Op: flipped[n.Op], X: n.Y, Y: n.X}, nil
			}
			return nil, fmt.Errorf("%w: filter conditions must compare item.<field> with a literal, found %s", ErrSyntax, n)
		default:
			return nil, fmt.Errorf("%w: %q in filter condition", ErrUnsupportedOperator, n.Op)
		}
	case Unary:
		return nil, fmt.Errorf("%w: %q in filter condition", ErrUnsupportedOperator, n.Op)
	}
	return nil, fmt.Errorf("%w: filter condition must be a comparison, found %s", ErrSyntax, n)
}

func isItemRef(n Node) bool {
	r, ok := n.(Ref)
	return ok && r.Namespace == NSItem
}

func isLiteral(n Node) bool {
	switch n.(type) {
	case NumberLit, StringLit, BoolLit:
		return true
	}
	return false
}

// assignment is one statement of a custom function body.
type assignment struct {
	target string
	expr   Node
}

// parseBody reads "name = expr" statements separated by newlines or semicolons.
// "return expr" assigns result.
func parseBody(src string) ([]assignment, error) {
	toks, err := lex(src, true)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var stmts []assignment
	for {
		for p.peek().kind == tNewline {
			p.next()
		}
		tok := p.next()
		if tok.kind == tEOF {
			break
		}
		var target string
		switch {
		case tok.isWord("return"):
			target = resultName
		case tok.kind == tIdent && p.peek().is("="):
			p.next()
			target = tok.text
			if !IsIdentifier(target) {
				return nil, fmt.Errorf("%w: cannot assign to %q at offset %d", ErrSyntax, target, tok.pos)
			}
		default:
			return nil, fmt.Errorf("%w: expected an assignment, found %s at offset %d", ErrSyntax, tok, tok.pos)
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if end := p.peek(); end.kind != tNewline && end.kind != tEOF {
			return nil, p.unexpected(end)
		}
		stmts = append(stmts, assignment{target: target, expr: x})
	}
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: empty function body", ErrSyntax)
	}
	return stmts, nil
}
