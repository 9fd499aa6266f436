package script

// Parse compiles script source into a statement list.
func Parse(src string) ([]Stmt, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	var stmts []Stmt
	for {
		for p.peek().kind == tokNewline {
			p.next()
		}
		if p.peek().kind == tokEOF {
			return stmts, nil
		}
		sub, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sub...)
	}
}

// ParseExpr compiles a single expression, as found in markup
// interpolations and conditional guards.
func ParseExpr(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	ex, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokNewline {
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, syntaxErrf(t.line, "unexpected %s after expression", describe(t))
	}
	return ex, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) isKeyword(text string) bool {
	t := p.peek()
	return t.kind == tokName && t.text == text
}

func (p *parser) acceptOp(text string) bool {
	if p.isOp(text) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expectOp(text string) error {
	t := p.next()
	if t.kind != tokOp || t.text != text {
		return syntaxErrf(t.line, "expected %q, found %s", text, describe(t))
	}
	return nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of script"
	case tokNewline:
		return "end of line"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	case tokString:
		return "string literal"
	default:
		return "\"" + t.text + "\""
	}
}

// parseStatement parses one statement. A simple-statement line may
// hold several statements joined by semicolons, so this returns a
// slice.
func (p *parser) parseStatement() ([]Stmt, error) {
	if p.isKeyword("if") {
		sub, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		return []Stmt{sub}, nil
	}
	return p.parseSimpleLine()
}

// parseSimpleLine parses `stmt; stmt; ...` up to a newline.
func (p *parser) parseSimpleLine() ([]Stmt, error) {
	var stmts []Stmt
	for {
		sub, err := p.parseSimple()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sub)
		if p.acceptOp(";") {
			if p.peek().kind == tokNewline || p.peek().kind == tokEOF {
				break
			}
			continue
		}
		break
	}
	t := p.peek()
	switch t.kind {
	case tokNewline:
		p.next()
	case tokEOF, tokDedent:
	default:
		return nil, syntaxErrf(t.line, "unexpected %s after statement", describe(t))
	}
	return stmts, nil
}

func (p *parser) parseSimple() (Stmt, error) {
	t := p.peek()
	base := stmtBase{Line: t.line}

	if p.isKeyword("pass") {
		p.next()
		return &Pass{stmtBase: base}, nil
	}

	if p.isKeyword("return") {
		p.next()
		res := &Return{stmtBase: base}
		if !p.atStatementEnd() {
			val, err := p.parseTestList()
			if err != nil {
				return nil, err
			}
			res.Value = val
		}
		return res, nil
	}

	if p.isKeyword("del") {
		p.next()
		res := &Delete{stmtBase: base}
		for {
			target, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if err := checkAssignable(target, t.line); err != nil {
				return nil, err
			}
			res.Targets = append(res.Targets, target)
			if !p.acceptOp(",") {
				break
			}
		}
		return res, nil
	}

	ex, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	if !p.isOp("=") {
		return &ExprStmt{stmtBase: base, X: ex}, nil
	}
	p.next()
	if err := checkAssignable(ex, t.line); err != nil {
		return nil, err
	}
	val, err := p.parseTestList()
	if err != nil {
		return nil, err
	}
	if p.isOp("=") {
		return nil, syntaxErrf(t.line, "assignment has more than one target")
	}
	return &Assign{stmtBase: base, Target: ex, Value: val}, nil
}

func (p *parser) atStatementEnd() bool {
	t := p.peek()
	if t.kind == tokNewline || t.kind == tokEOF || t.kind == tokDedent {
		return true
	}
	return t.kind == tokOp && t.text == ";"
}

func checkAssignable(ex Expr, line int) error {
	switch ex.(type) {
	case *Name, *Attribute, *Subscript:
		return nil
	}
	return syntaxErrf(line, "cannot assign to this expression")
}

func (p *parser) parseIf() (Stmt, error) {
	t := p.next() // if or elif
	res := &If{stmtBase: stmtBase{Line: t.line}}
	test, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	res.Test = test
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	res.Body, err = p.parseSuite()
	if err != nil {
		return nil, err
	}

	if p.isKeyword("elif") {
		sub, err := p.parseIf()
		if err != nil {
			return nil, err
		}
		res.Else = []Stmt{sub}
		return res, nil
	}
	if p.isKeyword("else") {
		p.next()
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		res.Else, err = p.parseSuite()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// parseSuite parses either an inline simple-statement suite or an
// indented block.
func (p *parser) parseSuite() ([]Stmt, error) {
	if p.peek().kind != tokNewline {
		return p.parseSimpleLine()
	}
	p.next()
	t := p.next()
	if t.kind != tokIndent {
		return nil, syntaxErrf(t.line, "expected an indented block")
	}
	var stmts []Stmt
	for {
		for p.peek().kind == tokNewline {
			p.next()
		}
		if p.peek().kind == tokDedent {
			p.next()
			if len(stmts) == 0 {
				return nil, syntaxErrf(t.line, "expected an indented block")
			}
			return stmts, nil
		}
		if p.peek().kind == tokEOF {
			return stmts, nil
		}
		sub, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sub...)
	}
}

// parseTestList parses `test, test, ...`; a bare comma list builds a
// tuple.
func (p *parser) parseTestList() (Expr, error) {
	first, err := p.parseTest()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	elts := []Expr{first}
	for p.acceptOp(",") {
		if p.atExprEnd() {
			break
		}
		sub, err := p.parseTest()
		if err != nil {
			return nil, err
		}
		elts = append(elts, sub)
	}
	return &TupleExpr{Elts: elts}, nil
}

func (p *parser) atExprEnd() bool {
	t := p.peek()
	switch t.kind {
	case tokNewline, tokEOF, tokDedent:
		return true
	case tokOp:
		switch t.text {
		case ")", "]", ";", ":", "=":
			return true
		}
	}
	return false
}

func (p *parser) parseTest() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("or") {
		return first, nil
	}
	values := []Expr{first}
	for p.isKeyword("or") {
		p.next()
		sub, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, sub)
	}
	return &BoolOp{Op: BoolOr, Values: values}, nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	if !p.isKeyword("and") {
		return first, nil
	}
	values := []Expr{first}
	for p.isKeyword("and") {
		p.next()
		sub, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, sub)
	}
	return &BoolOp{Op: BoolAnd, Values: values}, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.isKeyword("not") {
		p.next()
		sub, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: UnaryNot, Operand: sub}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	var ops []CompareKind
	var comparators []Expr
	for {
		op, ok := p.compareOp()
		if !ok {
			break
		}
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &Compare{Left: left, Ops: ops, Comparators: comparators}, nil
}

// compareOp consumes a comparison operator if one is next, handling
// the two-word forms `is not` and `not in`.
func (p *parser) compareOp() (CompareKind, bool) {
	t := p.peek()
	if t.kind == tokOp {
		var op CompareKind
		switch t.text {
		case "==":
			op = CmpEq
		case "!=":
			op = CmpNotEq
		case "<":
			op = CmpLt
		case "<=":
			op = CmpLtE
		case ">":
			op = CmpGt
		case ">=":
			op = CmpGtE
		default:
			return 0, false
		}
		p.next()
		return op, true
	}
	if t.kind == tokName {
		switch t.text {
		case "is":
			p.next()
			if p.isKeyword("not") {
				p.next()
				return CmpIsNot, true
			}
			return CmpIs, true
		case "in":
			p.next()
			return CmpIn, true
		case "not":
			// Only "not in" continues a comparison.
			if p.toks[p.pos+1].kind == tokName && p.toks[p.pos+1].text == "in" {
				p.next()
				p.next()
				return CmpNotIn, true
			}
		}
	}
	return 0, false
}

func (p *parser) parseArith() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryKind
		switch {
		case p.isOp("+"):
			op = BinAdd
		case p.isOp("-"):
			op = BinSub
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryKind
		switch {
		case p.isOp("*"):
			op = BinMult
		case p.isOp("/"):
			op = BinDiv
		case p.isOp("%"):
			op = BinMod
		case p.isOp("//"):
			op = BinFloorDiv
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseFactor() (Expr, error) {
	var op UnaryKind
	switch {
	case p.isOp("+"):
		op = UnaryPos
	case p.isOp("-"):
		op = UnaryNeg
	case p.isOp("~"):
		op = UnaryInvert
	default:
		return p.parsePower()
	}
	p.next()
	sub, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &UnaryOp{Op: op, Operand: sub}, nil
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if !p.isOp("**") {
		return base, nil
	}
	p.next()
	exp, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	return &BinOp{Op: BinPow, Left: base, Right: exp}, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	ex, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.next()
			t := p.next()
			if t.kind != tokName || keywords[t.text] {
				return nil, syntaxErrf(t.line, "expected an attribute name, found %s", describe(t))
			}
			ex = &Attribute{Value: ex, Attr: t.text}

		case p.isOp("["):
			p.next()
			idx, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if p.isOp(":") {
				return nil, syntaxErrf(p.peek().line, "subscript slices are not supported")
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			ex = &Subscript{Value: ex, Index: idx}

		case p.isOp("("):
			p.next()
			call := &Call{Func: ex}
			if err := p.parseArgs(call); err != nil {
				return nil, err
			}
			ex = call

		default:
			return ex, nil
		}
	}
}

func (p *parser) parseArgs(call *Call) error {
	for {
		if p.acceptOp(")") {
			return nil
		}
		t := p.peek()
		if t.kind == tokName && !keywords[t.text] &&
			p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "=" {
			p.next()
			p.next()
			val, err := p.parseTest()
			if err != nil {
				return err
			}
			call.Keywords = append(call.Keywords, Keyword{Name: t.text, Value: val})
		} else {
			if len(call.Keywords) > 0 {
				return syntaxErrf(t.line, "positional argument after keyword argument")
			}
			val, err := p.parseTest()
			if err != nil {
				return err
			}
			call.Args = append(call.Args, val)
		}
		if p.acceptOp(",") {
			continue
		}
		return p.expectOp(")")
	}
}

func (p *parser) parseAtom() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return &Literal{Val: t.val}, nil
	case tokNumber:
		return &Literal{Val: t.val}, nil
	case tokName:
		switch t.text {
		case "None":
			return &Literal{}, nil
		case "True":
			return &Literal{Val: true}, nil
		case "False":
			return &Literal{Val: false}, nil
		}
		if keywords[t.text] {
			return nil, syntaxErrf(t.line, "unexpected keyword %q", t.text)
		}
		return &Name{ID: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			if p.acceptOp(")") {
				return &TupleExpr{}, nil
			}
			first, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			if !p.isOp(",") {
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
				return first, nil
			}
			elts := []Expr{first}
			for p.acceptOp(",") {
				if p.isOp(")") {
					break
				}
				sub, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				elts = append(elts, sub)
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return &TupleExpr{Elts: elts}, nil

		case "[":
			res := &ListExpr{}
			for {
				if p.acceptOp("]") {
					return res, nil
				}
				sub, err := p.parseTest()
				if err != nil {
					return nil, err
				}
				res.Elts = append(res.Elts, sub)
				if p.acceptOp(",") {
					continue
				}
				return res, p.expectOp("]")
			}
		}
	}
	return nil, syntaxErrf(t.line, "unexpected %s", describe(t))
}
