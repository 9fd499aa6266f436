// Package script parses the small sandboxed language used by code
// properties and action snippets. The syntax is a narrow slice of an
// expression-statement language: literals, names, list/tuple
// construction, attribute and subscript access, calls, arithmetic and
// boolean operators, if/elif/else blocks, assignment, del, pass, and
// return. Execution lives in pkg/eval; this package only builds the
// tree.
package script

// Stmt is one statement. The implementation set is closed; the
// executor switches exhaustively over it.
type Stmt interface {
	stmtNode()
	// Pos returns the 1-based source line of the statement.
	Pos() int
}

type stmtBase struct {
	Line int
}

func (s stmtBase) Pos() int { return s.Line }

// ExprStmt is a bare expression evaluated for its value or side
// effect. At the top level of action code a bare name may dispatch a
// special record (event, move, ...).
type ExprStmt struct {
	stmtBase
	X Expr
}

func (*ExprStmt) stmtNode() {}

// Assign is `target = value` with a single target.
type Assign struct {
	stmtBase
	Target Expr
	Value  Expr
}

func (*Assign) stmtNode() {}

// Delete is `del target, ...`.
type Delete struct {
	stmtBase
	Targets []Expr
}

func (*Delete) stmtNode() {}

// If is a conditional with an optional elif/else chain folded into
// Else.
type If struct {
	stmtBase
	Test Expr
	Body []Stmt
	Else []Stmt
}

func (*If) stmtNode() {}

// Return exits the current code property, optionally with a value.
type Return struct {
	stmtBase
	Value Expr // nil for a bare return
}

func (*Return) stmtNode() {}

// Pass is a no-op.
type Pass struct {
	stmtBase
}

func (*Pass) stmtNode() {}

// Expr is one expression node.
type Expr interface {
	exprNode()
}

// Literal is a constant: string, int64, float64, bool, or nil.
type Literal struct {
	Val any
}

func (*Literal) exprNode() {}

// Name is a symbol reference, resolved at run time.
type Name struct {
	ID string
}

func (*Name) exprNode() {}

// ListExpr constructs a list.
type ListExpr struct {
	Elts []Expr
}

func (*ListExpr) exprNode() {}

// TupleExpr constructs a tuple. The executor materializes it as a
// list value; the distinction only matters for display.
type TupleExpr struct {
	Elts []Expr
}

func (*TupleExpr) exprNode() {}

// UnaryKind enumerates unary operators. The executor's operator table
// decides which are actually implemented.
type UnaryKind int

const (
	UnaryNot UnaryKind = iota
	UnaryPos
	UnaryNeg
	UnaryInvert
)

func (k UnaryKind) String() string {
	switch k {
	case UnaryNot:
		return "not"
	case UnaryPos:
		return "+"
	case UnaryNeg:
		return "-"
	default:
		return "~"
	}
}

type UnaryOp struct {
	Op      UnaryKind
	Operand Expr
}

func (*UnaryOp) exprNode() {}

// BinaryKind enumerates binary operators.
type BinaryKind int

const (
	BinAdd BinaryKind = iota
	BinSub
	BinMult
	BinDiv
	BinMod
	BinPow
	BinFloorDiv
)

func (k BinaryKind) String() string {
	switch k {
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMult:
		return "*"
	case BinDiv:
		return "/"
	case BinMod:
		return "%"
	case BinPow:
		return "**"
	default:
		return "//"
	}
}

type BinOp struct {
	Op    BinaryKind
	Left  Expr
	Right Expr
}

func (*BinOp) exprNode() {}

// BoolKind is `and` or `or`.
type BoolKind int

const (
	BoolAnd BoolKind = iota
	BoolOr
)

// BoolOp short-circuits across two or more values.
type BoolOp struct {
	Op     BoolKind
	Values []Expr
}

func (*BoolOp) exprNode() {}

// CompareKind enumerates comparison operators.
type CompareKind int

const (
	CmpEq CompareKind = iota
	CmpNotEq
	CmpLt
	CmpLtE
	CmpGt
	CmpGtE
	CmpIs
	CmpIsNot
	CmpIn
	CmpNotIn
)

func (k CompareKind) String() string {
	switch k {
	case CmpEq:
		return "=="
	case CmpNotEq:
		return "!="
	case CmpLt:
		return "<"
	case CmpLtE:
		return "<="
	case CmpGt:
		return ">"
	case CmpGtE:
		return ">="
	case CmpIs:
		return "is"
	case CmpIsNot:
		return "is not"
	case CmpIn:
		return "in"
	default:
		return "not in"
	}
}

// Compare is a chained comparison: Left Ops[0] Comparators[0] Ops[1]
// Comparators[1] ... with short-circuit evaluation.
type Compare struct {
	Left        Expr
	Ops         []CompareKind
	Comparators []Expr
}

func (*Compare) exprNode() {}

// Attribute is `value.attr`. Legal only on capability proxies and a
// short list of whitelisted value attributes; enforcement is the
// executor's job.
type Attribute struct {
	Value Expr
	Attr  string
}

func (*Attribute) exprNode() {}

// Subscript is `value[index]`.
type Subscript struct {
	Value Expr
	Index Expr
}

func (*Subscript) exprNode() {}

// Keyword is a `name=value` call argument.
type Keyword struct {
	Name  string
	Value Expr
}

// Call invokes a builtin function.
type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

func (*Call) exprNode() {}
