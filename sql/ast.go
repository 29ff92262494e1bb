package sql

import "github.com/arloliu/ndts/table"

// Statement is any parsed SQL statement.
type Statement interface{ stmt() }

// Expr is any parsed expression node.
type Expr interface{ expr() }

// Literal is a constant value.
type Literal struct {
	Val table.Value
}

// Ident references a column, optionally qualified by a table alias.
type Ident struct {
	Qualifier string
	Name      string
}

// Star is `*` in a select list or COUNT(*).
type Star struct{}

// Unary is unary plus/minus.
type Unary struct {
	Op string
	X  Expr
}

// Binary covers arithmetic, comparison, logical AND/OR, LIKE, and the
// string concatenation operator ||.
type Binary struct {
	Op string
	L  Expr
	R  Expr
}

// Not negates a predicate.
type Not struct {
	X Expr
}

// FuncCall is a scalar or aggregate function application.
type FuncCall struct {
	Name string
	Args []Expr
	Star bool // COUNT(*)
}

// InExpr is `expr IN (...)` with a value list, a single-column
// sub-select, or the tuple form (a, b) IN ((..), (..)).
type InExpr struct {
	Exprs  []Expr   // one entry unless tuple form
	List   [][]Expr // value tuples
	Sub    *SelectStmt
	Negate bool
}

// Frame is a ROWS BETWEEN N PRECEDING AND CURRENT ROW frame.
type Frame struct {
	Preceding int64
	Unbounded bool
}

// OrderItem is one ORDER BY key: a 1-based output position, a column
// name, or a scalar expression.
type OrderItem struct {
	Expr     Expr
	Position int // 1-based when the key is an integer literal
	Desc     bool
}

// WindowExpr is a function applied OVER a window specification.
type WindowExpr struct {
	Func        FuncCall
	PartitionBy []Expr
	OrderBy     *OrderItem
	Frame       *Frame
}

// SelectItem is one projection: an expression with an optional alias, or
// the bare star.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
}

// TableRef names a FROM or JOIN source with an optional alias.
type TableRef struct {
	Name  string
	Alias string
}

// JoinClause is an equi join with one or more ON equalities.
type JoinClause struct {
	Left  bool // LEFT JOIN when true, INNER otherwise
	Table TableRef
	On    []Binary // each Op is "=" over two idents
}

// CTE is one WITH entry.
type CTE struct {
	Name   string
	Select *SelectStmt
}

// SelectStmt is a parsed SELECT.
type SelectStmt struct {
	With    []CTE
	Items   []SelectItem
	From    *TableRef
	Joins   []JoinClause
	Where   Expr
	GroupBy []Expr
	Having  Expr
	OrderBy []OrderItem
	Limit   *int64
	Offset  *int64
}

// UpdateAssign is one SET column = EXCLUDED.column assignment of an
// UPSERT's conflict clause.
type UpdateAssign struct {
	Column string
	Value  Expr // nil means EXCLUDED.Column
}

// ConflictClause describes ON CONFLICT ... DO UPDATE or the KEY (...)
// form of UPSERT INTO.
type ConflictClause struct {
	KeyColumns []string
	Updates    []UpdateAssign
}

// InsertStmt is INSERT or UPSERT. A non-nil OnConflict makes it an
// upsert keyed by the conflict columns.
type InsertStmt struct {
	Table      string
	Columns    []string
	Rows       [][]Expr
	OnConflict *ConflictClause
}

// CreateTableStmt declares a new table.
type CreateTableStmt struct {
	Name   string
	Schema []table.ColumnDef
}

func (*SelectStmt) stmt()      {}
func (*InsertStmt) stmt()      {}
func (*CreateTableStmt) stmt() {}

func (*Literal) expr()    {}
func (*Ident) expr()      {}
func (*Star) expr()       {}
func (*Unary) expr()      {}
func (*Binary) expr()     {}
func (*Not) expr()        {}
func (*FuncCall) expr()   {}
func (*InExpr) expr()     {}
func (*WindowExpr) expr() {}
