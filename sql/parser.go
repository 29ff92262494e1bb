package sql

import (
	"strconv"
	"strings"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
	"github.com/arloliu/ndts/table"
)

// tupleGroup is a parenthesized expression list; it is only legal as the
// left side of IN and never escapes the parser.
type tupleGroup struct {
	Exprs []Expr
}

func (*tupleGroup) expr() {}

type parser struct {
	tokens []Token
	pos    int
}

// Parse tokenizes and parses one statement.
func Parse(input string) (Statement, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if !p.peek().isSymbol(";") && p.peek().Type != tokenEOF {
		return nil, p.syntaxf("unexpected trailing input %q", p.peek().Text)
	}

	return stmt, nil
}

func (p *parser) peek() Token { return p.tokens[p.pos] }

func (p *parser) next() Token {
	tok := p.tokens[p.pos]
	if tok.Type != tokenEOF {
		p.pos++
	}

	return tok
}

func (p *parser) matchKeyword(kw string) bool {
	if p.peek().isKeyword(kw) {
		p.pos++
		return true
	}

	return false
}

func (p *parser) matchSymbol(sym string) bool {
	if p.peek().isSymbol(sym) {
		p.pos++
		return true
	}

	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.matchKeyword(kw) {
		return p.syntaxf("expected %s, got %q", kw, p.peek().Text)
	}

	return nil
}

func (p *parser) expectSymbol(sym string) error {
	if !p.matchSymbol(sym) {
		return p.syntaxf("expected %q, got %q", sym, p.peek().Text)
	}

	return nil
}

func (p *parser) syntaxf(format string, args ...any) error {
	return errs.Wrapf(errs.KindSyntax, errs.ErrSyntax, format, args...)
}

var reservedAfterTable = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP": true, "HAVING": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "JOIN": true,
	"INNER": true, "LEFT": true, "ON": true, "AND": true, "OR": true,
	"AS": true, "UNION": true, "KEY": true, "VALUES": true, "SET": true,
	"ASC": true, "DESC": true, "OVER": true, "NOT": true, "IN": true,
	"LIKE": true, "BETWEEN": true, "ROWS": true,
}

func (p *parser) parseStatement() (Statement, error) {
	switch {
	case p.peek().isKeyword("SELECT"), p.peek().isKeyword("WITH"):
		return p.parseSelect()
	case p.peek().isKeyword("INSERT"):
		return p.parseInsert(false)
	case p.peek().isKeyword("UPSERT"):
		return p.parseInsert(true)
	case p.peek().isKeyword("CREATE"):
		return p.parseCreateTable()
	default:
		return nil, p.syntaxf("expected a statement, got %q", p.peek().Text)
	}
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	stmt := &SelectStmt{}

	if p.matchKeyword("WITH") {
		for {
			nameTok := p.next()
			if nameTok.Type != tokenIdent {
				return nil, p.syntaxf("expected CTE name, got %q", nameTok.Text)
			}
			if err := p.expectKeyword("AS"); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("("); err != nil {
				return nil, err
			}
			inner, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			stmt.With = append(stmt.With, CTE{Name: nameTok.Text, Select: inner})
			if !p.matchSymbol(",") {
				break
			}
		}
	}

	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if !p.matchSymbol(",") {
			break
		}
	}

	if p.matchKeyword("FROM") {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = &ref

		for {
			join, ok, err := p.parseJoin()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			stmt.Joins = append(stmt.Joins, join)
		}
	}

	if p.matchKeyword("WHERE") {
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.matchKeyword("GROUP") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if !p.matchSymbol(",") {
				break
			}
		}
	}

	if p.matchKeyword("HAVING") {
		having, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	if p.matchKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			item, err := p.parseOrderItem()
			if err != nil {
				return nil, err
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !p.matchSymbol(",") {
				break
			}
		}
	}

	if p.matchKeyword("LIMIT") {
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Limit = &n
	}
	if p.matchKeyword("OFFSET") {
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Offset = &n
	}

	return stmt, nil
}

func (p *parser) parseIntLiteral() (int64, error) {
	tok := p.next()
	if tok.Type != tokenNumber {
		return 0, p.syntaxf("expected integer, got %q", tok.Text)
	}
	n, err := strconv.ParseInt(tok.Text, 10, 64)
	if err != nil {
		return 0, p.syntaxf("invalid integer %q", tok.Text)
	}

	return n, nil
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.matchSymbol("*") {
		return SelectItem{Star: true}, nil
	}

	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}

	item := SelectItem{Expr: e}
	if p.matchKeyword("AS") {
		tok := p.next()
		if tok.Type != tokenIdent {
			return SelectItem{}, p.syntaxf("expected alias, got %q", tok.Text)
		}
		item.Alias = tok.Text
	} else if p.peek().Type == tokenIdent && !reservedAfterTable[strings.ToUpper(p.peek().Text)] {
		item.Alias = p.next().Text
	}

	return item, nil
}

func (p *parser) parseTableRef() (TableRef, error) {
	tok := p.next()
	if tok.Type != tokenIdent {
		return TableRef{}, p.syntaxf("expected table name, got %q", tok.Text)
	}

	ref := TableRef{Name: tok.Text}
	if p.matchKeyword("AS") {
		alias := p.next()
		if alias.Type != tokenIdent {
			return TableRef{}, p.syntaxf("expected table alias, got %q", alias.Text)
		}
		ref.Alias = alias.Text
	} else if p.peek().Type == tokenIdent && !reservedAfterTable[strings.ToUpper(p.peek().Text)] {
		ref.Alias = p.next().Text
	}

	return ref, nil
}

func (p *parser) parseJoin() (JoinClause, bool, error) {
	var join JoinClause
	switch {
	case p.matchKeyword("JOIN"):
	case p.peek().isKeyword("INNER"):
		p.next()
		if err := p.expectKeyword("JOIN"); err != nil {
			return join, false, err
		}
	case p.peek().isKeyword("LEFT"):
		p.next()
		p.matchKeyword("OUTER")
		if err := p.expectKeyword("JOIN"); err != nil {
			return join, false, err
		}
		join.Left = true
	default:
		return join, false, nil
	}

	ref, err := p.parseTableRef()
	if err != nil {
		return join, false, err
	}
	join.Table = ref

	if err := p.expectKeyword("ON"); err != nil {
		return join, false, err
	}
	for {
		l, err := p.parseAdditive()
		if err != nil {
			return join, false, err
		}
		if err := p.expectSymbol("="); err != nil {
			return join, false, err
		}
		r, err := p.parseAdditive()
		if err != nil {
			return join, false, err
		}
		join.On = append(join.On, Binary{Op: "=", L: l, R: r})
		if !p.matchKeyword("AND") {
			break
		}
	}

	return join, true, nil
}

func (p *parser) parseOrderItem() (OrderItem, error) {
	var item OrderItem
	if p.peek().Type == tokenNumber && !strings.Contains(p.peek().Text, ".") {
		n, err := p.parseIntLiteral()
		if err != nil {
			return item, err
		}
		item.Position = int(n)
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return item, err
		}
		item.Expr = e
	}

	if p.matchKeyword("DESC") {
		item.Desc = true
	} else {
		p.matchKeyword("ASC")
	}

	return item, nil
}

// Expression grammar, lowest to highest precedence:
// OR, AND, NOT, comparison/LIKE/IN, additive (+ - ||),
// multiplicative (* / %), unary, primary.

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", L: left, R: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", L: left, R: right}
	}

	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.matchKeyword("NOT") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}

		return &Not{X: x}, nil
	}

	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	negate := false
	if p.peek().isKeyword("NOT") && p.tokens[p.pos+1].isKeyword("IN") {
		p.next()
		negate = true
	}

	if p.matchKeyword("IN") {
		return p.parseInTail(left, negate)
	}
	if negate {
		return nil, p.syntaxf("expected IN after NOT")
	}

	if tg, ok := left.(*tupleGroup); ok {
		return nil, p.syntaxf("expression list of %d values is only valid before IN", len(tg.Exprs))
	}

	for _, op := range []string{"=", "!=", "<>", "<=", ">=", "<", ">"} {
		if p.matchSymbol(op) {
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}

			return &Binary{Op: op, L: left, R: right}, nil
		}
	}

	if p.matchKeyword("LIKE") {
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}

		return &Binary{Op: "LIKE", L: left, R: right}, nil
	}

	return left, nil
}

func (p *parser) parseInTail(left Expr, negate bool) (Expr, error) {
	in := &InExpr{Negate: negate}
	if tg, ok := left.(*tupleGroup); ok {
		in.Exprs = tg.Exprs
	} else {
		in.Exprs = []Expr{left}
	}

	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	// Empty list: IN () is always false.
	if p.matchSymbol(")") {
		return in, nil
	}

	if p.peek().isKeyword("SELECT") || p.peek().isKeyword("WITH") {
		sub, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		in.Sub = sub

		return in, nil
	}

	for {
		tuple, err := p.parseInElement(len(in.Exprs))
		if err != nil {
			return nil, err
		}
		in.List = append(in.List, tuple)
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return in, nil
}

func (p *parser) parseInElement(arity int) ([]Expr, error) {
	if arity > 1 {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		tuple := make([]Expr, 0, arity)
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, e)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		if len(tuple) != arity {
			return nil, p.syntaxf("IN tuple arity %d does not match %d", len(tuple), arity)
		}

		return tuple, nil
	}

	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	return []Expr{e}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSymbol("+"):
			op = "+"
		case p.matchSymbol("-"):
			op = "-"
		case p.matchSymbol("||"):
			op = "||"
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.matchSymbol("*"):
			op = "*"
		case p.matchSymbol("/"):
			op = "/"
		case p.matchSymbol("%"):
			op = "%"
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.matchSymbol("-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return &Unary{Op: "-", X: x}, nil
	}
	if p.matchSymbol("+") {
		return p.parseUnary()
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case tokenNumber:
		p.next()
		if strings.ContainsAny(tok.Text, ".eE") {
			f, err := strconv.ParseFloat(tok.Text, 64)
			if err != nil {
				return nil, p.syntaxf("invalid number %q", tok.Text)
			}

			return &Literal{Val: table.Float(f)}, nil
		}
		n, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.syntaxf("invalid number %q", tok.Text)
		}

		return &Literal{Val: table.Int(n)}, nil
	case tokenString:
		p.next()

		return &Literal{Val: table.Str(tok.Text)}, nil
	case tokenSymbol:
		if tok.Text == "(" {
			p.next()
			first, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if p.matchSymbol(",") {
				tg := &tupleGroup{Exprs: []Expr{first}}
				for {
					e, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					tg.Exprs = append(tg.Exprs, e)
					if !p.matchSymbol(",") {
						break
					}
				}
				if err := p.expectSymbol(")"); err != nil {
					return nil, err
				}

				return tg, nil
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}

			return first, nil
		}
	case tokenIdent:
		if tok.isKeyword("NULL") {
			p.next()

			return &Literal{Val: table.Null()}, nil
		}

		return p.parseIdentOrCall()
	}

	return nil, p.syntaxf("unexpected token %q", tok.Text)
}

func (p *parser) parseIdentOrCall() (Expr, error) {
	nameTok := p.next()

	if p.matchSymbol("(") {
		call := FuncCall{Name: strings.ToUpper(nameTok.Text)}
		if p.matchSymbol("*") {
			call.Star = true
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
		} else if p.matchSymbol(")") {
			// zero-arg call such as ROW_NUMBER()
		} else {
			for {
				arg, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, arg)
				if !p.matchSymbol(",") {
					break
				}
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
		}

		if p.peek().isKeyword("OVER") {
			p.next()

			return p.parseWindowSpec(call)
		}

		return &call, nil
	}

	ident := &Ident{Name: nameTok.Text}
	if p.matchSymbol(".") {
		colTok := p.next()
		if colTok.Type != tokenIdent {
			return nil, p.syntaxf("expected column after %q.", nameTok.Text)
		}
		ident.Qualifier = nameTok.Text
		ident.Name = colTok.Text
	}

	return ident, nil
}

func (p *parser) parseWindowSpec(call FuncCall) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	w := &WindowExpr{Func: call}

	if p.matchKeyword("PARTITION") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			w.PartitionBy = append(w.PartitionBy, e)
			if !p.matchSymbol(",") {
				break
			}
		}
	}

	if p.matchKeyword("ORDER") {
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		item, err := p.parseOrderItem()
		if err != nil {
			return nil, err
		}
		w.OrderBy = &item
	}

	if p.matchKeyword("ROWS") {
		if err := p.expectKeyword("BETWEEN"); err != nil {
			return nil, err
		}
		frame := &Frame{}
		if p.matchKeyword("UNBOUNDED") {
			frame.Unbounded = true
		} else {
			n, err := p.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			frame.Preceding = n
		}
		if err := p.expectKeyword("PRECEDING"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("CURRENT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("ROW"); err != nil {
			return nil, err
		}
		w.Frame = frame
	}

	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return w, nil
}

func (p *parser) parseInsert(upsert bool) (Statement, error) {
	p.next() // INSERT or UPSERT
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}

	nameTok := p.next()
	if nameTok.Type != tokenIdent {
		return nil, p.syntaxf("expected table name, got %q", nameTok.Text)
	}
	stmt := &InsertStmt{Table: nameTok.Text}

	if p.matchSymbol("(") {
		for {
			col := p.next()
			if col.Type != tokenIdent {
				return nil, p.syntaxf("expected column name, got %q", col.Text)
			}
			stmt.Columns = append(stmt.Columns, col.Text)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
	}

	if err := p.expectKeyword("VALUES"); err != nil {
		return nil, err
	}
	for {
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		var row []Expr
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			row = append(row, e)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if !p.matchSymbol(",") {
			break
		}
	}

	if upsert {
		if err := p.expectKeyword("KEY"); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		conflict := &ConflictClause{}
		for {
			col := p.next()
			if col.Type != tokenIdent {
				return nil, p.syntaxf("expected key column, got %q", col.Text)
			}
			conflict.KeyColumns = append(conflict.KeyColumns, col.Text)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		// Every non-key insert column is assigned from the incoming row.
		keys := make(map[string]bool, len(conflict.KeyColumns))
		for _, k := range conflict.KeyColumns {
			keys[k] = true
		}
		for _, col := range stmt.Columns {
			if !keys[col] {
				conflict.Updates = append(conflict.Updates, UpdateAssign{Column: col})
			}
		}
		stmt.OnConflict = conflict

		return stmt, nil
	}

	if p.matchKeyword("ON") {
		if err := p.expectKeyword("CONFLICT"); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		conflict := &ConflictClause{}
		for {
			col := p.next()
			if col.Type != tokenIdent {
				return nil, p.syntaxf("expected conflict column, got %q", col.Text)
			}
			conflict.KeyColumns = append(conflict.KeyColumns, col.Text)
			if !p.matchSymbol(",") {
				break
			}
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("DO"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("UPDATE"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("SET"); err != nil {
			return nil, err
		}
		for {
			col := p.next()
			if col.Type != tokenIdent {
				return nil, p.syntaxf("expected column in SET, got %q", col.Text)
			}
			if err := p.expectSymbol("="); err != nil {
				return nil, err
			}

			assign := UpdateAssign{Column: col.Text}
			if p.peek().isKeyword("EXCLUDED") {
				p.next()
				if err := p.expectSymbol("."); err != nil {
					return nil, err
				}
				src := p.next()
				if src.Type != tokenIdent {
					return nil, p.syntaxf("expected column after EXCLUDED., got %q", src.Text)
				}
				if src.Text != col.Text {
					assign.Value = &Ident{Qualifier: "EXCLUDED", Name: src.Text}
				}
			} else {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				assign.Value = e
			}
			conflict.Updates = append(conflict.Updates, assign)
			if !p.matchSymbol(",") {
				break
			}
		}
		stmt.OnConflict = conflict
	}

	return stmt, nil
}

func (p *parser) parseCreateTable() (Statement, error) {
	p.next() // CREATE
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}

	nameTok := p.next()
	if nameTok.Type != tokenIdent {
		return nil, p.syntaxf("expected table name, got %q", nameTok.Text)
	}

	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	stmt := &CreateTableStmt{Name: nameTok.Text}
	for {
		col := p.next()
		if col.Type != tokenIdent {
			return nil, p.syntaxf("expected column name, got %q", col.Text)
		}
		typTok := p.next()
		if typTok.Type != tokenIdent {
			return nil, p.syntaxf("expected column type, got %q", typTok.Text)
		}

		typ, err := p.columnType(typTok.Text)
		if err != nil {
			return nil, err
		}
		// Optional length such as VARCHAR(64); ignored.
		if p.matchSymbol("(") {
			if _, err := p.parseIntLiteral(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
		}
		stmt.Schema = append(stmt.Schema, table.ColumnDef{Name: col.Text, Type: typ})
		if !p.matchSymbol(",") {
			break
		}
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return stmt, nil
}

func (p *parser) columnType(name string) (format.ColumnType, error) {
	switch strings.ToUpper(name) {
	case "SMALLINT", "INT16":
		return format.TypeInt16, nil
	case "INT32":
		return format.TypeInt32, nil
	case "INT", "INTEGER", "BIGINT", "INT64":
		return format.TypeInt64, nil
	case "DOUBLE", "FLOAT", "REAL", "FLOAT64":
		return format.TypeFloat64, nil
	case "TEXT", "STRING", "VARCHAR":
		return format.TypeString, nil
	default:
		return 0, p.syntaxf("unknown column type %q", name)
	}
}
