package sql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/ndts/errs"
	"github.com/arloliu/ndts/format"
)

func TestParse_SelectShape(t *testing.T) {
	stmt, err := Parse(`WITH recent AS (SELECT ts, price FROM ticks WHERE ts > 100)
		SELECT r.price AS p, COUNT(*) FROM recent r
		WHERE p > 0 AND r.ts IN (1, 2, 3)
		GROUP BY r.price HAVING COUNT(*) > 1
		ORDER BY 1 DESC LIMIT 10 OFFSET 5`)
	require.NoError(t, err)

	sel, ok := stmt.(*SelectStmt)
	require.True(t, ok)
	require.Len(t, sel.With, 1)
	require.Equal(t, "recent", sel.With[0].Name)
	require.Len(t, sel.Items, 2)
	require.Equal(t, "p", sel.Items[0].Alias)
	require.Equal(t, "recent", sel.From.Name)
	require.Equal(t, "r", sel.From.Alias)
	require.NotNil(t, sel.Where)
	require.Len(t, sel.GroupBy, 1)
	require.NotNil(t, sel.Having)
	require.Len(t, sel.OrderBy, 1)
	require.Equal(t, 1, sel.OrderBy[0].Position)
	require.True(t, sel.OrderBy[0].Desc)
	require.Equal(t, int64(10), *sel.Limit)
	require.Equal(t, int64(5), *sel.Offset)
}

func TestParse_WindowSpec(t *testing.T) {
	stmt, err := Parse("SELECT STDDEV(x) OVER (PARTITION BY a, b ORDER BY ts ROWS BETWEEN 95 PRECEDING AND CURRENT ROW) AS v FROM t")
	require.NoError(t, err)

	sel := stmt.(*SelectStmt)
	w, ok := sel.Items[0].Expr.(*WindowExpr)
	require.True(t, ok)
	require.Equal(t, "STDDEV", w.Func.Name)
	require.Len(t, w.PartitionBy, 2)
	require.NotNil(t, w.OrderBy)
	require.False(t, w.OrderBy.Desc)
	require.NotNil(t, w.Frame)
	require.Equal(t, int64(95), w.Frame.Preceding)
	require.False(t, w.Frame.Unbounded)
}

func TestParse_UnboundedFrame(t *testing.T) {
	stmt, err := Parse("SELECT SUM(x) OVER (ORDER BY ts ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW) FROM t")
	require.NoError(t, err)

	w := stmt.(*SelectStmt).Items[0].Expr.(*WindowExpr)
	require.True(t, w.Frame.Unbounded)
}

func TestParse_InlineWindowExpression(t *testing.T) {
	stmt, err := Parse("SELECT STDDEV(x) OVER (ORDER BY ts ROWS BETWEEN 9 PRECEDING AND CURRENT ROW) / SQRT(10) AS se FROM t")
	require.NoError(t, err)

	sel := stmt.(*SelectStmt)
	require.True(t, containsWindow(sel.Items[0].Expr))

	var found []*WindowExpr
	rewritten := rewriteWindows(sel.Items[0].Expr, &found)
	require.Len(t, found, 1)
	require.False(t, containsWindow(rewritten))
}

func TestParse_UpsertForms(t *testing.T) {
	stmt, err := Parse("UPSERT INTO t (a, b, c) VALUES (1, 2, 3) KEY (a)")
	require.NoError(t, err)
	ins := stmt.(*InsertStmt)
	require.NotNil(t, ins.OnConflict)
	require.Equal(t, []string{"a"}, ins.OnConflict.KeyColumns)
	require.Len(t, ins.OnConflict.Updates, 2) // b and c

	stmt, err = Parse("INSERT INTO t (a, b) VALUES (1, 2) ON CONFLICT (a) DO UPDATE SET b = EXCLUDED.b")
	require.NoError(t, err)
	ins = stmt.(*InsertStmt)
	require.NotNil(t, ins.OnConflict)
	require.Len(t, ins.OnConflict.Updates, 1)
}

func TestParse_CreateTableTypes(t *testing.T) {
	stmt, err := Parse("CREATE TABLE t (a SMALLINT, b INT32, c BIGINT, d DOUBLE, e TEXT)")
	require.NoError(t, err)

	ct := stmt.(*CreateTableStmt)
	require.Equal(t, format.TypeInt16, ct.Schema[0].Type)
	require.Equal(t, format.TypeInt32, ct.Schema[1].Type)
	require.Equal(t, format.TypeInt64, ct.Schema[2].Type)
	require.Equal(t, format.TypeFloat64, ct.Schema[3].Type)
	require.Equal(t, format.TypeString, ct.Schema[4].Type)
}

func TestParse_SyntaxErrors(t *testing.T) {
	for _, query := range []string{
		"",
		"SELECT",
		"SELECT a FROM",
		"SELECT a FROM t WHERE",
		"SELECT a FROM t GROUP",
		"SELECT a FROM t extra garbage ~",
		"INSERT INTO t VALUES",
		"SELECT 'unterminated FROM t",
		"SELECT (a, b) FROM t",
	} {
		_, err := Parse(query)
		require.Error(t, err, query)
		require.Equal(t, errs.KindSyntax, errs.KindOf(err), query)
	}
}

func TestParse_Comments(t *testing.T) {
	stmt, err := Parse("SELECT a -- trailing comment\nFROM t")
	require.NoError(t, err)
	require.Len(t, stmt.(*SelectStmt).Items, 1)
}

func TestParse_NotIn(t *testing.T) {
	stmt, err := Parse("SELECT a FROM t WHERE a NOT IN (1, 2)")
	require.NoError(t, err)

	in, ok := stmt.(*SelectStmt).Where.(*InExpr)
	require.True(t, ok)
	require.True(t, in.Negate)
	require.Len(t, in.List, 2)
}

func TestParse_NumberForms(t *testing.T) {
	stmt, err := Parse("SELECT 1, 2.5, 1e3, -4 FROM t")
	require.NoError(t, err)
	require.Len(t, stmt.(*SelectStmt).Items, 4)
}
