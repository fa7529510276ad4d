package clean

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Phillip-Gao/Flight-Forecast/internal/dataset"
	"github.com/Phillip-Gao/Flight-Forecast/internal/errs"
)

// ErrQueryResolution is returned when a filter references a column the table
// does not have, or uses a column in a way its type does not allow.
var ErrQueryResolution = errors.New("query resolution failed")

// Filter keeps the rows of df for which src evaluates to true. Rows where it
// evaluates to false or unknown (null) are dropped.
//
// Filters are expr expressions over the table's columns:
//
//	(OriginState == 'PA' || DestState == 'PA') && !Cancelled && !Diverted
//
// Comparisons, in, not, and, or and parentheses are supported. A comparison
// with a null operand is unknown and the connectives follow SQL three-valued
// logic. Every column is resolved and type checked before any row is
// evaluated, so a bad reference fails the whole call.
func Filter(df dataframe.DataFrame, src string) (dataframe.DataFrame, error) {
	q, err := CompileFilter(src)
	if err != nil {
		return dataframe.DataFrame{}, err
	}
	return q.Apply(df)
}

// Query is a parsed filter expression.
type Query struct {
	src     string
	columns []string
}

// CompileFilter parses src. Syntax errors and unsupported constructs are
// ConfigurationErrors.
func CompileFilter(src string) (*Query, error) {
	if strings.TrimSpace(src) == "" {
		return nil, errs.Configurationf("compile filter", "empty filter expression")
	}
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, errs.Configuration("compile filter", err)
	}
	v := &syntaxCheck{seen: map[string]bool{}}
	ast.Walk(&tree.Node, v)
	if v.err != nil {
		return nil, errs.Configuration("compile filter", v.err)
	}
	return &Query{src: src, columns: v.names}, nil
}

// String returns the source expression.
func (q *Query) String() string { return q.src }

// Columns lists the column names the query references, in first-use order.
func (q *Query) Columns() []string { return append([]string(nil), q.columns...) }

// Apply evaluates the query over df.
func (q *Query) Apply(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	cols, err := resolveColumns(df, q.columns)
	if err != nil {
		return dataframe.DataFrame{}, err
	}

	typed := make(map[string]any, len(cols))
	for name, col := range cols {
		switch col.Type() {
		case series.String:
			typed[name] = ""
		case series.Bool:
			typed[name] = false
		default:
			typed[name] = 0.0
		}
	}
	if _, err := expr.Compile(q.src, expr.Env(typed), expr.AsBool()); err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("filter", fmt.Errorf("%w: %v", ErrQueryResolution, err))
	}
	opts := append([]expr.Option{expr.Env(typed), expr.Patch(nullAware{})}, nullAwareFuncs...)
	program, err := expr.Compile(q.src, opts...)
	if err != nil {
		return dataframe.DataFrame{}, errs.DataIntegrity("filter", fmt.Errorf("%w: %v", ErrQueryResolution, err))
	}

	values := make(map[string][]any, len(cols))
	for name, col := range cols {
		values[name] = cellValues(col)
	}
	n := df.Nrow()
	keep := make([]bool, n)
	env := make(map[string]any, len(cols))
	var machine vm.VM
	for i := 0; i < n; i++ {
		for name, vs := range values {
			env[name] = vs[i]
		}
		out, err := machine.Run(program, env)
		if err != nil {
			return dataframe.DataFrame{}, errs.DataIntegrity("filter", fmt.Errorf("row %d: %w", i, err))
		}
		keep[i] = out == true
	}
	return dataset.KeepRows(df, keep)
}

// resolveColumns maps every referenced name to its column. Exact matches win,
// then a unique case-insensitive match, like SQL identifiers.
func resolveColumns(df dataframe.DataFrame, names []string) (map[string]series.Series, error) {
	all := df.Names()
	out := make(map[string]series.Series, len(names))
	for _, name := range names {
		actual := ""
		for _, n := range all {
			if n == name {
				actual = n
				break
			}
		}
		if actual == "" {
			for _, n := range all {
				if strings.EqualFold(n, name) {
					if actual != "" {
						return nil, errs.DataIntegrity("filter", fmt.Errorf("%w: ambiguous column name: %s", ErrQueryResolution, name))
					}
					actual = n
				}
			}
		}
		if actual == "" {
			return nil, errs.DataIntegrity("filter", fmt.Errorf("%w: no such column: %s", ErrQueryResolution, name))
		}
		out[name] = df.Col(actual)
	}
	return out, nil
}

// cellValues reads col as expr values: string, bool or float64, with nil
// for nulls.
func cellValues(col series.Series) []any {
	out := make([]any, col.Len())
	for i := range out {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		switch col.Type() {
		case series.String:
			out[i] = e.String()
		case series.Bool:
			b, err := e.Bool()
			if err == nil {
				out[i] = b
			}
		default:
			if f := e.Float(); !math.IsNaN(f) {
				out[i] = f
			}
		}
	}
	return out
}

var comparisons = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// syntaxCheck collects column names and rejects anything beyond literals,
// comparisons, in and the logical connectives.
type syntaxCheck struct {
	names []string
	seen  map[string]bool
	err   error
}

func (c *syntaxCheck) Visit(node *ast.Node) {
	if c.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if !c.seen[n.Value] {
			c.seen[n.Value] = true
			c.names = append(c.names, n.Value)
		}
	case *ast.BinaryNode:
		switch {
		case comparisons[n.Operator], n.Operator == "in":
		case n.Operator == "and", n.Operator == "&&", n.Operator == "or", n.Operator == "||":
		default:
			c.err = fmt.Errorf("operator %q is not supported in a filter", n.Operator)
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "not", "!", "-", "+":
		default:
			c.err = fmt.Errorf("operator %q is not supported in a filter", n.Operator)
		}
	case *ast.StringNode, *ast.IntegerNode, *ast.FloatNode, *ast.BoolNode, *ast.ArrayNode:
	default:
		c.err = fmt.Errorf("%T is not supported in a filter", n)
	}
}

// nullAware rewrites operators into calls that treat nil as unknown.
type nullAware struct{}

func (nullAware) Visit(node *ast.Node) {
	call := func(name string, args ...ast.Node) {
		*node = &ast.CallNode{Callee: &ast.IdentifierNode{Value: name}, Arguments: args}
	}
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		switch n.Operator {
		case "and", "&&":
			call("filterAnd", n.Left, n.Right)
		case "or", "||":
			call("filterOr", n.Left, n.Right)
		case "in":
			call("filterIn", n.Left, n.Right)
		default:
			call("filterCompare", &ast.StringNode{Value: n.Operator}, n.Left, n.Right)
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "not", "!":
			call("filterNot", n.Node)
		case "-":
			call("filterNeg", n.Node)
		case "+":
			*node = n.Node
		}
	}
}

var nullAwareFuncs = []expr.Option{
	expr.Function("filterAnd", func(p ...any) (any, error) {
		a, b := p[0], p[1]
		if a == false || b == false {
			return false, nil
		}
		if a == nil || b == nil {
			return nil, nil
		}
		return true, nil
	}),
	expr.Function("filterOr", func(p ...any) (any, error) {
		a, b := p[0], p[1]
		if a == true || b == true {
			return true, nil
		}
		if a == nil || b == nil {
			return nil, nil
		}
		return false, nil
	}),
	expr.Function("filterNot", func(p ...any) (any, error) {
		b, ok := p[0].(bool)
		if !ok {
			return nil, nil
		}
		return !b, nil
	}),
	expr.Function("filterNeg", func(p ...any) (any, error) {
		if p[0] == nil {
			return nil, nil
		}
		f, ok := number(p[0])
		if !ok {
			return nil, fmt.Errorf("cannot negate %v", p[0])
		}
		return -f, nil
	}),
	expr.Function("filterCompare", func(p ...any) (any, error) {
		op, _ := p[0].(string)
		return compare(op, p[1], p[2])
	}),
	expr.Function("filterIn", func(p ...any) (any, error) {
		if p[0] == nil {
			return nil, nil
		}
		list, ok := p[1].([]any)
		if !ok {
			return nil, fmt.Errorf("in needs a list, got %T", p[1])
		}
		for _, v := range list {
			eq, err := compare("==", p[0], v)
			if err != nil {
				return nil, err
			}
			if eq == true {
				return true, nil
			}
		}
		return false, nil
	}),
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		// bools compare with 0/1
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// compare applies op to a and b. A nil operand gives nil (unknown).
func compare(op string, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	var c int
	as, aStr := a.(string)
	bs, bStr := b.(string)
	switch {
	case aStr && bStr:
		c = strings.Compare(as, bs)
	case !aStr && !bStr:
		x, okA := number(a)
		y, okB := number(b)
		if !okA || !okB {
			return nil, fmt.Errorf("cannot compare %v with %v", a, b)
		}
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	default:
		return nil, fmt.Errorf("cannot compare %v with %v", a, b)
	}
	switch op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return nil, fmt.Errorf("unknown comparison %q", op)
}
