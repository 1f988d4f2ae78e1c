// Package querybuilder composes parameterized SQL against the analytics
// store's observations table and caches the results (§4.C). It wraps
// Masterminds/squirrel the way the corpus's fluent SQL builders do:
// squirrel handles clause composition and placeholder numbering, while
// this package adds the identifier whitelist, the specialized
// observation-shaped builders, and the terminal operations the teacher's
// repositories expose directly on their own query methods.
package querybuilder

import (
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
)

// ValidationError reports a query fragment that failed identifier or
// operator validation before ever reaching the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("querybuilder: %s: %s", e.Field, e.Reason)
}

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// functionExprRe recognizes the small set of SQL function expressions
// allowed through validation in place of a bare identifier, e.g.
// count(*), uniqExact(territory_code).
var functionExprRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*\([a-zA-Z0-9_*,. ]*\)$`)

func validateIdentifier(field, value string) error {
	if identifierRe.MatchString(value) || functionExprRe.MatchString(value) {
		return nil
	}
	return &ValidationError{Field: field, Reason: fmt.Sprintf("unsafe or unrecognized identifier %q", value)}
}

// JoinType enumerates the supported join kinds.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
	JoinFull  JoinType = "FULL"
	JoinCross JoinType = "CROSS"
)

// Builder composes one SELECT statement. Construction never touches the
// database; ToSQL surfaces the first ValidationError recorded during
// construction instead of emitting the SQL.
//
// Predicates are kept in wheres as well as folded into sb, so Count can
// rebuild a COUNT(*) query over the same filters without the
// ORDER BY/LIMIT/OFFSET/GROUP BY that a plain row-fetch accumulates —
// squirrel's SelectBuilder doesn't expose its accumulated clauses for
// introspection, so the builder tracks them itself.
type Builder struct {
	sb       sq.SelectBuilder
	wheres   []sq.Sqlizer
	validErr error
	table    string
}

// Select starts a new builder projecting the given columns (or
// expressions, e.g. "count(*)").
func Select(columns ...string) *Builder {
	b := &Builder{sb: sq.Select().PlaceholderFormat(sq.Dollar)}
	for _, c := range columns {
		if err := validateIdentifier("select", c); err != nil {
			b.validErr = err
			continue
		}
		b.sb = b.sb.Column(c)
	}
	return b
}

// From sets the source table.
func (b *Builder) From(table string) *Builder {
	if err := validateIdentifier("from_table", table); err != nil {
		b.validErr = err
		return b
	}
	b.table = table
	b.sb = b.sb.From(table)
	return b
}

func (b *Builder) addWhere(pred sq.Sqlizer) {
	b.wheres = append(b.wheres, pred)
	b.sb = b.sb.Where(pred)
}

// Join adds a join clause of the given type.
func (b *Builder) Join(joinType JoinType, table, onCondition string) *Builder {
	if err := validateIdentifier("join_table", table); err != nil {
		b.validErr = err
		return b
	}
	clause := fmt.Sprintf("%s %s", table, onCondition)
	switch joinType {
	case JoinInner:
		b.sb = b.sb.Join(clause)
	case JoinLeft:
		b.sb = b.sb.LeftJoin(clause)
	case JoinRight:
		b.sb = b.sb.RightJoin(clause)
	case JoinFull, JoinCross:
		// squirrel has no FULL/CROSS helper; compose the raw clause.
		b.sb = b.sb.JoinClause(fmt.Sprintf("%s JOIN %s", joinType, clause))
	default:
		b.validErr = &ValidationError{Field: "join", Reason: fmt.Sprintf("unknown join type %q", joinType)}
	}
	return b
}

// Where adds an equality/comparison predicate. op must be one of the
// operators enumerated in §4.C; IN/NOT IN/BETWEEN have dedicated methods
// since their value shape differs from a scalar comparison.
func (b *Builder) Where(column, op string, value interface{}) *Builder {
	if err := validateIdentifier("where", column); err != nil {
		b.validErr = err
		return b
	}
	switch op {
	case "=":
		b.addWhere(sq.Eq{column: value})
	case "!=":
		b.addWhere(sq.NotEq{column: value})
	case ">":
		b.addWhere(sq.Gt{column: value})
	case ">=":
		b.addWhere(sq.GtOrEq{column: value})
	case "<":
		b.addWhere(sq.Lt{column: value})
	case "<=":
		b.addWhere(sq.LtOrEq{column: value})
	case "LIKE":
		b.addWhere(sq.Like{column: value})
	case "ILIKE":
		b.addWhere(sq.ILike{column: value})
	default:
		b.validErr = &ValidationError{Field: "where", Reason: fmt.Sprintf("unsupported operator %q", op)}
	}
	return b
}

// WhereIn adds a column IN (values...) predicate; values must be non-empty.
func (b *Builder) WhereIn(column string, values []interface{}) *Builder {
	if err := validateIdentifier("where_in", column); err != nil {
		b.validErr = err
		return b
	}
	if len(values) == 0 {
		b.validErr = &ValidationError{Field: "where_in", Reason: "values must be non-empty"}
		return b
	}
	b.addWhere(sq.Eq{column: values})
	return b
}

// WhereNotIn adds a column NOT IN (values...) predicate.
func (b *Builder) WhereNotIn(column string, values []interface{}) *Builder {
	if err := validateIdentifier("where_not_in", column); err != nil {
		b.validErr = err
		return b
	}
	if len(values) == 0 {
		b.validErr = &ValidationError{Field: "where_not_in", Reason: "values must be non-empty"}
		return b
	}
	b.addWhere(sq.NotEq{column: values})
	return b
}

// WhereBetween adds a BETWEEN predicate; bounds must be a 2-tuple.
func (b *Builder) WhereBetween(column string, bounds [2]interface{}) *Builder {
	if err := validateIdentifier("where_between", column); err != nil {
		b.validErr = err
		return b
	}
	b.addWhere(sq.Expr(fmt.Sprintf("%s BETWEEN ? AND ?", column), bounds[0], bounds[1]))
	return b
}

// WhereNull adds an IS NULL predicate.
func (b *Builder) WhereNull(column string) *Builder {
	if err := validateIdentifier("where_null", column); err != nil {
		b.validErr = err
		return b
	}
	b.addWhere(sq.Expr(column + " IS NULL"))
	return b
}

// WhereNotNull adds an IS NOT NULL predicate.
func (b *Builder) WhereNotNull(column string) *Builder {
	if err := validateIdentifier("where_not_null", column); err != nil {
		b.validErr = err
		return b
	}
	b.addWhere(sq.Expr(column + " IS NOT NULL"))
	return b
}

// GroupBy adds a GROUP BY clause.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, c := range columns {
		if err := validateIdentifier("group_by", c); err != nil {
			b.validErr = err
			return b
		}
	}
	b.sb = b.sb.GroupBy(columns...)
	return b
}

// Having adds a HAVING clause. expr and args are passed to squirrel as
// given; expr is not validated the way WHERE columns are.
func (b *Builder) Having(expr string, args ...interface{}) *Builder {
	b.sb = b.sb.Having(expr, args...)
	return b
}

// OrderBy adds an ORDER BY clause; dir must be ASC or DESC.
func (b *Builder) OrderBy(column, dir string) *Builder {
	if err := validateIdentifier("order_by", column); err != nil {
		b.validErr = err
		return b
	}
	if dir != "ASC" && dir != "DESC" {
		b.validErr = &ValidationError{Field: "order_by", Reason: fmt.Sprintf("invalid direction %q", dir)}
		return b
	}
	b.sb = b.sb.OrderBy(fmt.Sprintf("%s %s", column, dir))
	return b
}

// Limit sets the row cap; n must be >= 0.
func (b *Builder) Limit(n uint64) *Builder {
	b.sb = b.sb.Limit(n)
	return b
}

// Offset sets the row offset; n must be >= 0.
func (b *Builder) Offset(n uint64) *Builder {
	b.sb = b.sb.Offset(n)
	return b
}

// ToSQL renders the final (sql, params), or returns the first validation
// error encountered during construction.
func (b *Builder) ToSQL() (string, []interface{}, error) {
	if b.validErr != nil {
		return "", nil, b.validErr
	}
	return b.sb.ToSql()
}

// Distinct marks the builder's projection DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.sb = b.sb.Distinct()
	return b
}

// Count rewrites the builder to a row-count query, stripping
// ORDER BY/LIMIT/OFFSET/GROUP BY per §4.C, keeping only the accumulated
// WHERE predicates.
func (b *Builder) Count() *Builder {
	cp := &Builder{
		sb:       sq.Select("COUNT(*)").PlaceholderFormat(sq.Dollar).From(b.table),
		wheres:   b.wheres,
		validErr: b.validErr,
		table:    b.table,
	}
	for _, w := range b.wheres {
		cp.sb = cp.sb.Where(w)
	}
	return cp
}

// First appends LIMIT 1.
func (b *Builder) First() *Builder {
	return b.Limit(1)
}

// Explain wraps the rendered SQL in an EXPLAIN for diagnostics.
func (b *Builder) Explain() (string, []interface{}, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return "", nil, err
	}
	return "EXPLAIN " + query, args, nil
}
