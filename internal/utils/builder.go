package querybuilder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned by Build when rows and columns disagree
var ErrInvalidQuery = errors.New("invalid query")

// QueryBuilder assembles SELECT and INSERT ... ON CONFLICT statements with
// "?" placeholders. Callers rebind placeholders for their driver.
type QueryBuilder interface {
	Select(cols ...string) QueryBuilder
	From(table string) QueryBuilder
	Where(clause string, args ...interface{}) QueryBuilder
	And(clause string, args ...interface{}) QueryBuilder
	Or(clause string, args ...interface{}) QueryBuilder
	OrderBy(col string, asc bool) QueryBuilder

	Insert(cols ...string) QueryBuilder
	Into(table string) QueryBuilder
	Values(values ...interface{}) QueryBuilder
	OnConflict(cols ...string) QueryBuilder
	SetExclude(cols ...string) QueryBuilder

	Build() (string, []interface{}, error)
}

type condType int

const (
	condAnd condType = iota + 1
	condOr
)

func (c condType) String() string {
	if c == condOr {
		return "OR"
	}
	return "AND"
}

type condition struct {
	kind   condType
	clause string
	args   []interface{}
}

type queryBuilder struct {
	schema      string
	table       string
	cols        []string
	conditions  []condition
	orderBy     []string
	rows        [][]interface{}
	onConflict  []string
	excludeCols []string
}

func NewQueryBuilder(schema string) QueryBuilder {
	return &queryBuilder{schema: schema}
}

func (q *queryBuilder) Select(cols ...string) QueryBuilder {
	q.cols = append(q.cols, cols...)
	return q
}

func (q *queryBuilder) From(table string) QueryBuilder {
	q.table = table
	return q
}

func (q *queryBuilder) Where(clause string, args ...interface{}) QueryBuilder {
	return q.And(clause, args...)
}

func (q *queryBuilder) And(clause string, args ...interface{}) QueryBuilder {
	q.conditions = append(q.conditions, condition{kind: condAnd, clause: clause, args: args})
	return q
}

func (q *queryBuilder) Or(clause string, args ...interface{}) QueryBuilder {
	q.conditions = append(q.conditions, condition{kind: condOr, clause: clause, args: args})
	return q
}

func (q *queryBuilder) OrderBy(col string, asc bool) QueryBuilder {
	orderVector := "ASC"
	if !asc {
		orderVector = "DESC"
	}
	q.orderBy = append(q.orderBy, fmt.Sprintf("%s %s", col, orderVector))
	return q
}

func (q *queryBuilder) Insert(cols ...string) QueryBuilder {
	q.cols = cols
	return q
}

func (q *queryBuilder) Into(table string) QueryBuilder {
	q.table = table
	return q
}

// Values appends one row
func (q *queryBuilder) Values(values ...interface{}) QueryBuilder {
	q.rows = append(q.rows, values)
	return q
}

func (q *queryBuilder) OnConflict(cols ...string) QueryBuilder {
	q.onConflict = cols
	return q
}

// SetExclude overwrites the given columns from EXCLUDED on conflict
func (q *queryBuilder) SetExclude(cols ...string) QueryBuilder {
	q.excludeCols = cols
	return q
}

func (q *queryBuilder) Build() (string, []interface{}, error) {
	if len(q.rows) > 0 {
		return q.buildInsert()
	}
	return q.buildSelect()
}

func (q *queryBuilder) qualifiedTable() string {
	if q.schema == "" {
		return q.table
	}
	return q.schema + "." + q.table
}

func (q *queryBuilder) buildSelect() (string, []interface{}, error) {
	if len(q.cols) == 0 || q.table == "" {
		return "", nil, fmt.Errorf("%w: select needs columns and a table", ErrInvalidQuery)
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(q.cols, ", "), q.qualifiedTable())

	var args []interface{}
	if len(q.conditions) > 0 {
		parts := make([]string, 0, 2*len(q.conditions))
		for i, cond := range q.conditions {
			if i > 0 {
				parts = append(parts, cond.kind.String())
			}
			parts = append(parts, cond.clause)
			args = append(args, cond.args...)
		}
		query += " WHERE " + strings.Join(parts, " ")
	}

	if len(q.orderBy) > 0 {
		query += " ORDER BY " + strings.Join(q.orderBy, ", ")
	}
	return query, args, nil
}

func (q *queryBuilder) buildInsert() (string, []interface{}, error) {
	numOfParam := len(q.cols)
	if numOfParam == 0 || q.table == "" {
		return "", nil, fmt.Errorf("%w: insert needs columns and a table", ErrInvalidQuery)
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", numOfParam), ", ") + ")"
	valueTuples := make([]string, len(q.rows))
	args := make([]interface{}, 0, numOfParam*len(q.rows))
	for i, row := range q.rows {
		if len(row) != numOfParam {
			return "", nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrInvalidQuery, i, len(row), numOfParam)
		}
		valueTuples[i] = placeholders
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		q.qualifiedTable(), strings.Join(q.cols, ", "), strings.Join(valueTuples, ", "))

	if len(q.onConflict) > 0 {
		query += fmt.Sprintf(" ON CONFLICT (%s)", strings.Join(q.onConflict, ", "))
		if len(q.excludeCols) == 0 {
			return query + " DO NOTHING", args, nil
		}
		sets := make([]string, len(q.excludeCols))
		for i, col := range q.excludeCols {
			sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
		}
		query += " DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return query, args, nil
}
