// Package store is generic table access over gorm: filtered selects with
// ordering and pagination, inserts, updates and deletes that report affected
// rows, and a conditional owner-scoped update.
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/lexiflow/core/internal/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate wraps unique-constraint violations.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNotOwned is returned by UpdateOwned when the row exists under another owner.
	ErrNotOwned = errors.New("record owned by another user")
)

// Op is a filter operator.
type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpGte    Op = "gte"
	OpLte    Op = "lte"
	OpLike   Op = "like"
	OpIn     Op = "in"
	OpIsNull Op = "is_null"
	OpAny    Op = "any"
)

// Filter is one condition on a column.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(col string, v any) Filter      { return Filter{Column: col, Op: OpEq, Value: v} }
func Neq(col string, v any) Filter     { return Filter{Column: col, Op: OpNeq, Value: v} }
func Gte(col string, v any) Filter     { return Filter{Column: col, Op: OpGte, Value: v} }
func Lte(col string, v any) Filter     { return Filter{Column: col, Op: OpLte, Value: v} }
func Like(col, pattern string) Filter  { return Filter{Column: col, Op: OpLike, Value: pattern} }
func In(col string, values any) Filter { return Filter{Column: col, Op: OpIn, Value: values} }
func IsNull(col string) Filter         { return Filter{Column: col, Op: OpIsNull} }

// Any matches when at least one of filters matches.
func Any(filters ...Filter) Filter { return Filter{Op: OpAny, Value: filters} }

func (f Filter) expression() (clause.Expression, error) {
	col := clause.Column{Name: f.Column}
	switch f.Op {
	case OpEq:
		return clause.Eq{Column: col, Value: f.Value}, nil
	case OpNeq:
		return clause.Neq{Column: col, Value: f.Value}, nil
	case OpGte:
		return clause.Gte{Column: col, Value: f.Value}, nil
	case OpLte:
		return clause.Lte{Column: col, Value: f.Value}, nil
	case OpLike:
		return clause.Like{Column: col, Value: f.Value}, nil
	case OpIn:
		values, err := toSlice(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Column, err)
		}
		return clause.IN{Column: col, Values: values}, nil
	case OpIsNull:
		return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
	case OpAny:
		alts, _ := f.Value.([]Filter)
		if len(alts) == 0 {
			return nil, errors.New("any: no alternatives")
		}
		exprs := make([]clause.Expression, 0, len(alts))
		for _, alt := range alts {
			e, err := alt.expression()
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
		if len(exprs) == 1 {
			// A lone OR condition would be joined to its neighbours with OR.
			return exprs[0], nil
		}
		return clause.Or(exprs...), nil
	default:
		return nil, fmt.Errorf("filter %s: unknown operator %q", f.Column, f.Op)
	}
}

func toSlice(v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("in expects a slice, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a select. A zero Page.Limit loads every matching row.
type Query struct {
	Filters []Filter
	Order   []Order
	Page    pagination.Query
	Preload []Preload
}

// Preload names an association to load, with an optional ordering column.
type Preload struct {
	Association string
	OrderBy     string
}

// Table gives typed access to the table of model T.
type Table[T any] struct {
	db *gorm.DB
}

func NewTable[T any](db *gorm.DB) *Table[T] {
	return &Table[T]{db: db}
}

// WithTx returns a Table bound to tx.
func (t *Table[T]) WithTx(tx *gorm.DB) *Table[T] {
	return &Table[T]{db: tx}
}

func (t *Table[T]) base(ctx context.Context, filters []Filter) (*gorm.DB, error) {
	q := t.db.WithContext(ctx).Model(new(T))
	for _, f := range filters {
		expr, err := f.expression()
		if err != nil {
			return nil, err
		}
		q = q.Where(expr)
	}
	return q, nil
}

// Select returns one page of matching rows and the total match count.
func (t *Table[T]) Select(ctx context.Context, query Query) ([]T, int64, error) {
	q, err := t.base(ctx, query.Filters)
	if err != nil {
		return nil, 0, err
	}
	for _, o := range query.Order {
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: o.Column}, Desc: o.Desc})
	}
	rows := make([]T, 0)
	if query.Page.Limit <= 0 {
		if err := withPreloads(q, query.Preload).Find(&rows).Error; err != nil {
			return nil, 0, err
		}
		return rows, int64(len(rows)), nil
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err = withPreloads(q, query.Preload).
		Offset(query.Page.Offset).
		Limit(query.Page.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// First returns the first matching row or ErrNotFound.
func (t *Table[T]) First(ctx context.Context, filters []Filter, preloads ...Preload) (*T, error) {
	q, err := t.base(ctx, filters)
	if err != nil {
		return nil, err
	}
	var row T
	if err := withPreloads(q, preloads).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// Insert creates a row. Unique violations are reported as ErrDuplicate.
func (t *Table[T]) Insert(ctx context.Context, row *T) error {
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return translate(err)
	}
	return nil
}

// InsertMany creates rows in one statement. With skipConflicts, rows that
// violate a unique constraint are silently skipped. Returns inserted rows.
func (t *Table[T]) InsertMany(ctx context.Context, rows []T, skipConflicts bool) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := t.db.WithContext(ctx)
	if skipConflicts {
		q = q.Clauses(clause.OnConflict{DoNothing: true})
	}
	res := q.Create(&rows)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Update sets values on every matching row. At least one filter is required.
func (t *Table[T]) Update(ctx context.Context, values map[string]any, filters ...Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	q, err := t.base(ctx, filters)
	if err != nil {
		return 0, err
	}
	res := q.Updates(values)
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes every matching row. At least one filter is required.
func (t *Table[T]) Delete(ctx context.Context, filters ...Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, gorm.ErrMissingWhereClause
	}
	q, err := t.base(ctx, filters)
	if err != nil {
		return 0, err
	}
	res := q.Delete(new(T))
	return res.RowsAffected, res.Error
}

// Count returns the number of matching rows.
func (t *Table[T]) Count(ctx context.Context, filters ...Filter) (int64, error) {
	q, err := t.base(ctx, filters)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Count(&n).Error
	return n, err
}

// Exists reports whether any row matches.
func (t *Table[T]) Exists(ctx context.Context, filters ...Filter) (bool, error) {
	n, err := t.Count(ctx, filters...)
	return n > 0, err
}

// UpdateOwned updates the row with id only when user_id matches, in one
// statement. When nothing was updated a follow-up read tells a missing row
// (ErrNotFound) from a row owned by someone else (ErrNotOwned). The row can
// still change between the two statements; callers accept that window.
func (t *Table[T]) UpdateOwned(ctx context.Context, id, userID string, values map[string]any) error {
	n, err := t.Update(ctx, values, Eq("id", id), Eq("user_id", userID))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return t.missOrForeign(ctx, id, userID)
}

// DeleteOwned is the delete counterpart of UpdateOwned.
func (t *Table[T]) DeleteOwned(ctx context.Context, id, userID string) error {
	n, err := t.Delete(ctx, Eq("id", id), Eq("user_id", userID))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return t.missOrForeign(ctx, id, userID)
}

func (t *Table[T]) missOrForeign(ctx context.Context, id, userID string) error {
	exists, err := t.Exists(ctx, Eq("id", id))
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	// The row exists; an update that changes nothing still matches on most
	// backends, so zero rows here means another owner.
	owned, err := t.Exists(ctx, Eq("id", id), Eq("user_id", userID))
	if err != nil {
		return err
	}
	if owned {
		return nil
	}
	return ErrNotOwned
}

func withPreloads(q *gorm.DB, preloads []Preload) *gorm.DB {
	for _, p := range preloads {
		if p.OrderBy == "" {
			q = q.Preload(p.Association)
			continue
		}
		order := p.OrderBy
		q = q.Preload(p.Association, func(db *gorm.DB) *gorm.DB { return db.Order(order) })
	}
	return q
}

func translate(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
