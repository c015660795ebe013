package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MertBaran/QA-API-sub001/pkg/datasource"
	"github.com/MertBaran/QA-API-sub001/pkg/ids"
	"github.com/MertBaran/QA-API-sub001/pkg/model"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// tableSpec maps one entity type onto its table.
type tableSpec[T model.Record[T]] struct {
	entity        string
	table         string
	selectList    string
	insertColumns []string
	insertArgs    func(T) []interface{}
	// columns maps logical fields to columns of the main table.
	columns map[string]string
	scan    func(scanner) (T, error)
	// writeExtra persists logical fields stored outside the main table. On
	// create replace is false and the side rows do not exist yet.
	writeExtra func(ctx context.Context, tx *sql.Tx, id string, fields model.Fields, replace bool) error
}

// table implements datasource.DataSource[T] over one table.
type table[T model.Record[T]] struct {
	db     *sql.DB
	scheme ids.Scheme
	now    func() time.Time
	spec   tableSpec[T]
}

func (t *table[T]) specs() map[string]model.FieldSpec {
	var zero T
	return zero.FieldSpecs()
}

func (t *table[T]) op(name string) string {
	return t.spec.entity + " " + name
}

func (t *table[T]) Create(ctx context.Context, entity T) (T, error) {
	var zero T

	id := strings.ToLower(entity.GetID())
	if !t.scheme.Valid(id) {
		id = t.scheme.New()
	}
	entity = entity.Prepare(id, t.now())
	if err := datasource.CheckIDs(t.scheme, entity); err != nil {
		return zero, err
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.spec.table, strings.Join(t.spec.insertColumns, ", "), placeholders(len(t.spec.insertColumns), 1))
	args := t.spec.insertArgs(entity)

	var err error
	if t.spec.writeExtra == nil {
		_, err = t.db.ExecContext(ctx, query, args...)
	} else {
		err = withTx(ctx, t.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
			extra := make(model.Fields)
			for field := range t.specs() {
				if _, stored := t.spec.columns[field]; stored {
					continue
				}
				if v, ok := entity.Value(field); ok {
					extra[field] = v
				}
			}
			return t.spec.writeExtra(ctx, tx, id, extra, false)
		})
	}
	if err != nil {
		return zero, classify(t.op("create"), t.spec.entity, err)
	}
	return entity, nil
}

func (t *table[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	if !t.scheme.Valid(id) {
		return zero, datasource.NotFound(t.spec.entity, id)
	}
	entity, err := t.selectByID(ctx, t.db, id)
	if err != nil {
		return zero, err
	}
	return entity, nil
}

func (t *table[T]) selectByID(ctx context.Context, q querier, id string) (T, error) {
	var zero T
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.spec.selectList, t.spec.table)

	entity, err := t.spec.scan(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, datasource.NotFound(t.spec.entity, id)
		}
		return zero, classify(t.op("find"), t.spec.entity, err)
	}
	return entity, nil
}

func (t *table[T]) FindAll(ctx context.Context) ([]T, error) {
	return t.FindByFields(ctx, nil)
}

func (t *table[T]) FindByField(ctx context.Context, field string, value interface{}) ([]T, error) {
	if value == nil {
		return nil, model.ErrInvalidField.WithMessage("field %q: nil value", field)
	}
	return t.FindByFields(ctx, model.Fields{field: value})
}

func (t *table[T]) FindByFields(ctx context.Context, filter model.Fields) ([]T, error) {
	norm, err := model.NormalizeFilter(t.specs(), filter)
	if err != nil {
		return nil, err
	}
	if !datasource.Matchable(t.scheme, t.specs(), norm) {
		return []T{}, nil
	}

	where, args := t.where(norm)
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at, id", t.spec.selectList, t.spec.table, where)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(t.op("query"), t.spec.entity, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		entity, err := t.spec.scan(rows)
		if err != nil {
			return nil, classify(t.op("scan"), t.spec.entity, err)
		}
		out = append(out, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(t.op("query"), t.spec.entity, err)
	}
	return out, nil
}

// where renders an equality conjunction in a stable field order.
func (t *table[T]) where(filter model.Fields) (string, []interface{}) {
	if len(filter) == 0 {
		return "", nil
	}
	fields := sortedFields(filter)
	clauses := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields))
	for _, field := range fields {
		column := t.spec.columns[field]
		v := t.arg(field, filter[field])
		if v == nil {
			clauses = append(clauses, column+" IS NULL")
			continue
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (t *table[T]) UpdateByID(ctx context.Context, id string, patch model.Fields) (T, error) {
	var zero T
	norm, err := model.NormalizePatch(t.specs(), patch)
	if err != nil {
		return zero, err
	}
	if err := datasource.CheckPatchIDs(t.scheme, t.specs(), norm); err != nil {
		return zero, err
	}
	if !t.scheme.Valid(id) {
		return zero, datasource.NotFound(t.spec.entity, id)
	}

	sets := make([]string, 0, len(norm)+1)
	args := make([]interface{}, 0, len(norm)+2)
	extra := make(model.Fields)
	for _, field := range sortedFields(norm) {
		column, stored := t.spec.columns[field]
		if !stored {
			extra[field] = norm[field]
			continue
		}
		args = append(args, t.arg(field, norm[field]))
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, model.Timestamp(t.now()))
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", t.spec.table, strings.Join(sets, ", "), len(args))

	var updated T
	err = withTx(ctx, t.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return datasource.NotFound(t.spec.entity, id)
		}
		if len(extra) > 0 && t.spec.writeExtra != nil {
			if err := t.spec.writeExtra(ctx, tx, id, extra, true); err != nil {
				return err
			}
		}
		updated, err = t.selectByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return zero, classify(t.op("update"), t.spec.entity, err)
	}
	return updated, nil
}

func (t *table[T]) DeleteByID(ctx context.Context, id string) (T, error) {
	var zero T
	if !t.scheme.Valid(id) {
		return zero, datasource.NotFound(t.spec.entity, id)
	}

	var deleted T
	err := withTx(ctx, t.db, func(tx *sql.Tx) error {
		var err error
		deleted, err = t.selectByID(ctx, tx, id)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.spec.table), id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return datasource.NotFound(t.spec.entity, id)
		}
		return nil
	})
	if err != nil {
		return zero, classify(t.op("delete"), t.spec.entity, err)
	}
	return deleted, nil
}

func (t *table[T]) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := t.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", t.spec.table)).Scan(&n)
	if err != nil {
		return 0, classify(t.op("count"), t.spec.entity, err)
	}
	return n, nil
}

func (t *table[T]) DeleteAll(ctx context.Context) (int64, error) {
	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", t.spec.table))
	if err != nil {
		return 0, classify(t.op("delete all"), t.spec.entity, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(t.op("delete all"), t.spec.entity, err)
	}
	return n, nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// arg converts a normalised field value into a driver argument. Unset
// optional values become NULL.
func (t *table[T]) arg(field string, v interface{}) interface{} {
	switch val := v.(type) {
	case *time.Time:
		if val == nil {
			return nil
		}
		return *val
	case string:
		if val == "" && t.specs()[field].Kind == model.KindOptionalID {
			return nil
		}
		return val
	default:
		return v
	}
}

func sortedFields(fields model.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func placeholders(n, start int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
