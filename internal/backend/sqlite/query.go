package sqlite

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/pigeon-chat/pigeon/internal/backend"
)

// Query returns all records of a collection matching the filter. Filter
// values that are slices become IN clauses. Columns are resolved from the
// result set, not the allowlist, so a record only carries the fields the
// deployment's schema version actually has.
func (b *Backend) Query(ctx context.Context, collection string, filter backend.Filter, opts *backend.Options) ([]backend.Record, error) {
	if _, err := columnsFor(collection); err != nil {
		return nil, err
	}

	q := "SELECT * FROM " + collection
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return nil, err
	}
	q += where

	if opts != nil && opts.OrderBy != "" {
		if !validColumn(collection, opts.OrderBy) {
			return nil, fmt.Errorf("invalid order column %q for %s", opts.OrderBy, collection)
		}
		dir := "DESC"
		if opts.Ascending {
			dir = "ASC"
		}
		// rowid as tiebreak keeps insertion order stable for equal keys.
		q += fmt.Sprintf(" ORDER BY %s %s, rowid %s", opts.OrderBy, dir, dir)
	}
	if opts != nil && opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []backend.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(backend.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert stores one or more records and publishes an insert change per
// record. Multiple records go in a single transaction.
func (b *Backend) Insert(ctx context.Context, collection string, records ...backend.Record) error {
	if _, err := columnsFor(collection); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		q, args, err := buildInsert(collection, rec)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for _, rec := range records {
		b.subs.publish(backend.Change{Kind: backend.ChangeInsert, Collection: collection, Record: rec})
	}
	return nil
}

// Update applies a patch to every record matching the filter and returns the
// affected row count. One update change is published per affected record.
func (b *Backend) Update(ctx context.Context, collection string, patch backend.Record, filter backend.Filter) (int64, error) {
	if _, err := columnsFor(collection); err != nil {
		return 0, err
	}
	if len(patch) == 0 {
		return 0, nil
	}

	before, err := b.Query(ctx, collection, filter, nil)
	if err != nil {
		return 0, err
	}

	keys := sortedKeys(patch)
	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		// Patch columns are not checked against the allowlist: writing to a
		// column an older deployment lacks must surface the driver's
		// missing-column error so capability detection can see it.
		if strings.ContainsAny(k, " ;'\"") {
			return 0, fmt.Errorf("invalid patch column %q", k)
		}
		sets = append(sets, k+" = ?")
		args = append(args, denormalize(patch[k]))
	}

	where, whereArgs, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("UPDATE %s SET %s%s", collection, strings.Join(sets, ", "), where)
	res, err := b.db.ExecContext(ctx, q, append(args, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", collection, err)
	}
	n, _ := res.RowsAffected()

	for _, old := range before {
		updated := make(backend.Record, len(old))
		for k, v := range old {
			updated[k] = v
		}
		for k, v := range patch {
			updated[k] = v
		}
		b.subs.publish(backend.Change{Kind: backend.ChangeUpdate, Collection: collection, Record: updated, Old: old})
	}
	return n, nil
}

// Delete removes every record matching the filter and returns the affected
// row count, publishing one delete change per removed record.
func (b *Backend) Delete(ctx context.Context, collection string, filter backend.Filter) (int64, error) {
	if _, err := columnsFor(collection); err != nil {
		return 0, err
	}

	removed, err := b.Query(ctx, collection, filter, nil)
	if err != nil {
		return 0, err
	}

	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	res, err := b.db.ExecContext(ctx, "DELETE FROM "+collection+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	n, _ := res.RowsAffected()

	for _, old := range removed {
		b.subs.publish(backend.Change{Kind: backend.ChangeDelete, Collection: collection, Old: old})
	}
	return n, nil
}

func buildWhere(collection string, filter backend.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := sortedKeys(filter)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		if !validColumn(collection, k) {
			return "", nil, fmt.Errorf("invalid filter column %q for %s", k, collection)
		}
		v := filter[k]
		rv := reflect.ValueOf(v)
		if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
			marks := make([]string, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				marks[i] = "?"
				args = append(args, denormalize(rv.Index(i).Interface()))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", k, strings.Join(marks, ", ")))
			continue
		}
		clauses = append(clauses, k+" = ?")
		args = append(args, denormalize(v))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildInsert(collection string, rec backend.Record) (string, []any, error) {
	keys := sortedKeys(rec)
	args := make([]any, 0, len(keys))
	marks := make([]string, 0, len(keys))
	for _, k := range keys {
		if !validColumn(collection, k) {
			return "", nil, fmt.Errorf("invalid column %q for %s", k, collection)
		}
		marks = append(marks, "?")
		args = append(args, denormalize(rec[k]))
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		collection, strings.Join(keys, ", "), strings.Join(marks, ", "))
	return q, args, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalize converts driver values into the types records carry: []byte to
// string, everything else as-is.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// denormalize converts record values into driver-friendly ones.
func denormalize(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}
