package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// bindParams implements the parameter-binding contract of spec.md §4.3,
// grounded on original_source/crates/runtime/src/utils/bind_to_params.rs:
// a JSON object binds every key as a named parameter, a JSON array binds
// positionally. Named placeholders in SQL use SQLite's native `:name`/`@name`
// syntax, so sql.Named args are handed straight to database/sql instead of
// hand-scanning the query text.
func bindParams(paramsJSON []byte) ([]any, error) {
	if len(paramsJSON) == 0 {
		return nil, nil
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(paramsJSON, &asObject); err == nil && looksLikeObject(paramsJSON) {
		args := make([]any, 0, len(asObject))
		for name, raw := range asObject {
			v, err := bindValue(raw)
			if err != nil {
				return nil, err
			}
			args = append(args, sql.Named(strings.TrimPrefix(strings.TrimPrefix(name, ":"), "@"), v))
		}
		return args, nil
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(paramsJSON, &asArray); err != nil {
		return nil, fmt.Errorf("params must be a JSON object or array: %w", err)
	}
	args := make([]any, 0, len(asArray))
	for _, raw := range asArray {
		v, err := bindValue(raw)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

func looksLikeObject(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// bindValue maps one JSON scalar/array/object to the SQLite type spec.md
// §4.3 specifies: null->NULL, bool->INTEGER(0|1), integral number->INTEGER,
// other number->REAL, string->TEXT, array of numbers->BLOB (narrowed to a
// byte each), object->NULL.
func bindValue(raw json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("invalid parameter value: %w", err)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if t {
			return int64(1), nil
		}
		return int64(0), nil
	case float64:
		if t == float64(int64(t)) {
			return int64(t), nil
		}
		return t, nil
	case string:
		return t, nil
	case []any:
		b := make([]byte, 0, len(t))
		for _, el := range t {
			n, ok := el.(float64)
			if !ok {
				return nil, fmt.Errorf("array parameter elements must be numbers")
			}
			b = append(b, byte(int64(n)))
		}
		return b, nil
	case map[string]any:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %T", v)
	}
}

// Query runs sqlText as a SELECT and returns the rows as a JSON array of
// objects, matching sqlite.query's host-call contract.
func Query(ctx context.Context, db *DB, sqlText string, paramsJSON []byte) ([]map[string]any, error) {
	args, err := bindParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}

	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("Error: %v", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeScanned(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}
	return out, nil
}

func normalizeScanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ExecResult is the JSON shape sqlite.execute returns for non-SELECT
// statements: {"rowid":N} for INSERT, {"changes":N} for UPDATE/DELETE.
type ExecResult struct {
	RowID   *int64 `json:"rowid,omitempty"`
	Changes *int64 `json:"changes,omitempty"`
}

// Execute runs sqlText as a write statement and reports rowid/changes, or,
// if it's actually a SELECT, falls through to Query's row-array shape.
func Execute(ctx context.Context, db *DB, sqlText string, paramsJSON []byte) (any, error) {
	if isSelect(sqlText) {
		return Query(ctx, db, sqlText, paramsJSON)
	}

	args, err := bindParams(paramsJSON)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}

	if isInsert(sqlText) {
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("Error: %v", err)
		}
		return ExecResult{RowID: &id}, nil
	}

	changes, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("Error: %v", err)
	}
	return ExecResult{Changes: &changes}, nil
}

func isSelect(sqlText string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "SELECT")
}

func isInsert(sqlText string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlText)), "INSERT")
}

// OptionEnabled reports whether the named row in _config_option is set to a
// truthy value ("1" or "true"), matching spec.md §4.1's feature-flag gate
// on the admin write endpoints. A missing row is treated as disabled.
func OptionEnabled(ctx context.Context, db *DB, name string) (bool, error) {
	var value string
	err := db.GetContext(ctx, &value, "SELECT value FROM _config_option WHERE name = ?", name)
	if err != nil {
		return false, nil
	}
	return value == "1" || value == "true", nil
}
