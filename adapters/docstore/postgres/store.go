// Package postgres stores documents in a JSONB table. Distinct values and filters are
// evaluated by the server with SQL/JSON path expressions in lax mode, which unwraps
// arrays the same way the other backends do.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"fieldtrial/adapters/docstore"
	"fieldtrial/domain/core"
	"fieldtrial/internal/migration"
	"fieldtrial/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store is a DocumentStore on PostgreSQL
type Store struct {
	db *sqlx.DB
}

var _ ports.DocumentStore = (*Store)(nil)

// Open connects to dsn and migrates the schema
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated handle
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the handle for schema inspection
func (s *Store) DB() *sqlx.DB { return s.db }

// jsonPath turns a dotted field path into a lax SQL/JSON path ending in [*] so that a
// trailing array is unwrapped as well
func jsonPath(fieldPath string) string {
	segs := strings.Split(fieldPath, ".")
	var b strings.Builder
	b.WriteString("lax $")
	for _, seg := range segs {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(seg, `"`, `\"`))
		b.WriteString(`"`)
	}
	b.WriteString("[*]")
	return b.String()
}

// where renders filter as jsonb_path_exists conditions. Placeholders start at $next.
func where(coll string, filter core.Filter, next int) (string, []any, error) {
	conds := []string{fmt.Sprintf("collection = $%d", next)}
	args := []any{coll}
	next++

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		want := filter[key]
		if id, ok := want.(core.ID); ok {
			want = id.String()
		}
		vars, err := json.Marshal(map[string]any{"v": want})
		if err != nil {
			return "", nil, fmt.Errorf("%w: filter %s: %v", core.ErrInvalidDocument, key, err)
		}
		conds = append(conds, fmt.Sprintf("jsonb_path_exists(payload, $%d::jsonpath, $%d::jsonb)", next, next+1))
		args = append(args, jsonPath(key)+" ? (@ == $v)", string(vars))
		next += 2
	}
	return strings.Join(conds, " AND "), args, nil
}

func (s *Store) FindDistinct(ctx context.Context, coll, fieldPath string, filter core.Filter) ([]any, error) {
	cond, args, err := where(coll, filter, 2)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT DISTINCT v
		FROM documents, jsonb_path_query(payload, $1::jsonpath) AS v
		WHERE ` + cond
	var raws [][]byte
	if err := s.db.SelectContext(ctx, &raws, query, append([]any{jsonPath(fieldPath)}, args...)...); err != nil {
		return nil, core.NewStoreError("find_distinct", coll, err)
	}
	out := make([]any, 0, len(raws))
	for _, raw := range raws {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, core.NewStoreError("find_distinct", coll, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, coll string, id core.ID) (core.Document, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM documents WHERE collection = $1 AND id = $2`, coll, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError(coll, id)
	}
	if err != nil {
		return nil, core.NewStoreError("find_by_id", coll, err)
	}
	return docstore.Decode(payload)
}

func (s *Store) Find(ctx context.Context, coll string, filter core.Filter) ([]core.Document, error) {
	cond, args, err := where(coll, filter, 1)
	if err != nil {
		return nil, err
	}
	var payloads [][]byte
	if err := s.db.SelectContext(ctx, &payloads, `SELECT payload FROM documents WHERE `+cond+` ORDER BY created_at, id`, args...); err != nil {
		return nil, core.NewStoreError("find", coll, err)
	}
	out := make([]core.Document, 0, len(payloads))
	for _, p := range payloads {
		doc, err := docstore.Decode(p)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, coll string, doc core.Document, upsert core.Filter) (retErr error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return core.NewStoreError("save", coll, err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if len(upsert) > 0 {
		cond, args, err := where(coll, upsert, 1)
		if err != nil {
			return err
		}
		var existing string
		err = tx.GetContext(ctx, &existing, `SELECT id FROM documents WHERE `+cond+` ORDER BY created_at, id LIMIT 1 FOR UPDATE`, args...)
		switch {
		case err == nil:
			doc = docstore.WithID(doc, core.ID(existing))
		case !errors.Is(err, sql.ErrNoRows):
			return core.NewStoreError("save", coll, err)
		}
	}

	id, payload, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, payload)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`, coll, id.String(), string(payload)); err != nil {
		return core.NewStoreError("save", coll, err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStoreError("save", coll, err)
	}
	return nil
}
