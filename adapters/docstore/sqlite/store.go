// Package sqlite stores documents as JSON text in a single SQLite table
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fieldtrial/adapters/docstore"
	"fieldtrial/domain/core"
	"fieldtrial/internal/migration"
	"fieldtrial/ports"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store is a DocumentStore on SQLite
type Store struct {
	db *sqlx.DB
}

var _ ports.DocumentStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "fieldtrial.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)
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

// where pushes the scalar top-level part of filter down to json_extract. The rest is
// matched in Go over the returned payloads.
func where(coll string, filter core.Filter) (string, []any) {
	var b strings.Builder
	b.WriteString("collection = ?")
	args := []any{coll}
	for key, want := range filter {
		if strings.ContainsAny(key, `."`) {
			continue
		}
		switch w := want.(type) {
		case string:
			args = append(args, `$."`+key+`"`, w)
		case core.ID:
			args = append(args, `$."`+key+`"`, string(w))
		case float64, int, int64:
			args = append(args, `$."`+key+`"`, w)
		default:
			continue
		}
		b.WriteString(" AND json_extract(payload, ?) = ?")
	}
	return b.String(), args
}

type record struct {
	ID      string `db:"id"`
	Payload []byte `db:"payload"`
}

func (s *Store) query(ctx context.Context, q sqlx.QueryerContext, coll string, filter core.Filter) ([]record, error) {
	cond, args := where(coll, filter)
	var rows []record
	if err := sqlx.SelectContext(ctx, q, &rows, `SELECT id, payload FROM documents WHERE `+cond+` ORDER BY rowid`, args...); err != nil {
		return nil, core.NewStoreError("find", coll, err)
	}
	out := rows[:0]
	for _, r := range rows {
		if docstore.Matches(r.Payload, filter) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) FindDistinct(ctx context.Context, coll, fieldPath string, filter core.Filter) ([]any, error) {
	rows, err := s.query(ctx, s.db, coll, filter)
	if err != nil {
		return nil, err
	}
	payloads := make([][]byte, len(rows))
	for i, r := range rows {
		payloads[i] = r.Payload
	}
	return docstore.Distinct(payloads, fieldPath), nil
}

func (s *Store) FindByID(ctx context.Context, coll string, id core.ID) (core.Document, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, `SELECT payload FROM documents WHERE collection = ? AND id = ?`, coll, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError(coll, id)
	}
	if err != nil {
		return nil, core.NewStoreError("find_by_id", coll, err)
	}
	return docstore.Decode(payload)
}

func (s *Store) Find(ctx context.Context, coll string, filter core.Filter) ([]core.Document, error) {
	rows, err := s.query(ctx, s.db, coll, filter)
	if err != nil {
		return nil, err
	}
	out := make([]core.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := docstore.Decode(r.Payload)
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
		rows, err := s.query(ctx, tx, coll, upsert)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			doc = docstore.WithID(doc, core.ID(rows[0].ID))
		}
	}
	id, payload, err := docstore.Encode(doc)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, payload) VALUES (?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, coll, id.String(), string(payload)); err != nil {
		return core.NewStoreError("save", coll, err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStoreError("save", coll, err)
	}
	return nil
}
