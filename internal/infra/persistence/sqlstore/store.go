// Package sqlstore implements domain.DocumentStore over database/sql. The
// sqlite and postgres packages supply the driver, schema and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"geuebt/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Dialect captures the SQL differences between supported engines.
type Dialect struct {
	Name string
	// Numbered placeholders ($1, $2, ...) instead of ?.
	Numbered bool
	// LockSuffix is appended to row reads inside write transactions.
	LockSuffix string
}

var (
	SQLite   = Dialect{Name: "sqlite"}
	Postgres = Dialect{Name: "postgres", Numbered: true, LockSuffix: " FOR UPDATE"}
)

// Rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	insertSQL = `INSERT INTO documents (collection, doc_key, organism, number, body) VALUES (?, ?, ?, ?, ?) ON CONFLICT (collection, doc_key) DO NOTHING`
	selectSQL = `SELECT organism, number, body FROM documents WHERE collection = ? AND doc_key = ?`
	updateSQL = `UPDATE documents SET organism = ?, number = ?, body = ? WHERE collection = ? AND doc_key = ?`
	findSQL   = `SELECT doc_key, organism, number, body FROM documents WHERE collection = ?`
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a DocumentStore backed by a single documents table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sql.DB { return s.db }

func nullNumber(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func (s *Store) insert(ctx context.Context, q querier, c domain.CollectionName, doc domain.Document) error {
	res, err := q.ExecContext(ctx, s.dialect.Rebind(insertSQL),
		string(c), doc.Key, string(doc.Organism), nullNumber(doc.Number), string(doc.Body))
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", c, doc.Key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s/%s: rows affected: %w", c, doc.Key, err)
	}
	if affected == 0 {
		return domain.ErrConflict{Collection: c, Key: doc.Key}
	}
	return nil
}

func (s *Store) get(ctx context.Context, q querier, c domain.CollectionName, key, suffix string) (domain.Document, error) {
	var (
		organism string
		number   sql.NullInt64
		body     []byte
	)
	err := q.QueryRowContext(ctx, s.dialect.Rebind(selectSQL+suffix), string(c), key).Scan(&organism, &number, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("select %s/%s: %w", c, key, err)
	}
	return buildDocument(key, organism, number, body), nil
}

func buildDocument(key, organism string, number sql.NullInt64, body []byte) domain.Document {
	doc := domain.Document{Key: key, Organism: domain.Organism(organism), Body: body}
	if number.Valid {
		doc.Number = domain.IntPtr(int(number.Int64))
	}
	return doc
}

func (s *Store) write(ctx context.Context, q querier, c domain.CollectionName, doc domain.Document) error {
	if _, err := q.ExecContext(ctx, s.dialect.Rebind(updateSQL),
		string(doc.Organism), nullNumber(doc.Number), string(doc.Body), string(c), doc.Key); err != nil {
		return fmt.Errorf("update %s/%s: %w", c, doc.Key, err)
	}
	return nil
}

// Insert stores doc, reporting ErrConflict when the key is taken.
func (s *Store) Insert(ctx context.Context, c domain.CollectionName, doc domain.Document) error {
	return s.insert(ctx, s.db, c, doc)
}

// Get loads a single document.
func (s *Store) Get(ctx context.Context, c domain.CollectionName, key string) (domain.Document, error) {
	return s.get(ctx, s.db, c, key, "")
}

// Update reads, mutates and rewrites a document inside one transaction.
func (s *Store) Update(ctx context.Context, c domain.CollectionName, key string, mutate domain.Mutator) (domain.Document, error) {
	var out domain.Document
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		doc, err := s.get(ctx, tx, c, key, s.dialect.LockSuffix)
		if err != nil {
			return err
		}
		if err := mutate(&doc); err != nil {
			return err
		}
		doc.Key = key
		if err := s.write(ctx, tx, c, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	return out, err
}

// upsertAttempts bounds retries after losing a first-insert race.
const upsertAttempts = 3

// Upsert inserts doc or mutates the stored row inside one transaction. When a
// concurrent writer inserts the same key between the read and the insert, the
// transaction is retried so the update path runs against the new row.
func (s *Store) Upsert(ctx context.Context, c domain.CollectionName, doc domain.Document, mutate domain.Mutator) (bool, error) {
	var err error
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		var inserted bool
		inserted, err = s.upsertOnce(ctx, c, doc, mutate)
		var conflict domain.ErrConflict
		if !errors.As(err, &conflict) {
			return inserted, err
		}
	}
	return false, err
}

func (s *Store) upsertOnce(ctx context.Context, c domain.CollectionName, doc domain.Document, mutate domain.Mutator) (bool, error) {
	var inserted bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		current, err := s.get(ctx, tx, c, doc.Key, s.dialect.LockSuffix)
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			inserted = true
			return s.insert(ctx, tx, c, doc)
		}
		if err != nil {
			return err
		}
		if err := mutate(&current); err != nil {
			return err
		}
		current.Key = doc.Key
		return s.write(ctx, tx, c, current)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Find lists documents matching q ordered by key.
func (s *Store) Find(ctx context.Context, c domain.CollectionName, q domain.Query) ([]domain.Document, error) {
	query, args := buildFind(c, q)
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Document
	for rows.Next() {
		var (
			key, organism string
			number        sql.NullInt64
			body          []byte
		)
		if err := rows.Scan(&key, &organism, &number, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		out = append(out, buildDocument(key, organism, number, body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}
	return out, nil
}

func buildFind(c domain.CollectionName, q domain.Query) (string, []any) {
	var b strings.Builder
	b.WriteString(findSQL)
	args := []any{string(c)}
	if q.Organism != "" {
		b.WriteString(" AND organism = ?")
		args = append(args, string(q.Organism))
	}
	if q.Number != nil {
		b.WriteString(" AND number = ?")
		args = append(args, int64(*q.Number))
	}
	if q.MinNumber != nil {
		b.WriteString(" AND number >= ?")
		args = append(args, int64(*q.MinNumber))
	}
	b.WriteString(" ORDER BY doc_key")
	return b.String(), args
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
