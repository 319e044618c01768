// Package sqlite3 implements a blob store in a Sqlite3 database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

// Store is a Sqlite-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` and `anchors` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS anchors (
  name TEXT NOT NULL,
  ref BLOB NOT NULL,
  at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS anchor_idx ON anchors (name, at);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blobs` and `anchors`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
// The Store takes ownership of db and closes it in Close.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	const q = `SELECT data FROM blobs WHERE ref = $1`

	var b bsdrive.Blob
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, bsdrive.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting blob %s", ref)
}

// Has tells whether the store contains the blob with hash `ref`.
func (s *Store) Has(ctx context.Context, ref bsdrive.Ref) (bool, error) {
	const q = `SELECT COUNT(*) FROM blobs WHERE ref = $1`

	var n int
	err := s.db.QueryRowContext(ctx, q, ref).Scan(&n)
	return n > 0, errors.Wrapf(err, "checking for blob %s", ref)
}

// GetAnchor implements anchor.Getter.
func (s *Store) GetAnchor(ctx context.Context, name string, at time.Time) (bsdrive.Ref, error) {
	const q = `SELECT ref FROM anchors WHERE name = $1 AND at <= $2 ORDER BY at DESC LIMIT 1`

	var result bsdrive.Ref
	err := s.db.QueryRowContext(ctx, q, name, at.UTC().Format(time.RFC3339Nano)).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}
	return result, errors.Wrapf(err, "getting anchor %s", name)
}

// PutAnchor implements anchor.Store.
func (s *Store) PutAnchor(ctx context.Context, name string, ref bsdrive.Ref, at time.Time) error {
	const q = `INSERT INTO anchors (name, ref, at) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, q, name, ref, at.UTC().Format(time.RFC3339Nano))
	return errors.Wrapf(err, "inserting anchor %s", name)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	const q = `INSERT INTO blobs (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	ref := b.Ref()
	data := []byte(b)
	if data == nil {
		data = []byte{} // NOT NULL
	}
	res, err := s.db.ExecContext(ctx, q, ref, data)
	if err != nil {
		return bsdrive.Zero, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return bsdrive.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	const q = `SELECT ref FROM blobs WHERE ref > $1 ORDER BY ref`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, f)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
