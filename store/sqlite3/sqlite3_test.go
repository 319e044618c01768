package sqlite3

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.ReadWrite(ctx, t, s, testutil.Data(2, 200000))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestAnchors(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.Anchors(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestHas(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		ref, _, err := s.Put(ctx, bsdrive.Blob("hello"))
		if err != nil {
			return err
		}
		ok, err := s.Has(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			t.Error("Has reports false for a stored blob")
		}
		ok, err = s.Has(ctx, bsdrive.Blob("goodbye").Ref())
		if err != nil {
			return err
		}
		if ok {
			t.Error("Has reports true for a missing blob")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func withTestStore(ctx context.Context, fn func(*Store) error) error {
	f, err := os.CreateTemp("", "bsdrivesqlite3test")
	if err != nil {
		return err
	}

	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := sql.Open("sqlite3", tmpfile)
	if err != nil {
		return err
	}

	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return err
	}
	defer s.Close()

	return fn(s)
}
