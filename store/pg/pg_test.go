package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/testutil"
)

const connVar = "BSDRIVE_PG_TESTING_CONN"

// testStore connects to the database named by $BSDRIVE_PG_TESTING_CONN,
// skipping the test if it is unset.
func testStore(t *testing.T) *Store {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	store, err := New(context.Background(), db)
	if err != nil {
		db.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, testStore(t), testutil.Data(4, 200000))
}

func TestAnchors(t *testing.T) {
	testutil.Anchors(context.Background(), t, testStore(t))
}

func TestHas(t *testing.T) {
	var (
		ctx   = context.Background()
		store = testStore(t)
		blob  = bsdrive.Blob(testutil.Data(5, 64))
	)

	ok, err := store.Has(ctx, blob.Ref())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Skip("blob already present from an earlier run")
	}

	if _, _, err = store.Put(ctx, blob); err != nil {
		t.Fatal(err)
	}
	if ok, err = bsdrive.Has(ctx, store, blob.Ref()); err != nil {
		t.Fatal(err)
	} else if !ok {
		t.Error("blob not found after Put")
	}
}
