package mem

import (
	"context"
	"testing"

	"github.com/bobg/bsdrive/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(), testutil.Data(1, 200000))
}

func TestAnchors(t *testing.T) {
	testutil.Anchors(context.Background(), t, New())
}

func TestAllRefs(t *testing.T) {
	testutil.AllRefs(context.Background(), t, New())
}
