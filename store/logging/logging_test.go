package logging

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/store/mem"
	"github.com/bobg/bsdrive/testutil"
)

func TestStore(t *testing.T) {
	buf := new(bytes.Buffer)
	s := NewWithLogger(mem.New(), log.New(buf, "", 0))
	testutil.ReadWrite(context.Background(), t, s, testutil.Data(6, 50000))
	testutil.Anchors(context.Background(), t, s)

	out := buf.String()
	for _, want := range []string{"Put ", "Get ", "GetAnchor(", "PutAnchor("} {
		if !strings.Contains(out, want) {
			t.Errorf("log output lacks %q", want)
		}
	}
}

func TestGetError(t *testing.T) {
	buf := new(bytes.Buffer)
	s := NewWithLogger(mem.New(), log.New(buf, "", 0))
	if _, err := s.Get(context.Background(), bsdrive.Blob("x").Ref()); err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(buf.String(), "ERROR Get ") {
		t.Errorf("got log output %q", buf.String())
	}
}
