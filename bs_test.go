package bsdrive

import (
	"errors"
	"strings"
	"testing"
)

func TestRefFromHex(t *testing.T) {
	for n := 0; n <= 130; n++ {
		s := strings.Repeat("a", n)
		_, err := RefFromHex(s)
		if n == 64 {
			if err != nil {
				t.Errorf("length %d: got error %v, want none", n, err)
			}
			continue
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("length %d: got error %v, want a ValidationError", n, err)
		}
	}

	bad := strings.Repeat("g", 64)
	if _, err := RefFromHex(bad); err == nil {
		t.Error("got no error for non-hex input")
	}
}

func TestRefString(t *testing.T) {
	ref := Blob("hello").Ref()
	got, err := RefFromHex(ref.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != ref {
		t.Errorf("got %s, want %s", got, ref)
	}
	if ref.IsZero() {
		t.Error("ref of non-empty blob is zero")
	}
	if !Zero.Less(ref) {
		t.Errorf("zero ref not less than %s", ref)
	}
}

func TestRefScan(t *testing.T) {
	ref := Blob("scan me").Ref()
	v, err := ref.Value()
	if err != nil {
		t.Fatal(err)
	}
	var got Ref
	if err = got.Scan(v); err != nil {
		t.Fatal(err)
	}
	if got != ref {
		t.Errorf("got %s, want %s", got, ref)
	}
	if err = got.Scan("not bytes"); err == nil {
		t.Error("got no error scanning a string")
	}
}
