package split_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/split"
	"github.com/bobg/bsdrive/store/mem"
	"github.com/bobg/bsdrive/testutil"
)

func TestSplitEmpty(t *testing.T) {
	ctx := context.Background()
	m := mem.New()
	w := split.NewWriter(ctx, m)
	err := w.Close()
	if err != nil {
		t.Fatal(err)
	}
	if w.Root == bsdrive.Zero {
		t.Fatal("got zero Root for an empty file")
	}
	n, err := split.Load(ctx, m, w.Root)
	if err != nil {
		t.Fatal(err)
	}
	if n.Size != 0 || len(n.Chunks) != 0 {
		t.Errorf("got size %d with %d chunks, want an empty node", n.Size, len(n.Chunks))
	}
}

func TestSplitRoundTrip(t *testing.T) {
	ctx := context.Background()
	data := testutil.Data(7, 300000)
	m := mem.New()

	ref, err := split.Write(ctx, m, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	n, err := split.Load(ctx, m, ref)
	if err != nil {
		t.Fatal(err)
	}
	if n.Size != uint64(len(data)) {
		t.Errorf("got size %d, want %d", n.Size, len(data))
	}
	if len(n.Chunks) < 2 {
		t.Errorf("got %d chunks, want several", len(n.Chunks))
	}
	var total uint64
	for _, c := range n.Chunks {
		total += c.Size
	}
	if total != n.Size {
		t.Errorf("chunk sizes add up to %d, want %d", total, n.Size)
	}

	buf := new(bytes.Buffer)
	if err = split.Read(ctx, m, ref, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("data mismatch after round trip")
	}

	digest, err := split.Digest(ctx, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if digest != ref {
		t.Errorf("got digest %s, want %s", digest, ref)
	}
}

func TestDecodeNode(t *testing.T) {
	want := &split.Node{
		Size: 10,
		Chunks: []split.Chunk{
			{Ref: bsdrive.Blob("a").Ref(), Size: 4},
			{Ref: bsdrive.Blob("b").Ref(), Size: 6},
		},
	}
	got, err := split.DecodeNode(want.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, err = split.DecodeNode([]byte{0x12, 0x05, 0x0a}); err == nil {
		t.Error("got no error decoding a truncated node")
	}
}
