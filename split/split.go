// Package split implements reading and writing of hashsplit files in a blob store.
// A file's content is divided into chunks ("blocks") at content-defined boundaries
// (see github.com/bobg/hashsplit),
// each chunk is stored as a separate blob,
// and a Node listing the chunk refs in order is stored as the file's root blob.
package split

import (
	"context"
	"io"

	"github.com/bobg/hashsplit"
	"github.com/pkg/errors"

	"github.com/bobg/bsdrive"
)

// Writer is an io.WriteCloser that splits its input with a hashsplit.Splitter,
// writing the chunks to a bsdrive.Store as separate blobs.
// The bsdrive.Ref of the file's Node is available as Writer.Root after a call to Close.
type Writer struct {
	Ctx  context.Context
	Root bsdrive.Ref // populated by Close

	st     bsdrive.Store
	spl    *hashsplit.Splitter
	node   Node
	closed bool
}

// NewWriter produces a new Writer writing to the given blob store.
// The given context object is stored in the Writer and used in subsequent calls to Write and Close.
// This is an antipattern but acceptable when an object must adhere to a context-free stdlib interface
// (https://github.com/golang/go/wiki/CodeReviewComments#contexts).
// Callers may replace the context object during the lifetime of the Writer as needed.
func NewWriter(ctx context.Context, st bsdrive.Store, opts ...Option) *Writer {
	w := &Writer{
		Ctx: ctx,
		st:  st,
	}
	spl := hashsplit.NewSplitter(func(bytes []byte, _ uint) error {
		ref, _, err := st.Put(w.Ctx, bytes)
		if err != nil {
			return errors.Wrap(err, "writing split chunk to store")
		}
		w.node.Chunks = append(w.node.Chunks, Chunk{Ref: ref, Size: uint64(len(bytes))})
		w.node.Size += uint64(len(bytes))
		return nil
	})
	spl.MinSize = 1024
	spl.SplitBits = 14
	w.spl = spl
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements io.Writer.
func (w *Writer) Write(inp []byte) (int, error) {
	return w.spl.Write(inp)
}

// Close implements io.Closer.
// It flushes the final chunk and stores the file's Node.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.spl.Close(); err != nil {
		return err
	}
	ref, _, err := w.st.Put(w.Ctx, w.node.Encode())
	if err != nil {
		return errors.Wrap(err, "storing file node")
	}
	w.Root = ref
	return nil
}

type Option func(*Writer)

func Bits(n uint) Option {
	return func(w *Writer) {
		w.spl.SplitBits = n
	}
}

func MinSize(n int) Option {
	return func(w *Writer) {
		w.spl.MinSize = n
	}
}

// Write splits the content of r into the store and returns the ref of its Node.
func Write(ctx context.Context, st bsdrive.Store, r io.Reader, opts ...Option) (bsdrive.Ref, error) {
	w := NewWriter(ctx, st, opts...)
	if _, err := io.Copy(w, r); err != nil {
		return bsdrive.Zero, errors.Wrap(err, "splitting input")
	}
	if err := w.Close(); err != nil {
		return bsdrive.Zero, err
	}
	return w.Root, nil
}

// Digest computes the ref that Write would produce for the content of r,
// without storing anything.
func Digest(ctx context.Context, r io.Reader, opts ...Option) (bsdrive.Ref, error) {
	return Write(ctx, hashStore{}, r, opts...)
}

// Load reads the Node with the given ref.
func Load(ctx context.Context, g bsdrive.Getter, ref bsdrive.Ref) (*Node, error) {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "getting file node %s", ref)
	}
	n, err := DecodeNode(b)
	return n, errors.Wrapf(err, "decoding file node %s", ref)
}

// Read reads blobs from `g`,
// reassembling the content of the file created with Write
// and writing it to `w`.
// The ref of the file's Node is given by `ref`.
func Read(ctx context.Context, g bsdrive.Getter, ref bsdrive.Ref, w io.Writer) error {
	n, err := Load(ctx, g, ref)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, NewReader(ctx, g, n))
	return err
}

// hashStore computes refs and discards blobs.
type hashStore struct{}

func (hashStore) Get(context.Context, bsdrive.Ref) (bsdrive.Blob, error) {
	return nil, bsdrive.ErrNotFound
}

func (hashStore) ListRefs(context.Context, bsdrive.Ref, func(bsdrive.Ref) error) error {
	return nil
}

func (hashStore) Put(_ context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	return b.Ref(), true, nil
}

// Reader is an io.Reader producing the content of a split file
// by fetching its chunks from a bsdrive.Getter in order.
type Reader struct {
	ctx    context.Context
	g      bsdrive.Getter
	chunks []Chunk
	buf    []byte
}

// NewReader produces a Reader for the file with the given Node.
func NewReader(ctx context.Context, g bsdrive.Getter, n *Node) *Reader {
	return &Reader{ctx: ctx, g: g, chunks: n.Chunks}
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if len(r.chunks) == 0 {
			return 0, io.EOF
		}
		b, err := r.g.Get(r.ctx, r.chunks[0].Ref)
		if err != nil {
			return 0, errors.Wrapf(err, "getting chunk %s", r.chunks[0].Ref)
		}
		r.buf = b
		r.chunks = r.chunks[1:]
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
