// Package gcs implements a blob store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/anchor"
	"github.com/bobg/bsdrive/store"
)

var _ anchor.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a blob store.
type Store struct {
	bucket *storage.BucketHandle
	client *storage.Client // nil when the caller supplied the bucket
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	name := blobObjName(ref)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, bsdrive.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Has tells whether the store contains the blob with hash `ref`.
func (s *Store) Has(ctx context.Context, ref bsdrive.Ref) (bool, error) {
	name := blobObjName(ref)
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "getting object attrs for %s", name)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b bsdrive.Blob) (bsdrive.Ref, bool, error) {
	var (
		ref  = b.Ref()
		name = blobObjName(ref)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)

	_, err := w.Write(b)
	if err != nil {
		w.Close()
		return ref, false, errors.Wrapf(err, "writing object %s", name)
	}

	// The precondition is checked when the upload completes.
	err = w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return ref, false, nil
	}
	if err != nil {
		return ref, false, errors.Wrapf(err, "writing object %s", name)
	}
	return ref, true, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start bsdrive.Ref, f func(bsdrive.Ref) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listRefs(ctx, prefix, f)
	})
}

func (s *Store) listRefs(ctx context.Context, prefix string, f func(bsdrive.Ref) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "b:" + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		ref, err := refFromBlobObjName(obj.Name)
		if err != nil {
			return err
		}
		if err = f(ref); err != nil {
			return err
		}
	}
}

// GetAnchor gets the latest blob ref for a given anchor as of a given time.
func (s *Store) GetAnchor(ctx context.Context, a string, when time.Time) (bsdrive.Ref, error) {
	var (
		prefix = anchorPrefix(a)
		iter   = s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	)

	// Anchors come back in reverse chronological order
	// (since we usually want the latest one).
	// Find the first one whose timestamp is `when` or earlier.
	for {
		attrs, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return bsdrive.Zero, bsdrive.ErrNotFound
		}
		if err != nil {
			return bsdrive.Zero, errors.Wrap(err, "iterating over anchor objects")
		}
		_, atime, err := anchorTimeFromObjName(attrs.Name)
		if err != nil {
			return bsdrive.Zero, errors.Wrapf(err, "decoding object name %s", attrs.Name)
		}
		if atime.After(when) {
			continue
		}

		ref, err := s.getAnchorRef(ctx, attrs.Name)
		return ref, errors.Wrapf(err, "reading object %s", attrs.Name)
	}
}

// PutAnchor implements anchor.Store.
func (s *Store) PutAnchor(ctx context.Context, a string, ref bsdrive.Ref, when time.Time) error {
	name := anchorObjName(a, when)
	w := s.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(ref[:]); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", name)
	}
	return errors.Wrapf(w.Close(), "writing object %s", name)
}

// Close releases the storage client, if the Store created it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

func blobObjName(ref bsdrive.Ref) string {
	return "b:" + ref.String()
}

func refFromBlobObjName(name string) (bsdrive.Ref, error) {
	return bsdrive.RefFromHex(strings.TrimPrefix(name, "b:"))
}

func (s *Store) getAnchorRef(ctx context.Context, objName string) (bsdrive.Ref, error) {
	r, err := s.bucket.Object(objName).NewReader(ctx)
	if err != nil {
		return bsdrive.Zero, errors.Wrapf(err, "reading info of object %s", objName)
	}
	defer r.Close()

	var ref bsdrive.Ref
	if r.Attrs.Size != int64(len(ref)) {
		return bsdrive.Zero, errors.Errorf("object %s has wrong size %d (want %d)", objName, r.Attrs.Size, len(ref))
	}

	_, err = io.ReadFull(r, ref[:])
	return ref, errors.Wrapf(err, "reading contents of object %s", objName)
}

func anchorPrefix(a string) string {
	return "a:" + hex.EncodeToString([]byte(a)) + ":"
}

func anchorObjName(a string, when time.Time) string {
	return anchorPrefix(a) + timeKey(when)
}

var anchorNameRegex = regexp.MustCompile(`^a:([0-9a-f]*):(\d{30})$`)

func anchorTimeFromObjName(name string) (string, time.Time, error) {
	m := anchorNameRegex.FindStringSubmatch(name)
	if len(m) < 3 {
		return "", time.Time{}, errors.New("malformed name")
	}
	a, err := hex.DecodeString(m[1])
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "hex-decoding anchor")
	}
	when, err := parseTimeKey(m[2])
	return string(a), when, err
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (bsdrive.Store, error) {
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return &Store{bucket: c.Bucket(bucketName), client: c}, nil
	})
}
