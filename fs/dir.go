// Package fs implements blob store structures for representing files and directories.
//
// A Dir is an immutable blob listing named entries in name order.
// Each entry refers either to a file (the ref of its split.Node)
// or to a subdirectory (the ref of another Dir),
// so a whole tree is identified by the ref of its root Dir.
package fs

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bobg/bsdrive"
)

// Dir is a directory of files and subdirs.
//
// Wire format (protobuf-compatible):
//
//	message Dir {
//	  repeated Dirent entries = 1;
//	}
//	message Dirent {
//	  string name = 1;
//	  uint32 mode = 2;
//	  bytes ref = 3;
//	  uint64 size = 4;
//	}
type Dir struct {
	Entries []Dirent // sorted by Name
}

// LoadDir loads the directory at ref.
func LoadDir(ctx context.Context, g bsdrive.Getter, ref bsdrive.Ref) (*Dir, error) {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "getting dir %s", ref)
	}
	d, err := DecodeDir(b)
	return d, errors.Wrapf(err, "decoding dir %s", ref)
}

// Store writes d to st and returns its ref.
func (d *Dir) Store(ctx context.Context, st bsdrive.Store) (bsdrive.Ref, error) {
	ref, _, err := st.Put(ctx, d.Encode())
	return ref, errors.Wrap(err, "storing dir")
}

func (d *Dir) index(name string) int {
	return sort.Search(len(d.Entries), func(i int) bool {
		return d.Entries[i].Name >= name
	})
}

// Lookup finds the entry in d with the given name.
// It returns nil if no such entry exists.
func (d *Dir) Lookup(name string) *Dirent {
	i := d.index(name)
	if i < len(d.Entries) && d.Entries[i].Name == name {
		return &d.Entries[i]
	}
	return nil
}

// Set adds e to d, replacing any entry with the same name.
func (d *Dir) Set(e Dirent) {
	i := d.index(e.Name)
	if i < len(d.Entries) && d.Entries[i].Name == e.Name {
		d.Entries[i] = e
		return
	}
	d.Entries = append(d.Entries, Dirent{})
	copy(d.Entries[i+1:], d.Entries[i:])
	d.Entries[i] = e
}

// Remove removes the entry with the given name,
// reporting whether there was one.
func (d *Dir) Remove(name string) bool {
	i := d.index(name)
	if i < len(d.Entries) && d.Entries[i].Name == name {
		d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
		return true
	}
	return false
}

// Encode serializes d.
func (d *Dir) Encode() bsdrive.Blob {
	var b []byte
	for _, e := range d.Entries {
		var eb []byte
		eb = protowire.AppendTag(eb, 1, protowire.BytesType)
		eb = protowire.AppendString(eb, e.Name)
		eb = protowire.AppendTag(eb, 2, protowire.VarintType)
		eb = protowire.AppendVarint(eb, uint64(e.Mode))
		eb = protowire.AppendTag(eb, 3, protowire.BytesType)
		eb = protowire.AppendBytes(eb, e.Ref[:])
		eb = protowire.AppendTag(eb, 4, protowire.VarintType)
		eb = protowire.AppendVarint(eb, e.Size)

		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b
}

// DecodeDir parses the output of Dir.Encode.
func DecodeDir(b []byte) (*Dir, error) {
	var d Dir
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		if num == 1 && typ == protowire.BytesType {
			eb, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			e, err := decodeDirent(eb)
			if err != nil {
				return nil, err
			}
			d.Entries = append(d.Entries, e)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	if !sort.SliceIsSorted(d.Entries, func(i, j int) bool { return d.Entries[i].Name < d.Entries[j].Name }) {
		return nil, errors.New("dir entries out of order")
	}
	return &d, nil
}

func decodeDirent(b []byte) (Dirent, error) {
	var e Dirent
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return e, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Name = v
			b = b[n:]

		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Mode = uint32(v)
			b = b[n:]

		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			if len(v) != len(e.Ref) {
				return e, fmt.Errorf("dirent ref has length %d", len(v))
			}
			e.Ref = bsdrive.RefFromBytes(v)
			b = b[n:]

		case num == 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			e.Size = v
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return e, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return e, nil
}
