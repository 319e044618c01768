package split

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bobg/bsdrive"
)

// Node is the root blob of a split file.
//
// Wire format (protobuf-compatible):
//
//	message Node {
//	  uint64 size = 1;
//	  repeated Chunk chunks = 2;
//	}
//	message Chunk {
//	  bytes ref = 1;
//	  uint64 size = 2;
//	}
type Node struct {
	Size   uint64
	Chunks []Chunk
}

// Chunk is one block of a split file.
type Chunk struct {
	Ref  bsdrive.Ref
	Size uint64
}

// Encode serializes n.
// The encoding is deterministic, so equal Nodes have equal refs.
func (n *Node) Encode() bsdrive.Blob {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, n.Size)
	for _, c := range n.Chunks {
		var cb []byte
		cb = protowire.AppendTag(cb, 1, protowire.BytesType)
		cb = protowire.AppendBytes(cb, c.Ref[:])
		cb = protowire.AppendTag(cb, 2, protowire.VarintType)
		cb = protowire.AppendVarint(cb, c.Size)

		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, cb)
	}
	return b
}

// DecodeNode parses the output of Node.Encode.
func DecodeNode(b []byte) (*Node, error) {
	var n Node
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		b = b[m:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			n.Size = v
			b = b[m:]

		case num == 2 && typ == protowire.BytesType:
			cb, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			c, err := decodeChunk(cb)
			if err != nil {
				return nil, err
			}
			n.Chunks = append(n.Chunks, c)
			b = b[m:]

		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return &n, nil
}

func decodeChunk(b []byte) (Chunk, error) {
	var c Chunk
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return c, protowire.ParseError(m)
		}
		b = b[m:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return c, protowire.ParseError(m)
			}
			if len(v) != len(c.Ref) {
				return c, fmt.Errorf("chunk ref has length %d", len(v))
			}
			c.Ref = bsdrive.RefFromBytes(v)
			b = b[m:]

		case num == 2 && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return c, protowire.ParseError(m)
			}
			c.Size = v
			b = b[m:]

		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return c, protowire.ParseError(m)
			}
			b = b[m:]
		}
	}
	return c, nil
}
