package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bobg/bsdrive"
)

// Client talks to one peer.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Hello tells whether the peer has joined the topic with the given discovery key.
func (c *Client) Hello(ctx context.Context, dkey [32]byte) (bool, error) {
	out := new(wrapperspb.BoolValue)
	err := c.cc.Invoke(ctx, fullMethod("Hello"), wrapperspb.Bytes(dkey[:]), out)
	return out.GetValue(), err
}

// Head gets the peer's root ref for the drive with the given discovery key.
func (c *Client) Head(ctx context.Context, dkey [32]byte) (bsdrive.Ref, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, fullMethod("Head"), wrapperspb.Bytes(dkey[:]), out)
	if status.Code(err) == codes.NotFound {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}
	if err != nil {
		return bsdrive.Zero, err
	}
	return refFromBytes(out.GetValue())
}

// Get gets a blob from the peer.
func (c *Client) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, fullMethod("Get"), wrapperspb.Bytes(ref[:]), out)
	if status.Code(err) == codes.NotFound {
		return nil, bsdrive.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Has tells whether the peer has a blob.
func (c *Client) Has(ctx context.Context, ref bsdrive.Ref) (bool, error) {
	out := new(wrapperspb.BoolValue)
	err := c.cc.Invoke(ctx, fullMethod("Has"), wrapperspb.Bytes(ref[:]), out)
	return out.GetValue(), err
}

func refFromBytes(b []byte) (bsdrive.Ref, error) {
	var ref bsdrive.Ref
	if len(b) != len(ref) {
		return bsdrive.Zero, errors.Errorf("got %d-byte ref", len(b))
	}
	copy(ref[:], b)
	return ref, nil
}
