package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/bobg/bsdrive"
)

var _ PeerServer = &Server{}

// Topics tells a Server which drives it serves.
type Topics interface {
	// Joined tells whether the topic with the given discovery key has been joined.
	// It is called for each incoming Hello.
	Joined(ctx context.Context, dkey [32]byte) bool

	// Head is the root ref of the drive with the given discovery key.
	// It must consult only local state.
	Head(ctx context.Context, dkey [32]byte) (bsdrive.Ref, error)
}

// Server serves blobs from a local store.
type Server struct {
	g      bsdrive.Getter
	topics Topics
}

func NewServer(g bsdrive.Getter, topics Topics) *Server {
	return &Server{g: g, topics: topics}
}

func (s *Server) Hello(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	dkey, err := key32(req.GetValue())
	if err != nil {
		return nil, err
	}
	return wrapperspb.Bool(s.topics.Joined(ctx, dkey)), nil
}

func (s *Server) Head(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	dkey, err := key32(req.GetValue())
	if err != nil {
		return nil, err
	}
	ref, err := s.topics.Head(ctx, dkey)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(ref[:]), nil
}

func (s *Server) Get(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	ref, err := key32(req.GetValue())
	if err != nil {
		return nil, err
	}
	b, err := s.g.Get(ctx, bsdrive.Ref(ref))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Has(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	ref, err := key32(req.GetValue())
	if err != nil {
		return nil, err
	}
	ok, err := bsdrive.Has(ctx, s.g, bsdrive.Ref(ref))
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

func key32(b []byte) ([32]byte, error) {
	var result [32]byte
	if len(b) != len(result) {
		return result, status.Errorf(codes.InvalidArgument, "got %d bytes, want %d", len(b), len(result))
	}
	copy(result[:], b)
	return result, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, bsdrive.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
