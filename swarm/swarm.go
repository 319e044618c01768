// Package swarm connects bsdrive peers.
//
// A Network serves blobs from a local store over gRPC
// and fetches blobs and drive heads from the peers it finds
// through a Discovery mechanism.
// Peers are grouped into topics,
// one per drive,
// named by the drive's discovery key.
package swarm

import (
	"context"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/peer"

	"github.com/bobg/bsdrive"
	"github.com/bobg/bsdrive/swarm/rpc"
)

// Topic is a drive being shared.
type Topic interface {
	DiscoveryKey() [32]byte

	// LocalHead is the drive's root ref from local state only.
	LocalHead(context.Context) (bsdrive.Ref, error)
}

type Config struct {
	// ListenAddr is the TCP address to serve on.
	// The default is ":0".
	ListenAddr string

	// Discovery finds peers.
	// If nil, no peers are found,
	// though peers may still connect to this node.
	Discovery Discovery

	// DialTimeout bounds the handshake with a newly found peer.
	// The default is 10 seconds.
	DialTimeout time.Duration

	// StopTimeout bounds the graceful stop of the server in Close,
	// after which in-flight requests are cut off.
	// The default is 5 seconds.
	StopTimeout time.Duration
}

// ErrClosed is the error for operations on a closed Network.
var ErrClosed = errors.New("network closed")

// Network is a node in the peer network.
type Network struct {
	conf Config
	g    bsdrive.Getter

	ctx    context.Context // canceled by Close
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	lis    net.Listener
	srv    *grpc.Server
	topics map[[32]byte]*topic
	peers  map[string]*remotePeer
	closed bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

type topic struct {
	t         Topic
	peers     map[string]struct{} // outbound, by address
	connected chan struct{}       // closed when the first peer connects
	once      sync.Once
}

func (t *topic) markConnected() {
	t.once.Do(func() { close(t.connected) })
}

type remotePeer struct {
	addr   string
	cc     *grpc.ClientConn
	client *rpc.Client
	topics map[[32]byte]bool
}

// New produces a Network serving blobs from g.
// It does nothing until Listen is called.
func New(g bsdrive.Getter, conf Config) *Network {
	if conf.ListenAddr == "" {
		conf.ListenAddr = ":0"
	}
	if conf.DialTimeout == 0 {
		conf.DialTimeout = 10 * time.Second
	}
	if conf.StopTimeout == 0 {
		conf.StopTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Network{
		conf:   conf,
		g:      g,
		ctx:    ctx,
		cancel: cancel,
		topics: make(map[[32]byte]*topic),
		peers:  make(map[string]*remotePeer),
		done:   make(chan struct{}),
	}
}

// Listen starts serving.
// It returns once the listener is bound.
func (n *Network) Listen(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	if n.lis != nil {
		return nil
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", n.conf.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", n.conf.ListenAddr)
	}

	srv := grpc.NewServer()
	rpc.RegisterPeerServer(srv, rpc.NewServer(n.g, serverTopics{n: n}))

	n.lis = lis
	n.srv = srv

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Printf("serving on %s: %s", lis.Addr(), err)
		}
	}()

	return nil
}

// Addr is the address the Network listens on,
// or "" before Listen.
func (n *Network) Addr() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.lis == nil {
		return ""
	}
	return n.lis.Addr().String()
}

// Join takes part in the topic for t.
// Joining a topic already joined does nothing.
func (n *Network) Join(ctx context.Context, t Topic, opts JoinOpts) error {
	dkey := t.DiscoveryKey()

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.lis == nil {
		n.mu.Unlock()
		return errors.New("network not listening")
	}
	if _, ok := n.topics[dkey]; ok {
		n.mu.Unlock()
		return nil
	}
	n.topics[dkey] = &topic{
		t:         t,
		peers:     make(map[string]struct{}),
		connected: make(chan struct{}),
	}
	addr := n.lis.Addr().String()
	var known []string
	for a := range n.peers {
		known = append(known, a)
	}
	n.mu.Unlock()

	// Peers already connected for other topics may share this one.
	for _, a := range known {
		n.found(dkey, a)
	}

	if n.conf.Discovery == nil {
		return nil
	}
	err := n.conf.Discovery.Join(n.ctx, dkey, addr, opts, func(a string) {
		n.found(dkey, a)
	})
	return errors.Wrapf(err, "joining topic %x", dkey[:4])
}

func (n *Network) found(dkey [32]byte, addr string) {
	n.mu.Lock()
	if n.closed || (n.lis != nil && addr == n.lis.Addr().String()) {
		n.mu.Unlock()
		return
	}
	if p, ok := n.peers[addr]; ok && p.topics[dkey] {
		n.mu.Unlock()
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		if err := n.connect(dkey, addr); err != nil {
			log.Printf("connecting to %s: %s", addr, err)
		}
	}()
}

func (n *Network) connect(dkey [32]byte, addr string) error {
	p, err := n.dial(addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(n.ctx, n.conf.DialTimeout)
	defer cancel()

	ok, err := p.client.Hello(ctx, dkey)
	if err != nil {
		return errors.Wrap(err, "saying hello")
	}
	if !ok {
		return nil
	}

	n.mu.Lock()
	t, ok := n.topics[dkey]
	if ok {
		t.peers[addr] = struct{}{}
		p.topics[dkey] = true
	}
	n.mu.Unlock()

	if ok {
		log.Printf("peer %s joined topic %x", addr, dkey[:4])
		t.markConnected()
	}
	return nil
}

func (n *Network) dial(addr string) (*remotePeer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, ErrClosed
	}
	if p, ok := n.peers[addr]; ok {
		return p, nil
	}

	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	p := &remotePeer{
		addr:   addr,
		cc:     cc,
		client: rpc.NewClient(cc),
		topics: make(map[[32]byte]bool),
	}
	n.peers[addr] = p
	return p, nil
}

// WaitForPeer blocks until a peer has connected in the topic named by dkey,
// in either direction.
func (n *Network) WaitForPeer(ctx context.Context, dkey [32]byte) error {
	n.mu.Lock()
	t, ok := n.topics[dkey]
	n.mu.Unlock()

	if !ok {
		return errors.Errorf("topic %x not joined", dkey[:4])
	}

	select {
	case <-t.connected:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ctx.Done():
		return ErrClosed
	}
}

// Peers lists the addresses of the peers this node has connected to in the topic named by dkey.
func (n *Network) Peers(dkey [32]byte) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[dkey]
	if !ok {
		return nil
	}
	var result []string
	for a := range t.peers {
		result = append(result, a)
	}
	sort.Strings(result)
	return result
}

func (n *Network) connectedPeers(dkey *[32]byte) []*remotePeer {
	n.mu.Lock()
	defer n.mu.Unlock()

	var result []*remotePeer
	for _, p := range n.peers {
		if dkey == nil && len(p.topics) > 0 || dkey != nil && p.topics[*dkey] {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].addr < result[j].addr })
	return result
}

// Get fetches a blob from the first connected peer that has it.
// It returns bsdrive.ErrNotFound if none does.
func (n *Network) Get(ctx context.Context, ref bsdrive.Ref) (bsdrive.Blob, error) {
	for _, p := range n.connectedPeers(nil) {
		b, err := p.client.Get(ctx, ref)
		if errors.Is(err, bsdrive.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("getting %s from %s: %s", ref, p.addr, err)
			continue
		}
		return b, nil
	}
	return nil, errors.Wrapf(bsdrive.ErrNotFound, "blob %s", ref)
}

// Head asks the peers in the topic named by dkey for the drive's root ref.
// It returns bsdrive.ErrNotFound if none has one.
func (n *Network) Head(ctx context.Context, dkey [32]byte) (bsdrive.Ref, error) {
	for _, p := range n.connectedPeers(&dkey) {
		ref, err := p.client.Head(ctx, dkey)
		if errors.Is(err, bsdrive.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return bsdrive.Zero, ctx.Err()
			}
			log.Printf("getting head from %s: %s", p.addr, err)
			continue
		}
		return ref, nil
	}
	return bsdrive.Zero, errors.Wrapf(bsdrive.ErrNotFound, "head of topic %x", dkey[:4])
}

// Close leaves all topics,
// closes connections to peers,
// and stops the server.
// Calls after the first wait for it to finish and return its result.
func (n *Network) Close() error {
	n.closeOnce.Do(func() {
		n.mu.Lock()
		n.closed = true
		srv := n.srv
		peers := n.peers
		n.peers = make(map[string]*remotePeer)
		n.mu.Unlock()

		n.cancel()

		var errs []error
		if n.conf.Discovery != nil {
			errs = append(errs, errors.Wrap(n.conf.Discovery.Close(), "closing discovery"))
		}

		if srv != nil {
			stopped := make(chan struct{})
			go func() {
				srv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(n.conf.StopTimeout):
				srv.Stop()
				<-stopped
			}
		}

		for _, p := range peers {
			errs = append(errs, errors.Wrapf(p.cc.Close(), "closing connection to %s", p.addr))
		}

		n.wg.Wait()

		for _, err := range errs {
			if err != nil {
				n.closeErr = err
				break
			}
		}
		close(n.done)
	})
	<-n.done
	return n.closeErr
}

// serverTopics adapts a Network to rpc.Topics.
type serverTopics struct {
	n *Network
}

func (s serverTopics) Joined(ctx context.Context, dkey [32]byte) bool {
	s.n.mu.Lock()
	t, ok := s.n.topics[dkey]
	s.n.mu.Unlock()

	if !ok {
		return false
	}
	if p, ok := peer.FromContext(ctx); ok {
		log.Printf("peer %s connected to topic %x", p.Addr, dkey[:4])
	}
	t.markConnected()
	return true
}

func (s serverTopics) Head(ctx context.Context, dkey [32]byte) (bsdrive.Ref, error) {
	s.n.mu.Lock()
	t, ok := s.n.topics[dkey]
	s.n.mu.Unlock()

	if !ok {
		return bsdrive.Zero, bsdrive.ErrNotFound
	}
	return t.t.LocalHead(ctx)
}
