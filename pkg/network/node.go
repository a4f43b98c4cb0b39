package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
	"github.com/ZentaChain/overlay-node/pkg/identity"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// Path priorities. Lower values are preferred.
const (
	PriorityStaticRoute int16 = 10
	PriorityUnite       int16 = 20
	PriorityChildren    int16 = 30
	PrioritySuperPeer   int16 = 40
)

// Defaults applied by New for zero Config fields.
const (
	DefaultHelloInterval = 5 * time.Second
	DefaultChildrenTime  = 60 * time.Second
)

// maxDatagramSize is the largest UDP payload the node reads.
const maxDatagramSize = 64 * 1024

// maxUDPPayload is the largest payload of an IPv4 UDP datagram.
const maxUDPPayload = 65535 - 20 - 8

// MaxPayloadLength is the largest application payload Send accepts: the frame, armed or not,
// still fits into one UDP datagram.
const MaxPayloadLength = maxUDPPayload - protocol.MagicNumberLength - protocol.PublicHeaderLength -
	protocol.PrivateHeaderLength - 2*crypto.Overhead

var (
	ErrNoRoute    = errors.New("no route to peer")
	ErrNotStarted = errors.New("node not started")
)

// ApplicationHandler receives the payload of every application message addressed to the node.
// The payload is owned by the handler.
type ApplicationHandler func(sender protocol.PublicKey, payload []byte)

// Route is a fixed endpoint for a peer.
type Route struct {
	Peer     protocol.PublicKey
	Endpoint netip.AddrPort
}

// Config configures a Node. Zero values select the defaults.
type Config struct {
	NetworkID int32
	Bind      string
	Identity  *identity.Identity

	// PowDifficulty is the proof of work every sender must meet. 0 accepts any sender.
	PowDifficulty int

	// ArmingEnabled encrypts outgoing messages and rejects unarmed application messages.
	ArmingEnabled bool

	// AllowUnsignedJoin accepts join requests without a valid signature.
	AllowUnsignedJoin bool

	HelloInterval    time.Duration
	HelloTimeout     time.Duration
	ChildrenTime     time.Duration
	SessionCacheSize int

	// SuperPeer becomes the default peer; the node sends it signed join requests.
	SuperPeer    *Route
	StaticRoutes []Route

	Peers      *peers.Manager
	Nonces     protocol.NonceGenerator
	AEAD       crypto.AEAD
	Clock      clock.Clock
	Handler    ApplicationHandler
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Node sends and receives overlay frames on a UDP socket. Frames addressed to other nodes are
// forwarded along the registry; frames addressed to this node are disarmed and dispatched.
type Node struct {
	cfg      Config
	id       *identity.Identity
	peers    *peers.Manager
	sessions *sessionCache
	pow      *powCache
	unites   *lru.Cache
	nonces   protocol.NonceGenerator
	aead     crypto.AEAD
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics

	conn      *net.UDPConn
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time

	mu             sync.RWMutex
	publicEndpoint netip.AddrPort
}

// New creates a node. It does not open the socket; call Start.
func New(cfg Config) (*Node, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("%w: missing identity", identity.ErrInvalidIdentity)
	}
	if cfg.PowDifficulty < 0 || cfg.PowDifficulty > identity.MaxDifficulty {
		return nil, identity.ErrInvalidDifficulty
	}
	if cfg.Bind == "" {
		cfg.Bind = "0.0.0.0:0"
	}
	if cfg.HelloInterval <= 0 {
		cfg.HelloInterval = DefaultHelloInterval
	}
	if cfg.HelloTimeout <= 0 {
		cfg.HelloTimeout = peers.DefaultHelloTimeout
	}
	if cfg.ChildrenTime <= 0 {
		cfg.ChildrenTime = DefaultChildrenTime
	}
	if cfg.SessionCacheSize <= 0 {
		cfg.SessionCacheSize = DefaultSessionCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Peers == nil {
		cfg.Peers = peers.NewManager(peers.Options{HelloTimeout: cfg.HelloTimeout, Clock: cfg.Clock})
	}
	if cfg.Nonces == nil {
		cfg.Nonces = protocol.DefaultNonces
	}
	if cfg.AEAD == nil {
		cfg.AEAD = crypto.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}

	sessions, err := newSessionCache(cfg.Identity, cfg.SessionCacheSize)
	if err != nil {
		return nil, err
	}
	pow, err := newPowCache(cfg.PowDifficulty, cfg.SessionCacheSize)
	if err != nil {
		return nil, err
	}
	unites, err := lru.New(cfg.SessionCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create unite cache: %w", err)
	}

	return &Node{
		cfg:      cfg,
		id:       cfg.Identity,
		peers:    cfg.Peers,
		sessions: sessions,
		pow:      pow,
		unites:   unites,
		nonces:   cfg.Nonces,
		aead:     cfg.AEAD,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "node"),
		metrics:  newMetrics(cfg.Registerer),
	}, nil
}

// Start binds the socket, seeds the registry and starts the receive and hello loops.
func (n *Node) Start() error {
	addr, err := net.ResolveUDPAddr("udp", n.cfg.Bind)
	if err != nil {
		return fmt.Errorf("invalid bind address %q: %w", n.cfg.Bind, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.Bind, err)
	}
	n.conn = conn
	n.startTime = n.clock.Now()

	n.seedRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.wg.Add(2)
	go n.readLoop()
	go n.helloLoop(ctx)

	n.logger.Info("node started",
		"listen", n.Addr(),
		"address", n.id.Address,
		"network_id", n.cfg.NetworkID,
		"arming", n.cfg.ArmingEnabled)
	return nil
}

// Stop closes the socket and waits for the loops to return.
func (n *Node) Stop() error {
	if n.conn == nil {
		return ErrNotStarted
	}
	n.cancel()
	err := n.conn.Close()
	n.wg.Wait()
	n.logger.Info("node stopped")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Addr returns the local socket address, or the zero value before Start.
func (n *Node) Addr() netip.AddrPort {
	if n.conn == nil {
		return netip.AddrPort{}
	}
	ap := n.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// Address returns the overlay address of the node.
func (n *Node) Address() protocol.PublicKey {
	return n.id.Address
}

// Peers returns the registry used by the node.
func (n *Node) Peers() *peers.Manager {
	return n.peers
}

// PublicEndpoint returns the endpoint under which the super peer last observed this node.
func (n *Node) PublicEndpoint() (netip.AddrPort, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.publicEndpoint, n.publicEndpoint.IsValid()
}

func (n *Node) seedRoutes() {
	for _, r := range n.cfg.StaticRoutes {
		if !n.peers.AddPath(r.Peer, peers.OwnerStaticRoutes, r.Endpoint, PriorityStaticRoute) {
			n.logger.Warn("static route ignored", "peer", r.Peer, "endpoint", r.Endpoint)
		}
	}
	if sp := n.cfg.SuperPeer; sp != nil {
		n.peers.AddPath(sp.Peer, peers.OwnerSuperPeer, sp.Endpoint, PrioritySuperPeer)
		n.peers.SetDefaultPeer(sp.Peer)
	}
}

// Send delivers payload to recipient as an application message.
func (n *Node) Send(recipient protocol.PublicKey, payload []byte) error {
	if n.conn == nil {
		return ErrNotStarted
	}
	if len(payload) > MaxPayloadLength {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d",
			protocol.ErrInvalidMessageFormat, len(payload), MaxPayloadLength)
	}
	m, err := protocol.NewApplicationMessage(n.cfg.NetworkID, recipient, n.id.Address, n.id.ProofOfWork, payload)
	if err != nil {
		return err
	}
	m.Nonce = n.nonces.Next()

	endpoint, ok := n.peers.Endpoint(recipient)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoute, recipient)
	}
	if err := n.send(m, endpoint); err != nil {
		return err
	}
	n.peers.ApplicationMessageSentOrReceived(recipient)
	return nil
}

// send encodes m, arms it when arming is enabled and writes it to endpoint.
func (n *Node) send(m protocol.FullReadMessage, endpoint netip.AddrPort) error {
	var frame []byte
	if h := m.Header(); n.cfg.ArmingEnabled && h.HasRecipient() {
		session, err := n.sessions.get(h.Recipient)
		if err != nil {
			return fmt.Errorf("failed to derive session with %s: %w", h.Recipient, err)
		}
		armed, err := protocol.Arm(n.aead, m, session)
		if err != nil {
			return fmt.Errorf("failed to arm %s message: %w", m.Type(), err)
		}
		frame = protocol.Encode(armed)
	} else {
		frame = protocol.Encode(m)
	}

	if err := n.write(frame, endpoint); err != nil {
		return err
	}
	n.metrics.framesSent.WithLabelValues(m.Type().String()).Inc()
	return nil
}

func (n *Node) write(frame []byte, endpoint netip.AddrPort) error {
	written, err := n.conn.WriteToUDPAddrPort(frame, endpoint)
	if err != nil {
		return fmt.Errorf("failed to write to %s: %w", endpoint, err)
	}
	n.metrics.bytesSent.Add(float64(written))
	return nil
}

func (n *Node) readLoop() {
	defer n.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		size, src, err := n.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			n.logger.Warn("read failed", "error", err)
			continue
		}
		// decoded messages alias the frame, so every datagram gets its own copy
		frame := make([]byte, size)
		copy(frame, buf[:size])
		n.handleFrame(frame, netip.AddrPortFrom(src.Addr().Unmap(), src.Port()))
	}
}

func (n *Node) helloLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := n.clock.Ticker(n.cfg.HelloInterval)
	defer ticker.Stop()

	n.sendHellos()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.sendHellos()
			n.evictStalePaths()
			n.metrics.knownPeers.Set(float64(n.peers.Len()))
			n.metrics.sessionsCached.Set(float64(n.sessions.len()))
		}
	}
}

// sendHellos sends a join request to the super peer and pings every static and united peer.
func (n *Node) sendHellos() {
	now := n.clock.Now().UnixMilli()

	if sp := n.cfg.SuperPeer; sp != nil {
		join, err := protocol.NewHelloMessage(n.cfg.NetworkID, sp.Peer, n.id.Address, n.id.ProofOfWork,
			now, n.cfg.ChildrenTime.Milliseconds(), n.id.SecretKey, nil)
		if err != nil {
			n.logger.Error("failed to create join request", "error", err)
		} else {
			join.Nonce = n.nonces.Next()
			if err := n.send(join, sp.Endpoint); err != nil {
				n.logger.Debug("join request failed", "super_peer", sp.Peer, "error", err)
			}
		}
	}

	for _, owner := range []peers.OwnerID{peers.OwnerStaticRoutes, peers.OwnerUnite} {
		for _, peer := range n.peers.GetPeers(owner) {
			path, ok := n.peers.GetPath(peer, owner)
			if !ok {
				continue
			}
			n.ping(peer, path.Endpoint, now)
		}
	}
}

func (n *Node) ping(peer protocol.PublicKey, endpoint netip.AddrPort, now int64) {
	m := protocol.NewPingMessage(n.cfg.NetworkID, peer, n.id.Address, n.id.ProofOfWork, now)
	m.Nonce = n.nonces.Next()
	if err := n.send(m, endpoint); err != nil {
		n.logger.Debug("ping failed", "peer", peer, "endpoint", endpoint, "error", err)
	}
}

// evictStalePaths removes learned paths that have not been confirmed within the hello timeout.
func (n *Node) evictStalePaths() {
	for _, owner := range []peers.OwnerID{peers.OwnerChildren, peers.OwnerUnite} {
		for _, peer := range n.peers.GetPeers(owner) {
			if n.peers.IsStale(peer, owner) && n.peers.RemovePath(peer, owner) {
				n.logger.Debug("stale path removed", "peer", peer, "owner", owner)
			}
		}
	}
}

// Info is a point-in-time summary of the node.
type Info struct {
	Address        protocol.PublicKey   `json:"address"`
	PeerID         string               `json:"peer_id"`
	NetworkID      int32                `json:"network_id"`
	ProofOfWork    protocol.ProofOfWork `json:"proof_of_work"`
	Listen         string               `json:"listen"`
	PublicEndpoint string               `json:"public_endpoint,omitempty"`
	SuperPeer      string               `json:"super_peer,omitempty"`
	ArmingEnabled  bool                 `json:"arming_enabled"`
	Peers          int                  `json:"peers"`
	Sessions       int                  `json:"sessions"`
	StartedAt      time.Time            `json:"started_at"`
}

// Info returns a summary of the node for diagnostics.
func (n *Node) Info() Info {
	info := Info{
		Address:       n.id.Address,
		NetworkID:     n.cfg.NetworkID,
		ProofOfWork:   n.id.ProofOfWork,
		Listen:        n.Addr().String(),
		ArmingEnabled: n.cfg.ArmingEnabled,
		Peers:         n.peers.Len(),
		Sessions:      n.sessions.len(),
		StartedAt:     n.startTime,
	}
	if id, err := n.id.PeerID(); err == nil {
		info.PeerID = id.String()
	}
	if ep, ok := n.PublicEndpoint(); ok {
		info.PublicEndpoint = ep.String()
	}
	if sp := n.cfg.SuperPeer; sp != nil {
		info.SuperPeer = sp.Peer.String()
	}
	return info
}
