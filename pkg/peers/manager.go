package peers

import (
	"bytes"
	"net/netip"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// DefaultHelloTimeout is how long a path stays fresh after the last hello.
const DefaultHelloTimeout = 30 * time.Second

// OwnerID names the subsystem that registered a path.
type OwnerID string

// Path owners used by the node
const (
	OwnerStaticRoutes   OwnerID = "static-routes"
	OwnerLocalDiscovery OwnerID = "local-discovery"
	OwnerSuperPeer      OwnerID = "super-peer"
	OwnerChildren       OwnerID = "children"
	OwnerUnite          OwnerID = "unite"
)

// Path is one candidate endpoint for a peer. Lower priority values are preferred.
type Path struct {
	Owner     OwnerID        `json:"owner"`
	Endpoint  netip.AddrPort `json:"endpoint"`
	Priority  int16          `json:"priority"`
	LastHello time.Time      `json:"last_hello"`
}

// EventKind distinguishes path events.
type EventKind int

const (
	PathAdded EventKind = iota
	PathRemoved
)

func (k EventKind) String() string {
	switch k {
	case PathAdded:
		return "path-added"
	case PathRemoved:
		return "path-removed"
	default:
		return "unknown"
	}
}

// Event reports a change of the registry.
type Event struct {
	Kind     EventKind
	Peer     protocol.PublicKey
	Owner    OwnerID
	Endpoint netip.AddrPort
}

// Listener receives events in the order the changes were applied. It is called without the
// registry lock held, so it may call back into the Manager. Events of changes made by the
// listener itself are delivered after it returns.
type Listener func(Event)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	HelloTimeout time.Duration
	Clock        clock.Clock
	Listener     Listener
}

// Manager keeps, per peer, a priority ordered list of paths contributed by independent owners and
// resolves the preferred endpoint for outbound messages.
//
// The list of a peer is sorted ascending by priority, holds at most one path per owner and is
// never empty: removing the last path removes the peer. Paths with equal priority keep their
// insertion order.
type Manager struct {
	mu       sync.RWMutex
	paths    map[protocol.PublicKey][]Path
	owners   map[OwnerID]map[protocol.PublicKey]struct{}
	activity map[protocol.PublicKey]time.Time

	// pending holds events in apply order until a single deliverer hands them to the listener
	pending   []Event
	deliverMu sync.Mutex

	defaultPeer    protocol.PublicKey
	hasDefaultPeer bool

	helloTimeout time.Duration
	clock        clock.Clock
	listener     Listener
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.HelloTimeout <= 0 {
		opts.HelloTimeout = DefaultHelloTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Manager{
		paths:        make(map[protocol.PublicKey][]Path),
		owners:       make(map[OwnerID]map[protocol.PublicKey]struct{}),
		activity:     make(map[protocol.PublicKey]time.Time),
		helloTimeout: opts.HelloTimeout,
		clock:        opts.Clock,
		listener:     opts.Listener,
	}
}

// AddPath registers endpoint for peer on behalf of owner. It returns false and changes nothing if
// owner already holds a path for peer or endpoint is invalid; to move a path remove it first.
func (m *Manager) AddPath(peer protocol.PublicKey, owner OwnerID, endpoint netip.AddrPort, priority int16) bool {
	if !endpoint.IsValid() {
		return false
	}
	endpoint = netip.AddrPortFrom(endpoint.Addr().Unmap(), endpoint.Port())

	m.mu.Lock()
	if m.holds(peer, owner) {
		m.mu.Unlock()
		return false
	}
	m.queue(m.addLocked(peer, owner, endpoint, priority))
	m.mu.Unlock()

	m.deliver()
	return true
}

// ReplacePath sets the path owner holds for peer to endpoint and priority in one step, so that
// peer stays resolvable throughout. It returns false if endpoint is invalid or the path already
// has this endpoint and priority; the freshness of an unchanged path is kept.
func (m *Manager) ReplacePath(peer protocol.PublicKey, owner OwnerID, endpoint netip.AddrPort, priority int16) bool {
	if !endpoint.IsValid() {
		return false
	}
	endpoint = netip.AddrPortFrom(endpoint.Addr().Unmap(), endpoint.Port())

	m.mu.Lock()
	list := m.paths[peer]
	i := slices.IndexFunc(list, func(p Path) bool { return p.Owner == owner })
	if i >= 0 {
		if list[i].Endpoint == endpoint && list[i].Priority == priority {
			m.mu.Unlock()
			return false
		}
		removed := list[i]
		m.paths[peer] = slices.Delete(list, i, i+1)
		m.queue(Event{Kind: PathRemoved, Peer: peer, Owner: owner, Endpoint: removed.Endpoint})
	}
	m.queue(m.addLocked(peer, owner, endpoint, priority))
	m.mu.Unlock()

	m.deliver()
	return true
}

func (m *Manager) addLocked(peer protocol.PublicKey, owner OwnerID, endpoint netip.AddrPort, priority int16) Event {
	list := m.paths[peer]
	// after the last path with priority <= the new one
	i := sort.Search(len(list), func(i int) bool { return list[i].Priority > priority })
	m.paths[peer] = slices.Insert(list, i, Path{Owner: owner, Endpoint: endpoint, Priority: priority})

	peers, ok := m.owners[owner]
	if !ok {
		peers = make(map[protocol.PublicKey]struct{})
		m.owners[owner] = peers
	}
	peers[peer] = struct{}{}
	return Event{Kind: PathAdded, Peer: peer, Owner: owner, Endpoint: endpoint}
}

// RemovePath removes the path owner holds for peer. It returns false if there is none.
func (m *Manager) RemovePath(peer protocol.PublicKey, owner OwnerID) bool {
	m.mu.Lock()
	ev, ok := m.removeLocked(peer, owner)
	if ok {
		m.queue(ev)
	}
	m.mu.Unlock()

	m.deliver()
	return ok
}

// RemovePaths removes every path held by owner and returns the number of removed paths.
func (m *Manager) RemovePaths(owner OwnerID) int {
	m.mu.Lock()
	removed := 0
	for peer := range m.owners[owner] {
		if ev, ok := m.removeLocked(peer, owner); ok {
			m.queue(ev)
			removed++
		}
	}
	m.mu.Unlock()

	m.deliver()
	return removed
}

func (m *Manager) holds(peer protocol.PublicKey, owner OwnerID) bool {
	_, ok := m.owners[owner][peer]
	return ok
}

func (m *Manager) removeLocked(peer protocol.PublicKey, owner OwnerID) (Event, bool) {
	if !m.holds(peer, owner) {
		return Event{}, false
	}

	peers := m.owners[owner]
	delete(peers, peer)
	if len(peers) == 0 {
		delete(m.owners, owner)
	}

	list := m.paths[peer]
	i := slices.IndexFunc(list, func(p Path) bool { return p.Owner == owner })
	if i < 0 {
		return Event{}, false
	}
	removed := list[i]
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(m.paths, peer)
		delete(m.activity, peer)
	} else {
		m.paths[peer] = list
	}
	return Event{Kind: PathRemoved, Peer: peer, Owner: owner, Endpoint: removed.Endpoint}, true
}

// queue records ev for delivery. The caller holds mu.
func (m *Manager) queue(ev Event) {
	if m.listener != nil {
		m.pending = append(m.pending, ev)
	}
}

// deliver hands pending events to the listener. Only one goroutine delivers at a time; others
// leave their events to it, and it checks for late arrivals after giving up the role.
func (m *Manager) deliver() {
	if m.listener == nil {
		return
	}
	for {
		if !m.deliverMu.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			events := m.pending
			m.pending = nil
			m.mu.Unlock()
			if len(events) == 0 {
				break
			}
			for _, ev := range events {
				m.listener(ev)
			}
		}
		m.deliverMu.Unlock()

		m.mu.RLock()
		more := len(m.pending) > 0
		m.mu.RUnlock()
		if !more {
			return
		}
	}
}

// Resolve returns the endpoint of the preferred path of peer.
func (m *Manager) Resolve(peer protocol.PublicKey) (netip.AddrPort, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(peer)
}

func (m *Manager) resolveLocked(peer protocol.PublicKey) (netip.AddrPort, bool) {
	list := m.paths[peer]
	if len(list) == 0 {
		return netip.AddrPort{}, false
	}
	return list[0].Endpoint, true
}

// Endpoint resolves peer and falls back to the preferred endpoint of the default peer.
func (m *Manager) Endpoint(peer protocol.PublicKey) (netip.AddrPort, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ep, ok := m.resolveLocked(peer); ok {
		return ep, true
	}
	if m.hasDefaultPeer {
		return m.resolveLocked(m.defaultPeer)
	}
	return netip.AddrPort{}, false
}

// Endpoints returns all endpoints of peer in priority order.
func (m *Manager) Endpoints(peer protocol.PublicKey) []netip.AddrPort {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.paths[peer]
	endpoints := make([]netip.AddrPort, 0, len(list))
	for _, p := range list {
		endpoints = append(endpoints, p.Endpoint)
	}
	return endpoints
}

// GetPath returns the path owner holds for peer.
func (m *Manager) GetPath(peer protocol.PublicKey, owner OwnerID) (Path, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.paths[peer] {
		if p.Owner == owner {
			return p, true
		}
	}
	return Path{}, false
}

// GetPeers returns the peers owner holds a path for, sorted by address.
func (m *Manager) GetPeers(owner OwnerID) []protocol.PublicKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	peers := make([]protocol.PublicKey, 0, len(m.owners[owner]))
	for peer := range m.owners[owner] {
		peers = append(peers, peer)
	}
	sortKeys(peers)
	return peers
}

// HasPath reports whether peer has at least one path.
func (m *Manager) HasPath(peer protocol.PublicKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.paths[peer]) > 0
}

// ===== DEFAULT PEER =====

// SetDefaultPeer selects the peer used by Endpoint when a peer has no path of its own, usually
// the super peer.
func (m *Manager) SetDefaultPeer(peer protocol.PublicKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPeer = peer
	m.hasDefaultPeer = true
}

// UnsetDefaultPeer clears the default peer.
func (m *Manager) UnsetDefaultPeer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultPeer = protocol.PublicKey{}
	m.hasDefaultPeer = false
}

// DefaultPeer returns the default peer.
func (m *Manager) DefaultPeer() (protocol.PublicKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultPeer, m.hasDefaultPeer
}

// HasDefaultPeer reports whether a default peer is set.
func (m *Manager) HasDefaultPeer() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasDefaultPeer
}

// ===== FRESHNESS =====

// HelloMessageReceived marks the path owner holds for peer as fresh. It returns false if there
// is no such path.
func (m *Manager) HelloMessageReceived(peer protocol.PublicKey, owner OwnerID) bool {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.paths[peer]
	for i := range list {
		if list[i].Owner == owner {
			list[i].LastHello = now
			return true
		}
	}
	return false
}

// LastHelloMessageReceivedTime returns when the path was last marked fresh. The zero time means
// never.
func (m *Manager) LastHelloMessageReceivedTime(peer protocol.PublicKey, owner OwnerID) (time.Time, bool) {
	p, ok := m.GetPath(peer, owner)
	return p.LastHello, ok
}

// IsStale reports whether the path has not been marked fresh within the hello timeout. Missing
// paths and paths that never received a hello are stale.
func (m *Manager) IsStale(peer protocol.PublicKey, owner OwnerID) bool {
	last, ok := m.LastHelloMessageReceivedTime(peer, owner)
	if !ok || last.IsZero() {
		return true
	}
	return last.Before(m.clock.Now().Add(-m.helloTimeout))
}

// ApplicationMessageSentOrReceived records application traffic with peer. Only peers with a path
// are tracked and the record goes with their last path; it returns false for unknown peers.
func (m *Manager) ApplicationMessageSentOrReceived(peer protocol.PublicKey) bool {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.paths[peer]) == 0 {
		return false
	}
	m.activity[peer] = now
	return true
}

// LastApplicationMessageTime returns the time of the last application traffic with peer, or the
// zero time.
func (m *Manager) LastApplicationMessageTime(peer protocol.PublicKey) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activity[peer]
}

// ===== DIAGNOSTICS =====

// PeerInfo is a point-in-time view of one peer.
type PeerInfo struct {
	Peer            protocol.PublicKey `json:"peer"`
	Paths           []Path             `json:"paths"`
	LastApplication time.Time          `json:"last_application"`
}

// Snapshot returns a copy of all peers and their paths, sorted by peer address.
func (m *Manager) Snapshot() []PeerInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]PeerInfo, 0, len(m.paths))
	for peer, list := range m.paths {
		infos = append(infos, PeerInfo{
			Peer:            peer,
			Paths:           slices.Clone(list),
			LastApplication: m.activity[peer],
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return bytes.Compare(infos[i].Peer[:], infos[j].Peer[:]) < 0
	})
	return infos
}

// Len returns the number of peers with at least one path.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.paths)
}

func sortKeys(keys []protocol.PublicKey) {
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
}
