package peers

import (
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

func key(b byte) protocol.PublicKey {
	var k protocol.PublicKey
	k[0] = b
	k[31] = b
	return k
}

func endpoint(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("192.0.2.1"), port)
}

func TestPriorityOrdering(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	require.True(t, m.AddPath(peer, "a", endpoint(50), 50))
	require.True(t, m.AddPath(peer, "b", endpoint(10), 10))
	require.True(t, m.AddPath(peer, "c", endpoint(30), 30))

	ep, ok := m.Resolve(peer)
	require.True(t, ok)
	assert.Equal(t, endpoint(10), ep)
	assert.Equal(t, []netip.AddrPort{endpoint(10), endpoint(30), endpoint(50)}, m.Endpoints(peer))

	require.True(t, m.RemovePath(peer, "b"))
	ep, ok = m.Resolve(peer)
	require.True(t, ok)
	assert.Equal(t, endpoint(30), ep)
}

func TestEqualPriorityKeepsInsertionOrder(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	require.True(t, m.AddPath(peer, "first", endpoint(1), 5))
	require.True(t, m.AddPath(peer, "second", endpoint(2), 5))
	require.True(t, m.AddPath(peer, "better", endpoint(3), 4))
	require.True(t, m.AddPath(peer, "third", endpoint(4), 5))

	assert.Equal(t, []netip.AddrPort{endpoint(3), endpoint(1), endpoint(2), endpoint(4)}, m.Endpoints(peer))
}

func TestDuplicateOwnerRejected(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	require.True(t, m.AddPath(peer, "static", endpoint(1), 10))
	assert.False(t, m.AddPath(peer, "static", endpoint(2), 1))

	assert.Equal(t, []netip.AddrPort{endpoint(1)}, m.Endpoints(peer))
	p, ok := m.GetPath(peer, "static")
	require.True(t, ok)
	assert.Equal(t, int16(10), p.Priority)

	// after removal the owner may register again
	require.True(t, m.RemovePath(peer, "static"))
	assert.True(t, m.AddPath(peer, "static", endpoint(2), 1))
}

func TestInvalidEndpointRejected(t *testing.T) {
	m := NewManager(Options{})
	assert.False(t, m.AddPath(key(1), "static", netip.AddrPort{}, 1))
	assert.False(t, m.HasPath(key(1)))
}

func TestEmptyPeerCleanup(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	require.True(t, m.AddPath(peer, "static", endpoint(1), 10))
	assert.Equal(t, []protocol.PublicKey{peer}, m.GetPeers("static"))

	require.True(t, m.RemovePath(peer, "static"))

	_, ok := m.Resolve(peer)
	assert.False(t, ok)
	assert.False(t, m.HasPath(peer))
	assert.Empty(t, m.GetPeers("static"))
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.Endpoints(peer))

	assert.False(t, m.RemovePath(peer, "static"), "second removal")
}

func TestRemovePaths(t *testing.T) {
	m := NewManager(Options{})

	for i := byte(1); i <= 3; i++ {
		require.True(t, m.AddPath(key(i), "discovery", endpoint(uint16(i)), 20))
	}
	require.True(t, m.AddPath(key(1), "static", endpoint(100), 10))

	assert.Equal(t, 3, m.RemovePaths("discovery"))
	assert.Empty(t, m.GetPeers("discovery"))
	assert.Equal(t, 1, m.Len())

	ep, ok := m.Resolve(key(1))
	require.True(t, ok)
	assert.Equal(t, endpoint(100), ep)

	assert.Equal(t, 0, m.RemovePaths("unknown"))
}

func TestGetPeers(t *testing.T) {
	m := NewManager(Options{})
	require.True(t, m.AddPath(key(3), "a", endpoint(1), 1))
	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))
	require.True(t, m.AddPath(key(2), "b", endpoint(1), 1))

	assert.Equal(t, []protocol.PublicKey{key(1), key(3)}, m.GetPeers("a"))
	assert.Equal(t, []protocol.PublicKey{key(2)}, m.GetPeers("b"))
}

func TestDefaultPeerFallback(t *testing.T) {
	m := NewManager(Options{})
	superPeer := key(9)
	require.True(t, m.AddPath(superPeer, OwnerSuperPeer, endpoint(9), 1))

	_, ok := m.Endpoint(key(1))
	assert.False(t, ok)

	m.SetDefaultPeer(superPeer)
	assert.True(t, m.HasDefaultPeer())
	ep, ok := m.Endpoint(key(1))
	require.True(t, ok)
	assert.Equal(t, endpoint(9), ep)

	// a direct path wins
	require.True(t, m.AddPath(key(1), OwnerUnite, endpoint(1), 5))
	ep, _ = m.Endpoint(key(1))
	assert.Equal(t, endpoint(1), ep)

	// resolve never falls back
	_, ok = m.Resolve(key(2))
	assert.False(t, ok)

	m.UnsetDefaultPeer()
	_, ok = m.Endpoint(key(2))
	assert.False(t, ok)
	_, ok = m.DefaultPeer()
	assert.False(t, ok)
}

func TestStaleness(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager(Options{HelloTimeout: 10 * time.Second, Clock: mock})
	peer := key(1)

	assert.True(t, m.IsStale(peer, "a"), "missing path is stale")
	assert.False(t, m.HelloMessageReceived(peer, "a"))

	require.True(t, m.AddPath(peer, "a", endpoint(1), 1))
	assert.True(t, m.IsStale(peer, "a"), "path without hello is stale")

	require.True(t, m.HelloMessageReceived(peer, "a"))
	last, ok := m.LastHelloMessageReceivedTime(peer, "a")
	require.True(t, ok)
	assert.Equal(t, mock.Now(), last)
	assert.False(t, m.IsStale(peer, "a"))

	mock.Add(10 * time.Second)
	assert.False(t, m.IsStale(peer, "a"))

	mock.Add(time.Millisecond)
	assert.True(t, m.IsStale(peer, "a"))
}

func TestApplicationActivity(t *testing.T) {
	mock := clock.NewMock()
	m := NewManager(Options{Clock: mock})

	assert.False(t, m.ApplicationMessageSentOrReceived(key(1)), "peers without a path are not tracked")
	assert.True(t, m.LastApplicationMessageTime(key(1)).IsZero())

	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))
	require.True(t, m.AddPath(key(1), "b", endpoint(2), 2))
	mock.Add(time.Minute)
	assert.True(t, m.ApplicationMessageSentOrReceived(key(1)))
	assert.Equal(t, mock.Now(), m.LastApplicationMessageTime(key(1)))

	require.True(t, m.RemovePath(key(1), "a"))
	assert.Equal(t, mock.Now(), m.LastApplicationMessageTime(key(1)))

	require.True(t, m.RemovePath(key(1), "b"))
	assert.True(t, m.LastApplicationMessageTime(key(1)).IsZero(), "activity goes with the last path")

	for i := 0; i < 100; i++ {
		m.ApplicationMessageSentOrReceived(key(byte(i)))
	}
	m.mu.RLock()
	assert.Empty(t, m.activity)
	m.mu.RUnlock()
}

func TestReplacePath(t *testing.T) {
	mock := clock.NewMock()
	var events []Event
	m := NewManager(Options{Clock: mock, Listener: func(ev Event) { events = append(events, ev) }})

	assert.True(t, m.ReplacePath(key(1), "a", endpoint(1), 10), "replacing a missing path adds it")
	require.True(t, m.AddPath(key(1), "b", endpoint(2), 20))
	require.True(t, m.HelloMessageReceived(key(1), "a"))

	assert.False(t, m.ReplacePath(key(1), "a", endpoint(1), 10))
	assert.False(t, m.IsStale(key(1), "a"), "an unchanged path keeps its freshness")
	assert.False(t, m.ReplacePath(key(1), "a", netip.AddrPort{}, 10))

	assert.True(t, m.ReplacePath(key(1), "a", endpoint(3), 30))
	assert.Equal(t, []netip.AddrPort{endpoint(2), endpoint(3)}, m.Endpoints(key(1)))
	path, ok := m.GetPath(key(1), "a")
	require.True(t, ok)
	assert.Equal(t, int16(30), path.Priority)
	assert.True(t, m.IsStale(key(1), "a"))

	assert.Equal(t, []Event{
		{Kind: PathAdded, Peer: key(1), Owner: "a", Endpoint: endpoint(1)},
		{Kind: PathAdded, Peer: key(1), Owner: "b", Endpoint: endpoint(2)},
		{Kind: PathRemoved, Peer: key(1), Owner: "a", Endpoint: endpoint(1)},
		{Kind: PathAdded, Peer: key(1), Owner: "a", Endpoint: endpoint(3)},
	}, events)
}

func TestReplacePathNeverUnresolvable(t *testing.T) {
	m := NewManager(Options{})
	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			m.ReplacePath(key(1), "a", endpoint(uint16(i%2+1)), 1)
		}
	}()
	for {
		select {
		case <-done:
			return
		default:
		}
		_, ok := m.Resolve(key(1))
		require.True(t, ok)
	}
}

func TestEventsArriveInApplyOrder(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	m := NewManager(Options{Listener: func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			owner := OwnerID(fmt.Sprintf("owner-%d", w))
			for i := 0; i < 200; i++ {
				m.AddPath(key(1), owner, endpoint(uint16(w+1)), int16(w))
				m.RemovePath(key(1), owner)
			}
		}(w)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4*200*2)
	held := make(map[OwnerID]bool)
	for _, ev := range events {
		switch ev.Kind {
		case PathAdded:
			require.False(t, held[ev.Owner], "added twice without removal")
			held[ev.Owner] = true
		case PathRemoved:
			require.True(t, held[ev.Owner], "removed before added")
			held[ev.Owner] = false
		}
	}
}

func TestListenerMayChangePaths(t *testing.T) {
	var (
		m     *Manager
		kinds []EventKind
	)
	m = NewManager(Options{Listener: func(ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == PathAdded {
			m.RemovePath(ev.Peer, ev.Owner)
		}
	}})

	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))
	assert.Equal(t, []EventKind{PathAdded, PathRemoved}, kinds)
	assert.False(t, m.HasPath(key(1)))
}

func TestEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
		m      *Manager
	)
	m = NewManager(Options{Listener: func(ev Event) {
		// the lock is released before listeners run
		_ = m.HasPath(ev.Peer)
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}})

	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))
	require.False(t, m.AddPath(key(1), "a", endpoint(2), 1))
	require.True(t, m.AddPath(key(2), "a", endpoint(2), 1))
	require.True(t, m.RemovePath(key(1), "a"))
	require.Equal(t, 1, m.RemovePaths("a"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, Event{Kind: PathAdded, Peer: key(1), Owner: "a", Endpoint: endpoint(1)}, events[0])
	assert.Equal(t, Event{Kind: PathAdded, Peer: key(2), Owner: "a", Endpoint: endpoint(2)}, events[1])
	assert.Equal(t, Event{Kind: PathRemoved, Peer: key(1), Owner: "a", Endpoint: endpoint(1)}, events[2])
	assert.Equal(t, Event{Kind: PathRemoved, Peer: key(2), Owner: "a", Endpoint: endpoint(2)}, events[3])
}

func TestSnapshot(t *testing.T) {
	m := NewManager(Options{})
	require.True(t, m.AddPath(key(2), "b", endpoint(2), 2))
	require.True(t, m.AddPath(key(1), "a", endpoint(1), 1))
	require.True(t, m.AddPath(key(1), "c", endpoint(3), 0))

	snap := m.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, key(1), snap[0].Peer)
	require.Len(t, snap[0].Paths, 2)
	assert.Equal(t, OwnerID("c"), snap[0].Paths[0].Owner)

	// the snapshot is a copy
	snap[0].Paths[0].Priority = 99
	p, _ := m.GetPath(key(1), "c")
	assert.Equal(t, int16(0), p.Priority)
}

func TestIPv4MappedEndpointIsUnmapped(t *testing.T) {
	m := NewManager(Options{})
	mapped := netip.AddrPortFrom(netip.AddrFrom16(netip.MustParseAddr("192.0.2.1").As16()), 7)
	require.True(t, m.AddPath(key(1), "a", mapped, 1))

	ep, _ := m.Resolve(key(1))
	assert.Equal(t, endpoint(7), ep)
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		owner := OwnerID(fmt.Sprintf("owner-%d", w))
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.AddPath(peer, owner, endpoint(uint16(w+1)), int16(w))
				m.Resolve(peer)
				m.HelloMessageReceived(peer, owner)
				m.RemovePath(peer, owner)
			}
		}(w)
	}
	wg.Wait()

	assert.False(t, m.HasPath(peer))
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentOrderingInvariant(t *testing.T) {
	m := NewManager(Options{})
	peer := key(1)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			m.AddPath(peer, OwnerID(fmt.Sprintf("owner-%d", w)), endpoint(uint16(100+w)), int16(16-w))
		}(w)
	}
	wg.Wait()

	endpoints := m.Endpoints(peer)
	require.Len(t, endpoints, 16)
	for i, ep := range endpoints {
		// priority 16-w sorts highest w first
		assert.Equal(t, endpoint(uint16(100+15-i)), ep)
	}
}
