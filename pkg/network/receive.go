package network

import (
	"errors"
	"net/netip"
	"time"

	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// handleFrame runs the receive pipeline for one datagram. The node owns frame.
func (n *Node) handleFrame(frame []byte, src netip.AddrPort) {
	n.metrics.bytesReceived.Add(float64(len(frame)))

	partial, err := protocol.Decode(frame)
	if err != nil {
		n.drop(dropFormat, src, err)
		return
	}

	h := partial.Header()
	switch {
	case h.NetworkID != n.cfg.NetworkID:
		n.drop(dropNetwork, src, nil)
		return
	case h.Sender == n.id.Address:
		n.drop(dropLoopback, src, nil)
		return
	case !n.pow.valid(h.Sender, h.ProofOfWork):
		n.drop(dropProofOfWork, src, nil)
		return
	}

	if h.HasRecipient() && h.Recipient != n.id.Address {
		n.forward(frame, h, src)
		return
	}

	var m protocol.FullReadMessage
	armed := false
	switch p := partial.(type) {
	case protocol.ArmedMessage:
		armed = true
		session, serr := n.sessions.get(p.Sender)
		if serr != nil {
			n.drop(dropSession, src, serr)
			return
		}
		m, err = p.Disarm(n.aead, session)
		if errors.Is(err, protocol.ErrIntegrity) {
			n.metrics.framesDropped.WithLabelValues(dropIntegrity).Inc()
			n.logger.Warn("dropped frame that failed authentication", "from", src, "sender", p.Sender)
			return
		}
	case protocol.UnarmedMessage:
		m, err = p.Read()
	}
	if err != nil {
		n.drop(dropFormat, src, err)
		return
	}

	if n.cfg.ArmingEnabled && !armed && requiresArming(m.Type()) {
		n.drop(dropUnarmed, src, nil)
		return
	}

	n.metrics.framesReceived.WithLabelValues(m.Type().String()).Inc()

	switch m := m.(type) {
	case protocol.HelloMessage:
		n.handleHello(m, src)
	case protocol.AcknowledgementMessage:
		n.handleAcknowledgement(m, src)
	case protocol.DiscoveryMessage:
		n.handleDiscovery(m, src)
	case protocol.UniteMessage:
		n.handleUnite(m, src)
	case protocol.ApplicationMessage:
		n.handleApplication(m, src)
	}
}

// requiresArming reports whether frames of type t are dropped when they arrive in clear
// on a node with arming enabled. Hello and discovery stay acceptable in clear so that
// joins work before the peer knows the node.
func requiresArming(t protocol.MessageType) bool {
	switch t {
	case protocol.TypeApplication, protocol.TypeUnite, protocol.TypeAcknowledgement:
		return true
	default:
		return false
	}
}

func (n *Node) drop(reason string, src netip.AddrPort, err error) {
	n.metrics.framesDropped.WithLabelValues(reason).Inc()
	if err != nil {
		n.logger.Debug("dropped frame", "reason", reason, "from", src, "error", err)
		return
	}
	n.logger.Debug("dropped frame", "reason", reason, "from", src)
}

// forward relays a frame addressed to another node. The frame is not decrypted; only its hop
// count changes.
func (n *Node) forward(frame []byte, h protocol.PublicHeader, src netip.AddrPort) {
	endpoint, ok := n.peers.Endpoint(h.Recipient)
	if !ok || endpoint == src {
		n.drop(dropNoRoute, src, nil)
		return
	}
	if err := protocol.IncrementHopCountInPlace(frame); err != nil {
		n.drop(dropHopLimit, src, err)
		return
	}
	if err := n.write(frame, endpoint); err != nil {
		n.logger.Debug("forward failed", "recipient", h.Recipient, "error", err)
		return
	}
	n.metrics.framesForwarded.Inc()

	n.maybeUnite(h.Sender, h.Recipient)
}

type unitePair [2]protocol.PublicKey

// maybeUnite introduces two children relaying through this node to each other so that they can
// punch a direct path. Each pair is introduced at most once per hello timeout.
func (n *Node) maybeUnite(a, b protocol.PublicKey) {
	pathA, okA := n.peers.GetPath(a, peers.OwnerChildren)
	pathB, okB := n.peers.GetPath(b, peers.OwnerChildren)
	if !okA || !okB {
		return
	}

	key := unitePair{a, b}
	if string(b[:]) < string(a[:]) {
		key = unitePair{b, a}
	}
	now := n.clock.Now()
	if v, ok := n.unites.Get(key); ok && now.Sub(v.(time.Time)) < n.cfg.HelloTimeout {
		return
	}
	n.unites.Add(key, now)

	n.sendUnite(a, pathA.Endpoint, b, pathB.Endpoint)
	n.sendUnite(b, pathB.Endpoint, a, pathA.Endpoint)
}

func (n *Node) sendUnite(recipient protocol.PublicKey, endpoint netip.AddrPort, address protocol.PublicKey, addressEndpoint netip.AddrPort) {
	m, err := protocol.NewUniteMessage(n.cfg.NetworkID, recipient, n.id.Address, n.id.ProofOfWork, address, addressEndpoint)
	if err != nil {
		n.logger.Debug("unite skipped", "recipient", recipient, "error", err)
		return
	}
	m.Nonce = n.nonces.Next()
	if err := n.send(m, endpoint); err != nil {
		n.logger.Debug("unite failed", "recipient", recipient, "error", err)
	}
}

func (n *Node) handleHello(m protocol.HelloMessage, src netip.AddrPort) {
	if m.ChildrenTime > 0 {
		if !n.acceptJoin(m, src) {
			return
		}
	} else {
		n.markFresh(m.Sender, src)
	}

	ack := protocol.NewAcknowledgementMessage(n.cfg.NetworkID, m.Sender, n.id.Address, n.id.ProofOfWork, m.Time, src)
	ack.Nonce = n.nonces.Next()
	if err := n.send(ack, src); err != nil {
		n.logger.Debug("acknowledgement failed", "peer", m.Sender, "error", err)
	}
}

// acceptJoin registers the sender of a join request as a child reachable at src.
func (n *Node) acceptJoin(m protocol.HelloMessage, src netip.AddrPort) bool {
	switch {
	case m.IsSigned() && !m.VerifySignature():
		n.drop(dropSignature, src, nil)
		return false
	case !m.IsSigned() && !n.cfg.AllowUnsignedJoin:
		n.drop(dropSignature, src, nil)
		return false
	}
	n.registerChild(m.Sender, src)
	return true
}

func (n *Node) registerChild(peer protocol.PublicKey, src netip.AddrPort) {
	if n.peers.ReplacePath(peer, peers.OwnerChildren, src, PriorityChildren) {
		n.logger.Info("child registered", "peer", peer, "endpoint", src)
	}
	n.peers.HelloMessageReceived(peer, peers.OwnerChildren)
}

// markFresh marks every path of peer that points at src as fresh.
func (n *Node) markFresh(peer protocol.PublicKey, src netip.AddrPort) bool {
	marked := false
	for _, owner := range []peers.OwnerID{
		peers.OwnerStaticRoutes, peers.OwnerLocalDiscovery, peers.OwnerSuperPeer,
		peers.OwnerChildren, peers.OwnerUnite,
	} {
		path, ok := n.peers.GetPath(peer, owner)
		if ok && path.Endpoint == src {
			n.peers.HelloMessageReceived(peer, owner)
			marked = true
		}
	}
	return marked
}

func (n *Node) handleAcknowledgement(m protocol.AcknowledgementMessage, src netip.AddrPort) {
	if !n.markFresh(m.Sender, src) {
		n.drop(dropUnsolicited, src, nil)
		return
	}

	if m.Time > 0 {
		if rtt := n.clock.Now().Sub(time.UnixMilli(m.Time)); rtt >= 0 {
			n.metrics.helloRTT.Observe(rtt.Seconds())
		}
	}

	if sp := n.cfg.SuperPeer; sp != nil && m.Sender == sp.Peer && m.HasEndpoint() {
		n.mu.Lock()
		changed := n.publicEndpoint != m.Endpoint
		n.publicEndpoint = m.Endpoint
		n.mu.Unlock()
		if changed {
			n.logger.Info("public endpoint observed", "endpoint", m.Endpoint)
		}
	}
}

// handleDiscovery treats a discovery with children time as an unsigned join request.
func (n *Node) handleDiscovery(m protocol.DiscoveryMessage, src netip.AddrPort) {
	if m.ChildrenTime <= 0 {
		n.markFresh(m.Sender, src)
		return
	}
	if !n.cfg.AllowUnsignedJoin {
		n.drop(dropSignature, src, nil)
		return
	}
	n.registerChild(m.Sender, src)

	ack := protocol.NewAcknowledgementMessage(n.cfg.NetworkID, m.Sender, n.id.Address, n.id.ProofOfWork, m.Time, src)
	ack.Nonce = n.nonces.Next()
	if err := n.send(ack, src); err != nil {
		n.logger.Debug("acknowledgement failed", "peer", m.Sender, "error", err)
	}
}

// handleUnite adds the direct path announced by the super peer and punches it with a ping.
func (n *Node) handleUnite(m protocol.UniteMessage, src netip.AddrPort) {
	sp := n.cfg.SuperPeer
	if sp == nil || m.Sender != sp.Peer || m.Address == n.id.Address {
		n.drop(dropUnsolicited, src, nil)
		return
	}

	if n.peers.ReplacePath(m.Address, peers.OwnerUnite, m.Endpoint, PriorityUnite) {
		n.logger.Info("direct path learned", "peer", m.Address, "endpoint", m.Endpoint)
	}
	// grace period until the first acknowledgement
	n.peers.HelloMessageReceived(m.Address, peers.OwnerUnite)

	n.ping(m.Address, m.Endpoint, n.clock.Now().UnixMilli())
}

func (n *Node) handleApplication(m protocol.ApplicationMessage, src netip.AddrPort) {
	n.peers.ApplicationMessageSentOrReceived(m.Sender)
	if n.cfg.Handler != nil {
		n.cfg.Handler(m.Sender, m.Payload)
	}
}
