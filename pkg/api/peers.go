package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/overlay-node/pkg/identity"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// PathInfo describes one candidate endpoint of a peer
type PathInfo struct {
	Owner     string     `json:"owner"`
	Endpoint  string     `json:"endpoint"`
	Multiaddr string     `json:"multiaddr,omitempty"`
	Priority  int16      `json:"priority"`
	LastHello *time.Time `json:"lastHello,omitempty"`
	Stale     bool       `json:"stale"`
}

// PeerInfo contains the registry entry of a peer
type PeerInfo struct {
	Address         string     `json:"address"`
	PeerID          string     `json:"peerId,omitempty"`
	Endpoint        string     `json:"endpoint"`
	Paths           []PathInfo `json:"paths"`
	LastApplication *time.Time `json:"lastApplication,omitempty"`
}

// PeersResponse contains all known peers
type PeersResponse struct {
	Success     bool       `json:"success"`
	Count       int        `json:"count"`
	DefaultPeer string     `json:"defaultPeer,omitempty"`
	Peers       []PeerInfo `json:"peers"`
}

// PeerResponse contains a single peer
type PeerResponse struct {
	Success bool     `json:"success"`
	Peer    PeerInfo `json:"peer"`
}

// handlePeers handles GET /api/v1/peers
func (s *Server) handlePeers(c *gin.Context) {
	snapshot := s.peers.Snapshot()

	peerList := make([]PeerInfo, 0, len(snapshot))
	for _, p := range snapshot {
		peerList = append(peerList, s.peerInfo(p))
	}

	response := PeersResponse{
		Success: true,
		Count:   len(peerList),
		Peers:   peerList,
	}
	if dp, ok := s.peers.DefaultPeer(); ok {
		response.DefaultPeer = dp.String()
	}

	c.JSON(http.StatusOK, response)
}

// handlePeer handles GET /api/v1/peers/:address
func (s *Server) handlePeer(c *gin.Context) {
	address, err := protocol.ParsePublicKey(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid address",
			Message: err.Error(),
		})
		return
	}

	for _, p := range s.peers.Snapshot() {
		if p.Peer == address {
			c.JSON(http.StatusOK, PeerResponse{Success: true, Peer: s.peerInfo(p)})
			return
		}
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "Peer not found",
		Message: address.String(),
	})
}

func (s *Server) peerInfo(p peers.PeerInfo) PeerInfo {
	info := PeerInfo{
		Address: p.Peer.String(),
		Paths:   make([]PathInfo, 0, len(p.Paths)),
	}
	if id, err := identity.PeerID(p.Peer); err == nil {
		info.PeerID = id.String()
	}
	if len(p.Paths) > 0 {
		info.Endpoint = p.Paths[0].Endpoint.String()
	}
	if !p.LastApplication.IsZero() {
		last := p.LastApplication
		info.LastApplication = &last
	}

	for _, path := range p.Paths {
		pi := PathInfo{
			Owner:    string(path.Owner),
			Endpoint: path.Endpoint.String(),
			Priority: path.Priority,
			Stale:    s.peers.IsStale(p.Peer, path.Owner),
		}
		if ma, err := peers.FormatMultiaddr(path.Endpoint); err == nil {
			pi.Multiaddr = ma
		}
		if !path.LastHello.IsZero() {
			last := path.LastHello
			pi.LastHello = &last
		}
		info.Paths = append(info.Paths, pi)
	}
	return info
}
