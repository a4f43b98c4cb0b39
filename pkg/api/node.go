package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// NodeInfoResponse contains information about this node
type NodeInfoResponse struct {
	Success        bool      `json:"success"`
	Address        string    `json:"address"`
	PeerID         string    `json:"peerId"`
	NetworkID      int32     `json:"networkId"`
	ProofOfWork    int32     `json:"proofOfWork"`
	Listen         string    `json:"listen"`
	PublicEndpoint string    `json:"publicEndpoint,omitempty"`
	SuperPeer      string    `json:"superPeer,omitempty"`
	ArmingEnabled  bool      `json:"armingEnabled"`
	Peers          int       `json:"peers"`
	Sessions       int       `json:"sessions"`
	StartedAt      time.Time `json:"startedAt"`
}

// HealthResponse contains node health information
type HealthResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	Peers   int    `json:"peers"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	info := s.node.Info()

	status := "healthy"
	if info.Peers == 0 {
		status = "degraded" // no peers, but still functional
	}

	var uptime time.Duration
	if !info.StartedAt.IsZero() {
		uptime = time.Since(info.StartedAt)
	}

	c.JSON(http.StatusOK, HealthResponse{
		Success: true,
		Status:  status,
		Uptime:  formatDuration(uptime),
		Peers:   info.Peers,
	})
}

// handleNodeInfo handles GET /api/v1/node
func (s *Server) handleNodeInfo(c *gin.Context) {
	info := s.node.Info()

	c.JSON(http.StatusOK, NodeInfoResponse{
		Success:        true,
		Address:        info.Address.String(),
		PeerID:         info.PeerID,
		NetworkID:      info.NetworkID,
		ProofOfWork:    int32(info.ProofOfWork),
		Listen:         info.Listen,
		PublicEndpoint: info.PublicEndpoint,
		SuperPeer:      info.SuperPeer,
		ArmingEnabled:  info.ArmingEnabled,
		Peers:          info.Peers,
		Sessions:       info.Sessions,
		StartedAt:      info.StartedAt,
	})
}

// formatDuration formats a duration in human-readable format
func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
