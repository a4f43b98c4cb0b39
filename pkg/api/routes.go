package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/overlay-node/pkg/network"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
	"github.com/ZentaChain/overlay-node/pkg/storage"
)

// RouteRequest adds a static route. Endpoint is "ip:port" or a UDP multiaddr.
type RouteRequest struct {
	Peer     string `json:"peer" binding:"required"`
	Endpoint string `json:"endpoint" binding:"required"`
}

// RouteInfo is a stored static route
type RouteInfo struct {
	Peer      string    `json:"peer"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoutesResponse contains the stored static routes
type RoutesResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Routes  []RouteInfo `json:"routes"`
}

// SendRequest sends an application message. Payload is base64 encoded in JSON.
type SendRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Payload   []byte `json:"payload"`
}

func (s *Server) requireRoutes(c *gin.Context) bool {
	if s.routes == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "Route database not configured",
			Message: "set routes_db to manage static routes",
		})
		return false
	}
	return true
}

// handleListRoutes handles GET /api/v1/routes
func (s *Server) handleListRoutes(c *gin.Context) {
	if !s.requireRoutes(c) {
		return
	}

	routes, err := s.routes.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list routes",
			Message: err.Error(),
		})
		return
	}

	list := make([]RouteInfo, 0, len(routes))
	for _, r := range routes {
		list = append(list, RouteInfo{
			Peer:      r.Peer.String(),
			Endpoint:  r.Endpoint.String(),
			CreatedAt: r.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, RoutesResponse{Success: true, Count: len(list), Routes: list})
}

// handleAddRoute handles POST /api/v1/routes
func (s *Server) handleAddRoute(c *gin.Context) {
	if !s.requireRoutes(c) {
		return
	}

	var req RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	peer, err := protocol.ParsePublicKey(req.Peer)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid peer", Message: err.Error()})
		return
	}
	endpoint, err := peers.ParseEndpoint(req.Endpoint)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid endpoint", Message: err.Error()})
		return
	}

	if err := s.routes.Put(storage.Route{Peer: peer, Endpoint: endpoint}); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to store route",
			Message: err.Error(),
		})
		return
	}

	// replace the live path so that the change applies without a restart
	s.peers.ReplacePath(peer, peers.OwnerStaticRoutes, endpoint, network.PriorityStaticRoute)

	s.logger.Info("static route added", "peer", peer, "endpoint", endpoint)
	c.JSON(http.StatusCreated, SuccessResponse{
		Success: true,
		Data:    RouteInfo{Peer: peer.String(), Endpoint: endpoint.String()},
	})
}

// handleDeleteRoute handles DELETE /api/v1/routes/:address
func (s *Server) handleDeleteRoute(c *gin.Context) {
	if !s.requireRoutes(c) {
		return
	}

	peer, err := protocol.ParsePublicKey(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid address", Message: err.Error()})
		return
	}

	deleted, err := s.routes.Delete(peer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to delete route",
			Message: err.Error(),
		})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Route not found", Message: peer.String()})
		return
	}

	s.peers.RemovePath(peer, peers.OwnerStaticRoutes)

	s.logger.Info("static route removed", "peer", peer)
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "route removed"})
}

// handleSendMessage handles POST /api/v1/messages
func (s *Server) handleSendMessage(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Message: err.Error(),
		})
		return
	}

	recipient, err := protocol.ParsePublicKey(req.Recipient)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid recipient", Message: err.Error()})
		return
	}

	err = s.node.Send(recipient, req.Payload)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, SuccessResponse{Success: true, Message: "message sent"})
	case errors.Is(err, network.ErrNoRoute):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "No route to recipient", Message: err.Error()})
	case errors.Is(err, protocol.ErrInvalidMessageFormat):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid message", Message: err.Error()})
	default:
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "Failed to send message", Message: err.Error()})
	}
}
