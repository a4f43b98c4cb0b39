package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

var ErrNotFound = errors.New("not found")

// Route is a static mapping of a peer address to a fixed UDP endpoint.
type Route struct {
	Peer      protocol.PublicKey
	Endpoint  netip.AddrPort
	CreatedAt time.Time
}

// RouteStore persists static routes. The node loads them into the peer registry on startup.
type RouteStore struct {
	db *sql.DB
}

// NewRouteStore opens (or creates) the route database at dbPath.
func NewRouteStore(dbPath string) (*RouteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open route database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &RouteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RouteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS static_routes (
		peer TEXT PRIMARY KEY,
		endpoint TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put stores route, replacing an existing route for the same peer.
func (s *RouteStore) Put(route Route) error {
	if !route.Endpoint.IsValid() || route.Endpoint.Port() == 0 {
		return fmt.Errorf("invalid endpoint %q", route.Endpoint)
	}
	if route.CreatedAt.IsZero() {
		route.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO static_routes (peer, endpoint, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(peer) DO UPDATE SET endpoint = excluded.endpoint, created_at = excluded.created_at
	`
	_, err := s.db.Exec(query, route.Peer.String(), route.Endpoint.String(), route.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to store route: %w", err)
	}
	return nil
}

// Get returns the route of peer or ErrNotFound.
func (s *RouteStore) Get(peer protocol.PublicKey) (Route, error) {
	row := s.db.QueryRow(`SELECT peer, endpoint, created_at FROM static_routes WHERE peer = ?`, peer.String())
	route, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Route{}, ErrNotFound
	}
	return route, err
}

// Delete removes the route of peer. It returns false if there was none.
func (s *RouteStore) Delete(peer protocol.PublicKey) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM static_routes WHERE peer = ?`, peer.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete route: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns all routes ordered by peer address.
func (s *RouteStore) List() ([]Route, error) {
	rows, err := s.db.Query(`SELECT peer, endpoint, created_at FROM static_routes ORDER BY peer ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	defer rows.Close()

	var routes []Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// Count returns the number of stored routes.
func (s *RouteStore) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM static_routes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return count, nil
}

// Close closes the database connection
func (s *RouteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoute(row scanner) (Route, error) {
	var (
		peerHex   string
		endpoint  string
		createdAt int64
	)
	if err := row.Scan(&peerHex, &endpoint, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Route{}, err
		}
		return Route{}, fmt.Errorf("failed to scan route: %w", err)
	}

	peer, err := protocol.ParsePublicKey(peerHex)
	if err != nil {
		return Route{}, fmt.Errorf("corrupt route peer %q: %w", peerHex, err)
	}
	ap, err := netip.ParseAddrPort(endpoint)
	if err != nil {
		return Route{}, fmt.Errorf("corrupt route endpoint %q: %w", endpoint, err)
	}
	return Route{Peer: peer, Endpoint: ap, CreatedAt: time.Unix(createdAt, 0)}, nil
}
