package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZentaChain/overlay-node/pkg/identity"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// Config holds the node configuration.
type Config struct {
	NetworkID         int32         `yaml:"network_id"`
	Bind              string        `yaml:"bind"`
	IdentityPath      string        `yaml:"identity_path"`
	PowDifficulty     int           `yaml:"pow_difficulty"`
	RoutesDB          string        `yaml:"routes_db"`
	ArmingEnabled     bool          `yaml:"arming_enabled"`
	AllowUnsignedJoin bool          `yaml:"allow_unsigned_join"`
	PseudorandomNonce bool          `yaml:"pseudorandom_nonce"`
	HelloInterval     time.Duration `yaml:"hello_interval"`
	HelloTimeout      time.Duration `yaml:"hello_timeout"`
	ChildrenTime      time.Duration `yaml:"children_time"`
	SessionCacheSize  int           `yaml:"session_cache_size"`
	SuperPeer         *Route        `yaml:"super_peer"`
	StaticRoutes      []Route       `yaml:"static_routes"`
	API               APIConfig     `yaml:"api"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"`
}

// Route maps a peer address to an endpoint ("ip:port" or a UDP multiaddr).
type Route struct {
	Peer     string `yaml:"peer"`
	Endpoint string `yaml:"endpoint"`
}

// APIConfig configures the diagnostics HTTP API.
type APIConfig struct {
	Enabled bool     `yaml:"enabled"`
	Listen  string   `yaml:"listen"`
	CORS    []string `yaml:"cors"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		NetworkID:        1,
		Bind:             "0.0.0.0:22527",
		IdentityPath:     "overlay-node.identity.yaml",
		PowDifficulty:    identity.DefaultDifficulty,
		ArmingEnabled:    true,
		HelloInterval:    5 * time.Second,
		HelloTimeout:     peers.DefaultHelloTimeout,
		ChildrenTime:     60 * time.Second,
		SessionCacheSize: 1024,
		API: APIConfig{
			Listen: "127.0.0.1:8080",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and parses every route.
func (c *Config) Validate() error {
	var errs []error

	if c.Bind == "" {
		errs = append(errs, errors.New("bind must not be empty"))
	}
	if c.PowDifficulty < 0 || c.PowDifficulty > identity.MaxDifficulty {
		errs = append(errs, fmt.Errorf("pow_difficulty must be between 0 and %d", identity.MaxDifficulty))
	}
	if c.HelloInterval <= 0 {
		errs = append(errs, errors.New("hello_interval must be positive"))
	}
	if c.HelloTimeout <= c.HelloInterval {
		errs = append(errs, errors.New("hello_timeout must be greater than hello_interval"))
	}
	if c.ChildrenTime < 0 {
		errs = append(errs, errors.New("children_time must not be negative"))
	}
	if c.SessionCacheSize <= 0 {
		errs = append(errs, errors.New("session_cache_size must be positive"))
	}
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, errors.New("api.listen must not be empty"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	if c.SuperPeer != nil {
		if _, _, err := c.SuperPeer.Parse(); err != nil {
			errs = append(errs, fmt.Errorf("super_peer: %w", err))
		}
	}
	for i, r := range c.StaticRoutes {
		if _, _, err := r.Parse(); err != nil {
			errs = append(errs, fmt.Errorf("static_routes[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Parse returns peer address and endpoint of the route.
func (r Route) Parse() (protocol.PublicKey, netip.AddrPort, error) {
	peer, err := protocol.ParsePublicKey(r.Peer)
	if err != nil {
		return protocol.PublicKey{}, netip.AddrPort{}, err
	}
	ep, err := peers.ParseEndpoint(r.Endpoint)
	if err != nil {
		return protocol.PublicKey{}, netip.AddrPort{}, err
	}
	return peer, ep, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}
