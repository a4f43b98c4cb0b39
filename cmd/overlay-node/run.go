package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ZentaChain/overlay-node/pkg/api"
	"github.com/ZentaChain/overlay-node/pkg/config"
	"github.com/ZentaChain/overlay-node/pkg/identity"
	"github.com/ZentaChain/overlay-node/pkg/network"
	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
	"github.com/ZentaChain/overlay-node/pkg/storage"
)

func runCmd(flags *rootFlags) *cobra.Command {
	var (
		bind      string
		apiListen string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the node",
		Long: `Run the node until SIGINT or SIGTERM.

A new identity is generated on first start and written to identity_path.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Bind = bind
			}
			if apiListen != "" {
				cfg.API.Enabled = true
				cfg.API.Listen = apiListen
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "UDP address to listen on (overrides bind)")
	cmd.Flags().StringVar(&apiListen, "api", "", "Enable the HTTP API on this address (overrides api.listen)")

	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	id, created, err := identity.LoadOrGenerate(cfg.IdentityPath, cfg.PowDifficulty)
	if err != nil {
		return fmt.Errorf("failed to load identity: %w", err)
	}
	if created {
		logger.Info("new identity generated", "path", cfg.IdentityPath, "address", id.Address)
	}

	var routes *storage.RouteStore
	if cfg.RoutesDB != "" {
		routes, err = storage.NewRouteStore(cfg.RoutesDB)
		if err != nil {
			return err
		}
		defer routes.Close()
	}

	staticRoutes, err := collectRoutes(cfg, routes)
	if err != nil {
		return err
	}

	var superPeer *network.Route
	if cfg.SuperPeer != nil {
		peer, endpoint, err := cfg.SuperPeer.Parse()
		if err != nil {
			return fmt.Errorf("super_peer: %w", err)
		}
		superPeer = &network.Route{Peer: peer, Endpoint: endpoint}
	}

	nonces, err := nonceGenerator(cfg, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registryLogger := logger.With("component", "peers")
	manager := peers.NewManager(peers.Options{
		HelloTimeout: cfg.HelloTimeout,
		Listener: func(ev peers.Event) {
			registryLogger.Debug("path changed", "event", ev.Kind, "peer", ev.Peer, "owner", ev.Owner, "endpoint", ev.Endpoint)
		},
	})

	node, err := network.New(network.Config{
		NetworkID:         cfg.NetworkID,
		Bind:              cfg.Bind,
		Identity:          id,
		PowDifficulty:     cfg.PowDifficulty,
		ArmingEnabled:     cfg.ArmingEnabled,
		AllowUnsignedJoin: cfg.AllowUnsignedJoin,
		HelloInterval:     cfg.HelloInterval,
		HelloTimeout:      cfg.HelloTimeout,
		ChildrenTime:      cfg.ChildrenTime,
		SessionCacheSize:  cfg.SessionCacheSize,
		SuperPeer:         superPeer,
		StaticRoutes:      staticRoutes,
		Peers:             manager,
		Nonces:            nonces,
		Handler: func(sender protocol.PublicKey, payload []byte) {
			logger.Info("application message received", "sender", sender, "bytes", len(payload))
		},
		Logger:     logger,
		Registerer: registry,
	})
	if err != nil {
		return err
	}

	if err := node.Start(); err != nil {
		return err
	}
	defer node.Stop()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.API.Enabled {
		server := api.NewServer(node, manager, routes, &api.Config{
			Listen:      cfg.API.Listen,
			CORSOrigins: cfg.API.CORS,
			RateLimit:   api.DefaultConfig().RateLimit,
			Gatherer:    registry,
			Logger:      logger,
		})
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	})

	return g.Wait()
}

// collectRoutes merges the static routes of the configuration file and the route database.
// Database routes are added after the file routes, so the file wins for a peer listed in both.
func collectRoutes(cfg *config.Config, store *storage.RouteStore) ([]network.Route, error) {
	var routes []network.Route
	for i, r := range cfg.StaticRoutes {
		peer, endpoint, err := r.Parse()
		if err != nil {
			return nil, fmt.Errorf("static_routes[%d]: %w", i, err)
		}
		routes = append(routes, network.Route{Peer: peer, Endpoint: endpoint})
	}

	if store == nil {
		return routes, nil
	}
	stored, err := store.List()
	if err != nil {
		return nil, err
	}
	for _, r := range stored {
		routes = append(routes, network.Route{Peer: r.Peer, Endpoint: r.Endpoint})
	}
	return routes, nil
}

// nonceGenerator returns the secure generator unless the configuration opts into the
// pseudorandom one.
func nonceGenerator(cfg *config.Config, logger *slog.Logger) (protocol.NonceGenerator, error) {
	if !cfg.PseudorandomNonce {
		return protocol.SecureNonces{}, nil
	}
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to seed nonce generator: %w", err)
	}
	logger.Warn("pseudorandom nonces enabled; do not use outside of tests and benchmarks")
	return protocol.NewPseudorandomNonces(seed), nil
}
