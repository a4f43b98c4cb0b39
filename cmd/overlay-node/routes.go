package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/overlay-node/pkg/peers"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
	"github.com/ZentaChain/overlay-node/pkg/storage"
)

func routesCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Manage static routes in the route database",
		Long: `Manage the static routes stored in routes_db.

Stored routes are loaded into the peer registry when the node starts.`,
	}
	cmd.AddCommand(routesAddCmd(flags), routesRemoveCmd(flags), routesListCmd(flags))
	return cmd
}

func openRouteStore(flags *rootFlags) (*storage.RouteStore, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if cfg.RoutesDB == "" {
		return nil, errors.New("routes_db is not configured")
	}
	return storage.NewRouteStore(cfg.RoutesDB)
}

func routesAddCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <peer> <endpoint>",
		Short: "Add or replace the route of a peer",
		Long:  `The endpoint is "ip:port" or a UDP multiaddr such as /ip4/192.0.2.1/udp/22527.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := protocol.ParsePublicKey(args[0])
			if err != nil {
				return err
			}
			endpoint, err := peers.ParseEndpoint(args[1])
			if err != nil {
				return err
			}

			store, err := openRouteStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Put(storage.Route{Peer: peer, Endpoint: endpoint}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "route %s -> %s stored\n", peer, endpoint)
			return nil
		},
	}
}

func routesRemoveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <peer>",
		Short: "Remove the route of a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := protocol.ParsePublicKey(args[0])
			if err != nil {
				return err
			}

			store, err := openRouteStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Delete(peer)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no route for %s: %w", peer, storage.ErrNotFound)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "route %s removed\n", peer)
			return nil
		},
	}
}

func routesListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRouteStore(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			routes, err := store.List()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PEER\tENDPOINT\tMULTIADDR\tCREATED")
			for _, r := range routes {
				ma, _ := peers.FormatMultiaddr(r.Endpoint)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Peer, r.Endpoint, ma, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}
