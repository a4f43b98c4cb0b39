package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/overlay-node/pkg/identity"
)

func identityCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage the node identity",
	}
	cmd.AddCommand(identityGenerateCmd(flags), identityShowCmd(flags))
	return cmd
}

func identityGenerateCmd(flags *rootFlags) *cobra.Command {
	var (
		force      bool
		difficulty int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new identity",
		Long: `Generate a new Ed25519 identity and search a proof of work for it.

The expected work grows by a factor of 16 per difficulty step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("difficulty") {
				difficulty = cfg.PowDifficulty
			}

			if _, err := os.Stat(cfg.IdentityPath); err == nil && !force {
				return fmt.Errorf("identity %s already exists (use --force to replace it)", cfg.IdentityPath)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			id, err := identity.Generate(difficulty)
			if err != nil {
				return err
			}
			if err := identity.Save(cfg.IdentityPath, id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "identity written to %s\n", cfg.IdentityPath)
			printIdentity(cmd.OutOrStdout(), id)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing identity")
	cmd.Flags().IntVar(&difficulty, "difficulty", identity.DefaultDifficulty, "Proof of work difficulty (defaults to pow_difficulty)")

	return cmd
}

func identityShowCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			id, err := identity.Load(cfg.IdentityPath)
			if err != nil {
				return err
			}
			printIdentity(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func printIdentity(w io.Writer, id *identity.Identity) {
	fmt.Fprintf(w, "  Address:       %s\n", id.Address)
	if pid, err := id.PeerID(); err == nil {
		fmt.Fprintf(w, "  Peer ID:       %s\n", pid)
	}
	fmt.Fprintf(w, "  Proof of work: %d (difficulty %d)\n", id.ProofOfWork, identity.Difficulty(id.Address, id.ProofOfWork))
}
