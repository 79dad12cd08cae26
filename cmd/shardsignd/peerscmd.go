package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shardsign/internal/codec"
	"shardsign/internal/logging"
	"shardsign/internal/metrics"
	"shardsign/internal/peers"
	"shardsign/internal/signer"
	"shardsign/internal/vault"
)

func peersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect and manage the peer roster",
	}
	cmd.AddCommand(peersListCommand(), peersSetCommand("allow", true),
		peersSetCommand("block", false), peersPingCommand())
	return cmd
}

// openBundle unlocks the configured vault record.
func openBundle() (*vault.Bundle, error) {
	ks, err := openKeystore()
	if err != nil {
		return nil, err
	}
	defer ks.Close()
	rec, err := ks.Get(label)
	if err != nil {
		return nil, err
	}
	pw, err := readPassword()
	if err != nil {
		return nil, err
	}
	return vault.Open(pw, rec)
}

func printRoster(roster []peers.Peer) {
	for _, p := range roster {
		fmt.Printf("%-10s %-8s send=%-5v receive=%-5v %s\n",
			p.Alias, p.Liveness, p.SendAllowed, p.ReceiveAllowed, p.Pubkey)
	}
}

func peersListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the roster with persisted policy (liveness needs ping)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bundle, err := openBundle()
			if err != nil {
				return err
			}
			group, err := codec.DecodeGroup(bundle.GroupCredential)
			if err != nil {
				return err
			}
			share, err := codec.DecodeShare(bundle.ShareCredential)
			if err != nil {
				return err
			}
			self, err := codec.SelfPubkey(group, share)
			if err != nil {
				return err
			}
			policies, err := peers.NewStore(policyPath(cfg))
			if err != nil {
				return err
			}
			printRoster(peers.Derive(group, self, policies))
			return nil
		},
	}
}

func peersSetCommand(verb string, value bool) *cobra.Command {
	var field string
	cmd := &cobra.Command{
		Use:   verb + " <pubkey>",
		Short: verb + " traffic for a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			policies, err := peers.NewStore(policyPath(cfg))
			if err != nil {
				return err
			}
			fields := []string{peers.FieldSend, peers.FieldReceive}
			if field != "" {
				fields = []string{field}
			}
			for _, f := range fields {
				if err := policies.SetPolicy(args[0], f, value); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "restrict to one policy field: send or receive")
	return cmd
}

// peersPingCommand brings up a transient session to probe liveness, then
// tears it down.
func peersPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping [pubkey]",
		Short: "probe one peer, or the whole roster when no pubkey is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			bundle, err := openBundle()
			if err != nil {
				return err
			}
			backend, err := logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
			if err != nil {
				return err
			}
			defer backend.Close()
			policies, err := peers.NewStore(policyPath(cfg))
			if err != nil {
				return err
			}
			ctrl := signer.New(cfg, backend, policies, metrics.New())
			if err := ctrl.Start(cmd.Context(), bundle); err != nil {
				return err
			}
			defer ctrl.Stop()

			if len(args) == 1 {
				res, err := ctrl.Ping(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if res.Success {
					fmt.Printf("%s online (%s)\n", args[0], res.Latency)
				} else {
					fmt.Printf("%s offline: %v\n", args[0], res.Err)
				}
				return nil
			}
			roster, err := ctrl.RefreshAll(cmd.Context())
			if err != nil {
				return err
			}
			printRoster(roster)
			return nil
		},
	}
}
