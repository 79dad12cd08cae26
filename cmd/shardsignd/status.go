package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shardsign/internal/codec"
	"shardsign/internal/peers"
)

// statusCommand summarizes the configured record without touching the
// network: identity, relays, roster size and policy counts.
func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "summarize the sealed record and peer policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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
			roster := peers.Derive(group, self, policies)
			sendBlocked, receiveBlocked := 0, 0
			for _, p := range roster {
				if !p.SendAllowed {
					sendBlocked++
				}
				if !p.ReceiveAllowed {
					receiveBlocked++
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "label:     %s\n", label)
			fmt.Fprintf(w, "signer:    %s\n", self)
			fmt.Fprintf(w, "share:     %d, threshold %d of %d\n", share.Idx, group.Threshold, len(group.Commits))
			if len(bundle.Relays) == 0 {
				fmt.Fprintf(w, "relays:    none stored, configured defaults apply\n")
			}
			for _, r := range bundle.Relays {
				fmt.Fprintf(w, "relay:     %s\n", r)
			}
			fmt.Fprintf(w, "peers:     %d (%d send-blocked, %d receive-blocked)\n",
				len(roster), sendBlocked, receiveBlocked)
			return nil
		},
	}
}
