package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shardsign/internal/codec"
)

func validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "structurally validate credential strings",
	}

	group := &cobra.Command{
		Use:   "group <credential>",
		Short: "validate a group credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res := codec.ValidateGroup(args[0])
			fmt.Println(res.Message)
			if !res.IsValid {
				return fmt.Errorf("invalid group credential")
			}
			return nil
		},
	}

	share := &cobra.Command{
		Use:   "share <credential>",
		Short: "validate a share credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			res := codec.ValidateShare(args[0])
			fmt.Println(res.Message)
			if !res.IsValid {
				return fmt.Errorf("invalid share credential")
			}
			return nil
		},
	}

	pair := &cobra.Command{
		Use:   "pair <group> <share>",
		Short: "validate that a share is bound to a group commitment",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			g, err := codec.DecodeGroup(args[0])
			if err != nil {
				return err
			}
			sh, err := codec.DecodeShare(args[1])
			if err != nil {
				return err
			}
			self, err := codec.SelfPubkey(g, sh)
			if err != nil {
				return err
			}
			fmt.Printf("pair ok: share %d signs as %s\n", sh.Idx, self)
			return nil
		},
	}

	cmd.AddCommand(group, share, pair)
	return cmd
}
