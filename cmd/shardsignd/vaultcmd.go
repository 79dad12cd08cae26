package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shardsign/internal/codec"
	"shardsign/internal/vault"
)

func vaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "manage sealed credential bundles",
	}
	cmd.AddCommand(vaultImportCommand(), vaultShowCommand(), vaultExportCommand(),
		vaultListCommand(), vaultDeleteCommand())
	return cmd
}

func openKeystore() (*vault.Keystore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return vault.OpenKeystore(keystorePath(cfg))
}

func vaultImportCommand() *cobra.Command {
	var (
		groupCred string
		shareCred string
		relays    []string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "validate a credential pair and seal it under the vault password",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			group, err := codec.DecodeGroup(groupCred)
			if err != nil {
				return err
			}
			share, err := codec.DecodeShare(shareCred)
			if err != nil {
				return err
			}
			self, err := codec.SelfPubkey(group, share)
			if err != nil {
				return err
			}
			normalized, relayErrs := codec.ValidateRelayList(relays)
			for _, e := range relayErrs {
				fmt.Fprintf(os.Stderr, "ignoring relay: %s\n", e)
			}

			pw, err := readPassword()
			if err != nil {
				return err
			}
			rec, err := vault.Seal(pw, &vault.Bundle{
				GroupCredential: groupCred,
				ShareCredential: shareCred,
				Relays:          normalized,
				Label:           label,
			})
			if err != nil {
				return err
			}
			ks, err := openKeystore()
			if err != nil {
				return err
			}
			defer ks.Close()
			if err := ks.Put(label, rec); err != nil {
				return err
			}
			fmt.Printf("sealed %q: signer %s, threshold %d of %d, %d relays\n",
				label, self, group.Threshold, len(group.Commits), len(normalized))
			return nil
		},
	}
	cmd.Flags().StringVar(&groupCred, "group", "", "group credential string")
	cmd.Flags().StringVar(&shareCred, "share", "", "share credential string")
	cmd.Flags().StringArrayVar(&relays, "relay", nil, "relay URL (repeatable)")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("share")
	return cmd
}

func vaultShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "decrypt a bundle and describe it (the share secret is never printed)",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ks, err := openKeystore()
			if err != nil {
				return err
			}
			defer ks.Close()
			rec, err := ks.Get(label)
			if err != nil {
				return err
			}
			pw, err := readPassword()
			if err != nil {
				return err
			}
			bundle, err := vault.Open(pw, rec)
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
			fmt.Printf("label:      %s\n", label)
			fmt.Printf("created:    %s\n", rec.CreatedAt)
			fmt.Printf("threshold:  %d of %d\n", group.Threshold, len(group.Commits))
			fmt.Printf("share idx:  %d\n", share.Idx)
			if self, err := codec.SelfPubkey(group, share); err == nil {
				fmt.Printf("pubkey:     %s\n", self)
			}
			for _, r := range bundle.Relays {
				fmt.Printf("relay:      %s\n", r)
			}
			return nil
		},
	}
}

func vaultExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "print the sealed record as JSON for backup",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ks, err := openKeystore()
			if err != nil {
				return err
			}
			defer ks.Close()
			rec, err := ks.Get(label)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func vaultListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list sealed record names",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ks, err := openKeystore()
			if err != nil {
				return err
			}
			defer ks.Close()
			names, err := ks.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Println(n)
			}
			return nil
		},
	}
}

func vaultDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "delete a sealed record",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ks, err := openKeystore()
			if err != nil {
				return err
			}
			defer ks.Close()
			return ks.Delete(label)
		},
	}
}
