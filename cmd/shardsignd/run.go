package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shardsign/internal/logging"
	"shardsign/internal/metrics"
	"shardsign/internal/peers"
	"shardsign/internal/signer"
	"shardsign/internal/vault"
)

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the signer session until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			backend, err := logging.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
			if err != nil {
				return err
			}
			defer backend.Close()
			log := backend.GetLogger("main")

			ks, err := vault.OpenKeystore(keystorePath(cfg))
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

			policies, err := peers.NewStore(policyPath(cfg))
			if err != nil {
				return err
			}
			m := metrics.New()
			ctrl := signer.New(cfg, backend, policies, m)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := ctrl.Start(ctx, bundle); err != nil {
				return err
			}
			log.Noticef("signer session up, interrupt to stop")
			<-ctx.Done()
			ctrl.Stop()
			if err := m.WriteSnapshot(metricsPath(cfg)); err != nil {
				log.Warningf("writing metrics snapshot: %v", err)
			}
			return nil
		},
	}
}
