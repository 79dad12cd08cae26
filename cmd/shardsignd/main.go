// shardsignd is the threshold signer session daemon and its management CLI.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shardsign/internal/config"
)

var (
	cfgFile  string
	dataDir  string
	label    string
	password string
)

func main() {
	root := &cobra.Command{
		Use:           "shardsignd",
		Short:         "threshold signer session daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "f", "shardsign.toml", "configuration file")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override the configured data directory")
	root.PersistentFlags().StringVar(&label, "label", "default", "vault record name")
	root.PersistentFlags().StringVar(&password, "password", "", "vault password (prompted when empty)")

	root.AddCommand(runCommand(), statusCommand(), vaultCommand(), peersCommand(), validateCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shardsignd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = filepath.Join(home, ".shardsign")
	}
	return cfg, nil
}

func keystorePath(cfg *config.Config) string { return filepath.Join(cfg.DataDir, "keystore.db") }
func policyPath(cfg *config.Config) string   { return filepath.Join(cfg.DataDir, "policy.jsonl") }
func metricsPath(cfg *config.Config) string  { return filepath.Join(cfg.DataDir, "metrics.json") }

func readPassword() (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(os.Stderr, "password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("empty password")
	}
	return line, nil
}
