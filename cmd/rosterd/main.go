package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meszmate/rosterd/internal/app"
	"github.com/meszmate/rosterd/internal/config"
	"github.com/meszmate/rosterd/internal/logging"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "rosterd",
		Short:         "XMPP roster management service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml (default $XDG_CONFIG_HOME/rosterd/config.toml)")

	root.AddCommand(
		newReplayCmd(opts),
		newDumpCmd(opts),
		newFeaturesCmd(opts),
		newAccountCmd(opts),
	)
	return root
}

// loadApp builds the application from the config and accounts files
func (o *rootOptions) loadApp(cmd *cobra.Command, appOpts app.Options) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	accountsPath, err := config.AccountsPath(o.configPath)
	if err != nil {
		return nil, err
	}
	accounts, err := config.LoadAccounts(accountsPath)
	if err != nil {
		return nil, err
	}
	appOpts.Accounts = accounts.Hashes()

	if appOpts.Logger == nil && cfg.Logging.File == "" {
		appOpts.Logger = logging.NewWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level))
	}
	return app.New(cmd.Context(), cfg, appOpts)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
