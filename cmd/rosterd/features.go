package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meszmate/rosterd/internal/app"
	"github.com/meszmate/rosterd/internal/ui"
)

func newFeaturesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "Print advertised service discovery features",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			themes := ui.NewManager(a.Config().UI.ThemeDir)
			if err := themes.SetTheme(a.Config().UI.Theme); err != nil {
				a.Logger().Warn("using default theme: %v", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderFeatures(themes.Styles(), a.Features()))
			return nil
		},
	}
}
