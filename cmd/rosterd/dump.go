package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/rosterd/internal/app"
	"github.com/meszmate/rosterd/internal/ui"
)

func newDumpCmd(root *rootOptions) *cobra.Command {
	var owners []string
	var all bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print stored rosters",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.loadApp(cmd, app.Options{SkipPlugins: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if all {
				owners, err = a.Owners(cmd.Context())
				if err != nil {
					return err
				}
			}
			if len(owners) == 0 {
				return fmt.Errorf("no owner given, use --owner or --all")
			}

			themes := ui.NewManager(a.Config().UI.ThemeDir)
			if err := themes.SetTheme(a.Config().UI.Theme); err != nil {
				a.Logger().Warn("using default theme: %v", err)
			}

			for _, o := range owners {
				owner, err := jid.Parse(o)
				if err != nil {
					return fmt.Errorf("invalid owner %q: %w", o, err)
				}
				owner = owner.Bare()

				items, err := a.Store().Items(cmd.Context(), owner)
				if err != nil {
					return err
				}
				hash, err := a.Store().Hash(cmd.Context(), owner)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), ui.RenderRoster(themes.Styles(), owner.String(), items, hash))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&owners, "owner", "o", nil, "bare JID whose roster is printed")
	cmd.Flags().BoolVar(&all, "all", false, "print every stored roster")
	return cmd
}
