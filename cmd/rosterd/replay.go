package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/meszmate/rosterd/internal/app"
	"github.com/meszmate/rosterd/internal/xmpp"
)

type replayOptions struct {
	user     string
	password string
	resource string
	in       string
}

func newReplayCmd(root *rootOptions) *cobra.Command {
	opts := &replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Run recorded stanzas through an authenticated session",
		Long: `Replay authenticates a session, reads consecutive <iq/> and <presence/>
stanzas and writes every stanza the service emits to stdout. Presence
stanzas are recorded as the session's broadcast presence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "account localpart")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "account password")
	cmd.Flags().StringVarP(&opts.resource, "resource", "r", "", "session resource (generated when empty)")
	cmd.Flags().StringVarP(&opts.in, "in", "i", "-", "input file, - for stdin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runReplay(cmd *cobra.Command, root *rootOptions, opts *replayOptions) error {
	a, err := root.loadApp(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Login("", opts.resource, opts.user, opts.password)
	if err != nil {
		return fmt.Errorf("login as %s: %w", opts.user, err)
	}
	defer a.Logout(sess)

	var in io.Reader = cmd.InOrStdin()
	if opts.in != "-" {
		f, err := os.Open(opts.in)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := cmd.OutOrStdout()
	dec := xmpp.NewDecoder(in)
	for {
		v, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, xmpp.ErrMalformed) {
			a.Logger().Warn("skipping stanza: %v", err)
			continue
		}
		if err != nil {
			return err
		}

		switch v := v.(type) {
		case *xmpp.Presence:
			if err := sess.Broadcast(v); err != nil {
				return err
			}
		case *xmpp.Request:
			var results xmpp.Queue
			outcome := a.Handle(cmd.Context(), sess, v, &results)
			a.Logger().Debug("%s: %s", v, outcome)
			for _, p := range results.Packets() {
				if err := xmpp.Encode(out, p); err != nil {
					return err
				}
				fmt.Fprintln(out)
			}
		}
	}
}
