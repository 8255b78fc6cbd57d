package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func dialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial <addr:port>",
		Short: "Connect to a peer and start a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := theApp.Unlock(passphrase); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			errCh := make(chan error, 1)
			go func() { errCh <- theApp.Manager.Dial(ctx, args[0]) }()

			fmt.Printf("dialing %s, fingerprint %s\n", args[0], theApp.Fingerprint())
			if err := runSession(theApp); err != nil {
				return err
			}
			select {
			case err := <-errCh:
				return err
			default:
				return nil
			}
		},
	}
	return cmd
}
