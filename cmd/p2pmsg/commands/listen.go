package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func listenCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept one peer connection and start a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := theApp.Unlock(passphrase); err != nil {
				return err
			}
			if port == 0 {
				port = theApp.Config.ListenPort
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			errCh := make(chan error, 1)
			go func() { errCh <- theApp.Manager.Listen(ctx, port) }()

			fmt.Printf("listening on 0.0.0.0:%d, fingerprint %s\n", port, theApp.Fingerprint())
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
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config)")
	return cmd
}
