package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"p2pmsg/internal/app"
)

var (
	home       string
	passphrase string
	theApp     *app.App
)

// Execute builds the root command and runs it.
func Execute() error {
	root := &cobra.Command{
		Use:   "p2pmsg",
		Short: "Peer-to-peer encrypted messenger",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".p2pmsg")
			}
			a, err := app.New(home)
			if err != nil {
				return err
			}
			theApp = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if theApp != nil {
				return theApp.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.p2pmsg)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "vault passphrase")

	root.AddCommand(initCmd(), openCmd(), fingerprintCmd(), rotatePassphraseCmd(), historyCmd(), listenCmd(), dialCmd())
	return root.Execute()
}

func requirePassphrase() error {
	if passphrase == "" {
		return fmt.Errorf("passphrase required (-p)")
	}
	return nil
}
