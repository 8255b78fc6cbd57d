package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new vault and identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if _, err := theApp.Initialize(passphrase); err != nil {
				return err
			}
			fmt.Printf("Identity created.\nFingerprint: %s\n", theApp.Fingerprint())
			return nil
		},
	}
}
