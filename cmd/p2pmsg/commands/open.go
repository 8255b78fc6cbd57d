package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// openCmd unlocks the vault and reports the identity fingerprint without
// starting a session, the CLI's analogue of the public API's OpenVault.
func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "Unlock the vault and print the local identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := theApp.Unlock(passphrase); err != nil {
				return err
			}
			fmt.Println(theApp.Fingerprint())
			return nil
		},
	}
}
