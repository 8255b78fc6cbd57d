package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func rotatePassphraseCmd() *cobra.Command {
	var newPassphrase string
	cmd := &cobra.Command{
		Use:   "rotate-passphrase",
		Short: "Re-encrypt the vault under a new passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if newPassphrase == "" {
				return fmt.Errorf("--new required")
			}
			if err := theApp.Vault.RotatePassphrase(passphrase, newPassphrase); err != nil {
				return err
			}
			fmt.Println("passphrase rotated")
			return nil
		},
	}
	cmd.Flags().StringVar(&newPassphrase, "new", "", "new passphrase")
	return cmd
}
