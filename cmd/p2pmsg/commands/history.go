package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"p2pmsg/internal/domain"
)

func historyCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "history <peer-fingerprint>",
		Short: "Print the message log for a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if err := theApp.Unlock(passphrase); err != nil {
				return err
			}
			fp, err := domain.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			msgs, err := theApp.Store.History(fp, limit, offset)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				dir := "->"
				if m.Direction == domain.DirectionReceived {
					dir = "<-"
				}
				if m.Kind == domain.KindFile {
					fmt.Printf("[%s] %s file:%s (%d bytes)\n", m.Timestamp.Format("2006-01-02 15:04:05"), dir, m.FileName, m.FileSize)
				} else {
					fmt.Printf("[%s] %s %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), dir, m.Plaintext)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip, most recent first")
	return cmd
}
