package cmds

import (
	"fmt"

	"github.com/go-go-golems/synthgen/pkg/ledger"
	"github.com/spf13/cobra"
)

func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the resume ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List processed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			for _, e := range l.Entries() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <document>...",
		Short: "Forget documents so that the next run processes them again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			for _, id := range args {
				ok, err := l.Forget(id)
				if err != nil {
					return err
				}
				if ok {
					fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not processed\n", id)
				}
			}
			return nil
		},
	})

	return cmd
}

func openLedger() (*ledger.Ledger, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return ledger.Open(s.Paths.Ledger)
}
