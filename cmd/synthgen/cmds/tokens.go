package cmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-go-golems/synthgen/pkg/documents"
	"github.com/go-go-golems/synthgen/pkg/governor"
	"github.com/spf13/cobra"
)

// NewTokensCommand estimates the tokens each document costs as an opening
// prompt, which helps sizing the tokens-per-minute limits of a backend.
func NewTokensCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens [document]...",
		Short: "Estimate the token count of documents (default: the configured document tree)",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				s, err := loadSettings()
				if err != nil {
					return err
				}
				paths, err = documents.Walk(s.Paths.Documents, s.Paths.Pattern)
				if err != nil {
					return err
				}
			}

			estimator := governor.NewTokenEstimator()
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOCUMENT\tTOKENS")
			total := 0
			for _, p := range paths {
				doc, err := documents.Load(p)
				if err != nil {
					return err
				}
				n := estimator.Estimate(doc.Content)
				total += n
				fmt.Fprintf(tw, "%s\t%d\n", doc.Name, n)
			}
			fmt.Fprintf(tw, "total\t%d\n", total)
			return tw.Flush()
		},
	}
}
