package cmds

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/go-go-golems/synthgen/pkg/backends/providers"
	"github.com/spf13/cobra"
)

func NewBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			registry := providers.NewDefaultRegistry()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tMODEL\tCREDENTIALS\tSTRICT\tSELECTED")
			for _, name := range s.BackendNames() {
				b := s.Backends[name]
				c, ok := registry.Capabilities(b.Type)
				strict := "-"
				if ok && c.StrictAlternation {
					strict = "yes"
				}
				selected := ""
				if name == s.Backend {
					selected = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					name, b.Type, b.ResolvedModel(), len(b.ResolvedCredentials()), strict, selected)
			}
			return tw.Flush()
		},
	}
}
