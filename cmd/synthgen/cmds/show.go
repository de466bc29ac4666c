package cmds

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/synthgen/pkg/records"
	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <output.jsonl>",
		Short: "Print the dialogues of an output file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rs, err := records.ReadFile(args[0])
			if err != nil {
				return err
			}

			render, _ := cmd.Flags().GetBool("render")
			if !cmd.Flags().Changed("render") {
				render = isatty.IsTerminal(os.Stdout.Fd())
			}

			w := cmd.OutOrStdout()
			for _, c := range records.GroupByConversation(rs) {
				fmt.Fprintf(w, "=== %s (%d turns) ===\n", c.ID, len(c.Records))
				if render {
					if err := renderTurns(w, c.Turns()); err != nil {
						return err
					}
				} else {
					turns.FprintTurns(w, c.Turns())
				}
				fmt.Fprintln(w)
			}
			return nil
		},
	}
	cmd.Flags().Bool("render", false, "Render turn contents as markdown (default when stdout is a terminal)")
	return cmd
}

func renderTurns(w io.Writer, ts []turns.Turn) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	for _, t := range ts {
		styled, err := r.Render(t.Content)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "[%d] %s (%s):\n%s", t.TurnIndex, t.SpeakerName, t.ResponseType, styled)
	}
	return nil
}
