package commands

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"flowcore/internal/catalog"
)

func newAnnotateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "annotate <sample> [key=value ...]",
		Short: "Attach notes to a sample, or list them when no pairs are given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := e.catalog(ctx)
			if err != nil {
				return err
			}
			sample := args[0]
			for _, pair := range args[1:] {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					return errors.Newf("annotation %q is not key=value", pair)
				}
				if _, err := cat.Annotate(ctx, catalog.Annotation{SampleKey: sample, Key: k, Value: v}); err != nil {
					return err
				}
			}
			if len(args) > 1 {
				fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("annotated %s", sample))
				return nil
			}
			notes, err := cat.Annotations(ctx, sample)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"key", "value"}}
			for _, n := range notes {
				data = append(data, []string{n.Key, n.Value})
			}
			return renderTable(cmd, data)
		},
	}
}
