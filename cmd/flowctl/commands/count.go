package commands

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"flowcore/internal/catalog"
	"flowcore/pkg/transform"
)

func newCountCmd(e *env) *cobra.Command {
	var (
		fromStore  bool
		compensate bool
		gatesPath  string
		only       []string
	)
	cmd := &cobra.Command{
		Use:   "count <file>",
		Short: "Count events inside each gate",
		Long: `Count events inside each gate of a panel.

Gates come from --gates (a YAML panel file) or, without it, from the catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			panel := &gateFile{}
			if gatesPath != "" {
				var err error
				if panel, err = readGateFile(gatesPath); err != nil {
					return err
				}
			} else {
				cat, err := e.catalog(ctx)
				if err != nil {
					return err
				}
				recs, err := cat.ListGates(ctx)
				if err != nil {
					return err
				}
				for _, rec := range recs {
					panel.Gates = append(panel.Gates, namedGate{Name: rec.Name, Gate: rec.Spec})
				}
			}
			selected, err := selectGates(panel.Gates, only)
			if err != nil {
				return err
			}

			fr, err := e.openFrame(ctx, args[0], fromStore)
			if err != nil {
				return err
			}
			sample := fr.ID()
			if compensate {
				if fr, err = fr.Compensate(nil); err != nil {
					return err
				}
			}
			if fr, err = applyTransforms(fr, transform.NewRegistry(), panel.Transforms); err != nil {
				return err
			}

			total := fr.Tot()
			data := pterm.TableData{{"gate", "kind", "events", "percent"}}
			for _, ng := range selected {
				g, err := catalog.BuildGate(catalog.GateRecord{Name: ng.Name, Spec: ng.Gate})
				if err != nil {
					return err
				}
				n, err := fr.Count(g)
				if err != nil {
					return errors.Wrapf(err, "gate %s", ng.Name)
				}
				pct := 0.0
				if total > 0 {
					pct = 100 * float64(n) / float64(total)
				}
				data = append(data, []string{ng.Name, string(g.Kind()), itoa(n), fmt.Sprintf("%.2f", pct)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d events\n", sample, total)
			return renderTable(cmd, data)
		},
	}
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "treat the argument as a sample repository key")
	cmd.Flags().BoolVar(&compensate, "compensate", false, "apply the file's spillover matrix first")
	cmd.Flags().StringVar(&gatesPath, "gates", "", "YAML gate panel")
	cmd.Flags().StringSliceVar(&only, "gate", nil, "only count these gates")
	return cmd
}

func selectGates(all []namedGate, only []string) ([]namedGate, error) {
	if len(only) == 0 {
		if len(all) == 0 {
			return nil, errors.New("no gates defined")
		}
		return all, nil
	}
	byName := make(map[string]namedGate, len(all))
	for _, g := range all {
		byName[g.Name] = g
	}
	out := make([]namedGate, 0, len(only))
	for _, name := range only {
		g, ok := byName[name]
		if !ok {
			return nil, errors.Newf("unknown gate %s", name)
		}
		out = append(out, g)
	}
	return out, nil
}
