package commands

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowcore/pkg/flowframe"
	"flowcore/pkg/transform"
)

func newExportCmd(e *env) *cobra.Command {
	var (
		fromStore  bool
		compensate bool
		columns    []string
		transforms []string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the event matrix as CSV",
		Long: `Write the event matrix as CSV with one header row of channel names.

Transforms are given as channel=name, e.g. --transform CD4=logicle. Factory
defaults apply to every parameter.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fr, err := e.openFrame(cmd.Context(), args[0], fromStore)
			if err != nil {
				return err
			}
			if compensate {
				if fr, err = fr.Compensate(nil); err != nil {
					return err
				}
			}
			specs, err := parseTransformFlags(transforms)
			if err != nil {
				return err
			}
			if fr, err = applyTransforms(fr, transform.NewRegistry(), specs); err != nil {
				return err
			}
			if len(columns) > 0 {
				if fr, err = fr.Select(columns...); err != nil {
					return err
				}
			}

			if output == "" {
				err = writeCSV(cmd.OutOrStdout(), fr)
			} else {
				err = writeCSVFile(output, fr)
			}
			if err != nil {
				return err
			}
			e.log.Debug("exported frame", zap.String("id", fr.ID()), zap.Int("events", fr.Tot()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "treat the argument as a sample repository key")
	cmd.Flags().BoolVar(&compensate, "compensate", false, "apply the file's spillover matrix")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "channels to export, in order")
	cmd.Flags().StringArrayVar(&transforms, "transform", nil, "channel=transform, repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func parseTransformFlags(flags []string) (map[string]transform.Spec, error) {
	specs := make(map[string]transform.Spec, len(flags))
	for _, f := range flags {
		ch, name, ok := strings.Cut(f, "=")
		if !ok || ch == "" || name == "" {
			return nil, errors.Newf("transform %q is not channel=name", f)
		}
		specs[ch] = transform.Spec{Name: name}
	}
	return specs, nil
}

// createOutput opens export destinations.
var createOutput = func(path string) (io.WriteCloser, error) { return os.Create(path) }

func writeCSVFile(path string, fr *flowframe.Frame) error {
	f, err := createOutput(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := writeCSV(f, fr); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

func writeCSV(w io.Writer, fr *flowframe.Frame) error {
	tbl, err := fr.AsTable()
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.ColumnNames()); err != nil {
		return err
	}
	d := tbl.Data()
	rows, cols := d.Shape()
	rec := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			rec[j] = strconv.FormatFloat(d.At(i, j), 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
