package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowcore/pkg/fcs"
)

type inspection struct {
	ID        string        `json:"id" yaml:"id"`
	Version   string        `json:"version" yaml:"version"`
	Events    int           `json:"events" yaml:"events"`
	Segments  fcs.Segments  `json:"segments" yaml:"segments"`
	DataType  string        `json:"datatype" yaml:"datatype"`
	Channels  []fcs.Channel `json:"channels" yaml:"channels"`
	Spillover []string      `json:"spillover,omitempty" yaml:"spillover,omitempty"`
	Findings  []fcs.Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
}

func newInspectCmd(e *env) *cobra.Command {
	var (
		fromStore bool
		format    string
	)
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show header, channels and keyword findings of an FCS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fr, err := e.openFrame(cmd.Context(), args[0], fromStore)
			if err != nil {
				return err
			}
			f := fr.File()
			in := inspection{
				ID:       fr.ID(),
				Version:  f.Version(),
				Events:   f.Tot(),
				Segments: f.Segments,
				DataType: f.Data.Encoding.DataType.String(),
				Channels: f.Channels,
				Findings: fcs.ValidateKeywords(f.Keywords()),
			}
			spill, err := f.Spillover()
			if err != nil {
				in.Findings = append(in.Findings, fcs.Finding{Keyword: "$SPILLOVER", Message: err.Error()})
			} else if spill != nil {
				in.Spillover = spill.Channels
			}
			return printInspection(cmd, in, format)
		},
	}
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "treat the argument as a sample repository key")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json, yaml")
	return cmd
}

func printInspection(cmd *cobra.Command, in inspection, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(in)
	case "yaml":
		b, err := yaml.Marshal(in)
		if err != nil {
			return err
		}
		_, err = out.Write(b)
		return err
	case "table":
	default:
		return errors.Newf("unsupported format: %s (supported: table, json, yaml)", format)
	}

	fmt.Fprintf(out, "%s  %s  %d events  datatype %s\n", in.ID, in.Version, in.Events, in.DataType)
	seg := func(name string, s fcs.Segment) []string {
		if s.IsZero() {
			return []string{name, "-", "-", "0"}
		}
		return []string{name, itoa(s.Begin), itoa(s.End), itoa(s.Len())}
	}
	if err := renderTable(cmd, pterm.TableData{
		{"segment", "begin", "end", "bytes"},
		seg("TEXT", in.Segments.Text),
		seg("STEXT", in.Segments.SupplementalText),
		seg("DATA", in.Segments.Data),
		seg("ANALYSIS", in.Segments.Analysis),
	}); err != nil {
		return err
	}

	chans := pterm.TableData{{"#", "name", "label", "bits", "range", "amplification"}}
	for _, c := range in.Channels {
		amp := "linear"
		if c.Amplification.IsLog() {
			amp = fmt.Sprintf("log %g decades, offset %g", c.Amplification.Decades, c.Amplification.Offset)
		}
		chans = append(chans, []string{itoa(c.Index + 1), c.ShortName, c.Label(), itoa(c.Bits), itoa(c.Range), amp})
	}
	if err := renderTable(cmd, chans); err != nil {
		return err
	}

	if len(in.Spillover) > 0 {
		fmt.Fprintf(out, "spillover: %s\n", strings.Join(in.Spillover, ", "))
	} else {
		fmt.Fprintln(out, "spillover: none")
	}
	for _, f := range in.Findings {
		fmt.Fprintln(out, pterm.Warning.Sprint(f.String()))
	}
	return nil
}
