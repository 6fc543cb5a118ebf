package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowcore/internal/catalog"
)

func newGatesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Manage gate definitions in the catalog",
	}
	cmd.AddCommand(newGatesPutCmd(e), newGatesLsCmd(e), newGatesShowCmd(e), newGatesRmCmd(e))
	return cmd
}

func newGatesPutCmd(e *env) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "put --file panel.yaml",
		Short: "Store every gate of a YAML panel, replacing gates of the same name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			panel, err := readGateFile(path)
			if err != nil {
				return err
			}
			cat, err := e.catalog(ctx)
			if err != nil {
				return err
			}
			for _, ng := range panel.Gates {
				rec, err := cat.PutGate(ctx, catalog.GateRecord{Name: ng.Name, Spec: ng.Gate})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("stored gate %s (%s)", rec.Name, rec.Spec.Kind))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "YAML gate panel")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newGatesLsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored gates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cat, err := e.catalog(ctx)
			if err != nil {
				return err
			}
			recs, err := cat.ListGates(ctx)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"name", "kind", "channels", "updated"}}
			for _, rec := range recs {
				data = append(data, []string{
					rec.Name, string(rec.Spec.Kind), strings.Join(rec.Spec.Channels, ","),
					rec.UpdatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			return renderTable(cmd, data)
		},
	}
}

func newGatesShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a stored gate as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := e.catalog(ctx)
			if err != nil {
				return err
			}
			rec, err := cat.GetGate(ctx, args[0])
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(namedGate{Name: rec.Name, Gate: rec.Spec})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func newGatesRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a stored gate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := e.catalog(ctx)
			if err != nil {
				return err
			}
			ok, err := cat.DeleteGate(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return catalog.ErrNotFound
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("deleted gate %s", args[0]))
			return nil
		},
	}
}
