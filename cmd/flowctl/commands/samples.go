package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newImportCmd(e *env) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Validate an FCS file and store it in the sample repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if key == "" {
				key = filepath.Base(args[0])
			}
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "open %s", args[0])
			}
			defer f.Close()
			repo, err := e.repository(ctx)
			if err != nil {
				return err
			}
			info, err := repo.Import(ctx, key, f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("imported %s (%d bytes, %s events)", info.Key, info.Size, info.Metadata["tot"]))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "repository key (default: file base name)")
	return cmd
}

func newLsCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List stored samples",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			repo, err := e.repository(ctx)
			if err != nil {
				return err
			}
			infos, err := repo.List(ctx, prefix)
			if err != nil {
				return err
			}
			data := pterm.TableData{{"key", "bytes", "modified"}}
			for _, info := range infos {
				data = append(data, []string{info.Key, itoa(info.Size), info.LastModified.Format(time.RFC3339)})
			}
			return renderTable(cmd, data)
		},
	}
}

func newRmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <key>",
		Short: "Delete a stored sample",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, err := e.repository(ctx)
			if err != nil {
				return err
			}
			ok, err := repo.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errors.Newf("sample %s not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("deleted %s", args[0]))
			return nil
		},
	}
}
