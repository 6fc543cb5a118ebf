package commands

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowcore/internal/config"
)

func newConfigCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print defaults merged with the config file and FLOWCORE_* overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.Read(e.configPath)
			if err != nil {
				return err
			}
			settings := config.Settings(v)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				data, err := json.MarshalIndent(settings, "", "  ")
				if err != nil {
					return errors.Wrap(err, "marshal config to JSON")
				}
				fmt.Fprintln(out, string(data))
			case "yaml":
				data, err := yaml.Marshal(settings)
				if err != nil {
					return errors.Wrap(err, "marshal config to YAML")
				}
				fmt.Fprintf(out, "# flowcore configuration\n%s", data)
			case "toml":
				data, err := toml.Marshal(settings)
				if err != nil {
					return errors.Wrap(err, "marshal config to TOML")
				}
				fmt.Fprintf(out, "# flowcore configuration\n%s", data)
			default:
				return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
			}
			return nil
		},
	}
	show.Flags().StringVar(&format, "format", "toml", "output format: toml, json, yaml")
	cmd.AddCommand(show)
	return cmd
}
