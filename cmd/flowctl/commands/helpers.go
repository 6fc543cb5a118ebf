package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flowcore/pkg/flowframe"
	"flowcore/pkg/gate"
	"flowcore/pkg/transform"
)

// openFrame loads arg as a local file, or as a repository key when fromStore
// is set.
func (e *env) openFrame(ctx context.Context, arg string, fromStore bool) (*flowframe.Frame, error) {
	if !fromStore {
		return flowframe.Load(arg, flowframe.WithLogger(e.log))
	}
	repo, err := e.repository(ctx)
	if err != nil {
		return nil, err
	}
	return repo.Open(ctx, arg)
}

// gateFile is the YAML layout of a gating panel. Transforms are applied to
// their channels before any gate is evaluated.
type gateFile struct {
	Transforms map[string]transform.Spec `yaml:"transforms,omitempty"`
	Gates      []namedGate               `yaml:"gates"`
}

type namedGate struct {
	Name string    `yaml:"name"`
	Gate gate.Spec `yaml:"gate"`
}

func readGateFile(path string) (*gateFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	var gf gateFile
	if err := yaml.Unmarshal(raw, &gf); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	seen := make(map[string]bool, len(gf.Gates))
	for i, g := range gf.Gates {
		if g.Name == "" {
			return nil, errors.Newf("%s: gate %d has no name", path, i)
		}
		if seen[g.Name] {
			return nil, errors.Newf("%s: duplicate gate %s", path, g.Name)
		}
		seen[g.Name] = true
	}
	return &gf, nil
}

// applyTransforms builds every transform through reg and applies it to the
// named channel, in channel order.
func applyTransforms(fr *flowframe.Frame, reg *transform.Registry, specs map[string]transform.Spec) (*flowframe.Frame, error) {
	for _, ch := range sortedKeys(specs) {
		t, err := reg.Build(specs[ch])
		if err != nil {
			return nil, errors.Wrapf(err, "transform for %s", ch)
		}
		if fr, err = fr.Transform(ch, t); err != nil {
			return nil, err
		}
	}
	return fr, nil
}

func renderTable(cmd *cobra.Command, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func itoa[T int | int64](v T) string { return strconv.FormatInt(int64(v), 10) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', 6, 64) }
