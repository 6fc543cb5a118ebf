// Package commands implements the flowctl command tree.
package commands

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flowcore/internal/blob"
	"flowcore/internal/catalog"
	"flowcore/internal/config"
	"flowcore/internal/logger"
	"flowcore/internal/observability"
	"flowcore/internal/samples"
)

// env carries what PersistentPreRunE builds for the subcommands. Stores are
// opened on first use so file-only commands never touch them.
type env struct {
	configPath string
	verbose    bool
	stats      bool

	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	expvar   *observability.ExpvarRecorder

	repo *samples.Repository
	cat  catalog.Store
}

// NewRootCmd builds a fresh flowctl command tree.
func NewRootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:   "flowctl",
		Short: "Inspect, gate and store flow cytometry data",
		Long: `flowctl works with FCS 2.0/3.0/3.1 files.

Local files can be inspected, exported to CSV and gated directly. Samples can
be imported into the configured blob store (filesystem, S3 or memory) and
gate definitions kept in the catalog (sqlite, postgres or memory).

Examples:
  flowctl inspect tube-3.fcs
  flowctl export tube-3.fcs --compensate --columns FSC-A,CD4 > tube-3.csv
  flowctl count tube-3.fcs --gates panel.yaml
  flowctl import tube-3.fcs --key runs/2024-05-01/tube-3.fcs
  flowctl gates put --file panel.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return e.teardown(cmd)
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default ./flowcore.toml when present)")
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&e.stats, "stats", false, "print operation statistics after the command")

	root.AddCommand(
		newInspectCmd(e),
		newExportCmd(e),
		newCountCmd(e),
		newImportCmd(e),
		newLsCmd(e),
		newRmCmd(e),
		newGatesCmd(e),
		newAnnotateCmd(e),
		newConfigCmd(e),
	)
	return root
}

func (e *env) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	if e.verbose {
		cfg.Log.Level = "debug"
	}
	log, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	e.cfg, e.log = cfg, log
	e.registry = prometheus.NewRegistry()
	e.expvar = observability.NewExpvarRecorder("")
	return nil
}

func (e *env) teardown(cmd *cobra.Command) error {
	var err error
	if e.cat != nil {
		err = e.cat.Close()
	}
	if e.stats && e.expvar != nil {
		if serr := printStats(cmd, e.expvar.Snapshot()); serr != nil && err == nil {
			err = serr
		}
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
	return err
}

// repository opens the configured blob store behind a sample repository.
func (e *env) repository(ctx context.Context) (*samples.Repository, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	store, err := blob.Open(ctx, e.cfg.Blob)
	if err != nil {
		return nil, errors.Wrap(err, "open blob store")
	}
	prom, err := observability.NewPrometheusRecorder(e.registry, e.cfg.Metrics.Namespace)
	if err != nil {
		return nil, err
	}
	repo, err := samples.New(store,
		samples.WithLogger(e.log),
		samples.WithMetrics(observability.Multi(prom, e.expvar)),
		samples.WithHeaderCacheSize(e.cfg.Samples.HeaderCacheSize),
	)
	if err != nil {
		return nil, err
	}
	e.repo = repo
	return repo, nil
}

func (e *env) catalog(ctx context.Context) (catalog.Store, error) {
	if e.cat != nil {
		return e.cat, nil
	}
	cat, err := catalog.Open(ctx, e.cfg.Catalog)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	e.log.Debug("catalog opened", zap.String("driver", string(cat.Driver())))
	e.cat = cat
	return cat, nil
}

func printStats(cmd *cobra.Command, snap observability.ExpvarSnapshot) error {
	data := pterm.TableData{{"operation", "ok", "error", "total ms"}}
	for _, op := range sortedKeys(snap.Results) {
		r := snap.Results[op]
		data = append(data, []string{op, itoa(r["success"]), itoa(r["error"]), ftoa(snap.DurationsMS[op])})
	}
	return renderTable(cmd, data)
}
