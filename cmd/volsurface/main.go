package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/contactkeval/option-volsurface/internal/api"
	"github.com/contactkeval/option-volsurface/internal/config"
	"github.com/contactkeval/option-volsurface/internal/data"
	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/pipeline"
	"github.com/contactkeval/option-volsurface/internal/report"
	"github.com/contactkeval/option-volsurface/internal/storage"
	"github.com/contactkeval/option-volsurface/internal/surface"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

var (
	configPath string
	verbosity  int
)

// app is everything a command needs, built once from configuration.
type app struct {
	cfg   *config.Config
	store *storage.Storage
	pipe  *pipeline.Pipeline
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	applyVerbosity(verbosity)

	prov, err := data.New(cfg.Market)
	if err != nil {
		return nil, err
	}
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	engine := volatility.NewEngine(cfg.Engine.Config)

	return &app{
		cfg:   cfg,
		store: store,
		pipe:  pipeline.New(prov, engine, store, cfg.Engine.RiskFreeRate),
	}, nil
}

// applyVerbosity raises logging above info once per -v: -v is debug, -vv
// trace. Without the flag the configured level stands.
func applyVerbosity(count int) {
	if count > 0 {
		logger.SetVerbosity(int(logger.Info) + count)
	}
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.Warnf("closing store: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var rootCmd = &cobra.Command{
	Use:           "volsurface",
	Short:         "Implied volatility tables and surfaces for option chains",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var computeCmd = &cobra.Command{
	Use:   "compute [underlying]",
	Short: "Fetch a chain, solve implied volatilities and store the run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, err := cmd.Flags().GetString("out")
		if err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		underlying := a.cfg.Underlying
		if len(args) == 1 {
			underlying = args[0]
		}

		ctx, cancel := signalContext()
		defer cancel()

		start := time.Now()
		run, err := a.pipe.Refresh(ctx, underlying)
		if err != nil {
			return err
		}
		report.RenderTable(cmd.OutOrStdout(), run)

		if outDir != "" {
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			if err := report.WriteJSON(run, outDir); err != nil {
				return err
			}
			if err := report.WriteCSV(run.Records, outDir); err != nil {
				return err
			}
		}
		logger.Infof("run %s finished in %v", run.ID, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var surfaceCmd = &cobra.Command{
	Use:   "surface",
	Short: "Interpolate a stored run onto a regular grid",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		runID, _ := flags.GetString("run")
		underlying, _ := flags.GetString("underlying")
		outDir, _ := flags.GetString("out")
		resolution, _ := flags.GetInt("resolution")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		if resolution <= 0 {
			resolution = a.cfg.Surface.Resolution
		}

		ctx := cmd.Context()
		var run *storage.Run
		if runID != "" {
			run, err = a.store.GetRun(ctx, runID)
		} else {
			run, err = a.store.LatestRun(ctx, underlying)
		}
		if err != nil {
			return err
		}

		points := surface.PointsFromRecords(run.Records, run.UnderlyingPrice, run.ValuationTime)
		grid, err := surface.BuildGrid(points, resolution)
		switch {
		case errors.Is(err, surface.ErrInsufficientSamples):
			logger.Warnf("run %s: %v; writing an empty grid", run.ID, err)
		case err != nil:
			return err
		}

		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := report.WriteGridCSV(grid, outDir); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d samples, %d/%d cells defined, written to %s\n",
			run.ID, len(points), grid.Defined(), resolution*resolution, outDir)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs and surfaces over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signalContext()
		defer cancel()

		h := api.NewHandler(a.store, a.pipe, a.cfg.Underlying, a.cfg.Surface.Resolution)
		return api.Serve(ctx, api.ServerConfig{
			Addr:         a.cfg.Server.Addr,
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}, h)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (defaults and VOLSURFACE_* env otherwise)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "raise log verbosity (-v debug, -vv trace)")

	computeCmd.Flags().String("out", "", "directory for volatility.json and volatility.csv")

	surfaceCmd.Flags().String("run", "", "run id (latest run by default)")
	surfaceCmd.Flags().String("underlying", "", "restrict the latest run to this underlying")
	surfaceCmd.Flags().Int("resolution", 0, "grid points per axis (config surface.resolution by default)")
	surfaceCmd.Flags().String("out", ".", "directory for surface.csv")

	rootCmd.AddCommand(computeCmd, surfaceCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
