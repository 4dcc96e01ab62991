package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/stats"
)

var (
	dataDir  string
	logLevel string

	configFile string
	preset     string
	setting    string
	values     []float64
	reps       int
	workers    int
	seed       int64
	horizon    float64
	burnIn     float64
	save       bool
	progress   bool
	lyapunov   float64

	// Filter flags, used by run and tune.
	ensembleSize int
	infl         float64
	varF         float64
	damp         float64
	nuF          float64
	cond         bool
	radius       float64
	detp         int
	transform    string
	floor        float64

	tuneValues []float64

	field   string
	outPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "adinf",
		Short:         "adaptive inflation twin experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".adinf", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [method]",
		Short: "run one filter on one condition",
		Long:  "run one filter on one condition. methods: " + strings.Join(config.Methods, ", "),
		Args:  cobra.ExactArgs(1),
		RunE:  runFilter,
	}
	suiteFlags(runCmd)
	filterFlags(runCmd)
	runCmd.Flags().BoolVar(&save, "save", true, "store the run")
	runCmd.Flags().Float64Var(&lyapunov, "lyapunov", 0, "also estimate the forecast model's leading Lyapunov exponent over this long")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run every configured filter over the setting values",
		RunE:  runSweep,
	}
	suiteFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&reps, "reps", 1, "repetitions per setting value")
	sweepCmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "parallel runs")
	sweepCmd.Flags().BoolVar(&progress, "progress", false, "show an interactive progress view")
	sweepCmd.Flags().BoolVar(&save, "save", false, "store every run")

	tuneCmd := &cobra.Command{
		Use:   "tune [method]",
		Short: "grid-search the tuning parameter of a method",
		Args:  cobra.ExactArgs(1),
		RunE:  runTune,
	}
	suiteFlags(tuneCmd)
	filterFlags(tuneCmd)
	tuneCmd.Flags().IntVar(&reps, "reps", 1, "repetitions per setting value")
	tuneCmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "parallel runs")
	tuneCmd.Flags().Float64SliceVar(&tuneValues, "grid", nil, "tuning parameter values (default: method's range)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the per-cycle trace of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&field, "field", "rmse", "series to plot ("+strings.Join(stats.Fields[1:], ", ")+", all)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv",
		Short: "export the averages of every stored run to CSV",
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file (- for stdout)")

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored run to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file (- for stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [setting]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := make([]string, 0, len(config.Presets))
			for s := range config.Presets {
				settings = append(settings, s)
			}
			sort.Strings(settings)
			if len(args) == 1 {
				settings = args
			}
			for _, s := range settings {
				presets := config.ListPresets(s)
				if len(presets) == 0 {
					return fmt.Errorf("no presets for setting %q", s)
				}
				fmt.Printf("%s:\n", s)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, sweepCmd, tuneCmd, listCmd, showCmd, plotCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func suiteFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "suite file (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "named preset (see presets)")
	cmd.Flags().StringVar(&setting, "setting", "c", "swept model parameter (c, h, F, b)")
	cmd.Flags().Float64SliceVar(&values, "values", nil, "setting values")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "base random seed")
	cmd.Flags().Float64Var(&horizon, "t", config.DefaultT, "experiment length")
	cmd.Flags().Float64Var(&burnIn, "burn-in", config.DefaultBurnIn, "time excluded from averages")
}

func filterFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&ensembleSize, "n", config.DefaultN, "ensemble size")
	cmd.Flags().Float64Var(&infl, "infl", 1, "anomaly inflation factor (prior for adaptive methods)")
	cmd.Flags().Float64Var(&varF, "var-f", config.DefaultVarF, "forecast variance of the inflation (eakf_a07)")
	cmd.Flags().Float64Var(&damp, "damp", config.DefaultDamp, "inflation damping toward 1 (eakf_a07)")
	cmd.Flags().Float64Var(&nuF, "nu-f", config.DefaultNuF, "forgetting degrees of freedom")
	cmd.Flags().BoolVar(&cond, "cond", false, "cap the EnKF-N dual to a condition number")
	cmd.Flags().Float64Var(&radius, "l", 0, "localization radius in grid points (0 for global)")
	cmd.Flags().IntVar(&detp, "detp", config.DefaultDetp, "parameterization polynomial order")
	cmd.Flags().StringVar(&transform, "transform", config.TransformSqrt, "analysis transform (sqrt, pertobs)")
	cmd.Flags().Float64Var(&floor, "floor", 0, "minimum inflation factor")
}
