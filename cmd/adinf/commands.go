package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"

	"github.com/guptarohit/asciigraph"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/adinf/internal/config"
	"github.com/san-kum/adinf/internal/experiment"
	"github.com/san-kum/adinf/internal/optim"
	"github.com/san-kum/adinf/internal/stats"
	"github.com/san-kum/adinf/internal/storage"
	"github.com/san-kum/adinf/internal/tui"
	"github.com/san-kum/adinf/internal/twin"
)

// loadSuite resolves preset, then config file, then flags that were set.
func loadSuite(cmd *cobra.Command) (*config.Suite, error) {
	s := config.DefaultSuite()
	if preset != "" {
		p := config.GetPreset(setting, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(setting))
		}
		s = p
	}
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		s = cfg
	}

	flags := cmd.Flags()
	if flags.Changed("setting") {
		s.Setting = setting
		if !flags.Changed("values") {
			v, err := config.SettingValues(setting)
			if err != nil {
				return nil, err
			}
			s.Values = v
		}
	}
	if flags.Changed("values") {
		s.Values = values
	}
	if flags.Changed("seed") {
		s.Seed = seed
	}
	if flags.Changed("t") {
		s.T = horizon
	}
	if flags.Changed("burn-in") {
		s.BurnIn = burnIn
	}
	if flags.Changed("reps") {
		s.Reps = reps
	}
	if flags.Changed("workers") {
		s.Workers = workers
	}
	return s, nil
}

func filterFromFlags(method string) (config.Filter, error) {
	d, dm := detp, damp
	f := config.Filter{
		Method:    method,
		N:         ensembleSize,
		Infl:      infl,
		VarF:      varF,
		Damp:      &dm,
		NuF:       nuF,
		Cond:      cond,
		L:         radius,
		Detp:      &d,
		Transform: transform,
		Floor:     floor,
	}
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

func metadata(s *config.Suite, c experiment.Cell) storage.RunMetadata {
	return storage.RunMetadata{
		Label:    c.Label,
		Seed:     c.Seed,
		Setting:  s.Setting,
		Value:    c.Value,
		Rep:      c.Rep,
		Filter:   c.Filter,
		Suite:    s,
		Averages: storage.FiniteAverages(c.Averages),
		Error:    c.Err,
	}
}

func averagesRow(avg stats.Averages) []string {
	m := avg.Map()
	row := make([]string, 0, len(stats.Keys))
	for _, k := range stats.Keys {
		if math.IsNaN(m[k]) {
			row = append(row, "-")
			continue
		}
		row = append(row, fmt.Sprintf("%.4f", m[k]))
	}
	return row
}

func runFilter(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := loadSuite(cmd)
	if err != nil {
		return err
	}
	f, err := filterFromFlags(args[0])
	if err != nil {
		return err
	}
	s.Filters = []config.Filter{f}
	s.Values = s.Values[:1]
	s.Reps = 1

	setup, err := twin.NewSetup(s, s.Values[0])
	if err != nil {
		return err
	}
	runSeed := experiment.RunSeed(s.Seed, 0)
	truth, err := twin.Simulate(ctx, setup, rand.New(rand.NewSource(runSeed)))
	if err != nil {
		return err
	}
	exp, err := experiment.New(experiment.NewRegistry(), setup, truth, f, experiment.FilterSeed(runSeed))
	if err != nil {
		return err
	}

	acc, runErr := exp.Run(ctx)
	cell := experiment.Cell{
		Value: setup.Value, Seed: runSeed, Filter: f, Label: f.Label(),
		Averages: stats.Missing(), Stats: acc,
	}
	if runErr != nil {
		cell.Err = runErr.Error()
	} else if cell.Averages, err = acc.AverageInTime(setup.Chrono.BurnInCycles); err != nil {
		cell.Averages = stats.Missing()
		cell.Err = err.Error()
	}

	if lyapunov > 0 {
		ly, err := setup.ForecastLyapunov(ctx, truth, f.Order(), lyapunov)
		if err != nil {
			return err
		}
		fmt.Printf("forecast model: lyapunov %.3f, doubling time %.3f\n", ly.Exponent, ly.DoublingTime)
	}

	headers := append([]string{s.Setting, "method"}, stats.Keys...)
	row := append([]string{strconv.FormatFloat(setup.Value, 'g', 4, 64), cell.Label}, averagesRow(cell.Averages)...)
	fmt.Println(tui.RenderTable(headers, [][]string{row}))

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(metadata(s, cell), acc)
		if err != nil {
			return err
		}
		fmt.Printf("saved: %s\n", id)
	}
	return runErr
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	s, err := loadSuite(cmd)
	if err != nil {
		return err
	}
	sw, err := experiment.NewSweep(s, nil)
	if err != nil {
		return err
	}
	sw.KeepStats = save

	var res *experiment.SweepResult
	if progress {
		// The view owns the terminal; keep log lines out of it.
		if log.GetLevel() < log.WarnLevel {
			log.SetLevel(log.WarnLevel)
		}
		err = tui.RunProgress(sw.Total(), cancel, func(report func(tui.CellMsg)) error {
			sw.OnResult = func(done, total int, c experiment.Cell) {
				report(tui.CellMsg{
					Done: done, Total: total,
					Condition: fmt.Sprintf("%s=%g", s.Setting, c.Value),
					Label:     c.Label,
					RMSE:      c.Averages.RMSE,
					Err:       c.Err,
				})
			}
			var runErr error
			res, runErr = sw.Run(ctx)
			return runErr
		})
	} else {
		sw.OnResult = func(done, total int, c experiment.Cell) {
			log.WithFields(log.Fields{
				"done":   fmt.Sprintf("%d/%d", done, total),
				"method": c.Label,
				"value":  c.Value,
				"rep":    c.Rep,
			}).Debug("cell finished")
		}
		res, err = sw.Run(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Println(tui.RenderTable(tui.AverageRows(res)))

	failed := 0
	for _, c := range res.Cells {
		if c.Failed() {
			failed++
			log.WithFields(log.Fields{"method": c.Label, "value": c.Value, "rep": c.Rep}).Warn(c.Err)
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d runs failed\n", failed, len(res.Cells))
	}

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		for _, c := range res.Cells {
			if _, err := st.Save(metadata(res.Suite, c), c.Stats); err != nil {
				return err
			}
		}
		fmt.Printf("saved %d runs to %s\n", len(res.Cells), dataDir)
	}
	return nil
}

func runTune(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := loadSuite(cmd)
	if err != nil {
		return err
	}
	base, err := filterFromFlags(args[0])
	if err != nil {
		return err
	}
	s.Filters = []config.Filter{base}
	sw, err := experiment.NewSweep(s, nil)
	if err != nil {
		return err
	}

	res, err := sw.Tune(ctx, base, tuneValues)
	if res != nil && len(res.Trials) > 0 {
		rows := make([][]string, 0, len(res.Trials))
		for _, tr := range optim.Ranked(res.Trials) {
			rows = append(rows, []string{
				strconv.FormatFloat(tr.Params[res.Param], 'g', 4, 64),
				fmt.Sprintf("%.4f", tr.Score),
			})
		}
		fmt.Println(tui.RenderTable([]string{res.Param, "rmse_a"}, rows))
	}
	if err != nil {
		return err
	}
	fmt.Printf("best: %s (rmse_a %.4f)\n", res.Best.Label(), res.Score)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rmse := "-"
		if v := run.Average("rmse_a"); !math.IsNaN(v) {
			rmse = fmt.Sprintf("%.4f", v)
		}
		rows = append(rows, []string{
			run.ID,
			run.Label,
			fmt.Sprintf("%s=%g", run.Setting, run.Value),
			strconv.FormatInt(run.Seed, 10),
			rmse,
			run.Timestamp.Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Println(tui.RenderTable([]string{"id", "method", "condition", "seed", "rmse_a", "time"}, rows))
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("method: %s\n", meta.Label)
	fmt.Printf("condition: %s=%g (rep %d, seed %d)\n", meta.Setting, meta.Value, meta.Rep, meta.Seed)
	fmt.Printf("time: %s\n", meta.Timestamp.Format("2006-01-02 15:04:05"))
	if meta.Error != "" {
		fmt.Printf("error: %s\n", meta.Error)
	}

	row := make([]string, 0, len(stats.Keys))
	for _, k := range stats.Keys {
		v := meta.Average(k)
		if math.IsNaN(v) {
			row = append(row, "-")
			continue
		}
		row = append(row, fmt.Sprintf("%.4f", v))
	}
	fmt.Println(tui.RenderTable(stats.Keys, [][]string{row}))
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}

	fields := []string{field}
	if field == "all" {
		fields = []string{"rmse", "spread", "infl"}
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("method: %s\n", meta.Label)
	fmt.Printf("cycles: %d\n\n", len(series["k"]))

	for _, f := range fields {
		data, ok := series[f]
		if !ok {
			return fmt.Errorf("unknown field: %s", f)
		}
		if !hasFinite(data) {
			fmt.Printf("%s: no data\n\n", f)
			continue
		}

		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("%s vs cycle", f)),
		)
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func hasFinite(xs []float64) bool {
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	out := os.Stdout
	if outPath != "-" {
		file, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}
	if err := storage.ExportCSV(out, runs); err != nil {
		return err
	}
	if outPath != "-" {
		fmt.Printf("exported %d runs to %s\n", len(runs), outPath)
	}
	return nil
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if err := st.ExportJSON(outPath, args[0]); err != nil {
		return err
	}
	if outPath != "-" {
		fmt.Printf("exported to %s\n", outPath)
	}
	return nil
}
