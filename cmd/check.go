package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quanta-labs/qprove/formatter"
	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/pipeline"
)

var (
	checkJSONOutput bool
	checkOutPath    string
	checkWatch      bool
)

var checkCmd = &cobra.Command{
	Use:   "check [paths...]",
	Short: "Parse, resolve, type-check, and validate programs without proving",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		cfg, err := pipeline.LoadConfig(cfgFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		cfg.SkipProofs = true
		p := pipeline.New(cfg, logger)

		if checkWatch {
			watchAndCheck(p, args)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		results, err := p.ProcessFiles(ctx, args)
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			os.Exit(1)
		}

		printResults(logger, results, checkJSONOutput, checkOutPath)

		if anyErrors(results) {
			os.Exit(1)
		}
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkJSONOutput, "json", false, "Output diagnostics in JSON format")
	checkCmd.Flags().StringVarP(&checkOutPath, "output", "o", "", "Output path (when using JSON)")
	checkCmd.Flags().BoolVar(&checkWatch, "watch", false, "Re-check files whenever they change")
}

// watchAndCheck runs an initial pass, then re-checks on every write
// until interrupted.
func watchAndCheck(p *pipeline.Pipeline, paths []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if results, err := p.ProcessFiles(ctx, paths); err == nil {
		printResults(logger, results, false, "")
	} else {
		logger.Error("Error processing files", zap.Error(err))
	}

	w, err := p.NewWatcher(func(res *pipeline.Result) {
		printResults(logger, []*pipeline.Result{res}, false, "")
	})
	if err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	if err := w.Start(ctx, paths); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer func() { _ = w.Stop() }()

	<-ctx.Done()
}

func anyErrors(results []*pipeline.Result) bool {
	for _, res := range results {
		if diag.HasErrors(res.Diags) {
			return true
		}
	}
	return false
}

// printResults writes the run outcome as colored text or JSON.
func printResults(logger *zap.Logger, results []*pipeline.Result, isJSON bool, outPath string) {
	if isJSON {
		data, err := formatter.EmitJSON(results)
		if err != nil {
			logger.Error("Error marshalling results to JSON", zap.Error(err))
			return
		}
		if outPath == "" {
			fmt.Println(string(data))
			return
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			logger.Error("Error writing JSON output file", zap.Error(err))
		}
		return
	}

	for _, res := range results {
		if len(res.Diags) > 0 {
			fmt.Print(formatter.FormatDiagnostics(res.Diags, res.Lines))
		}
		if len(res.Proofs) > 0 {
			fmt.Print(formatter.FormatProofs(res))
		}
	}
	fmt.Print(formatter.FormatSummary(results))
}
