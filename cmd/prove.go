package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quanta-labs/qprove/pipeline"
)

var (
	proveJSONOutput bool
	proveOutPath    string
	certDir         string
)

var proveCmd = &cobra.Command{
	Use:   "prove [paths...]",
	Short: "Run the full pipeline and prove every goal, emitting certificates",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cfg, err := pipeline.LoadConfig(cfgFile)
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		if certDir != "" {
			cfg.CertDir = certDir
		}

		results, err := pipeline.New(cfg, logger).ProcessFiles(ctx, args)
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			os.Exit(1)
		}

		if cfg.CertDir != "" {
			if err := writeCertificates(results, cfg.CertDir); err != nil {
				logger.Error("Error writing certificates", zap.Error(err))
				os.Exit(1)
			}
		}

		printResults(logger, results, proveJSONOutput, proveOutPath)

		if anyErrors(results) || anyUnproven(results) {
			os.Exit(1)
		}
	},
}

func init() {
	proveCmd.Flags().BoolVar(&proveJSONOutput, "json", false, "Output results in JSON format")
	proveCmd.Flags().StringVarP(&proveOutPath, "output", "o", "", "Output path (when using JSON)")
	proveCmd.Flags().StringVar(&certDir, "cert-dir", "", "Directory to write proof certificates into")
}

func anyUnproven(results []*pipeline.Result) bool {
	for _, res := range results {
		for i := range res.Proofs {
			if !res.Proofs[i].Succeeded() {
				return true
			}
		}
	}
	return false
}

// writeCertificates serializes every generated certificate into dir,
// one JSON file per certificate, named by certificate ID.
func writeCertificates(results []*pipeline.Result, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	for _, res := range results {
		for i := range res.Proofs {
			cert := res.Proofs[i].Certificate()
			if cert == nil {
				continue
			}
			data, err := cert.Marshal()
			if err != nil {
				return fmt.Errorf("marshaling certificate %s: %w", cert.ID, err)
			}
			path := filepath.Join(dir, cert.ID+".json")
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
		}
	}
	return nil
}
