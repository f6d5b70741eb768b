package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quanta-labs/qprove/internal/prover"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [certificates...]",
	Short: "Independently replay serialized proof certificates",
	Long: `Verify replays each certificate's rewrite trace against the built-in
rule catalogue and the assumption set recorded in the certificate.
Nothing stored in the certificate is trusted: every step is re-derived
and the content hash is recomputed.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide certificate files")
			os.Exit(1)
		}

		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				logger.Error("Error reading certificate", zap.String("file", path), zap.Error(err))
				failed++
				continue
			}
			cert, err := prover.UnmarshalCertificate(data)
			if err != nil {
				logger.Error("Error parsing certificate", zap.String("file", path), zap.Error(err))
				failed++
				continue
			}
			ok, reason := prover.ReplayCertificate(cert)
			if ok {
				fmt.Printf("ok   %s  %s\n", path, describeGoal(cert))
			} else {
				fmt.Printf("FAIL %s  %s: %s\n", path, describeGoal(cert), reason)
				failed++
			}
		}

		if failed > 0 {
			os.Exit(1)
		}
	},
}

func describeGoal(cert *prover.Certificate) string {
	if cert.Goal.Kind == "property" {
		return fmt.Sprintf("%s(%s)", cert.Goal.Property, cert.Goal.LHS)
	}
	return fmt.Sprintf("%s == %s", cert.Goal.LHS, cert.Goal.RHS)
}
