package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/prover"
	"github.com/quanta-labs/qprove/internal/validator"
)

// ProverConfig is the yaml shape of the prover budgets.
type ProverConfig struct {
	MaxDepth int           `yaml:"max_depth"`
	MaxSteps int64         `yaml:"max_steps"`
	Timeout  time.Duration `yaml:"timeout"`
	Samples  int           `yaml:"samples"`
	Seed     int64         `yaml:"seed"`
}

// Config configures a pipeline run. Zero values fall back to defaults.
type Config struct {
	// Tolerance is the numeric envelope shared by the validator and the
	// prover's sampled checks.
	Tolerance float64 `yaml:"tolerance"`
	// Strict promotes validation warnings at or above SeverityThreshold
	// to hard errors.
	Strict bool `yaml:"strict"`
	// SeverityThreshold names the promotion threshold: info, warning, or
	// error.
	SeverityThreshold string `yaml:"severity_threshold"`
	// CertDir, when set, is where generated certificates are written.
	CertDir string `yaml:"cert_dir"`
	// DisabledRules suppresses validation checks by rule name.
	DisabledRules []string `yaml:"disabled_rules"`
	// SkipProofs stops after validation; prove statements are parsed and
	// type-checked but not executed.
	SkipProofs bool `yaml:"-"`

	Prover ProverConfig `yaml:"prover"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	pc := prover.DefaultConfig()
	return Config{
		Tolerance:         validator.DefaultTolerance,
		SeverityThreshold: "warning",
		Prover: ProverConfig{
			MaxDepth: pc.MaxDepth,
			MaxSteps: pc.MaxSteps,
			Timeout:  pc.Timeout,
			Samples:  pc.Samples,
			Seed:     pc.Seed,
		},
	}
}

// LoadConfig reads a yaml configuration file, layering it over the
// defaults. An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// proverConfig converts the yaml shape into prover budgets.
func (c Config) proverConfig() prover.Config {
	return prover.Config{
		MaxDepth:  c.Prover.MaxDepth,
		MaxSteps:  c.Prover.MaxSteps,
		Timeout:   c.Prover.Timeout,
		Samples:   c.Prover.Samples,
		Tolerance: c.Tolerance,
		Seed:      c.Prover.Seed,
	}
}

// validatorOptions converts the config into validator options.
func (c Config) validatorOptions() validator.Options {
	opts := validator.Options{
		Tolerance: c.Tolerance,
		Strict:    c.Strict,
		Threshold: diag.ParseSeverity(c.SeverityThreshold),
	}
	if len(c.DisabledRules) > 0 {
		opts.Disabled = make(map[string]bool, len(c.DisabledRules))
		for _, rule := range c.DisabledRules {
			opts.Disabled[rule] = true
		}
	}
	return opts
}
