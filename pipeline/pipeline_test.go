package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/prover"
)

func run(t *testing.T, cfg Config, src string) *Result {
	t.Helper()
	res, err := New(cfg, nil).RunSource(context.Background(), "test.qth", []byte(src))
	require.NoError(t, err)
	return res
}

func TestRunSourceProvesGoal(t *testing.T) {
	t.Parallel()
	res := run(t, DefaultConfig(), `prove commutator(sigma_x, sigma_y) == 2 * i * sigma_z;`)

	assert.False(t, diag.HasErrors(res.Diags))
	require.Len(t, res.Proofs, 1)
	report := res.Proofs[0]
	assert.True(t, report.Succeeded())
	require.NotNil(t, report.Identity)
	assert.Equal(t, prover.StatusProven, report.Identity.Status)

	cert := report.Certificate()
	require.NotNil(t, cert)
	assert.True(t, res.Prover.VerifyProof(context.Background(), cert))
	ok, reason := prover.ReplayCertificate(cert)
	assert.True(t, ok, reason)
}

func TestRunSourceUsesAssumptions(t *testing.T) {
	t.Parallel()
	src := `operator H;
assume H is hermitian;
prove dagger(H) == H;
`
	res := run(t, DefaultConfig(), src)
	assert.False(t, diag.HasErrors(res.Diags))
	require.Len(t, res.Proofs, 1)
	assert.True(t, res.Proofs[0].Succeeded())
}

func TestRunSourcePropertyGoal(t *testing.T) {
	t.Parallel()
	res := run(t, DefaultConfig(), `prove hermitian(sigma_x + sigma_z);`)
	require.Len(t, res.Proofs, 1)
	report := res.Proofs[0]
	require.NotNil(t, report.Property)
	assert.True(t, report.Succeeded())
}

func TestRunSourceUnprovenGoalWarns(t *testing.T) {
	t.Parallel()
	res := run(t, DefaultConfig(), `prove sigma_x * sigma_y == sigma_y * sigma_x;`)

	require.Len(t, res.Proofs, 1)
	assert.False(t, res.Proofs[0].Succeeded())
	require.NotNil(t, res.Proofs[0].Identity)
	assert.Equal(t, prover.StatusRefuted, res.Proofs[0].Identity.Status)

	var found *diag.Diagnostic
	for _, d := range res.Diags {
		if d.Rule == "unproven-goal" {
			found = d
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, diag.StageProve, found.Stage)
	assert.Equal(t, diag.SeverityWarning, found.Severity)
}

func TestRunSourceFrontEndErrorsSkipProofs(t *testing.T) {
	t.Parallel()
	res := run(t, DefaultConfig(), `prove nonsense_name == I;`)
	assert.True(t, diag.HasErrors(res.Diags))
	assert.Empty(t, res.Proofs)
}

func TestRunSourceSkipProofs(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.SkipProofs = true
	res := run(t, cfg, `prove commutator(sigma_x, sigma_y) == 2 * i * sigma_z;`)
	assert.False(t, diag.HasErrors(res.Diags))
	assert.Empty(t, res.Proofs, "proofs are skipped, not run")
}

func TestRunSourceKeepsSourceLines(t *testing.T) {
	t.Parallel()
	res := run(t, DefaultConfig(), "symbol w;\nprove w == w;\n")
	require.GreaterOrEqual(t, len(res.Lines), 2)
	assert.Equal(t, "symbol w;", res.Lines[0])
	assert.Equal(t, "prove w == w;", res.Lines[1])
}

func TestRunSourceValidatorWarning(t *testing.T) {
	t.Parallel()
	// 2*sigma_x is declared unitary but is not
	res := run(t, DefaultConfig(), `unitary U = 2 * sigma_x;`)
	var warned bool
	for _, d := range res.Diags {
		if d.Stage == diag.StageValidate {
			warned = true
			assert.Equal(t, diag.SeverityWarning, d.Severity)
		}
	}
	assert.True(t, warned)
}

func writeProgram(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunFile(t *testing.T) {
	t.Parallel()
	path := writeProgram(t, t.TempDir(), "program.qth",
		`prove anticommutator(sigma_x, sigma_x) == 2 * I;`)

	res, err := New(DefaultConfig(), nil).RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, res.File)
	require.Len(t, res.Proofs, 1)
	assert.True(t, res.Proofs[0].Succeeded())

	_, err = New(DefaultConfig(), nil).RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.qth"))
	assert.Error(t, err)
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeProgram(t, dir, "a.qth", `prove sigma_x * sigma_x == I;`)
	writeProgram(t, dir, "b.qth", "operator A;\noperator B;\nprove trace(commutator(A, B)) == 0;\n")
	writeProgram(t, dir, "notes.txt", `not a program`)

	results, err := New(DefaultConfig(), nil).ProcessFiles(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, results, 2, "only .qth files are picked up")
	for _, res := range results {
		require.Len(t, res.Proofs, 1)
		assert.True(t, res.Proofs[0].Succeeded(), res.File)
	}
}

func TestProcessFilesSingleFile(t *testing.T) {
	t.Parallel()
	path := writeProgram(t, t.TempDir(), "one.qth", `symbol w;`)
	results, err := New(DefaultConfig(), nil).ProcessFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].File)
}

func TestWatcherRejectsDoubleStart(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	w, err := New(DefaultConfig(), nil).NewWatcher(nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx, []string{dir}))
	assert.Error(t, w.Start(ctx, []string{dir}))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("empty path keeps defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("yaml layers over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "qprove.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"tolerance: 0.001\nstrict: true\ndisabled_rules: [state-norm]\nprover:\n  max_depth: 7\n  seed: 9\n"), 0o644))
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 0.001, cfg.Tolerance)
		assert.True(t, cfg.Strict)
		assert.Equal(t, []string{"state-norm"}, cfg.DisabledRules)
		assert.Equal(t, 7, cfg.Prover.MaxDepth)
		assert.Equal(t, int64(9), cfg.Prover.Seed)
		// untouched keys stay at defaults
		assert.Equal(t, DefaultConfig().Prover.Samples, cfg.Prover.Samples)
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
