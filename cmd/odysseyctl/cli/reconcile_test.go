package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
)

type stubRunner struct {
	report reconcile.Report
	err    error
}

func (s stubRunner) Run(context.Context, int) (reconcile.Report, error) {
	return s.report, s.err
}

func criticalReport() reconcile.Report {
	return reconcile.Report{
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SampleSize:  5,
		Summary: reconcile.Summary{
			Counts: map[reconcile.Category]int{reconcile.QuantityMismatch: 1, reconcile.UntrackedProduct: 2},
			Total:  3,
		},
		Classification: map[reconcile.Group]map[reconcile.Category]int{
			reconcile.GroupManualReview: {reconcile.QuantityMismatch: 1},
		},
		RequiresManualReview: true,
	}
}

func TestReconcileCommandTable(t *testing.T) {
	cmd, err := NewReconcileCLI(stubRunner{report: criticalReport()})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cmd.ReconcileCommand(context.Background(), ReconcileOptions{SampleSize: 5, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.Contains(t, stdout.String(), "quantity_mismatch")
	require.Contains(t, stdout.String(), "total findings: 3, needing manual review: 1")
	require.Contains(t, stdout.String(), "MANUAL REVIEW REQUIRED")
}

func TestReconcileCommandFailOnCriticalWritesJSON(t *testing.T) {
	cmd, err := NewReconcileCLI(stubRunner{report: criticalReport()})
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "reports", "run.json")

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cmd.ReconcileCommand(context.Background(), ReconcileOptions{
		JSONOutput:     true,
		OutputPath:     out,
		FailOnCritical: true,
		Stdout:         stdout,
		Stderr:         stderr,
	})
	require.Equal(t, reconcile.ExitCodeCritical, code)

	var printed reconcile.Report
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &printed))
	require.True(t, printed.RequiresManualReview)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var written reconcile.Report
	require.NoError(t, json.Unmarshal(raw, &written))
	require.Equal(t, 3, written.Summary.Total)
}

func TestReconcileCommandErrors(t *testing.T) {
	_, err := NewReconcileCLI(nil)
	require.Error(t, err)

	cmd, err := NewReconcileCLI(stubRunner{err: errors.New("db down")})
	require.NoError(t, err)
	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cmd.ReconcileCommand(context.Background(), ReconcileOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "db down")

	stderr.Reset()
	require.Equal(t, 1, cmd.ReconcileCommand(context.Background(), ReconcileOptions{SampleSize: -1, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "must not be negative")
}

type fakeMigrator struct {
	version uint
	dirty   bool
	upErr   error
	calls   []string
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	if m.upErr == nil {
		m.version = 1
	}
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	m.version = 0
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) {
	return m.version, m.dirty, nil
}

func TestMigrateCommand(t *testing.T) {
	m := &fakeMigrator{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	require.Zero(t, MigrateCommand(m, "up", stdout, stderr))
	require.Contains(t, stdout.String(), "schema version 1 (dirty=false)")

	require.Zero(t, MigrateCommand(m, "down", stdout, stderr))
	require.Equal(t, []string{"up", "down"}, m.calls)

	require.Equal(t, 2, MigrateCommand(m, "sideways", stdout, stderr))
	require.Contains(t, stderr.String(), "unknown action")

	failing := &fakeMigrator{upErr: errors.New("syntax error")}
	require.Equal(t, 1, MigrateCommand(failing, "up", stdout, stderr))

	dirty := &fakeMigrator{version: 1, dirty: true}
	require.Equal(t, 1, MigrateCommand(dirty, "version", stdout, stderr))
}
