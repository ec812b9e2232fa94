// Command odysseyctl runs operator tasks: schema migrations, reconciliation
// scans and queue inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-pos/cmd/odysseyctl/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	switch args[0] {
	case "migrate":
		return migrateCmd(cfg, logger, args[1:], stdout, stderr)
	case "reconcile":
		return reconcileCmd(ctx, cfg, logger, args[1:], stdout, stderr)
	case "jobs":
		return jobsCmd(ctx, cfg, args[1:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: odysseyctl <command> [flags]

commands:
  migrate up|down|version
  reconcile [-sample-size N] [-json] [-output FILE] [-fail-on-critical]
  jobs stats
  jobs reconcile [-sample-size N] [-task-id ID]
`)
}

func migrateCmd(cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		usage(stderr)
		return 2
	}
	m, err := db.NewMigrator(migrations.FS, cfg.PGDSN, logger)
	if err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return 1
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", slog.Any("error", err))
		}
	}()
	return cli.MigrateCommand(m, args[0], stdout, stderr)
}

func reconcileCmd(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := cli.ReconcileOptions{Stdout: stdout, Stderr: stderr}
	fs.IntVar(&opts.SampleSize, "sample-size", reconcile.DefaultSampleSize, "rows sampled per category")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the report as JSON")
	fs.StringVar(&opts.OutputPath, "output", "", "also write the JSON report to this file")
	fs.BoolVar(&opts.FailOnCritical, "fail-on-critical", false, "exit 10 when findings need manual review")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 4})
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 1
	}
	defer pool.Close()

	command, err := cli.NewReconcileCLI(reconcile.NewService(reconcile.NewPGSource(pool), logger))
	if err != nil {
		fmt.Fprintf(stderr, "reconcile: %v\n", err)
		return 1
	}
	return command.ReconcileCommand(ctx, opts)
}

func jobsCmd(ctx context.Context, cfg *app.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue()
		if err != nil {
			fmt.Fprintf(stderr, "jobs stats: %v\n", err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
		return 0
	case "reconcile":
		fs := flag.NewFlagSet("jobs reconcile", flag.ContinueOnError)
		fs.SetOutput(stderr)
		sample := fs.Int("sample-size", cfg.ReconcileSampleSize, "rows sampled per category")
		taskID := fs.String("task-id", "", "idempotency id for the enqueued task")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := jobsCLI.TriggerReconcile(ctx, *sample, *taskID)
		if err != nil {
			fmt.Fprintf(stderr, "jobs reconcile: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "enqueued %s on %s\n", info.ID, info.Queue)
		return 0
	default:
		usage(stderr)
		return 2
	}
}
