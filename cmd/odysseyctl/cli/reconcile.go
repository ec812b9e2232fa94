package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-pos/internal/reconcile"
)

// Runner produces reconciliation reports; reconcile.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, sampleSize int) (reconcile.Report, error)
}

// ReconcileCLI renders reconciliation runs for operators.
type ReconcileCLI struct {
	runner Runner
}

// NewReconcileCLI wires the command to runner.
func NewReconcileCLI(runner Runner) (*ReconcileCLI, error) {
	if runner == nil {
		return nil, errors.New("reconcile cli: runner required")
	}
	return &ReconcileCLI{runner: runner}, nil
}

// ReconcileOptions configures one invocation.
type ReconcileOptions struct {
	SampleSize     int
	JSONOutput     bool
	OutputPath     string
	FailOnCritical bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// ReconcileCommand runs the scan and returns the process exit code: 0 on
// success, 1 on failure, reconcile.ExitCodeCritical when FailOnCritical is
// set and findings need manual review.
func (c *ReconcileCLI) ReconcileCommand(ctx context.Context, opts ReconcileOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.SampleSize < 0 {
		fmt.Fprintln(opts.Stderr, "reconcile: sample size must not be negative")
		return 1
	}

	report, err := c.runner.Run(ctx, opts.SampleSize)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
		return 1
	}
	if opts.OutputPath != "" {
		if err := reconcile.WriteFile(opts.OutputPath, report); err != nil {
			fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
	}

	if opts.JSONOutput {
		if err := reconcile.Encode(opts.Stdout, report); err != nil {
			fmt.Fprintf(opts.Stderr, "reconcile: %v\n", err)
			return 1
		}
	} else {
		writeTable(opts.Stdout, report)
	}

	if opts.FailOnCritical && report.RequiresManualReview {
		return reconcile.ExitCodeCritical
	}
	return 0
}

func writeTable(w io.Writer, report reconcile.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tGROUP\tCOUNT\tACTION")
	for _, category := range reconcile.Categories {
		count := report.Summary.Counts[category]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", category, reconcile.GroupOf(category), count, reconcile.SuggestedAction(category))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\ntotal findings: %d, needing manual review: %d\n", report.Summary.Total, report.CriticalCount())
	if report.RequiresManualReview {
		fmt.Fprintln(w, "status: MANUAL REVIEW REQUIRED")
	} else {
		fmt.Fprintln(w, "status: ok")
	}
}
