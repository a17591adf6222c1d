package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"tagflow/internal/pipeline"
)

// newProgressPrinter renders the pipeline's throttled progress stream to
// stderr. Carriage-return updates are only used on a TTY.
func newProgressPrinter() pipeline.Sink {
	tty := isatty.IsTerminal(os.Stderr.Fd())
	return func(event pipeline.Progress) {
		line := fmt.Sprintf("[%s] %d/%d", event.Phase, event.Completed, event.Total)
		if event.ETAHint > 0 {
			line += fmt.Sprintf(" (eta %s)", event.ETAHint.Round(time.Second))
		}
		if tty {
			fmt.Fprintf(os.Stderr, "\r%-70s", line)
			if event.Completed >= event.Total {
				fmt.Fprintln(os.Stderr)
			}
			return
		}
		fmt.Fprintln(os.Stderr, line)
	}
}

func printSummary(summary *pipeline.Summary, dryRun bool) {
	writer := table.NewWriter()
	writer.SetOutputMirror(os.Stdout)
	writer.AppendHeader(table.Row{"Batch", "Total", "Applied", "Review", "Unmatched", "Failed", "Skipped"})
	writer.AppendRow(table.Row{
		summary.BatchID,
		strconv.Itoa(summary.Stats.Total),
		strconv.Itoa(summary.Stats.Applied),
		strconv.Itoa(summary.Stats.Review),
		strconv.Itoa(summary.Stats.Unmatched),
		strconv.Itoa(summary.Stats.Failed),
		strconv.Itoa(summary.Stats.Skipped),
	})
	writer.Render()

	if dryRun {
		fmt.Println("dry run: no files were modified")
	}
	if summary.Cancelled {
		fmt.Println("batch cancelled; completed work is preserved and the batch can be resumed")
	}
	if summary.ToolMissing {
		fmt.Println("fpcalc was not found; tracks were resolved from tags only (install chromaprint for fingerprinting)")
	}
	fmt.Printf("elapsed: %s\n", summary.Elapsed.Round(time.Second))
}
