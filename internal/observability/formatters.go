// Package observability provides formatted output utilities for CLI runs.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxKeywordsToShow is the number of keywords to display in job summaries
	maxKeywordsToShow = 5
)

// Printer handles formatted output for CLI commands
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJobSummary outputs a human-readable summary of a finished job.
func (p *Printer) PrintJobSummary(job *types.Job) {
	if job == nil {
		return
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Job:      %s\n", job.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString("\n")

	if len(job.Keywords) > 0 {
		sb.WriteString("Keywords:\n")
		count := min(len(job.Keywords), maxKeywordsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", job.Keywords[i]))
		}
		if len(job.Keywords) > maxKeywordsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(job.Keywords)-maxKeywordsToShow))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Videos collected:   %d\n", job.VideosCollected))
	sb.WriteString(fmt.Sprintf("Comments collected: %d\n", job.CommentsCollected))
	sb.WriteString(fmt.Sprintf("Videos analyzed:    %d\n", job.VideosAnalyzed))
	sb.WriteString(fmt.Sprintf("Failed items:       %d", job.VideosFailed))

	if job.Error != "" {
		errText := job.Error
		if len(errText) > 50 {
			errText = errText[:47] + "..."
		}
		sb.WriteString(fmt.Sprintf("\n\nError: %s", errText))
	}

	p.printBox("COLLECTION JOB", sb.String())
}

// PrintBatchResult outputs the outcome of one analysis batch.
func (p *Printer) PrintBatchResult(result analysis.BatchResult) {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Requested: %d\n", result.Requested))
	sb.WriteString(fmt.Sprintf("Analyzed:  %d\n", result.Analyzed))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", result.Failed))
	sb.WriteString(fmt.Sprintf("Deferred:  %d", result.Deferred))

	if result.Halted {
		sb.WriteString("\n\n⚠ Batch halted on provider quota")
	}

	p.printBox("ANALYSIS BATCH", sb.String())
}
