package observability

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/tokwatch/internal/analysis"
	"github.com/jonathan/tokwatch/internal/types"
)

func TestPrintJobSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJobSummary(&types.Job{
		ID:                uuid.New(),
		Status:            types.JobCompletedWithErrors,
		Keywords:          []string{"flood", "roads", "water", "power", "schools", "transit"},
		VideosCollected:   7,
		CommentsCollected: 52,
		VideosAnalyzed:    5,
		VideosFailed:      2,
		Error:             "keyword \"transit\": blocked by source",
	})

	out := buf.String()
	assert.Contains(t, out, "COLLECTION JOB")
	assert.Contains(t, out, "completed_with_errors")
	assert.Contains(t, out, "flood")
	assert.Contains(t, out, "... and 1 more")
	assert.Contains(t, out, "Videos collected:   7")
	assert.Contains(t, out, "Error:")
}

func TestPrintJobSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintJobSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintBatchResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBatchResult(analysis.BatchResult{Requested: 10, Analyzed: 6, Failed: 1, Deferred: 3, Halted: true})

	out := buf.String()
	assert.Contains(t, out, "ANALYSIS BATCH")
	assert.Contains(t, out, "Analyzed:  6")
	assert.Contains(t, out, "halted")
}
