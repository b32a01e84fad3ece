// Package report prints the end-of-run summary: one row per attempted file
// and a footer with the run totals.
package report

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"dataloader/internal/loader"
)

var header = []string{"Group", "File", "Table", "Mode", "Inserted", "Updated", "Errored", "Total", "Time", "Outcome"}

// Write renders results as a table on w.
func Write(w io.Writer, results []loader.FileResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})

	var total loader.Statistics
	var elapsed time.Duration
	for _, r := range results {
		mode := "insert-only"
		if r.Job.Safe {
			mode = "safe"
		}
		table.Append(append([]string{r.Job.Group, r.Job.Name, r.Job.Table, mode},
			append(counts(r.Stats), r.Duration.Round(time.Millisecond).String(), r.Outcome())...))
		total = total.Add(r.Stats)
		elapsed += r.Duration
	}

	footer := append([]string{"", strconv.Itoa(len(results)) + " files", "", ""},
		append(counts(total), elapsed.Round(time.Millisecond).String(), "")...)
	table.SetFooter(footer)
	table.Render()
}

func counts(s loader.Statistics) []string {
	return []string{
		strconv.FormatInt(s.Created, 10),
		strconv.FormatInt(s.Updated, 10),
		strconv.FormatInt(s.Errored, 10),
		strconv.FormatInt(s.Total, 10),
	}
}
