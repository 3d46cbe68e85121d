package main

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/book-expert/images-to-pdf/internal/bundler"
)

var summaryHeaders = table.Row{
	"Root", "Images", "Converted", "Convert failed", "Excluded",
	"PDFs", "Skipped", "PDF failed", "Written", "Error",
}

// renderSummary formats one row per root plus a totals footer.
func renderSummary(summary bundler.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(summaryHeaders)

	for _, report := range summary.Roots {
		tw.AppendRow(summaryRow(report))
	}

	tw.AppendFooter(summaryRow(summary.Totals()))

	columnConfigs := make([]table.ColumnConfig, 0, len(summaryHeaders))
	for i := range summaryHeaders {
		align := text.AlignRight
		if i == 0 || i == len(summaryHeaders)-1 {
			align = text.AlignLeft
		}

		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}

	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func summaryRow(report bundler.RootReport) table.Row {
	errText := ""
	if report.Err != nil {
		errText = report.Err.Error()
	}

	return table.Row{
		report.Root,
		strconv.Itoa(report.ImagesFound),
		strconv.Itoa(report.Converted),
		strconv.Itoa(report.ConvertFailed),
		strconv.Itoa(report.ImagesExcluded),
		strconv.Itoa(report.PDFsCreated),
		strconv.Itoa(report.PDFsSkipped),
		strconv.Itoa(report.PDFsFailed),
		humanize.Bytes(uint64(max(report.BytesWritten, 0))),
		errText,
	}
}

func failureCount(summary bundler.Summary) int {
	count := 0
	for _, report := range summary.Roots {
		count += report.Failures()
	}

	return count
}
