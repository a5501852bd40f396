package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/kerbaras/mangadex-dl/pkg/downloader"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
)

// printSummaries renders the end-of-run report: one row per chapter,
// nothing fails silently.
func printSummaries(summaries []*downloader.Summary) {
	if len(summaries) == 0 {
		return
	}

	var (
		purple      = lipgloss.Color("99")
		headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
		cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	)

	for _, summary := range summaries {
		if len(summary.Results) == 0 {
			continue
		}

		t := table.New().
			Border(lipgloss.HiddenBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers("Chapter", "Status")

		var downloaded, skipped, failed int
		for _, r := range summary.Results {
			var status string
			switch {
			case r.Skipped:
				status = "skipped (already downloaded)"
				skipped++
			case r.Err != nil:
				status = fmt.Sprintf("failed: %v", r.Err)
				failed++
			case len(r.FailedPages) > 0:
				status = fmt.Sprintf("downloaded with errors (pages %s failed)", joinInts(r.FailedPages))
				failed++
			default:
				status = fmt.Sprintf("downloaded (%d pages)", r.Written)
				downloaded++
			}
			t.Row(utils.TruncateString(r.Name, 40), status)
		}

		fmt.Printf("\n%s — %d downloaded, %d skipped, %d with errors\n",
			utils.TruncateString(summary.Manga.Title, 58), downloaded, skipped, failed)
		fmt.Println(t)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
