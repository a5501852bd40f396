package cmd

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/kerbaras/mangadex-dl/pkg/resolver"
	"github.com/kerbaras/mangadex-dl/pkg/sources"
	"github.com/kerbaras/mangadex-dl/pkg/utils"
	"github.com/spf13/cobra"
)

var chaptersCmd = &cobra.Command{
	Use:   "chapters [manga url or id]",
	Short: "List a manga's chapter feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := sources.NewMangaDex()
		ref, err := resolver.New(source, nil).Resolve(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		manga, err := source.GetManga(cmd.Context(), ref.ID)
		if err != nil {
			return err
		}
		chapters, err := source.GetChapters(cmd.Context(), manga.ID)
		if err != nil {
			return err
		}
		if len(chapters) == 0 {
			fmt.Println("No chapters available.")
			return nil
		}

		columns := []table.Column{
			{Title: "Vol", Width: 5},
			{Title: "Ch", Width: 7},
			{Title: "Title", Width: 32},
			{Title: "Lang", Width: 5},
			{Title: "Group", Width: 24},
			{Title: "Pages", Width: 5},
		}

		rows := []table.Row{}
		for _, ch := range chapters {
			group := ""
			if len(ch.GroupNames) > 0 {
				group = ch.GroupNames[0]
			}
			rows = append(rows, table.Row{
				ch.Volume,
				ch.Number,
				utils.TruncateString(ch.Title, 30),
				ch.Language,
				utils.TruncateString(group, 22),
				fmt.Sprintf("%d", ch.Pages),
			})
		}

		t := table.New(
			table.WithColumns(columns),
			table.WithRows(rows),
			table.WithFocused(false),
			table.WithHeight(len(rows)),
		)

		s := table.DefaultStyles()
		s.Header = s.Header.
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240")).
			BorderBottom(true).
			Bold(true)
		s.Selected = s.Selected.
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Bold(false)
		t.SetStyles(s)

		fmt.Printf("\n📚 %s (%d chapters)\n\n", manga.Title, len(rows))
		fmt.Println(t.View())
		return nil
	},
}
