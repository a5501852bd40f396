package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mangadex-dl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mangadex-dl", version)
	},
}
