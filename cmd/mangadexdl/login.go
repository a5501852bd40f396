package cmd

import (
	"fmt"

	"github.com/kerbaras/mangadex-dl/pkg/sources"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Verify MangaDex credentials",
	Long:  "Exchange the configured username and password for a session token to confirm they work.",
	RunE: func(cmd *cobra.Command, args []string) error {
		username := viper.GetString("username")
		password := viper.GetString("password")
		if username == "" || password == "" {
			return fmt.Errorf("set --username and --password (or the config file equivalents)")
		}

		source := sources.NewMangaDex()
		if err := source.Login(cmd.Context(), username, password); err != nil {
			return err
		}
		fmt.Printf("✅ Logged in as %s\n", username)
		return nil
	},
}
