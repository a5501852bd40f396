package cmd

import (
	"errors"
	"os"

	"github.com/kerbaras/mangadex-dl/pkg/data"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitFailure    = 1
	exitBadRequest = 2 // invalid reference or rejected credentials
)

var rootCmd = &cobra.Command{
	Use:   "mangadex-dl [url | id | keyword]",
	Short: "Download manga from MangaDex",
	Long: "Download manga, chapters, lists or your followed library from MangaDex\n" +
		"into raw images, CBZ, CB7, EPUB or PDF.",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromConfig()
		if err != nil {
			return err
		}
		return runPipeline(cmd.Context(), args[0], opts)
	}

	cobra.OnInitialize(initConfig)

	flags := rootCmd.Flags()
	flags.StringP("chapters", "c", "", "Chapter range, inclusive (e.g. 1-10, 5, 5-)")
	flags.String("pages", "", "Page range per chapter, inclusive (e.g. 1-20)")
	flags.StringSliceP("language", "l", []string{"en"}, "Translated languages to download")
	flags.StringSliceP("group", "g", nil, "Scanlation group allowlist (IDs or names)")
	flags.String("prefer-group", "", "Preferred group when several publish the same chapter")
	flags.Bool("all-groups", false, "Keep every group's version of each chapter")
	flags.StringP("format", "f", "raw", "Output format: raw, cbz, cb7, epub, pdf")
	flags.StringP("output", "o", ".", "Output directory")
	flags.String("proxy", "", "Proxy URL for all requests")
	flags.Bool("doh", false, "Resolve hosts through DNS-over-HTTPS")
	flags.Bool("no-oneshot", false, "Skip the oneshot chapter of oneshot manga")
	flags.Bool("compress", false, "Download compressed (data-saver) images")
	flags.Bool("replace", false, "Redo archives recorded as complete")
	flags.Bool("strict", false, "Abort a chapter on any page failure")
	flags.BoolP("quiet", "q", false, "Plain line output, no progress UI")
	flags.Int("workers", 4, "Concurrent page fetches within a chapter")

	pflags := rootCmd.PersistentFlags()
	pflags.StringP("username", "u", "", "MangaDex username")
	pflags.StringP("password", "p", "", "MangaDex password")
	viper.BindPFlag("username", pflags.Lookup("username"))
	viper.BindPFlag("password", pflags.Lookup("password"))

	for _, key := range []string{
		"language", "format", "output", "proxy", "doh", "workers",
	} {
		viper.BindPFlag(key, flags.Lookup(key))
	}

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(chaptersCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		rootCmd.PrintErrln("Error:", err)

		var refErr *data.InvalidReferenceError
		var authErr *data.AuthError
		if errors.As(err, &refErr) || errors.As(err, &authErr) {
			os.Exit(exitBadRequest)
		}
		os.Exit(exitFailure)
	}
}
