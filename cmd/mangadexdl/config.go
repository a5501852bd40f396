package cmd

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kerbaras/mangadex-dl/pkg/downloader"
	"github.com/kerbaras/mangadex-dl/pkg/planner"
	"github.com/spf13/viper"
)

// runOptions is every setting the pipeline needs, merged from flags,
// config file and environment.
type runOptions struct {
	Plan planner.Options

	Format   string
	Output   string
	Proxy    string
	DoH      bool
	Username string
	Password string

	Compress bool
	Replace  bool
	Strict   bool
	Quiet    bool
	Workers  int
}

// initConfig layers ~/.config/mangadex-dl/config.yaml and MANGADEXDL_*
// environment variables under the flags.
func initConfig() {
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "mangadex-dl"))
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("mangadexdl")
	viper.AutomaticEnv()
	viper.ReadInConfig() // missing config file is fine
}

func optionsFromConfig() (runOptions, error) {
	flags := rootCmd.Flags()

	opts := runOptions{
		Plan:     planner.DefaultOptions(),
		Format:   viper.GetString("format"),
		Output:   viper.GetString("output"),
		Proxy:    viper.GetString("proxy"),
		DoH:      viper.GetBool("doh"),
		Username: viper.GetString("username"),
		Password: viper.GetString("password"),
		Workers:  viper.GetInt("workers"),
	}
	opts.Plan.Languages = viper.GetStringSlice("language")

	opts.Compress, _ = flags.GetBool("compress")
	opts.Replace, _ = flags.GetBool("replace")
	opts.Strict, _ = flags.GetBool("strict")
	opts.Quiet, _ = flags.GetBool("quiet")

	opts.Plan.Groups, _ = flags.GetStringSlice("group")
	opts.Plan.PreferGroup, _ = flags.GetString("prefer-group")
	opts.Plan.AllGroups, _ = flags.GetBool("all-groups")
	opts.Plan.NoOneshot, _ = flags.GetBool("no-oneshot")

	if s, _ := flags.GetString("chapters"); s != "" {
		start, end, err := parseFloatRange(s)
		if err != nil {
			return opts, fmt.Errorf("invalid --chapters range %q: %w", s, err)
		}
		opts.Plan.StartChapter, opts.Plan.EndChapter = start, end
	}
	if s, _ := flags.GetString("pages"); s != "" {
		start, end, err := parseIntRange(s)
		if err != nil {
			return opts, fmt.Errorf("invalid --pages range %q: %w", s, err)
		}
		opts.Plan.StartPage, opts.Plan.EndPage = start, end
	}
	return opts, nil
}

// parseFloatRange parses "5", "1-10", "5-" and "-10". Open ends come
// back as -1 (start) or unbounded (end).
func parseFloatRange(s string) (start, end float64, err error) {
	start, end = -1, -1
	lo, hi, single := splitRange(s)
	if single {
		n, err := strconv.ParseFloat(lo, 64)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}
	if lo != "" {
		if start, err = strconv.ParseFloat(lo, 64); err != nil {
			return 0, 0, err
		}
	}
	if hi != "" {
		if end, err = strconv.ParseFloat(hi, 64); err != nil {
			return 0, 0, err
		}
	}
	if start >= 0 && end >= 0 && start > end {
		return 0, 0, fmt.Errorf("start %v exceeds end %v", start, end)
	}
	if start < 0 && end < 0 {
		return 0, 0, fmt.Errorf("empty range")
	}
	if end < 0 {
		end = math.Inf(1)
	}
	return start, end, nil
}

func parseIntRange(s string) (start, end int, err error) {
	lo, hi, single := splitRange(s)
	if single {
		n, err := strconv.Atoi(lo)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}
	if lo != "" {
		if start, err = strconv.Atoi(lo); err != nil {
			return 0, 0, err
		}
	}
	if hi != "" {
		if end, err = strconv.Atoi(hi); err != nil {
			return 0, 0, err
		}
	}
	if start == 0 && end == 0 {
		return 0, 0, fmt.Errorf("empty range")
	}
	if start > 0 && end > 0 && start > end {
		return 0, 0, fmt.Errorf("start %d exceeds end %d", start, end)
	}
	return start, end, nil
}

func splitRange(s string) (lo, hi string, single bool) {
	if !strings.Contains(s, "-") {
		return s, "", true
	}
	parts := strings.SplitN(s, "-", 2)
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), false
}

func (o *runOptions) downloaderConfig() downloader.Config {
	cfg := downloader.DefaultConfig()
	cfg.Workers = o.Workers
	cfg.Strict = o.Strict
	cfg.DataSaver = o.Compress
	cfg.Replace = o.Replace
	return cfg
}
