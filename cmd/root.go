package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/logging"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
	noColor bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg *cfgpkg.Global

	stdout = termenv.NewOutput(os.Stdout)
	stderr = termenv.NewOutput(os.Stderr)
)

var rootCmd = &cobra.Command{
	Use:   "statloom",
	Short: "StatLoom CLI: turn experiment data into statistical reports",
	Long: `StatLoom runs a recipe of statistical analyses (descriptive statistics, ANOVA with
Tukey HSD, t-tests, regression, response surfaces, PCA, water quality indices,
drying kinetics, sieve analysis) over CSV/TSV/XLSX datasets and writes the
results as DOCX, PDF, Markdown or HTML reports with figures.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, stderr.String("✗ Error:").Foreground(stderr.Color("1")), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(setup)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.statloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func setup() {
	if noColor {
		stdout = termenv.NewOutput(os.Stdout, termenv.WithProfile(termenv.Ascii))
		stderr = termenv.NewOutput(os.Stderr, termenv.WithProfile(termenv.Ascii))
	}
	logging.Init(debug, noColor || stderr.Profile == termenv.Ascii)
	loadConfig()
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config report it themselves
		warnf("failed to load config: %v", err)
		cfg = nil
		return
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
}

// requireConfig returns the loaded configuration or the load error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg = c
	return cfg, nil
}

func successf(format string, a ...any) {
	fmt.Fprintln(stdout, stdout.String("✓").Foreground(stdout.Color("2")), fmt.Sprintf(format, a...))
}

func warnf(format string, a ...any) {
	fmt.Fprintln(stderr, stderr.String("⚠ Warning:").Foreground(stderr.Color("3")), fmt.Sprintf(format, a...))
}
