package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/KaramelBytes/statloom-cli/internal/pipeline"
	"github.com/KaramelBytes/statloom-cli/internal/project"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	reportProject    string
	reportFormats    []string
	reportOut        string
	reportNarrate    bool
	reportWatch      bool
	reportDebounce   time.Duration
	reportChartsHTML bool
	reportExportCSV  bool
)

var reportCmd = &cobra.Command{
	Use:   "report [recipe]",
	Short: "Run a recipe and write the report",
	Long: `Run every analysis of a recipe (YAML, TOML or JSON) and write the report in the
requested formats. With --project, or for a recipe inside a study directory, the
study's registered datasets and settings are used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		opt := pipeline.Options{
			Formats:    reportFormats,
			OutDir:     reportOut,
			Narrate:    reportNarrate,
			ChartsHTML: reportChartsHTML,
			ExportCSV:  reportExportCSV,
		}
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		p, err := studyFor(path)
		if err != nil {
			return err
		}
		if p != nil {
			if path == "" {
				path = p.RecipePath()
			}
			opt.Resolve = p.Resolve
			c = p.Apply(c)
			c.OutputDir = filepath.Join(p.RootDir(), "reports")
		}
		if path == "" {
			return fmt.Errorf("a recipe file or --project is required")
		}
		opt.Config = c

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if reportWatch {
			fmt.Printf("Watching %s and its datasets (Ctrl-C to stop)\n", path)
			return pipeline.Watch(ctx, path, opt, reportDebounce, func(res *pipeline.Result, err error) {
				if err != nil {
					fmt.Fprintln(os.Stderr, stderr.String("✗ Error:").Foreground(stderr.Color("1")), err)
					return
				}
				printResult(res)
			})
		}
		r, err := pipeline.LoadRecipe(path)
		if err != nil {
			return err
		}
		res, err := pipeline.Run(ctx, r, opt)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

// studyFor returns the study named by --project or, failing that, the study
// whose directory contains the recipe (or the working directory).
func studyFor(path string) (*project.Project, error) {
	if reportProject != "" {
		return loadStudy(reportProject)
	}
	root, err := utils.FindProjectRoot(path)
	if err != nil {
		return nil, nil
	}
	return project.LoadProject(root)
}

func printResult(res *pipeline.Result) {
	for _, w := range res.Warnings {
		warnf("%s", w)
	}
	for _, f := range res.Files {
		successf("Wrote %s", f)
	}
	fmt.Printf("%d findings, %d figures (%s)\n", len(res.Findings), res.Figures, time.Now().Format(time.Kitchen))
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportProject, "project", "p", "", "study name (uses its recipe and datasets)")
	reportCmd.Flags().StringSliceVarP(&reportFormats, "format", "f", nil, "output formats: docx, pdf, md, html (overrides recipe)")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output directory (overrides recipe and config)")
	reportCmd.Flags().BoolVar(&reportNarrate, "narrate", false, "draft a discussion section with the configured model")
	reportCmd.Flags().BoolVarP(&reportWatch, "watch", "w", false, "re-run when the recipe or a dataset changes")
	reportCmd.Flags().DurationVar(&reportDebounce, "debounce", pipeline.DefaultDebounce, "watch: wait this long after the last change")
	reportCmd.Flags().BoolVar(&reportChartsHTML, "charts-html", false, "also write an interactive HTML chart dashboard")
	reportCmd.Flags().BoolVar(&reportExportCSV, "export-csv", false, "also export the processed datasets as CSV")
}
