package cmd

import (
	"fmt"

	"github.com/KaramelBytes/statloom-cli/internal/pipeline"
	"github.com/KaramelBytes/statloom-cli/internal/report"
	"github.com/spf13/cobra"
)

var (
	stTable       tableFlags
	stAlpha       float64
	stDecimals    int
	stColumns     []string
	stBy          string
	stFactor      string
	stResponse    string
	stResponses   []string
	stGroups      []string
	stTukey       bool
	stKind        string
	stColumn      string
	stMu          float64
	stX           string
	stY           string
	stAlternative string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Run one analysis on a data file and print it as Markdown",
}

var statsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the analysis types a recipe can use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range pipeline.AnalysisTypes() {
			fmt.Printf("- %-12s %s\n", k, pipeline.Describe(k))
		}
		return nil
	},
}

var statsDescribeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Descriptive statistics, optionally by group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"charts": []string{}}
		setIf(params, "columns", stColumns)
		setIf(params, "by", stBy)
		return runStats("describe", args[0], params)
	},
}

var statsANOVACmd = &cobra.Command{
	Use:   "anova <file>",
	Short: "One-way ANOVA of one or more responses across the levels of a factor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"factor": stFactor, "chart": "none", "tukey": stTukey}
		setIf(params, "response", stResponse)
		setIf(params, "responses", stResponses)
		setIf(params, "groups", stGroups)
		return runStats("anova", args[0], params)
	},
}

var statsTukeyCmd = &cobra.Command{
	Use:   "tukey <file>",
	Short: "Tukey HSD pairwise comparisons",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{"factor": stFactor}
		setIf(params, "response", stResponse)
		setIf(params, "responses", stResponses)
		setIf(params, "groups", stGroups)
		return runStats("tukey", args[0], params)
	},
}

var statsTTestCmd = &cobra.Command{
	Use:   "ttest <file>",
	Short: "One-sample, Student, Welch or paired t-test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]any{}
		setIf(params, "kind", stKind)
		setIf(params, "column", stColumn)
		if cmd.Flags().Changed("mu") {
			params["mu"] = stMu
		}
		setIf(params, "factor", stFactor)
		setIf(params, "response", stResponse)
		setIf(params, "groups", stGroups)
		setIf(params, "x", stX)
		setIf(params, "y", stY)
		setIf(params, "alternative", stAlternative)
		return runStats("ttest", args[0], params)
	},
}

var statsRegressCmd = &cobra.Command{
	Use:   "regress <file>",
	Short: "Simple linear regression of y on x",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats("regression", args[0], map[string]any{"x": stX, "y": stY})
	},
}

func setIf[T string | []string](params map[string]any, key string, v T) {
	if len(v) > 0 {
		params[key] = v
	}
}

func runStats(kind, path string, params map[string]any) error {
	t, err := stTable.load(path)
	if err != nil {
		return err
	}
	env := &pipeline.Env{Table: t, Alpha: stAlpha, Decimals: stDecimals}
	if cfg != nil {
		if env.Alpha == 0 {
			env.Alpha = cfg.Alpha
		}
		if env.Decimals < 0 {
			env.Decimals = cfg.Decimals
		}
	}
	if env.Decimals < 0 {
		env.Decimals = 3
	}
	sec, err := pipeline.RunAnalysis(kind, env, "", params)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	doc := &report.Document{Title: sec.Title}
	for _, b := range sec.Blocks {
		// Figures are only drawn by the report command.
		if _, ok := b.(report.Figure); !ok {
			doc.Add(b)
		}
	}
	if len(sec.Findings) > 0 {
		doc.Add(report.Heading{Level: 1, Text: "Findings"}, report.Bullets{Items: sec.Findings})
	}
	fmt.Print(report.Markdown(doc, false))
	return nil
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsTypesCmd)
	for _, c := range []*cobra.Command{statsDescribeCmd, statsANOVACmd, statsTukeyCmd, statsTTestCmd, statsRegressCmd} {
		statsCmd.AddCommand(c)
		stTable.register(c)
		c.Flags().Float64Var(&stAlpha, "alpha", 0, "significance level (default from config)")
		c.Flags().IntVar(&stDecimals, "decimals", -1, "decimals in tables (default from config)")
	}
	statsDescribeCmd.Flags().StringSliceVar(&stColumns, "columns", nil, "numeric columns to describe (default: all)")
	statsDescribeCmd.Flags().StringVar(&stBy, "by", "", "grouping column")
	for _, c := range []*cobra.Command{statsANOVACmd, statsTukeyCmd, statsTTestCmd} {
		c.Flags().StringVar(&stFactor, "factor", "", "grouping column")
		c.Flags().StringVar(&stResponse, "response", "", "response column")
		c.Flags().StringSliceVar(&stGroups, "groups", nil, "factor levels to keep")
	}
	for _, c := range []*cobra.Command{statsANOVACmd, statsTukeyCmd} {
		c.Flags().StringSliceVar(&stResponses, "responses", nil, "several response columns, one ANOVA each (default: all numeric)")
	}
	statsANOVACmd.Flags().BoolVar(&stTukey, "tukey", false, "follow up with Tukey HSD")
	statsTTestCmd.Flags().StringVar(&stKind, "kind", "", "one-sample, student, welch or paired")
	statsTTestCmd.Flags().StringVar(&stColumn, "column", "", "one-sample: column to test")
	statsTTestCmd.Flags().Float64Var(&stMu, "mu", 0, "one-sample: hypothesised mean")
	statsTTestCmd.Flags().StringVar(&stAlternative, "alternative", "", "two-sided, less or greater")
	for _, c := range []*cobra.Command{statsTTestCmd, statsRegressCmd} {
		c.Flags().StringVar(&stX, "x", "", "first column (regress: predictor)")
		c.Flags().StringVar(&stY, "y", "", "second column (regress: response)")
	}
}
