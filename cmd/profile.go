package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/pipeline"
	"github.com/KaramelBytes/statloom-cli/internal/profile"
	"github.com/KaramelBytes/statloom-cli/internal/project"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
	"github.com/spf13/cobra"
)

// tableFlags are the loader flags shared by commands that read a data file.
type tableFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	sheet      string
	sheetIndex int
	maxRows    int
}

func (f *tableFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	cmd.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	cmd.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	cmd.Flags().StringVar(&f.sheet, "sheet-name", "", "XLSX: sheet name to read")
	cmd.Flags().IntVar(&f.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	cmd.Flags().IntVar(&f.maxRows, "max-rows", 100000, "maximum rows to process (0 = unlimited)")
}

func (f *tableFlags) options() (dataset.Options, error) {
	delim, err := pipeline.ParseDelimiter(f.delimiter)
	if err != nil {
		return dataset.Options{}, fmt.Errorf("unsupported --delimiter: %w", err)
	}
	loc, ok := dataset.ParseLocale(f.decimal, f.thousands)
	if !ok {
		return dataset.Options{}, fmt.Errorf("unsupported --decimal %q or --thousands %q", f.decimal, f.thousands)
	}
	return dataset.Options{Delimiter: delim, Locale: loc, Sheet: f.sheet, SheetIndex: f.sheetIndex, MaxRows: f.maxRows}, nil
}

func (f *tableFlags) load(path string) (*dataset.Table, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	return dataset.Load(path, opt)
}

// profileFlags are the screening flags shared by profile and profile-batch.
type profileFlags struct {
	sampleRows  int
	groupBy     []string
	corr        bool
	corrGroups  bool
	outliers    bool
	outlierThr  float64
	noNormalize bool
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.sampleRows, "sample-rows", 5, "number of sample rows to include (-1 disables)")
	cmd.Flags().StringSliceVar(&f.groupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	cmd.Flags().BoolVar(&f.corr, "correlations", false, "compute Pearson correlations among numeric columns")
	cmd.Flags().BoolVar(&f.corrGroups, "corr-per-group", false, "compute correlation pairs within each group (may be slower)")
	cmd.Flags().BoolVar(&f.outliers, "outliers", true, "compute robust outlier counts (MAD)")
	cmd.Flags().Float64Var(&f.outlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	cmd.Flags().BoolVar(&f.noNormalize, "no-unit-normalize", false, "keep values in their original units")
}

func (f *profileFlags) options(maxRows int) profile.Options {
	opt := profile.DefaultOptions()
	opt.MaxRows = maxRows
	opt.SampleRows = f.sampleRows
	opt.GroupBy = f.groupBy
	opt.Correlations = f.corr
	opt.CorrPerGroup = f.corrGroups
	opt.Outliers = f.outliers
	if f.outlierThr > 0 {
		opt.OutlierThreshold = f.outlierThr
	}
	opt.UnitNormalize = !f.noNormalize
	return opt
}

var (
	profProject     string
	profOutputPath  string
	profDescription string
	profTable       tableFlags
	profOpts        profileFlags
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Screen a CSV/TSV/XLSX dataset and print a concise summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		t, err := profTable.load(path)
		if err != nil {
			return err
		}
		rep, err := profile.Build(t, profOpts.options(profTable.maxRows))
		if err != nil {
			return err
		}
		md := rep.Markdown()

		// Decide where to write: --output path, or attach to study, or stdout
		written := false
		if profOutputPath != "" {
			if err := utils.SafeWriteFile(profOutputPath, []byte(md)); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			successf("Wrote profile to %s", profOutputPath)
			written = true
		}
		if profProject != "" {
			p, err := loadStudy(profProject)
			if err != nil {
				return err
			}
			out, err := attachProfile(p, path, profTable.sheet, profDescription, md)
			if err != nil {
				return err
			}
			successf("Added %s to study '%s' (profile: %s)", filepath.Base(path), p.Name, filepath.Base(out))
			written = true
		}
		if !written {
			fmt.Println(md)
		}
		return nil
	},
}

// attachProfile registers the data file with the study, unless a dataset of
// the same name exists, and stores the profile under profiles/ without
// overwriting earlier ones.
func attachProfile(p *project.Project, path, sheet, desc, md string) (string, error) {
	if desc == "" {
		desc = "Profiled dataset"
	}
	if _, err := p.AddDataset(path, "", desc, sheet); err != nil && !errors.Is(err, project.ErrDuplicateDataset) {
		return "", err
	}
	dir := filepath.Join(p.RootDir(), "profiles")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := utils.Slugify(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), "dataset")
	if sheet != "" {
		base += "__sheet-" + utils.Slugify(sheet, "sheet")
	}
	out := utils.UniquePath(dir, base, ".summary.md")
	if err := utils.SafeWriteFile(out, []byte(md)); err != nil {
		return "", fmt.Errorf("write study profile: %w", err)
	}
	if err := p.Save(); err != nil {
		return "", err
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().StringVarP(&profProject, "project", "p", "", "study name to register the dataset with")
	profileCmd.Flags().StringVarP(&profOutputPath, "output", "o", "", "optional path to write the profile (Markdown)")
	profileCmd.Flags().StringVar(&profDescription, "desc", "", "dataset description when attaching to a study")
	profTable.register(profileCmd)
	profOpts.register(profileCmd)
}
