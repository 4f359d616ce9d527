package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/statloom-cli/internal/profile"
	"github.com/KaramelBytes/statloom-cli/internal/project"
	"github.com/spf13/cobra"
)

var (
	pbProject           string
	pbDescription       string
	pbSampleRowsProject int
	pbQuiet             bool
	pbTable             tableFlags
	pbOpts              profileFlags
)

var profileBatchCmd = &cobra.Command{
	Use:   "profile-batch <files...>",
	Short: "Profile multiple CSV/TSV/XLSX files with progress and optional study attachment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		opt := pbOpts.options(pbTable.maxRows)

		var p *project.Project
		if pbProject != "" {
			if p, err = loadStudy(pbProject); err != nil {
				return err
			}
			if pbSampleRowsProject >= 0 {
				opt.SampleRows = pbSampleRowsProject
				if opt.SampleRows == 0 {
					opt.SampleRows = -1
				}
			}
		}

		total := len(files)
		for i, path := range files {
			if !pbQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			t, err := pbTable.load(path)
			if err != nil {
				return err
			}
			rep, err := profile.Build(t, opt)
			if err != nil {
				return err
			}
			md := rep.Markdown()
			if p == nil {
				if !pbQuiet {
					fmt.Println(md)
				}
				continue
			}
			out, err := attachProfile(p, path, pbTable.sheet, pbDescription, md)
			if err != nil {
				return err
			}
			if !pbQuiet {
				successf("Added %s to study '%s' (profile: %s)", filepath.Base(path), p.Name, filepath.Base(out))
			}
		}
		return nil
	},
}

// expandInputs resolves globs, keeps literal paths that exist and drops
// duplicates. The result is sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(profileBatchCmd)
	profileBatchCmd.Flags().StringVarP(&pbProject, "project", "p", "", "study name to attach profiles")
	profileBatchCmd.Flags().StringVar(&pbDescription, "desc", "", "dataset description when attaching to a study")
	profileBatchCmd.Flags().IntVar(&pbSampleRowsProject, "sample-rows-project", -1, "when attaching (-p), override sample rows for stored profiles (0 disables samples)")
	profileBatchCmd.Flags().BoolVar(&pbQuiet, "quiet", false, "suppress progress and non-essential output")
	pbTable.register(profileBatchCmd)
	pbOpts.register(profileBatchCmd)
}
