package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/project"
	"github.com/spf13/cobra"
)

var (
	pmProject string
	pmClear   bool
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage per-study settings",
}

var projectSetRecipeCmd = &cobra.Command{
	Use:   "set-recipe <file>",
	Short: "Point a study at a recipe file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStudy(func(p *project.Project) (string, error) {
			if err := p.SetRecipe(args[0]); err != nil {
				return "", err
			}
			return fmt.Sprintf("Set recipe for %s: %s", p.Name, p.Recipe), nil
		})
	},
}

var projectSetFormatsCmd = &cobra.Command{
	Use:   "set-formats <format>...",
	Short: "Set or clear a study's output formats (docx, pdf, md, html)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStudy(func(p *project.Project) (string, error) {
			if pmClear {
				args = nil
			} else if len(args) == 0 {
				return "", fmt.Errorf("at least one format is required unless --clear is set")
			}
			var formats []string
			for _, a := range args {
				formats = append(formats, strings.Split(a, ",")...)
			}
			if err := p.SetFormats(formats); err != nil {
				return "", err
			}
			if pmClear {
				return fmt.Sprintf("Cleared study formats for %s", p.Name), nil
			}
			return fmt.Sprintf("Set study formats for %s: %s", p.Name, strings.Join(p.Config.Formats, ", ")), nil
		})
	},
}

var projectSetAlphaCmd = &cobra.Command{
	Use:   "set-alpha <alpha>",
	Short: "Set or clear a study's significance level",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStudy(func(p *project.Project) (string, error) {
			if p.Config == nil {
				p.Config = &project.ProjectConfig{}
			}
			if pmClear {
				p.Config.Alpha = 0
				return fmt.Sprintf("Cleared study alpha for %s", p.Name), nil
			}
			if len(args) == 0 {
				return "", fmt.Errorf("alpha is required unless --clear is set")
			}
			a, err := strconv.ParseFloat(args[0], 64)
			if err != nil || a <= 0 || a >= 1 {
				return "", fmt.Errorf("invalid alpha %q: must be in (0,1)", args[0])
			}
			p.Config.Alpha = a
			return fmt.Sprintf("Set study alpha for %s: %g", p.Name, a), nil
		})
	},
}

var projectSetModelCmd = &cobra.Command{
	Use:   "set-model <model>",
	Short: "Set or clear a study's narrate model",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStudy(func(p *project.Project) (string, error) {
			if p.Config == nil {
				p.Config = &project.ProjectConfig{}
			}
			if pmClear {
				p.Config.NarrateModel = ""
				return fmt.Sprintf("Cleared study model for %s", p.Name), nil
			}
			if len(args) == 0 || args[0] == "" {
				return "", fmt.Errorf("model is required unless --clear is set")
			}
			p.Config.NarrateModel = args[0]
			return fmt.Sprintf("Set study model for %s: %s", p.Name, args[0]), nil
		})
	},
}

var projectRemoveCmd = &cobra.Command{
	Use:   "remove-dataset <name-or-id>",
	Short: "Unregister a dataset from a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateStudy(func(p *project.Project) (string, error) {
			if !p.RemoveDataset(args[0]) {
				return "", fmt.Errorf("no dataset %q in study %s", args[0], p.Name)
			}
			return fmt.Sprintf("Removed dataset %s from %s", args[0], p.Name), nil
		})
	},
}

func updateStudy(change func(*project.Project) (string, error)) error {
	if pmProject == "" {
		return fmt.Errorf("--project is required")
	}
	p, err := loadStudy(pmProject)
	if err != nil {
		return err
	}
	msg, err := change(p)
	if err != nil {
		return err
	}
	if err := p.Save(); err != nil {
		return err
	}
	successf("%s", msg)
	return nil
}

func init() {
	rootCmd.AddCommand(projectCmd)
	for _, c := range []*cobra.Command{projectSetRecipeCmd, projectSetFormatsCmd, projectSetAlphaCmd, projectSetModelCmd, projectRemoveCmd} {
		projectCmd.AddCommand(c)
		c.Flags().StringVarP(&pmProject, "project", "p", "", "study name")
	}
	for _, c := range []*cobra.Command{projectSetFormatsCmd, projectSetAlphaCmd, projectSetModelCmd} {
		c.Flags().BoolVar(&pmClear, "clear", false, "clear the study override")
	}
}
