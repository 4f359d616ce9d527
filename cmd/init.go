package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	cfgpkg "github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/examples"
	"github.com/KaramelBytes/statloom-cli/internal/project"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
)

var (
	initDescription string
	initExample     string
)

var initCmd = &cobra.Command{
	Use:   "init <study-name>",
	Short: "Initialize a new study workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		root, err := defaultProjectsDir()
		if err != nil {
			return err
		}
		projDir := filepath.Join(root, name)
		// Refuse to overwrite an existing study.
		if info, err := os.Stat(projDir); err == nil && info.IsDir() {
			if _, err := os.Stat(filepath.Join(projDir, "project.json")); err == nil {
				return fmt.Errorf("study already exists at %s", projDir)
			}
			entries, err := os.ReadDir(projDir)
			if err != nil {
				return fmt.Errorf("inspect study directory: %w", err)
			}
			if len(entries) > 0 {
				return fmt.Errorf("directory %s already exists and is not empty; refusing to initialize study", projDir)
			}
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat study directory: %w", err)
		}
		if err := utils.EnsureDir(projDir); err != nil {
			return err
		}
		p := project.NewProject(name, initDescription, projDir)
		if initExample != "" {
			written, err := examples.Write(initExample, projDir, false)
			if err != nil {
				return err
			}
			if err := p.SetRecipe(filepath.Join(projDir, examples.RecipeFile)); err != nil {
				return err
			}
			for _, f := range written[1:] {
				d, err := p.AddDataset(f, "", "from example "+initExample, "")
				if err != nil {
					return err
				}
				successf("Dataset added: %s (%d rows)", d.Name, d.Rows)
			}
		}
		if err := p.Save(); err != nil {
			return err
		}
		successf("Study initialized: %s", projDir)
		return nil
	},
}

func defaultProjectsDir() (string, error) {
	dir := ""
	if cfg != nil {
		dir = cfg.ProjectsDir
	}
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "projects")
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand projects dir: %w", err)
	}
	dir = filepath.Clean(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func resolveProjectDirByName(name string) (string, error) {
	if name == "" {
		return "", errors.New("study name is required")
	}
	root, err := defaultProjectsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, name), nil
}

func loadStudy(name string) (*project.Project, error) {
	dir, err := resolveProjectDirByName(name)
	if err != nil {
		return nil, err
	}
	return project.LoadProject(dir)
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initDescription, "desc", "d", "", "study description")
	initCmd.Flags().StringVar(&initExample, "example", "", "seed the study with a bundled example (see 'statloom example list')")
}
