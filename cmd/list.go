package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	listStudies  bool
	listDatasets bool
	listProjName string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies or their datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listStudies == listDatasets { // either both true or both false
			return fmt.Errorf("specify exactly one of --studies or --datasets")
		}
		if listStudies {
			return listAllStudies()
		}
		if listProjName == "" {
			return fmt.Errorf("--project is required when using --datasets")
		}
		p, err := loadStudy(listProjName)
		if err != nil {
			return err
		}
		if len(p.Datasets) == 0 {
			fmt.Println("(no datasets)")
			return nil
		}
		for _, d := range p.SortedDatasets() {
			fmt.Printf("- %s: %s [%d×%d] %s\n", d.Name, filepath.Base(d.Path), d.Rows, d.Columns, d.Description)
		}
		return nil
	},
}

func listAllStudies() error {
	root, err := defaultProjectsDir()
	if err != nil {
		return err
	}
	dirs, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	found := false
	for _, e := range dirs {
		if !e.IsDir() {
			continue
		}
		pj := filepath.Join(root, e.Name(), "project.json")
		if _, err := os.Stat(pj); err == nil {
			fmt.Printf("- %s\n", e.Name())
			found = true
		}
	}
	if !found {
		fmt.Println("(no studies)")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listStudies, "studies", false, "list studies")
	listCmd.Flags().BoolVar(&listDatasets, "datasets", false, "list datasets in a study")
	listCmd.Flags().StringVarP(&listProjName, "project", "p", "", "study name for --datasets")
}
