package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	addProjectName string
	addName        string
	addDesc        string
	addSheet       string
)

var addCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Register a dataset file with a study",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if addProjectName == "" {
			return fmt.Errorf("--project is required")
		}
		p, err := loadStudy(addProjectName)
		if err != nil {
			return err
		}
		d, err := p.AddDataset(args[0], addName, addDesc, addSheet)
		if err != nil {
			return err
		}
		if err := p.Save(); err != nil {
			return err
		}
		successf("Dataset added: %s (%d rows, %d columns)", d.Name, d.Rows, d.Columns)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addProjectName, "project", "p", "", "study name")
	addCmd.Flags().StringVar(&addName, "name", "", "dataset name used by recipes (default: file name without extension)")
	addCmd.Flags().StringVar(&addDesc, "desc", "", "dataset description")
	addCmd.Flags().StringVar(&addSheet, "sheet", "", "XLSX: sheet name")
}
