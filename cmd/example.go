package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/statloom-cli/internal/examples"
	"github.com/spf13/cobra"
)

var (
	exampleOut   string
	exampleForce bool
)

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "List or write the bundled example studies",
}

var exampleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bundled examples",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, e := range examples.List() {
			fmt.Printf("- %-8s %s\n", e.Name, e.Summary)
		}
		return nil
	},
}

var exampleWriteCmd = &cobra.Command{
	Use:   "write <name>",
	Short: "Write an example recipe and its data to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := exampleOut
		if dir == "" {
			dir = args[0]
		}
		written, err := examples.Write(args[0], dir, exampleForce)
		if err != nil {
			return err
		}
		for _, p := range written {
			successf("Wrote %s", p)
		}
		fmt.Printf("Run it with: statloom report %s\n", filepath.Join(dir, examples.RecipeFile))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exampleCmd)
	exampleCmd.AddCommand(exampleListCmd)
	exampleCmd.AddCommand(exampleWriteCmd)
	exampleWriteCmd.Flags().StringVarP(&exampleOut, "out", "o", "", "target directory (default: ./<name>)")
	exampleWriteCmd.Flags().BoolVar(&exampleForce, "force", false, "overwrite existing files")
}
