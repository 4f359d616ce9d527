// Package examples bundles small studies that exercise every analysis type:
// a recipe plus its data files per example.
package examples

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

//go:embed data
var files embed.FS

// RecipeFile is the recipe name inside every example.
const RecipeFile = "recipe.yaml"

// ErrExists is returned when Write would overwrite a file.
var ErrExists = errors.New("file already exists")

// Example describes one bundled study.
type Example struct {
	Name    string
	Summary string
}

var catalog = map[string]string{
	"kiln":    "smoking-kiln trial: moisture loss, ANOVA with Tukey HSD, Welch t-test",
	"water":   "water quality of four sites: screening, correlation, PCA, WQI",
	"rsm":     "Jatropha oil extraction: 30-run central composite design, RSM optimum",
	"sieve":   "garri and millet sieve analysis: percent of charge per size class",
	"dryer":   "solar drying of crayfish: drying rates, thin-layer models, Deff",
	"tillage": "fuel consumption against tillage depth: simple linear regression",
}

// List returns the bundled examples sorted by name.
func List() []Example {
	out := make([]Example, 0, len(catalog))
	for name, s := range catalog {
		out = append(out, Example{Name: name, Summary: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Files returns the file names of an example, recipe first.
func Files(name string) ([]string, error) {
	if _, ok := catalog[name]; !ok {
		return nil, fmt.Errorf("unknown example %q", name)
	}
	entries, err := fs.ReadDir(files, path.Join("data", name))
	if err != nil {
		return nil, fmt.Errorf("read example %s: %w", name, err)
	}
	out := []string{RecipeFile}
	for _, e := range entries {
		if !e.IsDir() && e.Name() != RecipeFile {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ReadFile returns one file of an example.
func ReadFile(name, file string) ([]byte, error) {
	if _, ok := catalog[name]; !ok {
		return nil, fmt.Errorf("unknown example %q", name)
	}
	return files.ReadFile(path.Join("data", name, file))
}

// Write copies an example into dir and returns the written paths. Existing
// files are kept unless force is set.
func Write(name, dir string, force bool) ([]string, error) {
	names, err := Files(name)
	if err != nil {
		return nil, err
	}
	if !force {
		for _, n := range names {
			p := filepath.Join(dir, n)
			if _, err := os.Stat(p); err == nil {
				return nil, fmt.Errorf("%w: %s (use --force to overwrite)", ErrExists, p)
			}
		}
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		b, err := ReadFile(name, n)
		if err != nil {
			return nil, err
		}
		p := filepath.Join(dir, n)
		if err := utils.SafeWriteFile(p, b); err != nil {
			return nil, fmt.Errorf("write %s: %w", p, err)
		}
		out = append(out, p)
	}
	return out, nil
}
