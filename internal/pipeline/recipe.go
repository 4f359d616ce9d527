// Package pipeline turns a recipe (datasets + analyses + output settings)
// into report documents: load and reshape data, run the analyses, render the
// figures, assemble the document and write every requested format.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-viper/mapstructure/v2"

	"github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

// SupportedVersions is the recipe schema range this build understands.
const SupportedVersions = ">=1.0.0, <2.0.0"

// Recipe is a declarative report definition.
type Recipe struct {
	Version     string         `mapstructure:"version"`
	Title       string         `mapstructure:"title"`
	Subtitle    string         `mapstructure:"subtitle"`
	Authors     []string       `mapstructure:"authors"`
	Institution string         `mapstructure:"institution"`
	Date        string         `mapstructure:"date"`
	Alpha       float64        `mapstructure:"alpha"`
	Decimals    *int           `mapstructure:"decimals"`
	Datasets    []DatasetSpec  `mapstructure:"datasets"`
	Analyses    []AnalysisSpec `mapstructure:"analyses"`
	Output      OutputSpec     `mapstructure:"output"`
	Narrate     NarrateSpec    `mapstructure:"narrate"`

	// Path is the file the recipe was read from; relative dataset files
	// resolve against its directory.
	Path string `mapstructure:"-"`
}

// DatasetSpec names a table: a file, or inline header/rows or columns.
type DatasetSpec struct {
	Name       string                 `mapstructure:"name"`
	File       string                 `mapstructure:"file"`
	Sheet      string                 `mapstructure:"sheet"`
	Delimiter  string                 `mapstructure:"delimiter"`
	Decimal    string                 `mapstructure:"decimal"`
	Thousands  string                 `mapstructure:"thousands"`
	Header     []string               `mapstructure:"header"`
	Rows       [][]any                `mapstructure:"rows"`
	Columns    []dataset.InlineColumn `mapstructure:"columns"`
	Transforms []map[string]any       `mapstructure:"transforms"`
}

// Inline reports whether the data is written in the recipe itself.
func (d DatasetSpec) Inline() bool {
	return len(d.Header) > 0 || len(d.Rows) > 0 || len(d.Columns) > 0
}

// AnalysisSpec is one analysis; everything besides the common keys is kept
// in Params and decoded by the analysis itself.
type AnalysisSpec struct {
	Type    string         `mapstructure:"type"`
	Dataset string         `mapstructure:"dataset"`
	Title   string         `mapstructure:"title"`
	Params  map[string]any `mapstructure:",remain"`
}

// OutputSpec controls what is written and where.
type OutputSpec struct {
	Dir         string   `mapstructure:"dir"`
	Basename    string   `mapstructure:"basename"`
	Formats     []string `mapstructure:"formats"`
	ExportCSV   bool     `mapstructure:"export_csv"`
	ChartsHTML  bool     `mapstructure:"charts_html"`
	SaveFigures bool     `mapstructure:"save_figures"`
	PageSize    string   `mapstructure:"page_size"`
	// SampleRows is the number of rows shown per dataset in the data
	// section; nil means 10 and 0 leaves the section out.
	SampleRows *int `mapstructure:"sample_rows"`
}

// NarrateSpec asks for an AI-drafted discussion.
type NarrateSpec struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// LoadRecipe reads a YAML, TOML or JSON recipe.
func LoadRecipe(path string) (*Recipe, error) {
	format := utils.StructuredFormat(path)
	if format == "" {
		return nil, fmt.Errorf("recipe %s: use a .yaml, .toml or .json file", filepath.Base(path))
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}
	m, err := utils.DecodeStructured(b, format)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", filepath.Base(path), err)
	}
	r, err := DecodeRecipe(m)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", filepath.Base(path), err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.Path = abs
	return r, nil
}

// DecodeRecipe converts a generic document into a Recipe. Unknown top-level
// keys are errors so that typos surface early.
func DecodeRecipe(m map[string]any) (*Recipe, error) {
	var r Recipe
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return &r, nil
}

// Dir is the directory relative dataset paths resolve against.
func (r *Recipe) Dir() string {
	if r.Path == "" {
		return "."
	}
	return filepath.Dir(r.Path)
}

// ApplyDefaults fills unset recipe values from the global configuration.
func (r *Recipe) ApplyDefaults(c *config.Global) {
	if r.Version == "" {
		r.Version = "1.0.0"
	}
	if r.Alpha == 0 && c != nil {
		r.Alpha = c.Alpha
	}
	if r.Alpha == 0 {
		r.Alpha = 0.05
	}
	if r.Decimals == nil {
		d := 3
		if c != nil {
			d = c.Decimals
		}
		r.Decimals = &d
	}
	if len(r.Output.Formats) == 0 && c != nil {
		r.Output.Formats = append([]string(nil), c.DefaultFormats...)
	}
	if len(r.Output.Formats) == 0 {
		r.Output.Formats = []string{"docx", "md"}
	}
	if r.Output.PageSize == "" && c != nil {
		r.Output.PageSize = c.PageSize
	}
	if r.Output.Basename == "" {
		base := ""
		if r.Path != "" {
			base = strings.TrimSuffix(filepath.Base(r.Path), filepath.Ext(r.Path))
		}
		r.Output.Basename = utils.Slugify(r.Title, utils.Slugify(base, "report"))
	}
	if r.Narrate.Provider == "" && c != nil {
		r.Narrate.Provider = c.NarrateProvider
	}
	if r.Narrate.Model == "" && c != nil {
		r.Narrate.Model = c.NarrateModel
	}
}

// Validate checks the version gate and cross references. Errors name the
// offending dataset or analysis by position.
func (r *Recipe) Validate() error {
	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(r.Version)
	if err != nil {
		return fmt.Errorf("recipe version %q: %w", r.Version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("recipe version %s is not supported (this build reads %s)", v, SupportedVersions)
	}
	if r.Alpha <= 0 || r.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %g", r.Alpha)
	}
	if r.Decimals != nil && (*r.Decimals < 0 || *r.Decimals > 10) {
		return fmt.Errorf("decimals must be in [0,10], got %d", *r.Decimals)
	}
	names := map[string]bool{}
	for i, d := range r.Datasets {
		if d.Name == "" {
			return fmt.Errorf("dataset %d: name is required", i+1)
		}
		if names[d.Name] {
			return fmt.Errorf("dataset %d: duplicate name %q", i+1, d.Name)
		}
		names[d.Name] = true
		if d.File != "" && d.Inline() {
			return fmt.Errorf("dataset %d (%s): use either file or inline data", i+1, d.Name)
		}
		if _, err := dataset.DecodeSteps(d.Transforms); err != nil {
			return fmt.Errorf("dataset %d (%s): %w", i+1, d.Name, err)
		}
	}
	if len(r.Analyses) == 0 {
		return fmt.Errorf("recipe has no analyses")
	}
	for i, a := range r.Analyses {
		info, ok := analyses[a.Type]
		if !ok {
			return fmt.Errorf("analysis %d: unknown type %q (use %s)", i+1, a.Type, strings.Join(AnalysisTypes(), ", "))
		}
		if !info.needsData {
			continue
		}
		ds := a.Dataset
		if ds == "" && len(r.Datasets) == 1 {
			ds = r.Datasets[0].Name
		}
		if ds == "" {
			return fmt.Errorf("analysis %d (%s): dataset is required", i+1, a.Type)
		}
		if !names[ds] {
			return fmt.Errorf("analysis %d (%s): unknown dataset %q", i+1, a.Type, ds)
		}
	}
	for _, f := range r.Output.Formats {
		if !config.IsKnownFormat(f) {
			return fmt.Errorf("output: unknown format %q (use %s)", f, strings.Join(config.KnownFormats, ", "))
		}
	}
	return nil
}

// Inputs lists the files a run reads: the recipe and every dataset file.
func (r *Recipe) Inputs(resolve func(string) (string, bool)) []string {
	var out []string
	if r.Path != "" {
		out = append(out, r.Path)
	}
	for _, d := range r.Datasets {
		if p, ok := r.datasetPath(d, resolve); ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Recipe) datasetPath(d DatasetSpec, resolve func(string) (string, bool)) (string, bool) {
	switch {
	case d.File != "":
		p := d.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.Dir(), p)
		}
		return p, true
	case d.Inline():
		return "", false
	case resolve != nil:
		return resolve(d.Name)
	}
	return "", false
}
