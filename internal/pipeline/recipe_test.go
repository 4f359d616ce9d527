package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

const kilnRecipe = `version: 1.2.0
title: Kiln Trials 2024
authors: [A. Author, B. Author]
alpha: 0.05
decimals: 2
datasets:
  - name: kiln
    header: [Kiln, Loss]
    rows:
      - [A, 1]
      - [A, 2]
      - [A, 3]
      - [B, 4]
      - [B, 5]
      - [B, 6]
      - [C, 7]
      - [C, 8]
      - [C, 9]
analyses:
  - type: anova
    factor: Kiln
    response: Loss
    tukey: true
  - type: text
    title: Notes
    text: Trials ran in March.
output:
  formats: [md]
`

func decodeYAML(t *testing.T, doc string) *Recipe {
	t.Helper()
	m, err := utils.DecodeStructured([]byte(doc), "yaml")
	require.NoError(t, err)
	r, err := DecodeRecipe(m)
	require.NoError(t, err)
	return r
}

func TestDecodeRecipeKeepsAnalysisParams(t *testing.T) {
	r := decodeYAML(t, kilnRecipe)
	assert.Equal(t, "Kiln Trials 2024", r.Title)
	assert.Equal(t, []string{"A. Author", "B. Author"}, r.Authors)
	require.NotNil(t, r.Decimals)
	assert.Equal(t, 2, *r.Decimals)
	require.Len(t, r.Datasets, 1)
	assert.True(t, r.Datasets[0].Inline())
	require.Len(t, r.Analyses, 2)
	a := r.Analyses[0]
	assert.Equal(t, "anova", a.Type)
	assert.Equal(t, "Kiln", a.Params["factor"])
	assert.Equal(t, true, a.Params["tukey"])
	assert.NotContains(t, a.Params, "type")
	assert.Equal(t, "Notes", r.Analyses[1].Title)
}

func TestDecodeRecipeRejectsUnknownKeys(t *testing.T) {
	m, err := utils.DecodeStructured([]byte("title: x\ntitel: y\n"), "yaml")
	require.NoError(t, err)
	_, err = DecodeRecipe(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "titel")
}

func TestLoadRecipeFormats(t *testing.T) {
	dir := t.TempDir()
	toml := `version = "1.0.0"
title = "Toml report"

[[analyses]]
type = "text"
text = "hello"
`
	p := filepath.Join(dir, "study.toml")
	require.NoError(t, os.WriteFile(p, []byte(toml), 0o644))
	r, err := LoadRecipe(p)
	require.NoError(t, err)
	assert.Equal(t, "Toml report", r.Title)
	assert.Equal(t, dir, r.Dir())

	js := filepath.Join(dir, "study.json")
	require.NoError(t, os.WriteFile(js, []byte(`{"title":"Json","analyses":[{"type":"text","text":"x"}]}`), 0o644))
	r, err = LoadRecipe(js)
	require.NoError(t, err)
	assert.Equal(t, "Json", r.Title)

	_, err = LoadRecipe(filepath.Join(dir, "study.txt"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	r := &Recipe{Title: "Solar Dryer: Run 2", Path: "/tmp/x/dryer.yaml"}
	cfg := &config.Global{Alpha: 0.01, Decimals: 4, DefaultFormats: []string{"pdf"}, PageSize: "Letter", NarrateProvider: "ollama", NarrateModel: "llama3"}
	r.ApplyDefaults(cfg)
	assert.Equal(t, "1.0.0", r.Version)
	assert.Equal(t, 0.01, r.Alpha)
	assert.Equal(t, 4, *r.Decimals)
	assert.Equal(t, []string{"pdf"}, r.Output.Formats)
	assert.Equal(t, "Letter", r.Output.PageSize)
	assert.Equal(t, "solar-dryer-run-2", r.Output.Basename)
	assert.Equal(t, "ollama", r.Narrate.Provider)

	untitled := &Recipe{Path: "/tmp/x/dryer.yaml"}
	untitled.ApplyDefaults(nil)
	assert.Equal(t, "dryer", untitled.Output.Basename)
	assert.Equal(t, 0.05, untitled.Alpha)
	assert.Equal(t, []string{"docx", "md"}, untitled.Output.Formats)
}

func TestValidate(t *testing.T) {
	valid := func() *Recipe {
		r := decodeYAML(t, kilnRecipe)
		r.ApplyDefaults(nil)
		return r
	}
	require.NoError(t, valid().Validate())

	cases := map[string]struct {
		mutate func(r *Recipe)
		want   string
	}{
		"major version": {func(r *Recipe) { r.Version = "2.0.0" }, "not supported"},
		"bad version":   {func(r *Recipe) { r.Version = "one" }, "recipe version"},
		"alpha":         {func(r *Recipe) { r.Alpha = 1.5 }, "alpha"},
		"unknown type":  {func(r *Recipe) { r.Analyses[0].Type = "anovva" }, `unknown type "anovva"`},
		"dup dataset": {func(r *Recipe) {
			r.Datasets = append(r.Datasets, r.Datasets[0])
		}, "duplicate name"},
		"missing dataset ref": {func(r *Recipe) {
			r.Datasets = append(r.Datasets, DatasetSpec{Name: "other", File: "o.csv"})
		}, "dataset is required"},
		"unknown dataset": {func(r *Recipe) { r.Analyses[0].Dataset = "nope" }, `unknown dataset "nope"`},
		"file and inline": {func(r *Recipe) { r.Datasets[0].File = "k.csv" }, "either file or inline"},
		"bad transform": {func(r *Recipe) {
			r.Datasets[0].Transforms = []map[string]any{{"op": "scale", "factr": 2}}
		}, "transform 1"},
		"no analyses": {func(r *Recipe) { r.Analyses = nil }, "no analyses"},
		"format":      {func(r *Recipe) { r.Output.Formats = []string{"odt"} }, `unknown format "odt"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := valid()
			tc.mutate(r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestInputs(t *testing.T) {
	r := &Recipe{Path: "/data/study/recipe.yaml", Datasets: []DatasetSpec{
		{Name: "a", File: "a.csv"},
		{Name: "b", File: "/abs/b.xlsx"},
		{Name: "c", Header: []string{"x"}},
		{Name: "d"},
	}}
	resolve := func(name string) (string, bool) {
		if name == "d" {
			return "/store/d.csv", true
		}
		return "", false
	}
	assert.Equal(t, []string{"/data/study/recipe.yaml", "/data/study/a.csv", "/abs/b.xlsx", "/store/d.csv"}, r.Inputs(resolve))
	assert.Equal(t, []string{"/data/study/recipe.yaml", "/data/study/a.csv", "/abs/b.xlsx"}, r.Inputs(nil))
}
