package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/statloom-cli/internal/narrate"
	"github.com/KaramelBytes/statloom-cli/internal/report"
)

const kilnCSV = "Kiln,Loss (%)\nA,1\nA,2\nA,3\nB,4\nB,5\nB,6\nC,7\nC,8\nC,9\n"

const fileRecipe = `title: Kiln Trials
date: 1 March 2024
datasets:
  - name: kiln
    file: kiln.csv
analyses:
  - type: describe
  - type: anova
    factor: Kiln
    response: Loss
output:
  formats: [md, html, docx, pdf]
  export_csv: true
  charts_html: true
  save_figures: true
`

func writeStudy(t *testing.T, recipe string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.csv"), []byte(kilnCSV), 0o644))
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(recipe), 0o644))
	return path
}

type fakeRuntime struct {
	reply string
	err   error
	calls int
}

func (f *fakeRuntime) Generate(_ context.Context, req narrate.Request) (*narrate.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &narrate.Response{Choices: []narrate.Choice{{Message: narrate.Message{Role: "assistant", Content: f.reply}}}}, nil
}

func TestRunWritesEveryOutput(t *testing.T) {
	path := writeStudy(t, fileRecipe)
	r, err := LoadRecipe(path)
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "out")

	res, err := Run(context.Background(), r, Options{OutDir: out})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Figures)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Findings, 1)

	want := []string{
		"kiln-trials.md", "kiln-trials.html", "kiln-trials.docx", "kiln-trials.pdf",
		"kiln-trials-kiln.csv", "kiln-trials-charts.html",
		filepath.Join("kiln-trials-figures", "s01-box.png"),
		filepath.Join("kiln-trials-figures", "s02-anova-loss.png"),
	}
	for _, w := range want {
		p := filepath.Join(out, w)
		assert.Contains(t, res.Files, p)
		info, err := os.Stat(p)
		require.NoError(t, err, w)
		assert.Positive(t, info.Size(), w)
	}

	md, err := os.ReadFile(filepath.Join(out, "kiln-trials.md"))
	require.NoError(t, err)
	text := string(md)
	assert.True(t, strings.HasPrefix(text, "# Kiln Trials\n"))
	assert.Contains(t, text, "1 March 2024")
	assert.Contains(t, text, "## Data")
	assert.Contains(t, text, "## Analysis of variance")
	assert.Contains(t, text, "## Conclusions")
	assert.Contains(t, text, "- Loss (%) differed significantly across Kiln")
	assert.NotContains(t, text, "## Discussion")

	pdf, err := os.ReadFile(filepath.Join(out, "kiln-trials.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))
	docx, err := os.ReadFile(filepath.Join(out, "kiln-trials.docx"))
	require.NoError(t, err)
	assert.Equal(t, "PK", string(docx[:2]))

	exported, err := os.ReadFile(filepath.Join(out, "kiln-trials-kiln.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(exported), "Kiln,Loss (%)\n"))
}

func TestRunFormatOverrideAndSampleRows(t *testing.T) {
	r := decodeYAML(t, kilnRecipe+"  sample_rows: 0\n")
	out := t.TempDir()
	now := func() time.Time { return time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC) }
	res, err := Run(context.Background(), r, Options{OutDir: out, Formats: []string{"html"}, Now: now})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(out, "kiln-trials-2024.html"), res.Files[0])

	doc := res.Document
	assert.Equal(t, "5 March 2024", doc.Date)
	var headings []string
	for _, b := range doc.Blocks {
		if h, ok := b.(report.Heading); ok {
			headings = append(headings, h.Text)
		}
	}
	assert.Equal(t, []string{"Analysis of variance", "Notes", "Conclusions"}, headings)
}

func TestRunReportsFailingAnalysis(t *testing.T) {
	r := decodeYAML(t, strings.Replace(kilnRecipe, "response: Loss", "response: Weight", 1))
	_, err := Run(context.Background(), r, Options{OutDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis 1 (anova)")
	assert.Contains(t, err.Error(), "Weight")
}

func TestRunNarratesDiscussion(t *testing.T) {
	r := decodeYAML(t, kilnRecipe+"narrate:\n  model: test/model\n")
	rt := &fakeRuntime{reply: "## Discussion\n\nKiln C lost the most mass.\n\nReplication was limited."}
	res, err := Run(context.Background(), r, Options{OutDir: t.TempDir(), Narrate: true, Runtime: rt})
	require.NoError(t, err)
	assert.Equal(t, 1, rt.calls)
	assert.Empty(t, res.Warnings)

	md, err := os.ReadFile(res.Files[0])
	require.NoError(t, err)
	text := string(md)
	assert.Contains(t, text, "## Discussion")
	assert.Contains(t, text, "Kiln C lost the most mass.")
	assert.Contains(t, text, "Drafted with test/model")
	assert.Less(t, strings.Index(text, "## Discussion"), strings.Index(text, "## Conclusions"))
}

func TestRunNarrateFailureIsAWarning(t *testing.T) {
	r := decodeYAML(t, kilnRecipe+"narrate:\n  enabled: true\n  model: test/model\n")
	rt := &fakeRuntime{err: errors.New("rate limited")}
	res, err := Run(context.Background(), r, Options{OutDir: t.TempDir(), Runtime: rt})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "discussion skipped")
	assert.Contains(t, res.Warnings[0], "rate limited")

	md, err := os.ReadFile(res.Files[0])
	require.NoError(t, err)
	assert.NotContains(t, string(md), "## Discussion")
	assert.Contains(t, string(md), "## Conclusions")
}

func TestRunWithoutFindings(t *testing.T) {
	r := decodeYAML(t, `title: Notes only
analyses:
  - type: text
    text: Nothing to test.
output:
  formats: [md]
`)
	res, err := Run(context.Background(), r, Options{OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Zero(t, res.Figures)
	md, err := os.ReadFile(res.Files[0])
	require.NoError(t, err)
	assert.Contains(t, string(md), "No statistically significant effects were found at α = 0.05.")
	assert.NotContains(t, string(md), "## Data")
}

func TestParseDelimiter(t *testing.T) {
	for in, want := range map[string]rune{"": 0, "tab": '\t', ";": ';', "pipe": '|', "#": '#'} {
		got, err := ParseDelimiter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDelimiter("::")
	assert.Error(t, err)
}

func TestWatchRerunsOnChange(t *testing.T) {
	path := writeStudy(t, fileRecipe)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *Result, 8)
	errs := make(chan error, 1)
	opt := Options{OutDir: t.TempDir(), Formats: []string{"md"}}
	go func() {
		errs <- Watch(ctx, path, opt, 50*time.Millisecond, func(res *Result, err error) {
			if err == nil {
				results <- res
			}
		})
	}()

	select {
	case res := <-results:
		assert.Equal(t, "Kiln Trials", res.Document.Title)
	case <-time.After(10 * time.Second):
		t.Fatal("first run did not finish")
	}

	changed := strings.Replace(fileRecipe, "title: Kiln Trials", "title: Kiln Trials Revised", 1)
	require.NoError(t, os.WriteFile(path, []byte(changed), 0o644))

	select {
	case res := <-results:
		assert.Equal(t, "Kiln Trials Revised", res.Document.Title)
	case <-time.After(10 * time.Second):
		t.Fatal("change did not trigger a rerun")
	}

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
