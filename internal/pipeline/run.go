package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/statloom-cli/internal/chart"
	"github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/logging"
	"github.com/KaramelBytes/statloom-cli/internal/narrate"
	"github.com/KaramelBytes/statloom-cli/internal/report"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

// Options adjust a run beyond what the recipe says.
type Options struct {
	Config *config.Global
	// Formats and OutDir override the recipe output settings when set.
	Formats []string
	OutDir  string
	// Narrate, ChartsHTML and ExportCSV switch the features on regardless of
	// the recipe.
	Narrate    bool
	ChartsHTML bool
	ExportCSV  bool
	// Runtime replaces the configured narrate provider.
	Runtime narrate.Runtime
	// Resolve maps a dataset name without file or inline data to a path,
	// e.g. a dataset registered with a study.
	Resolve func(name string) (string, bool)
	// Now dates the document when the recipe has no date.
	Now func() time.Time
}

// Result describes what a run produced.
type Result struct {
	Document *report.Document
	Files    []string
	Findings []string
	Warnings []string
	Figures  int
}

const defaultSampleRows = 10

func defaultConfig() *config.Global {
	return &config.Global{
		OutputDir:      ".",
		DefaultFormats: []string{"docx", "md"},
		Alpha:          0.05,
		Decimals:       3,
		FigureWidthIn:  6.5,
		FigureHeightIn: 4,
		FigureDPI:      150,
		PageSize:       "A4",
		RenderWorkers:  4,
	}
}

// Run executes a recipe end to end and writes the requested outputs.
func Run(ctx context.Context, r *Recipe, opt Options) (*Result, error) {
	cfg := opt.Config
	if cfg == nil {
		cfg = defaultConfig()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if len(opt.Formats) > 0 {
		r.Output.Formats = opt.Formats
	}
	r.ApplyDefaults(cfg)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	log := logging.Component("pipeline")
	res := &Result{}

	names, tables, err := LoadDatasets(r, opt.Resolve)
	if err != nil {
		return nil, err
	}

	var sections []*Section
	for i, a := range r.Analyses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		env := &Env{Alpha: r.Alpha, Decimals: *r.Decimals, Prefix: fmt.Sprintf("s%02d-", i+1)}
		if analyses[a.Type].needsData {
			ds := a.Dataset
			if ds == "" {
				ds = names[0]
			}
			env.Table = tables[ds]
		}
		start := time.Now()
		sec, err := RunAnalysis(a.Type, env, a.Title, a.Params)
		if err != nil {
			return nil, fmt.Errorf("analysis %d (%s): %w", i+1, a.Type, err)
		}
		log.Debug().Str("type", a.Type).Int("charts", len(sec.Charts)).Dur("took", time.Since(start)).Msg("analysis done")
		sections = append(sections, sec)
		res.Findings = append(res.Findings, sec.Findings...)
	}

	size := chart.Size{WidthIn: cfg.FigureWidthIn, HeightIn: cfg.FigureHeightIn, DPI: cfg.FigureDPI}
	pngs, err := renderFigures(ctx, sections, size, cfg.RenderWorkers)
	if err != nil {
		return nil, err
	}
	res.Figures = len(pngs)

	doc := assemble(r, opt, names, tables, sections)
	if r.Narrate.Enabled || opt.Narrate {
		if w := discuss(ctx, r, opt, cfg, doc, sections, res.Findings); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	conclude(doc, r, res.Findings)
	res.Document = doc

	outDir := outputDir(r, opt, cfg)
	if err := utils.EnsureDir(outDir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Join(outDir, r.Output.Basename)
	for _, f := range r.Output.Formats {
		rend, err := report.Lookup(strings.ToLower(f))
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := rend.Render(&buf, doc, report.Options{PageSize: r.Output.PageSize}); err != nil {
			return nil, fmt.Errorf("render %s: %w", rend.Format(), err)
		}
		path := base + rend.Ext()
		if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("write %s: %w", rend.Format(), err)
		}
		log.Debug().Str("file", path).Int("bytes", buf.Len()).Msg("report written")
		res.Files = append(res.Files, path)
	}

	if r.Output.ExportCSV || opt.ExportCSV {
		for _, name := range names {
			var buf bytes.Buffer
			if err := tables[name].WriteCSV(&buf); err != nil {
				return nil, fmt.Errorf("export %s: %w", name, err)
			}
			path := fmt.Sprintf("%s-%s.csv", base, utils.Slugify(name, "data"))
			if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
				return nil, fmt.Errorf("export %s: %w", name, err)
			}
			res.Files = append(res.Files, path)
		}
	}
	var specs []*chart.Spec
	for _, s := range sections {
		specs = append(specs, s.Charts...)
	}
	if (r.Output.ChartsHTML || opt.ChartsHTML) && len(specs) > 0 {
		var buf bytes.Buffer
		if err := chart.Dashboard(&buf, doc.Title, specs); err != nil {
			return nil, fmt.Errorf("build chart dashboard: %w", err)
		}
		path := base + "-charts.html"
		if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("write chart dashboard: %w", err)
		}
		res.Files = append(res.Files, path)
	}
	if r.Output.SaveFigures && len(specs) > 0 {
		dir := base + "-figures"
		if err := utils.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create figures dir: %w", err)
		}
		for _, s := range specs {
			path := filepath.Join(dir, s.Name+".png")
			if err := utils.SafeWriteFile(path, pngs[s.Name]); err != nil {
				return nil, fmt.Errorf("write figure: %w", err)
			}
			res.Files = append(res.Files, path)
		}
	}
	return res, nil
}

// LoadDatasets reads every recipe dataset and applies its transforms. Names
// keep recipe order.
func LoadDatasets(r *Recipe, resolve func(string) (string, bool)) ([]string, map[string]*dataset.Table, error) {
	log := logging.Component("pipeline")
	names := make([]string, 0, len(r.Datasets))
	tables := make(map[string]*dataset.Table, len(r.Datasets))
	for _, d := range r.Datasets {
		loc, ok := dataset.ParseLocale(d.Decimal, d.Thousands)
		if !ok {
			return nil, nil, fmt.Errorf("dataset %s: unknown decimal/thousands separator %q/%q", d.Name, d.Decimal, d.Thousands)
		}
		var t *dataset.Table
		var err error
		if d.Inline() {
			t, err = dataset.FromInline(dataset.Inline{Name: d.Name, Header: d.Header, Rows: d.Rows, Columns: d.Columns}, loc)
		} else {
			path, found := r.datasetPath(d, resolve)
			if !found {
				return nil, nil, fmt.Errorf("dataset %s: no file or inline data", d.Name)
			}
			delim, derr := ParseDelimiter(d.Delimiter)
			if derr != nil {
				return nil, nil, fmt.Errorf("dataset %s: %w", d.Name, derr)
			}
			t, err = dataset.Load(path, dataset.Options{Delimiter: delim, Locale: loc, Sheet: d.Sheet})
		}
		if err != nil {
			return nil, nil, fmt.Errorf("load dataset %s: %w", d.Name, err)
		}
		steps, err := dataset.DecodeSteps(d.Transforms)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %s: %w", d.Name, err)
		}
		if t, err = dataset.Apply(t, steps); err != nil {
			return nil, nil, fmt.Errorf("transform dataset %s: %w", d.Name, err)
		}
		t.Name = d.Name
		log.Debug().Str("dataset", d.Name).Int("rows", t.Len()).Int("columns", len(t.Columns)).Int("transforms", len(steps)).Msg("dataset loaded")
		names = append(names, d.Name)
		tables[d.Name] = t
	}
	return names, tables, nil
}

// ParseDelimiter maps recipe and flag spellings such as "tab" or ";" to a rune.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	case "comma", ",":
		return ',', nil
	case "semicolon", ";":
		return ';', nil
	case "pipe", "|":
		return '|', nil
	}
	if r := []rune(s); len(r) == 1 {
		return r[0], nil
	}
	return 0, fmt.Errorf("delimiter %q must be a single character", s)
}

// renderFigures draws every chart concurrently and stores the PNGs in the
// matching Figure blocks. The returned map is keyed by chart name.
func renderFigures(ctx context.Context, sections []*Section, size chart.Size, workers int) (map[string][]byte, error) {
	var specs []*chart.Spec
	for _, s := range sections {
		specs = append(specs, s.Charts...)
	}
	out := make([][]byte, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b, err := chart.RenderPNG(spec, size)
			if err != nil {
				return fmt.Errorf("render figure %s: %w", spec.Name, err)
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	byName := make(map[string][]byte, len(specs))
	for i, s := range specs {
		byName[s.Name] = out[i]
	}
	for _, s := range sections {
		for j, b := range s.Blocks {
			if f, ok := b.(report.Figure); ok {
				f.PNG = byName[f.Name]
				s.Blocks[j] = f
			}
		}
	}
	return byName, nil
}

func assemble(r *Recipe, opt Options, names []string, tables map[string]*dataset.Table, sections []*Section) *report.Document {
	doc := &report.Document{
		Title:       orDefault(r.Title, "Statistical report"),
		Subtitle:    r.Subtitle,
		Authors:     r.Authors,
		Institution: r.Institution,
		Date:        r.Date,
	}
	if doc.Date == "" {
		doc.Date = opt.Now().Format("2 January 2006")
	}
	n := defaultSampleRows
	if r.Output.SampleRows != nil {
		n = *r.Output.SampleRows
	}
	if n > 0 && len(names) > 0 {
		doc.Add(report.Heading{Level: 1, Text: "Data"})
		for _, name := range names {
			t := tables[name]
			src := ""
			if t.Source != "" {
				src = fmt.Sprintf(", read from %s", filepath.Base(t.Source))
			}
			doc.Add(report.Para(fmt.Sprintf("Dataset %s has %d rows and %d columns%s.", name, t.Len(), len(t.Columns), src)))
			rows := make([][]string, 0, min(n, t.Len()))
			for i := 0; i < t.Len() && i < n; i++ {
				rows = append(rows, t.Row(i))
			}
			header := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				header[i] = c.Label()
			}
			caption := fmt.Sprintf("First %d rows of %s", len(rows), name)
			if len(rows) == t.Len() {
				caption = "Data of " + name
			}
			doc.Add(report.Table{Caption: caption, Header: header, Rows: rows})
		}
	}
	for _, s := range sections {
		if s.Title != "" {
			doc.Add(report.Heading{Level: 1, Text: s.Title})
		}
		doc.Add(s.Blocks...)
	}
	return doc
}

// discuss drafts the Discussion section. Any failure is returned as a
// warning and leaves the document without it.
func discuss(ctx context.Context, r *Recipe, opt Options, cfg *config.Global, doc *report.Document, sections []*Section, findings []string) string {
	rt := opt.Runtime
	if rt == nil {
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		var err error
		rt, err = narrate.Get(r.Narrate.Provider, narrate.Config{
			HTTPTimeout: time.Duration(cfg.HTTPTimeoutSec) * time.Second,
			RetryMax:    cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
			APIKey:      key,
			Host:        cfg.OllamaHost,
		})
		if err != nil {
			return "discussion skipped: " + err.Error()
		}
	}
	results := &report.Document{}
	for _, s := range sections {
		if s.Title != "" {
			results.Add(report.Heading{Level: 1, Text: s.Title})
		}
		for _, b := range s.Blocks {
			if _, ok := b.(report.Figure); !ok {
				results.Add(b)
			}
		}
	}
	d, err := narrate.Draft(ctx, rt, narrate.Input{
		Title:           doc.Title,
		Findings:        findings,
		Results:         report.Markdown(results, false),
		Model:           r.Narrate.Model,
		MaxPromptTokens: cfg.MaxPromptTokens,
		MaxTokens:       cfg.MaxTokens,
		Temperature:     cfg.Temperature,
	})
	if err != nil {
		return "discussion skipped: " + err.Error()
	}
	log := logging.Component("pipeline")
	ev := log.Debug().Str("model", r.Narrate.Model).Int("prompt_tokens", d.PromptTokens).Int("completion_tokens", d.Usage.CompletionTokens)
	if cost, ok := narrate.EstimateCostUSD(r.Narrate.Model, d.Usage.PromptTokens, d.Usage.CompletionTokens); ok {
		ev = ev.Float64("cost_usd", cost)
	}
	ev.Msg("discussion drafted")

	doc.Add(report.Heading{Level: 1, Text: "Discussion"})
	for _, p := range d.Paragraphs {
		doc.Add(report.Para(p))
	}
	doc.Add(report.Paragraph{Runs: []report.Run{{Text: fmt.Sprintf("Drafted with %s; check every statement against the results above.", r.Narrate.Model), Italic: true}}})
	if d.Truncated {
		return "discussion prompt was truncated to fit the token budget"
	}
	return ""
}

func conclude(doc *report.Document, r *Recipe, findings []string) {
	doc.Add(report.Heading{Level: 1, Text: "Conclusions"})
	if len(findings) == 0 {
		doc.Add(report.Para(fmt.Sprintf("No statistically significant effects were found at α = %s.", num(r.Alpha, 2))))
		return
	}
	doc.Add(report.Para(fmt.Sprintf("At a significance level of α = %s the analyses support the following conclusions:", num(r.Alpha, 2))))
	doc.Add(report.Bullets{Items: findings})
}

func outputDir(r *Recipe, opt Options, cfg *config.Global) string {
	switch {
	case opt.OutDir != "":
		return opt.OutDir
	case r.Output.Dir != "":
		if filepath.IsAbs(r.Output.Dir) {
			return r.Output.Dir
		}
		return filepath.Join(r.Dir(), r.Output.Dir)
	case cfg.OutputDir != "":
		return cfg.OutputDir
	}
	return "."
}
