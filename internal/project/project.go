package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/dataset"
	"github.com/KaramelBytes/statloom-cli/internal/profile"
	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

const (
	projectFileName = "project.json"
	// DefaultRecipe is the recipe file a study uses unless set otherwise.
	DefaultRecipe = "recipe.yaml"
)

var ErrDuplicateDataset = errors.New("dataset already registered")

// Project is a study workspace persisted on disk: its datasets and recipe.
type Project struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Recipe      string              `json:"recipe"`
	Datasets    map[string]*Dataset `json:"datasets"`
	Config      *ProjectConfig      `json:"config"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`

	// Not serialized: on-disk location of the project.json
	rootDir string `json:"-"`
}

// ProjectConfig overrides global settings for one study. Zero values inherit.
type ProjectConfig struct {
	Formats      []string `json:"formats,omitempty"`
	Alpha        float64  `json:"alpha,omitempty"`
	NarrateModel string   `json:"narrate_model,omitempty"`
}

// NewProject constructs an in-memory study. Call Save() to persist.
func NewProject(name, description, rootDir string) *Project {
	return &Project{
		Name:        name,
		Description: description,
		Recipe:      DefaultRecipe,
		Datasets:    make(map[string]*Dataset),
		Config:      &ProjectConfig{},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		rootDir:     rootDir,
	}
}

// LoadProject loads a project.json from the provided directory.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, projectFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("study not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read study: %w", err)
	}
	var p Project
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse study: %w", err)
	}
	if p.Datasets == nil {
		p.Datasets = make(map[string]*Dataset)
	}
	if p.Config == nil {
		p.Config = &ProjectConfig{}
	}
	p.rootDir = dir
	return &p, nil
}

// RootDir returns the on-disk study directory path.
func (p *Project) RootDir() string { return p.rootDir }

// Save writes project.json using atomic write.
func (p *Project) Save() error {
	if p.rootDir == "" {
		return errors.New("study root directory not set")
	}
	if err := utils.EnsureDir(p.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	p.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(p)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(p.rootDir, projectFileName), data)
}

// AddDataset loads a data file to validate it, profiles it and registers it
// under name (the file's base name when empty).
func (p *Project) AddDataset(path, name, description, sheet string) (*Dataset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if _, ok := p.DatasetByName(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateDataset, name)
	}
	t, err := dataset.Load(abs, dataset.Options{Sheet: sheet})
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	rep, err := profile.Build(t, profile.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("profile dataset: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	d := &Dataset{
		ID:          uuid.NewString(),
		Name:        name,
		Path:        abs,
		Description: description,
		Sheet:       sheet,
		Rows:        t.Len(),
		Columns:     len(t.Columns),
		Profile:     rep.Markdown(),
		AddedAt:     info.ModTime(),
	}
	if p.Datasets == nil {
		p.Datasets = make(map[string]*Dataset)
	}
	p.Datasets[d.ID] = d
	p.UpdatedAt = time.Now()
	return d, nil
}

// RemoveDataset drops a dataset by name or ID.
func (p *Project) RemoveDataset(ref string) bool {
	for id, d := range p.Datasets {
		if id == ref || d.Name == ref {
			delete(p.Datasets, id)
			p.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// DatasetByName finds a registered dataset by its name.
func (p *Project) DatasetByName(name string) (*Dataset, bool) {
	for _, d := range p.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Resolve maps a recipe dataset name to the registered file.
func (p *Project) Resolve(name string) (string, bool) {
	d, ok := p.DatasetByName(name)
	if !ok {
		return "", false
	}
	return d.Path, true
}

// SortedDatasets returns the datasets ordered by name.
func (p *Project) SortedDatasets() []*Dataset {
	out := make([]*Dataset, 0, len(p.Datasets))
	for _, d := range p.Datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecipePath returns the absolute path of the study recipe.
func (p *Project) RecipePath() string {
	r := p.Recipe
	if r == "" {
		r = DefaultRecipe
	}
	if filepath.IsAbs(r) {
		return r
	}
	return filepath.Join(p.rootDir, r)
}

// SetRecipe points the study at a recipe file. Paths inside the study
// directory are stored relative to it.
func (p *Project) SetRecipe(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("recipe: %w", err)
	}
	if root, err := filepath.Abs(p.rootDir); err == nil {
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			abs = rel
		}
	}
	p.Recipe = abs
	p.UpdatedAt = time.Now()
	return nil
}

// SetFormats sets the study's output formats.
func (p *Project) SetFormats(formats []string) error {
	var out []string
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !config.IsKnownFormat(f) {
			return fmt.Errorf("unknown format %q (use %s)", f, strings.Join(config.KnownFormats, ", "))
		}
		out = append(out, f)
	}
	if p.Config == nil {
		p.Config = &ProjectConfig{}
	}
	p.Config.Formats = out
	p.UpdatedAt = time.Now()
	return nil
}

// Apply returns a copy of the global config with the study overrides.
func (p *Project) Apply(cfg *config.Global) *config.Global {
	out := *cfg
	if p.Config == nil {
		return &out
	}
	if len(p.Config.Formats) > 0 {
		out.DefaultFormats = append([]string(nil), p.Config.Formats...)
	}
	if p.Config.Alpha > 0 {
		out.Alpha = p.Config.Alpha
	}
	if p.Config.NarrateModel != "" {
		out.NarrateModel = p.Config.NarrateModel
	}
	return &out
}
