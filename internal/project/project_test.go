package project_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/statloom-cli/internal/config"
	"github.com/KaramelBytes/statloom-cli/internal/project"
)

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAddDatasetCachesProfileAndResolves(t *testing.T) {
	tdir := t.TempDir()
	csv := writeCSV(t, tdir, "kiln.csv", "Kiln,Loss (%)\nA,1\nA,2\nB,4\nB,5\n")

	proj := project.NewProject("kiln", "", filepath.Join(tdir, "proj"))
	d, err := proj.AddDataset(csv, "", "smoking kiln trial", "")
	if err != nil {
		t.Fatalf("add dataset: %v", err)
	}
	if d.Name != "kiln" || d.Rows != 4 || d.Columns != 2 {
		t.Fatalf("unexpected dataset %+v", d)
	}
	if d.ID == "" || !strings.Contains(d.Profile, "Loss") {
		t.Fatalf("missing id or profile: %+v", d)
	}
	if _, err := proj.AddDataset(csv, "kiln", "", ""); !errors.Is(err, project.ErrDuplicateDataset) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	path, ok := proj.Resolve("kiln")
	if !ok || path != d.Path || !filepath.IsAbs(path) {
		t.Fatalf("resolve: %q %v", path, ok)
	}
	if _, ok := proj.Resolve("other"); ok {
		t.Fatal("resolved an unknown dataset")
	}

	if err := proj.Save(); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := project.LoadProject(proj.RootDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.SortedDatasets(); len(got) != 1 || got[0].Profile != d.Profile {
		t.Fatalf("datasets not persisted: %+v", got)
	}
	if !loaded.RemoveDataset("kiln") || len(loaded.Datasets) != 0 {
		t.Fatal("remove by name failed")
	}
}

func TestAddDatasetRejectsUnreadableFile(t *testing.T) {
	tdir := t.TempDir()
	bad := writeCSV(t, tdir, "scan.bin", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	proj := project.NewProject("x", "", tdir)
	if _, err := proj.AddDataset(bad, "", "", ""); err == nil {
		t.Fatal("expected an error for an image file")
	}
}

func TestRecipeAndOverrides(t *testing.T) {
	tdir := t.TempDir()
	proj := project.NewProject("dryer", "", tdir)
	if got := proj.RecipePath(); got != filepath.Join(tdir, project.DefaultRecipe) {
		t.Fatalf("default recipe path %q", got)
	}
	r := writeCSV(t, tdir, "trial.yaml", "title: x\n")
	if err := proj.SetRecipe(r); err != nil {
		t.Fatal(err)
	}
	if proj.Recipe != "trial.yaml" {
		t.Fatalf("recipe stored as %q", proj.Recipe)
	}
	if err := proj.SetRecipe(filepath.Join(tdir, "missing.yaml")); err == nil {
		t.Fatal("expected error for a missing recipe")
	}

	if err := proj.SetFormats([]string{"PDF", " md "}); err != nil {
		t.Fatal(err)
	}
	if err := proj.SetFormats([]string{"odt"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
	proj.Config.Alpha = 0.01
	cfg := &config.Global{Alpha: 0.05, DefaultFormats: []string{"docx"}, NarrateModel: "m"}
	got := proj.Apply(cfg)
	if got.Alpha != 0.01 || strings.Join(got.DefaultFormats, ",") != "pdf,md" || got.NarrateModel != "m" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if cfg.Alpha != 0.05 {
		t.Fatal("Apply modified the global config")
	}
}
