package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	resetFlags()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

// resetFlags clears bound variables that persist across invocations in one
// process.
func resetFlags() {
	reportProject, reportOut = "", ""
	reportFormats = nil
	reportNarrate, reportWatch, reportChartsHTML, reportExportCSV = false, false, false, false
	initDescription, initExample = "", ""
	addName, addDesc, addSheet = "", "", ""
	pbProject, pbDescription = "", ""
	pbSampleRowsProject, pbQuiet = -1, false
	exampleOut, exampleForce = "", false
	pmClear = false
	listStudies, listDatasets, listProjName = false, false, ""
	flagHTTPTimeoutSec = 0
}

func tempHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestCLI_Init_Add_Report(t *testing.T) {
	home := tempHome(t)

	data := filepath.Join(home, "loss.csv")
	csv := "Kiln,Loss\nA,1\nA,2\nA,3\nB,4\nB,5\nB,6\nC,7\nC,8\nC,9\n"
	if err := os.WriteFile(data, []byte(csv), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	recipe := filepath.Join(home, "recipe.yaml")
	body := `title: Kiln study
datasets:
  - name: kiln
analyses:
  - type: anova
    factor: Kiln
    response: Loss
    chart: none
`
	if err := os.WriteFile(recipe, []byte(body), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}

	runCmd(t, "init", "itest", "-d", "integration test")
	runCmd(t, "add", "-p", "itest", data, "--name", "kiln", "--desc", "weight loss")
	runCmd(t, "project", "set-recipe", "-p", "itest", recipe)
	runCmd(t, "report", "-p", "itest", "--format", "md")

	projDir, err := resolveProjectDirByName("itest")
	if err != nil {
		t.Fatalf("resolve study: %v", err)
	}
	out, err := os.ReadFile(filepath.Join(projDir, "reports", "kiln-study.md"))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(out), "Between groups") {
		t.Fatalf("expected an ANOVA table in the report, got:\n%s", out)
	}
}

func TestCLI_InitRefusesExistingStudy(t *testing.T) {
	tempHome(t)
	runCmd(t, "init", "twice")
	resetFlags()
	rootCmd.SetArgs([]string{"init", "twice"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("expected error when initializing an existing study")
	}
}

func TestCLI_InitFromExampleAndReport(t *testing.T) {
	tempHome(t)
	runCmd(t, "init", "kilnstudy", "--example", "kiln")
	runCmd(t, "report", "-p", "kilnstudy", "--format", "md")

	projDir, err := resolveProjectDirByName("kilnstudy")
	if err != nil {
		t.Fatalf("resolve study: %v", err)
	}
	reports, _ := filepath.Glob(filepath.Join(projDir, "reports", "*.md"))
	if len(reports) != 1 {
		t.Fatalf("expected one markdown report, got %v", reports)
	}
}

func TestCLI_ExampleWriteAndReport(t *testing.T) {
	home := tempHome(t)
	dir := filepath.Join(home, "tillage")
	out := filepath.Join(home, "out")
	runCmd(t, "example", "write", "tillage", "-o", dir)
	runCmd(t, "report", filepath.Join(dir, "recipe.yaml"), "--format", "md,html", "--out", out, "--export-csv")

	for _, pattern := range []string{"*.md", "*.html", "*.csv"} {
		m, _ := filepath.Glob(filepath.Join(out, pattern))
		if len(m) == 0 {
			t.Fatalf("no %s written to %s", pattern, out)
		}
	}

	// a second write without --force must not overwrite
	resetFlags()
	rootCmd.SetArgs([]string{"example", "write", "tillage", "-o", dir})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("expected error when example files already exist")
	}
}

func TestCLI_ConfigSetValidates(t *testing.T) {
	home := tempHome(t)
	runCmd(t, "config", "set", "decimals", "2")
	b, err := os.ReadFile(filepath.Join(home, ".statloom", "config.yaml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(b), "decimals: 2") {
		t.Fatalf("decimals not saved:\n%s", b)
	}

	resetFlags()
	rootCmd.SetArgs([]string{"config", "set", "alpha", "2"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatalf("expected alpha=2 to be rejected")
	}
}

func TestCLI_LoadsConfigBeforeRun(t *testing.T) {
	home := tempHome(t)
	cfg = nil
	runCmd(t, "list", "--studies", "--http-timeout", "7")
	if cfg == nil {
		t.Fatalf("config was not loaded before the command ran")
	}
	want := filepath.Join(home, ".statloom", "projects")
	if cfg.ProjectsDir != want {
		t.Fatalf("projects dir = %q, want %q", cfg.ProjectsDir, want)
	}
	if cfg.HTTPTimeoutSec != 7 {
		t.Fatalf("http timeout override not applied: %d", cfg.HTTPTimeoutSec)
	}
}
