package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProfileBatch_AttachAndSuppressSamples(t *testing.T) {
	home := tempHome(t)

	// Prepare two CSV files with the same basename in different directories
	d1 := filepath.Join(home, "d1")
	d2 := filepath.Join(home, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	csv := "col1,col2\nA,1\nB,2\nC,3\n"
	for _, d := range []string{d1, d2} {
		if err := os.WriteFile(filepath.Join(d, "metrics.csv"), []byte(csv), 0o644); err != nil {
			t.Fatalf("write csv: %v", err)
		}
	}

	runCmd(t, "init", "batchp", "-d", "batch study")
	runCmd(t, "profile-batch", filepath.Join(home, "d*", "metrics.csv"), "-p", "batchp", "--sample-rows-project", "0", "--quiet")

	projDir, err := resolveProjectDirByName("batchp")
	if err != nil {
		t.Fatalf("resolve study: %v", err)
	}
	dir := filepath.Join(projDir, "profiles")
	for _, name := range []string{"metrics.summary.md", "metrics__2.summary.md"} {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("missing profile %s: %v", name, err)
		}
		if strings.Contains(string(body), "[HEAD AND SAMPLE ROWS]") {
			t.Fatalf("expected no sample rows in %s", name)
		}
	}

	// the first file is registered; the second shares its name and is not
	p, err := loadStudy("batchp")
	if err != nil {
		t.Fatalf("load study: %v", err)
	}
	if len(p.Datasets) != 1 {
		t.Fatalf("expected 1 registered dataset, got %d", len(p.Datasets))
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b.csv", "a.csv"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x\n1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := expandInputs([]string{filepath.Join(dir, "*.csv"), filepath.Join(dir, "a.csv")})
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "a.csv" {
		t.Fatalf("unexpected inputs %v", got)
	}
	if _, err := expandInputs([]string{filepath.Join(dir, "*.xlsx")}); err == nil {
		t.Fatalf("expected error when nothing matches")
	}
}
