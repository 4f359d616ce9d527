package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

func TestCountTokens(t *testing.T) {
	cases := []struct {
		name string
		in   string
		min  int
	}{
		{"empty", "", 0},
		{"simple", "hello world", 2},
		{"long", strings.Repeat("a", 4000), 900},
	}
	for _, c := range cases {
		if got := utils.CountTokens(c.in); got < c.min {
			t.Errorf("%s: got %d < min %d", c.name, got, c.min)
		}
	}
}

func TestTruncateToTokenLimitCutsAtLineBreak(t *testing.T) {
	text := strings.Repeat("| a | b |\n", 500)
	trunc := utils.TruncateToTokenLimit(text, 300)
	if n := utils.CountTokens(trunc); n > 300 {
		t.Fatalf("tokens=%d exceeds limit", n)
	}
	if !strings.HasSuffix(trunc, "|") {
		t.Fatalf("expected cut at a row boundary, got tail %q", trunc[len(trunc)-5:])
	}
	if utils.TruncateToTokenLimit("short", 10) != "short" {
		t.Fatalf("short text should be untouched")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Water Quality (2023)": "water-quality-2023",
		"  --  ":               "x",
		"Sheet_1.Data":         "sheet-1-data",
	}
	for in, want := range cases {
		if got := utils.Slugify(in, "x"); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestUniquePathAndSafeWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	first := utils.UniquePath(dir, "report", ".md")
	if err := utils.SafeWriteFile(first, []byte("one")); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	second := utils.UniquePath(dir, "report", ".md")
	if filepath.Base(second) != "report__2.md" {
		t.Fatalf("second path = %s", second)
	}
	b, err := os.ReadFile(first)
	if err != nil || string(b) != "one" {
		t.Fatalf("read back: %q %v", b, err)
	}
	if _, err := os.Stat(first + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}
