package profile

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/dataset"
)

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		fmt.Fprintf(&b, "File: %s\n", r.Name)
	}
	if r.Rows > 0 {
		if r.Processed > 0 && r.Processed < r.Rows {
			fmt.Fprintf(&b, "Rows: ~%d (processed %d)\n", r.Rows, r.Processed)
		} else {
			fmt.Fprintf(&b, "Rows: %d\n", r.Rows)
		}
	}
	fmt.Fprintf(&b, "Columns: %d\n\n", len(r.Cols))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		writeSchemaLine(&b, c)
	}
	if len(r.Groups) > 0 {
		b.WriteString("\n[GROUP-BY SUMMARY]\n")
		for _, g := range r.Groups {
			fmt.Fprintf(&b, "- %s (n=%d)\n", g.Key, g.Size)
			keys := r.metricOrder(g)
			for _, k := range keys[:min(6, len(keys))] {
				m := g.Metrics[k]
				fmt.Fprintf(&b, "  • %s: mean %.4g (min %.4g, max %.4g)\n", k, m.Mean, m.Min, m.Max)
			}
		}
	}
	hasGCorr := false
	for _, g := range r.Groups {
		if len(g.CorrPairs) > 0 {
			hasGCorr = true
			break
		}
	}
	if hasGCorr {
		b.WriteString("\n[PER-GROUP CORRELATIONS]\n")
		for _, g := range r.Groups {
			if len(g.CorrPairs) == 0 {
				continue
			}
			fmt.Fprintf(&b, "- %s:\n", g.Key)
			for _, p := range g.CorrPairs[:min(8, len(g.CorrPairs))] {
				fmt.Fprintf(&b, "  • %s ~ %s: r=%.3f\n", p.A, p.B, p.R)
			}
		}
	}
	if r.Corr != nil && len(r.Corr.Pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range r.Corr.Pairs[:min(10, len(r.Corr.Pairs))] {
			fmt.Fprintf(&b, "- %s ~ %s: r=%.3f", p.A, p.B, p.R)
			if p.N > 2 {
				fmt.Fprintf(&b, " (p=%.3g, n=%d)", p.P, p.N)
			}
			b.WriteString("\n")
		}
	}
	if len(r.Samples) > 0 {
		b.WriteString("\n[HEAD AND SAMPLE ROWS]\n")
		header := make([]string, len(r.Cols))
		sep := make([]string, len(r.Cols))
		for i, c := range r.Cols {
			header[i] = safeName(c.Name)
			sep[i] = "---"
		}
		b.WriteString("| " + strings.Join(header, " | ") + " |\n")
		b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		for _, row := range r.Samples {
			cells := make([]string, len(r.Cols))
			for i := range r.Cols {
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				cells[i] = safeVal(val)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}

func writeSchemaLine(b *strings.Builder, c ColumnSummary) {
	total := c.NonNull + c.Missing
	missPct := 0.0
	if total > 0 {
		missPct = float64(c.Missing) * 100.0 / float64(total)
	}
	name := safeName(c.Name)
	if c.Unit != "" {
		name = fmt.Sprintf("%s [%s]", name, c.Unit)
	}
	fmt.Fprintf(b, "- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct)
	switch c.Kind {
	case dataset.KindNumeric:
		fmt.Fprintf(b, "; min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
		if c.OutlierThreshold > 0 {
			fmt.Fprintf(b, "; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold)
			if c.OutliersMaxAbsZ > 0 {
				fmt.Fprintf(b, " (max |z|≈%.2f)", c.OutliersMaxAbsZ)
			}
		}
	case dataset.KindCategorical:
		if len(c.TopValues) > 0 {
			b.WriteString("; top: ")
			for i, kv := range c.TopValues {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(b, "%s(%d)", safeVal(kv.Value), kv.Count)
			}
			if c.Unique > len(c.TopValues) {
				fmt.Fprintf(b, "; unique=%d", c.Unique)
			}
		}
	case dataset.KindText:
		if len(c.ExampleTexts) > 0 {
			b.WriteString("; e.g., ")
			for i, ex := range c.ExampleTexts {
				if i > 0 {
					b.WriteString(" | ")
				}
				b.WriteString(safeVal(ex))
			}
		}
	}
	b.WriteString("\n")
}

// metricOrder lists a group's metrics in table column order.
func (r *Report) metricOrder(g GroupResult) []string {
	var keys []string
	for _, c := range r.Cols {
		if _, ok := g.Metrics[c.Name]; ok {
			keys = append(keys, c.Name)
		}
	}
	return keys
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
