package report

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

type markdownRenderer struct{}

func (markdownRenderer) Format() string { return "md" }
func (markdownRenderer) Ext() string    { return ".md" }

func (markdownRenderer) Render(w io.Writer, doc *Document, _ Options) error {
	bw := bufio.NewWriter(w)
	writeMarkdown(bw, doc, true)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// Markdown returns the document as Markdown. Figures are embedded as data
// URIs when inline is true and referenced by name otherwise.
func Markdown(doc *Document, inline bool) string {
	var b strings.Builder
	writeMarkdown(&b, doc, inline)
	return b.String()
}

func writeMarkdown(w io.StringWriter, doc *Document, inline bool) {
	if doc.Title != "" {
		w.WriteString("# " + doc.Title + "\n\n")
	}
	if doc.Subtitle != "" {
		w.WriteString("_" + doc.Subtitle + "_\n\n")
	}
	if by := doc.Byline(); by != "" {
		w.WriteString(by + "\n\n")
	}
	if doc.Date != "" {
		w.WriteString(doc.Date + "\n\n")
	}
	var num numbering
	for _, b := range doc.Blocks {
		switch v := b.(type) {
		case Heading:
			// Level 1 is reserved for the title.
			w.WriteString(strings.Repeat("#", clampLevel(v.Level)+1) + " " + v.Text + "\n\n")
		case Paragraph:
			w.WriteString(markdownRuns(v.Runs) + "\n\n")
		case Bullets:
			for _, it := range v.Items {
				w.WriteString("- " + it + "\n")
			}
			w.WriteString("\n")
		case Table:
			w.WriteString("**" + num.table(v.Caption) + "**\n\n")
			writeMarkdownTable(w, v)
			if v.Note != "" {
				w.WriteString("_" + v.Note + "_\n\n")
			}
		case Figure:
			label := num.figure(v.Caption)
			switch {
			case inline && len(v.PNG) > 0:
				w.WriteString(fmt.Sprintf("![%s](data:image/png;base64,%s)\n\n", label, base64.StdEncoding.EncodeToString(v.PNG)))
			case v.Name != "":
				w.WriteString(fmt.Sprintf("![%s](%s.png)\n\n", label, v.Name))
			}
			w.WriteString("*" + label + "*\n\n")
		case Preformatted:
			w.WriteString("```\n" + strings.TrimRight(v.Text, "\n") + "\n```\n\n")
		case PageBreak:
			w.WriteString("---\n\n")
		}
	}
}

func clampLevel(l int) int {
	if l < 1 {
		return 1
	}
	if l > 5 {
		return 5
	}
	return l
}

func markdownRuns(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		t := r.Text
		if strings.TrimSpace(t) == "" {
			b.WriteString(t)
			continue
		}
		// Markers must hug the text, so surrounding spaces stay outside.
		lead := t[:len(t)-len(strings.TrimLeft(t, " "))]
		trail := t[len(strings.TrimRight(t, " ")):]
		core := strings.TrimSpace(t)
		switch {
		case r.Mono:
			core = "`" + core + "`"
		case r.Bold && r.Italic:
			core = "***" + core + "***"
		case r.Bold:
			core = "**" + core + "**"
		case r.Italic:
			core = "_" + core + "_"
		}
		b.WriteString(lead + core + trail)
	}
	return b.String()
}

func writeMarkdownTable(w io.StringWriter, t Table) {
	cols := tableWidth(t)
	if cols == 0 {
		return
	}
	row := func(cells []string) {
		w.WriteString("|")
		for i := 0; i < cols; i++ {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			w.WriteString(" " + escapeCell(c) + " |")
		}
		w.WriteString("\n")
	}
	row(t.Header)
	w.WriteString("|" + strings.Repeat(" --- |", cols) + "\n")
	for _, r := range t.Rows {
		row(r)
	}
	w.WriteString("\n")
}

func tableWidth(t Table) int {
	n := len(t.Header)
	for _, r := range t.Rows {
		n = max(n, len(r))
	}
	return n
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
