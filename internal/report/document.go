// Package report holds a format-neutral document model and the renderers
// that turn it into DOCX, PDF, Markdown and HTML files.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Document is a titled sequence of blocks.
type Document struct {
	Title       string
	Subtitle    string
	Authors     []string
	Institution string
	Date        string
	Blocks      []Block
}

// Block is one element of a document body.
type Block interface {
	isBlock()
}

// Heading starts a section; Level 1 is the top level.
type Heading struct {
	Level int
	Text  string
}

// Run is a span of uniformly styled text.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
	Mono   bool
}

// Paragraph is a sequence of runs.
type Paragraph struct {
	Runs []Run
}

// Bullets is an unordered list.
type Bullets struct {
	Items []string
}

// Table is a captioned grid. Note is printed under the table.
type Table struct {
	Caption string
	Header  []string
	Rows    [][]string
	Note    string
}

// Figure is a captioned PNG image.
type Figure struct {
	Name    string
	Caption string
	PNG     []byte
}

// Preformatted is monospaced text kept verbatim.
type Preformatted struct {
	Text string
}

// PageBreak forces a new page where the format supports it.
type PageBreak struct{}

func (Heading) isBlock()      {}
func (Paragraph) isBlock()    {}
func (Bullets) isBlock()      {}
func (Table) isBlock()        {}
func (Figure) isBlock()       {}
func (Preformatted) isBlock() {}
func (PageBreak) isBlock()    {}

// Para builds a plain paragraph.
func Para(text string) Paragraph {
	return Paragraph{Runs: []Run{{Text: text}}}
}

// Text returns the paragraph without styling.
func (p Paragraph) Text() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// Add appends blocks to the body.
func (d *Document) Add(blocks ...Block) {
	d.Blocks = append(d.Blocks, blocks...)
}

// Byline joins authors and institution for title pages.
func (d *Document) Byline() string {
	parts := []string{}
	if len(d.Authors) > 0 {
		parts = append(parts, strings.Join(d.Authors, ", "))
	}
	if d.Institution != "" {
		parts = append(parts, d.Institution)
	}
	return strings.Join(parts, " · ")
}

// numbering assigns figure and table numbers in document order.
type numbering struct {
	tables, figures int
}

func (n *numbering) table(caption string) string {
	n.tables++
	return captionLabel("Table", n.tables, caption)
}

func (n *numbering) figure(caption string) string {
	n.figures++
	return captionLabel("Figure", n.figures, caption)
}

func captionLabel(kind string, i int, caption string) string {
	if caption == "" {
		return fmt.Sprintf("%s %d", kind, i)
	}
	return fmt.Sprintf("%s %d: %s", kind, i, caption)
}

// Options shape the physical output.
type Options struct {
	// PageSize is "A4" (default) or "Letter".
	PageSize string
}

func (o Options) pageSize() string {
	if strings.EqualFold(o.PageSize, "letter") {
		return "Letter"
	}
	return "A4"
}

// pageInches returns the page width and height in inches.
func (o Options) pageInches() (float64, float64) {
	if o.pageSize() == "Letter" {
		return 8.5, 11
	}
	return 8.27, 11.69
}

// Renderer writes a document in one file format.
type Renderer interface {
	Format() string
	Ext() string
	Render(w io.Writer, doc *Document, opt Options) error
}

var registry = map[string]Renderer{}

// Register adds a renderer under its format name.
func Register(r Renderer) {
	registry[r.Format()] = r
}

func init() {
	Register(markdownRenderer{})
	Register(htmlRenderer{})
	Register(docxRenderer{})
	Register(pdfRenderer{})
}

// Lookup returns the renderer for format.
func Lookup(format string) (Renderer, error) {
	r, ok := registry[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("unknown report format %q (use %s)", format, strings.Join(Formats(), ", "))
	}
	return r, nil
}

// Formats lists the registered format names.
func Formats() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
