package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"codeberg.org/go-pdf/fpdf"
)

type pdfRenderer struct{}

func (pdfRenderer) Format() string { return "pdf" }
func (pdfRenderer) Ext() string    { return ".pdf" }

const (
	pdfMargin = 20.0 // mm
	pdfLineH  = 5.5
	pdfFont   = "Helvetica"
)

// Core fonts are cp1252; a few symbols common in results need a spelling.
var pdfSymbols = strings.NewReplacer(
	"≈", "~", "≤", "<=", "≥", ">=", "α", "alpha", "χ", "chi", "√", "sqrt", "−", "-", "→", "->",
)

type pdfDoc struct {
	f     *fpdf.Fpdf
	tr    func(string) string
	textW float64
	pageH float64
}

func (pdfRenderer) Render(w io.Writer, doc *Document, opt Options) error {
	f := fpdf.New("P", "mm", opt.pageSize(), "")
	f.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	f.SetAutoPageBreak(true, pdfMargin)
	f.AliasNbPages("")
	f.SetTitle(doc.Title, true)
	f.SetAuthor(strings.Join(doc.Authors, ", "), true)
	f.SetCreator("statloom", true)
	cp := f.UnicodeTranslatorFromDescriptor("")
	p := &pdfDoc{f: f, tr: func(s string) string { return cp(pdfSymbols.Replace(s)) }}
	pw, ph := f.GetPageSize()
	p.textW = pw - 2*pdfMargin
	p.pageH = ph

	f.SetFooterFunc(func() {
		f.SetY(-15)
		f.SetFont(pdfFont, "I", 8)
		f.SetTextColor(110, 110, 110)
		f.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", f.PageNo()), "", 0, "C", false, 0, "")
		f.SetTextColor(0, 0, 0)
	})
	f.AddPage()
	p.titleBlock(doc)

	var num numbering
	for _, blk := range doc.Blocks {
		switch v := blk.(type) {
		case Heading:
			p.heading(v)
		case Paragraph:
			p.paragraph(v.Runs)
		case Bullets:
			p.bullets(v.Items)
		case Table:
			p.caption(num.table(v.Caption))
			p.table(v)
			if v.Note != "" {
				f.SetFont(pdfFont, "I", 8)
				f.MultiCell(p.textW, 4, p.tr(v.Note), "", "L", false)
			}
			f.Ln(3)
		case Figure:
			label := num.figure(v.Caption)
			if err := p.figure(v, num.figures); err != nil {
				return fmt.Errorf("embed %s: %w", label, err)
			}
			p.caption(label)
			f.Ln(2)
		case Preformatted:
			f.SetFont("Courier", "", 8.5)
			f.MultiCell(p.textW, 4, p.tr(strings.TrimRight(v.Text, "\n")), "", "L", false)
			f.Ln(2)
		case PageBreak:
			f.AddPage()
		}
		if err := f.Error(); err != nil {
			return fmt.Errorf("render pdf: %w", err)
		}
	}
	if err := f.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (p *pdfDoc) titleBlock(doc *Document) {
	f := p.f
	if doc.Title != "" {
		f.SetFont(pdfFont, "B", 18)
		f.MultiCell(p.textW, 8, p.tr(doc.Title), "", "C", false)
	}
	if doc.Subtitle != "" {
		f.SetFont(pdfFont, "I", 13)
		f.MultiCell(p.textW, 7, p.tr(doc.Subtitle), "", "C", false)
	}
	f.SetFont(pdfFont, "", 10)
	if by := doc.Byline(); by != "" {
		f.MultiCell(p.textW, 5, p.tr(by), "", "C", false)
	}
	if doc.Date != "" {
		f.MultiCell(p.textW, 5, p.tr(doc.Date), "", "C", false)
	}
	f.Ln(6)
}

func (p *pdfDoc) heading(h Heading) {
	sizes := map[int]float64{1: 15, 2: 13, 3: 11.5, 4: 10.5, 5: 10}
	lvl := clampLevel(h.Level)
	p.ensure(20)
	p.f.Ln(2)
	p.f.SetFont(pdfFont, "B", sizes[lvl])
	p.f.MultiCell(p.textW, sizes[lvl]*0.5, p.tr(h.Text), "", "L", false)
	p.f.Ln(1.5)
}

func (p *pdfDoc) paragraph(runs []Run) {
	for _, r := range runs {
		style := ""
		if r.Bold {
			style += "B"
		}
		if r.Italic {
			style += "I"
		}
		family := pdfFont
		if r.Mono {
			family = "Courier"
		}
		p.f.SetFont(family, style, 10)
		p.f.Write(pdfLineH, p.tr(r.Text))
	}
	p.f.Ln(pdfLineH)
	p.f.Ln(2)
}

func (p *pdfDoc) bullets(items []string) {
	p.f.SetFont(pdfFont, "", 10)
	for _, it := range items {
		p.f.SetX(pdfMargin + 4)
		p.f.MultiCell(p.textW-4, pdfLineH, p.tr("• "+it), "", "L", false)
	}
	p.f.Ln(2)
}

func (p *pdfDoc) caption(text string) {
	p.f.SetFont(pdfFont, "B", 9)
	p.f.MultiCell(p.textW, 4.5, p.tr(text), "", "L", false)
	p.f.Ln(1)
}

// ensure starts a new page when fewer than h mm remain above the bottom margin.
func (p *pdfDoc) ensure(h float64) {
	if p.f.GetY()+h > p.pageH-pdfMargin {
		p.f.AddPage()
	}
}

func (p *pdfDoc) table(t Table) {
	cols := tableWidth(t)
	if cols == 0 {
		return
	}
	colW := p.textW / float64(cols)
	const lh = 4.5
	row := func(cells []string, header bool) {
		style := ""
		if header {
			style = "B"
		}
		p.f.SetFont(pdfFont, style, 8.5)
		lines := make([][][]byte, cols)
		height := lh
		for i := 0; i < cols; i++ {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			lines[i] = p.f.SplitLines([]byte(p.tr(c)), colW-2)
			height = max(height, float64(len(lines[i]))*lh)
		}
		p.ensure(height)
		y := p.f.GetY()
		for i := 0; i < cols; i++ {
			x := pdfMargin + float64(i)*colW
			if header {
				p.f.SetFillColor(217, 226, 243)
				p.f.Rect(x, y, colW, height, "FD")
			} else {
				p.f.Rect(x, y, colW, height, "D")
			}
			p.f.SetXY(x, y)
			p.f.MultiCell(colW, lh, string(bytes.Join(lines[i], []byte("\n"))), "", "L", false)
		}
		p.f.SetXY(pdfMargin, y+height)
	}
	p.f.SetDrawColor(150, 150, 150)
	if len(t.Header) > 0 {
		row(t.Header, true)
	}
	for _, r := range t.Rows {
		row(r, false)
	}
	p.f.SetDrawColor(0, 0, 0)
	p.f.Ln(1)
}

func (p *pdfDoc) figure(fig Figure, n int) error {
	if len(fig.PNG) == 0 {
		return nil
	}
	name := fmt.Sprintf("fig%d", n)
	info := p.f.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(fig.PNG))
	if err := p.f.Error(); err != nil {
		return err
	}
	w := p.textW
	h := w * info.Height() / info.Width()
	if limit := p.pageH - 2*pdfMargin - 15; h > limit {
		w *= limit / h
		h = limit
	}
	p.ensure(h + 6)
	x := pdfMargin + (p.textW-w)/2
	p.f.ImageOptions(name, x, p.f.GetY(), w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	p.f.SetY(p.f.GetY() + h + 2)
	return nil
}
