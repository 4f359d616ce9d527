package report

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/png"
	"io"
	"strings"
	"time"
)

type docxRenderer struct{}

func (docxRenderer) Format() string { return "docx" }
func (docxRenderer) Ext() string    { return ".docx" }

const (
	emuPerInch    = 914400
	twipsPerInch  = 1440
	docxMarginIn  = 1.0
	headerShading = "D9E2F3"
)

type docxMedia struct {
	rid  string
	name string
	data []byte
}

// docxBody accumulates word/document.xml and the media it references.
type docxBody struct {
	b       strings.Builder
	media   []docxMedia
	textW   float64 // usable width in inches
	drawing int
}

func (docxRenderer) Render(w io.Writer, doc *Document, opt Options) error {
	pw, ph := opt.pageInches()
	body := &docxBody{textW: pw - 2*docxMarginIn}
	body.titleBlock(doc)
	var num numbering
	for _, blk := range doc.Blocks {
		switch v := blk.(type) {
		case Heading:
			body.para("Heading"+fmt.Sprint(clampLevel(v.Level)), "", []Run{{Text: v.Text}})
		case Paragraph:
			body.para("", "", v.Runs)
		case Bullets:
			for _, it := range v.Items {
				body.para("ListBullet", "", []Run{{Text: it}})
			}
		case Table:
			body.para("Caption", "", []Run{{Text: num.table(v.Caption)}})
			body.table(v)
			if v.Note != "" {
				body.para("TableNote", "", []Run{{Text: v.Note, Italic: true}})
			}
		case Figure:
			label := num.figure(v.Caption)
			if err := body.figure(v); err != nil {
				return fmt.Errorf("embed %s: %w", label, err)
			}
			body.para("Caption", "center", []Run{{Text: label}})
		case Preformatted:
			body.preformatted(v.Text)
		case PageBreak:
			body.b.WriteString(`<w:p><w:r><w:br w:type="page"/></w:r></w:p>`)
		}
	}

	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(docxContentTypes)},
		{"_rels/.rels", []byte(docxRootRels)},
		{"docProps/core.xml", []byte(docxCore(doc))},
		{"word/document.xml", []byte(body.document(pw, ph))},
		{"word/styles.xml", []byte(docxStyles)},
		{"word/numbering.xml", []byte(docxNumbering)},
		{"word/_rels/document.xml.rels", []byte(body.rels())},
	}
	for _, m := range body.media {
		parts = append(parts, struct {
			name string
			data []byte
		}{"word/media/" + m.name, m.data})
	}
	for _, p := range parts {
		fw, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close docx: %w", err)
	}
	return nil
}

func (d *docxBody) titleBlock(doc *Document) {
	if doc.Title != "" {
		d.para("Title", "center", []Run{{Text: doc.Title}})
	}
	if doc.Subtitle != "" {
		d.para("Subtitle", "center", []Run{{Text: doc.Subtitle}})
	}
	if by := doc.Byline(); by != "" {
		d.para("", "center", []Run{{Text: by}})
	}
	if doc.Date != "" {
		d.para("", "center", []Run{{Text: doc.Date, Italic: true}})
	}
}

func (d *docxBody) para(style, align string, runs []Run) {
	d.b.WriteString("<w:p>")
	if style != "" || align != "" {
		d.b.WriteString("<w:pPr>")
		if style != "" {
			fmt.Fprintf(&d.b, `<w:pStyle w:val="%s"/>`, style)
		}
		if align != "" {
			fmt.Fprintf(&d.b, `<w:jc w:val="%s"/>`, align)
		}
		d.b.WriteString("</w:pPr>")
	}
	for _, r := range runs {
		d.run(r)
	}
	d.b.WriteString("</w:p>")
}

func (d *docxBody) run(r Run) {
	d.b.WriteString("<w:r>")
	if r.Bold || r.Italic || r.Mono {
		d.b.WriteString("<w:rPr>")
		if r.Mono {
			d.b.WriteString(`<w:rFonts w:ascii="Courier New" w:hAnsi="Courier New" w:cs="Courier New"/>`)
		}
		if r.Bold {
			d.b.WriteString("<w:b/>")
		}
		if r.Italic {
			d.b.WriteString("<w:i/>")
		}
		d.b.WriteString("</w:rPr>")
	}
	fmt.Fprintf(&d.b, `<w:t xml:space="preserve">%s</w:t>`, xmlText(r.Text))
	d.b.WriteString("</w:r>")
}

func (d *docxBody) table(t Table) {
	cols := tableWidth(t)
	if cols == 0 {
		return
	}
	d.b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="5000" w:type="pct"/>`)
	d.b.WriteString(`<w:tblBorders>`)
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(&d.b, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="999999"/>`, side)
	}
	d.b.WriteString(`</w:tblBorders></w:tblPr><w:tblGrid>`)
	colW := int(d.textW * twipsPerInch / float64(cols))
	for i := 0; i < cols; i++ {
		fmt.Fprintf(&d.b, `<w:gridCol w:w="%d"/>`, colW)
	}
	d.b.WriteString(`</w:tblGrid>`)
	if len(t.Header) > 0 {
		d.row(t.Header, cols, true)
	}
	for _, r := range t.Rows {
		d.row(r, cols, false)
	}
	d.b.WriteString(`</w:tbl>`)
	// Word merges a table with a directly following one unless a paragraph separates them.
	d.b.WriteString(`<w:p/>`)
}

func (d *docxBody) row(cells []string, cols int, header bool) {
	d.b.WriteString("<w:tr>")
	if header {
		d.b.WriteString(`<w:trPr><w:tblHeader/></w:trPr>`)
	}
	for i := 0; i < cols; i++ {
		c := ""
		if i < len(cells) {
			c = cells[i]
		}
		d.b.WriteString("<w:tc>")
		if header {
			fmt.Fprintf(&d.b, `<w:tcPr><w:shd w:val="clear" w:color="auto" w:fill="%s"/></w:tcPr>`, headerShading)
		}
		d.para("TableText", "", []Run{{Text: c, Bold: header}})
		d.b.WriteString("</w:tc>")
	}
	d.b.WriteString("</w:tr>")
}

func (d *docxBody) preformatted(text string) {
	d.b.WriteString(`<w:p><w:pPr><w:pStyle w:val="Code"/></w:pPr>`)
	for i, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if i > 0 {
			d.b.WriteString("<w:r><w:br/></w:r>")
		}
		d.run(Run{Text: line, Mono: true})
	}
	d.b.WriteString("</w:p>")
}

// figure embeds a PNG scaled to the text width, keeping its aspect ratio.
func (d *docxBody) figure(f Figure) error {
	if len(f.PNG) == 0 {
		return nil
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.PNG))
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("decode image: empty bounds")
	}
	d.drawing++
	m := docxMedia{
		rid:  fmt.Sprintf("rIdImg%d", d.drawing),
		name: fmt.Sprintf("image%d.png", d.drawing),
		data: f.PNG,
	}
	d.media = append(d.media, m)
	cx := int64(d.textW * emuPerInch)
	cy := cx * int64(cfg.Height) / int64(cfg.Width)
	fmt.Fprintf(&d.b, `<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:drawing>`+
		`<wp:inline distT="0" distB="0" distL="0" distR="0"><wp:extent cx="%[1]d" cy="%[2]d"/>`+
		`<wp:docPr id="%[3]d" name="Figure %[3]d"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%[3]d" name="%[4]s"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%[5]s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic>`+
		`</a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		cx, cy, d.drawing, m.name, m.rid)
	return nil
}

func (d *docxBody) document(pw, ph float64) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" ` +
		`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"><w:body>`)
	b.WriteString(d.b.String())
	m := int(docxMarginIn * twipsPerInch)
	fmt.Fprintf(&b, `<w:sectPr><w:pgSz w:w="%d" w:h="%d"/><w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`,
		int(pw*twipsPerInch+0.5), int(ph*twipsPerInch+0.5), m, m, m, m)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func (d *docxBody) rels() string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	b.WriteString(`<Relationship Id="rIdStyles" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	b.WriteString(`<Relationship Id="rIdNumbering" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/numbering" Target="numbering.xml"/>`)
	for _, m := range d.media {
		fmt.Fprintf(&b, `<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/%s"/>`, m.rid, m.name)
	}
	b.WriteString(`</Relationships>`)
	return b.String()
}

func docxCore(doc *Document) string {
	return xml.Header + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" ` +
		`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + xmlText(doc.Title) + `</dc:title>` +
		`<dc:creator>` + xmlText(strings.Join(doc.Authors, ", ")) + `</dc:creator>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + time.Now().UTC().Format(time.RFC3339) + `</dcterms:created>` +
		`</cp:coreProperties>`
}

func xmlText(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="png" ContentType="image/png"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
<Override PartName="/word/numbering.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.numbering+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`

const docxRootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`

const docxNumbering = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:numbering xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:start w:val="1"/><w:numFmt w:val="bullet"/><w:lvlText w:val="•"/><w:lvlJc w:val="left"/><w:pPr><w:ind w:left="720" w:hanging="360"/></w:pPr></w:lvl></w:abstractNum>
<w:num w:numId="1"><w:abstractNumId w:val="0"/></w:num>
</w:numbering>`

const docxStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/><w:sz w:val="22"/></w:rPr></w:rPrDefault>
<w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="276" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:after="240"/></w:pPr><w:rPr><w:b/><w:sz w:val="40"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Subtitle"><w:name w:val="Subtitle"/><w:basedOn w:val="Normal"/><w:rPr><w:i/><w:sz w:val="28"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:spacing w:before="360" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="1"/></w:pPr><w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:outlineLvl w:val="2"/></w:pPr><w:rPr><w:b/><w:sz w:val="24"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading4"><w:name w:val="heading 4"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:outlineLvl w:val="3"/></w:pPr><w:rPr><w:b/><w:i/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading5"><w:name w:val="heading 5"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:outlineLvl w:val="4"/></w:pPr><w:rPr><w:i/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Caption"><w:name w:val="caption"/><w:basedOn w:val="Normal"/><w:pPr><w:keepNext/></w:pPr><w:rPr><w:b/><w:sz w:val="20"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="TableText"><w:name w:val="Table Text"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:after="0"/></w:pPr><w:rPr><w:sz w:val="20"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="TableNote"><w:name w:val="Table Note"/><w:basedOn w:val="Normal"/><w:rPr><w:sz w:val="18"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Code"><w:name w:val="Code"/><w:basedOn w:val="Normal"/><w:pPr><w:spacing w:after="0" w:line="240" w:lineRule="auto"/></w:pPr><w:rPr><w:sz w:val="18"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="ListBullet"><w:name w:val="List Bullet"/><w:basedOn w:val="Normal"/><w:pPr><w:numPr><w:ilvl w:val="0"/><w:numId w:val="1"/></w:numPr></w:pPr></w:style>
<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:tblPr><w:tblCellMar><w:left w:w="108" w:type="dxa"/><w:right w:w="108" w:type="dxa"/></w:tblCellMar></w:tblPr></w:style>
</w:styles>`
