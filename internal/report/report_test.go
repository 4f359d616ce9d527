package report

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		img.Set(x, 10, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func sampleDoc(t *testing.T) *Document {
	d := &Document{
		Title:       "Kiln Trial",
		Subtitle:    "Weight loss of smoked fish",
		Authors:     []string{"A. Author", "B. Author"},
		Institution: "Dept. of Food Science",
		Date:        "2024-05-01",
	}
	d.Add(
		Heading{Level: 1, Text: "Results"},
		Paragraph{Runs: []Run{{Text: "Loss was "}, {Text: "significant", Bold: true}, {Text: " (p < 0.05)."}}},
		Bullets{Items: []string{"kiln A dried fastest", "kiln C slowest"}},
		Table{Caption: "Means", Header: []string{"Kiln", "Mean | SD"}, Rows: [][]string{{"A", "12.1"}, {"B", "9.8", "extra"}}, Note: "n = 4 per kiln"},
		Figure{Name: "loss", Caption: "Loss curve", PNG: tinyPNG(t)},
		Preformatted{Text: "F(2, 9) = 27.0\n"},
		PageBreak{},
		Para("Closing remarks."),
	)
	return d
}

func TestLookupAndFormats(t *testing.T) {
	assert.Equal(t, []string{"docx", "html", "md", "pdf"}, Formats())
	for _, f := range Formats() {
		r, err := Lookup(strings.ToUpper(f))
		require.NoError(t, err)
		assert.Equal(t, f, r.Format())
		assert.Equal(t, "."+f, r.Ext())
	}
	_, err := Lookup("odt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docx, html, md, pdf")
}

func TestMarkdown(t *testing.T) {
	d := sampleDoc(t)
	md := Markdown(d, true)
	for _, want := range []string{
		"# Kiln Trial\n",
		"_Weight loss of smoked fish_",
		"A. Author, B. Author · Dept. of Food Science",
		"## Results\n",
		"Loss was **significant** (p < 0.05).",
		"- kiln C slowest\n",
		"**Table 1: Means**",
		"| Kiln | Mean \\| SD |  |\n| --- | --- | --- |",
		"| B | 9.8 | extra |",
		"_n = 4 per kiln_",
		"![Figure 1: Loss curve](data:image/png;base64,",
		"```\nF(2, 9) = 27.0\n```",
	} {
		assert.Contains(t, md, want)
	}

	ref := Markdown(d, false)
	assert.Contains(t, ref, "![Figure 1: Loss curve](loss.png)")
	assert.NotContains(t, ref, "base64")
}

func TestMarkdownRuns(t *testing.T) {
	got := markdownRuns([]Run{{Text: "a "}, {Text: " b ", Italic: true}, {Text: "c", Mono: true}, {Text: "d", Bold: true, Italic: true}})
	assert.Equal(t, "a  _b_ `c`***d***", got)
}

func TestRenderHTML(t *testing.T) {
	r, err := Lookup("html")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleDoc(t), Options{}))
	out := buf.String()
	assert.Contains(t, out, "<title>Kiln Trial</title>")
	assert.Contains(t, out, ">Results</h2>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, `<img src="data:image/png;base64,`)
	assert.Contains(t, out, "<strong>significant</strong>")
}

func TestRenderDOCX(t *testing.T) {
	r, err := Lookup("docx")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Render(&buf, sampleDoc(t), Options{PageSize: "letter"}))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(b)
	}
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml", "word/numbering.xml", "word/_rels/document.xml.rels", "word/media/image1.png", "docProps/core.xml"} {
		assert.Contains(t, files, name)
	}
	doc := files["word/document.xml"]
	assert.Contains(t, doc, `<w:pStyle w:val="Title"/>`)
	assert.Contains(t, doc, `<w:pStyle w:val="Heading1"/>`)
	assert.Contains(t, doc, "Table 1: Means")
	assert.Contains(t, doc, "Figure 1: Loss curve")
	assert.Contains(t, doc, "(p &lt; 0.05).")
	assert.Contains(t, doc, `r:embed="rIdImg1"`)
	assert.Contains(t, doc, `w:fill="D9E2F3"`)
	assert.Contains(t, doc, `<w:br w:type="page"/>`)
	assert.Contains(t, doc, `<w:pgSz w:w="12240" w:h="15840"/>`)
	// 6.5in text width, 2:1 image.
	assert.Contains(t, doc, `<wp:extent cx="5943600" cy="2971800"/>`)
	assert.Contains(t, files["word/_rels/document.xml.rels"], `Target="media/image1.png"`)
	assert.Contains(t, files["docProps/core.xml"], "<dc:title>Kiln Trial</dc:title>")
}

func TestRenderDOCXRejectsBadImage(t *testing.T) {
	r, _ := Lookup("docx")
	d := &Document{Blocks: []Block{Figure{Caption: "broken", PNG: []byte("not a png")}}}
	err := r.Render(io.Discard, d, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Figure 1: broken")
}

func TestRenderPDF(t *testing.T) {
	r, err := Lookup("pdf")
	require.NoError(t, err)
	for _, size := range []string{"", "Letter"} {
		var buf bytes.Buffer
		require.NoError(t, r.Render(&buf, sampleDoc(t), Options{PageSize: size}))
		assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
		assert.Contains(t, buf.String(), "/Count 2")
	}
}
