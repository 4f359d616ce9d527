package report

import (
	"fmt"
	"html/template"
	"io"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

type htmlRenderer struct{}

func (htmlRenderer) Format() string { return "html" }
func (htmlRenderer) Ext() string    { return ".html" }

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, "Times New Roman", serif; max-width: {{.Width}}; margin: 2em auto; padding: 0 1em; line-height: 1.5; color: #222; }
h1, h2, h3, h4 { font-family: Helvetica, Arial, sans-serif; }
table { border-collapse: collapse; margin: 1em 0; }
th, td { border: 1px solid #bbb; padding: 0.3em 0.6em; text-align: left; }
th { background: #e8eef4; }
img { max-width: 100%; }
pre { background: #f5f5f5; padding: 0.8em; overflow-x: auto; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

func (htmlRenderer) Render(w io.Writer, doc *Document, opt Options) error {
	md := []byte(Markdown(doc, true))
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	body := markdown.ToHTML(md, p, r)

	width := "50em"
	if opt.pageSize() == "Letter" {
		width = "52em"
	}
	data := struct {
		Title string
		Width string
		Body  template.HTML
	}{doc.Title, width, template.HTML(body)}
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	return nil
}
