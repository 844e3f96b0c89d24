// Package report renders pathway summaries to standalone HTML and, through
// headless Chromium, to PDF.
package report

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// MetaItem is one labelled line in the page header.
type MetaItem struct {
	Label string
	Value string
}

type Page struct {
	Title    string
	Meta     []MetaItem
	Markdown string
}

const styleCSS = `
body{font-family:-apple-system,"Segoe UI",Helvetica,Arial,sans-serif;color:#1c1917;background:#fff;margin:0;padding:0.6rem;line-height:1.5;}
.pdf-wrap{max-width:1000px;margin:0 auto;}
.report-header{border-bottom:2px solid #1d4ed8;margin-bottom:1rem;padding-bottom:0.5rem;}
.report-header h1{margin:0 0 0.35rem 0;font-size:1.5rem;}
.report-meta{color:#44403c;font-size:0.85rem;}
.report-meta strong{color:#1c1917;}
.report-html h2{border-bottom:1px solid #e7e5e4;padding-bottom:0.2rem;}
.report-html table{width:100%;border-collapse:collapse;border:1px solid #a8a29e;font-size:0.8rem;}
.report-html th,.report-html td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
.report-html thead th{background:#f1f5f9;font-weight:700;}
.report-html pre{background:#f9f7f3;padding:0.6rem;overflow-x:auto;}
.marker{font-weight:700;padding:0 0.25rem;border-radius:3px;}
.marker-alert{background:#fee2e2;color:#991b1b;}
.marker-supplemental{background:#fef3c7;color:#78350f;}
hr.pathway-break{break-after:page;page-break-after:always;border:0;border-top:1px dashed #a8a29e;}
@media print{ @page{size:auto;margin:12mm;} body{padding:0;} .pdf-wrap{max-width:none;} }
`

var (
	reDetailAlert  = regexp.MustCompile(`\[DETAIL ALERT\]`)
	reSupplemental = regexp.MustCompile(`\[SUPPLEMENTAL DETAILS\]`)
	reRule         = regexp.MustCompile(`<hr\s*/?>`)
)

// BuildHTML converts p.Markdown with GitHub-flavoured extensions and wraps it
// in a self-contained document. Title and meta values are escaped.
func BuildHTML(p Page) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(p.Markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	var meta strings.Builder
	for _, m := range p.Meta {
		if strings.TrimSpace(m.Value) == "" {
			continue
		}
		meta.WriteString("<div><strong>" + html.EscapeString(m.Label) + ":</strong> " + html.EscapeString(m.Value) + "</div>")
	}

	title := html.EscapeString(p.Title)
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + title + "</title>" +
		"<style>" + styleCSS + "</style></head><body>" +
		"<div class='pdf-wrap'><div class='report-header'><h1>" + title + "</h1>" +
		"<div class='report-meta'>" + meta.String() + "</div></div>" +
		"<div class='report-html'>" + applyLayoutHooks(content.String()) + "</div></div>" +
		"</body></html>", nil
}

// applyLayoutHooks highlights the extraction markers the page analysis asks
// the model to emit and turns rules into page breaks.
func applyLayoutHooks(contentHTML string) string {
	out := reDetailAlert.ReplaceAllString(contentHTML, `<span class="marker marker-alert">[DETAIL ALERT]</span>`)
	out = reSupplemental.ReplaceAllString(out, `<span class="marker marker-supplemental">[SUPPLEMENTAL DETAILS]</span>`)
	out = reRule.ReplaceAllString(out, `<hr class="pathway-break">`)
	return out
}
