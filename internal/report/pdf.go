package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Printer turns an HTML document into PDF bytes. title labels every page.
type Printer interface {
	Print(ctx context.Context, title, htmlDoc string) ([]byte, error)
}

// Paper is a sheet size in inches.
type Paper struct {
	Name          string
	Width, Height float64
}

var (
	Letter = Paper{Name: "letter", Width: 8.5, Height: 11}
	A4     = Paper{Name: "a4", Width: 8.27, Height: 11.69}
	Legal  = Paper{Name: "legal", Width: 8.5, Height: 14}
)

// ParsePaper resolves a paper name, case-insensitively.
func ParsePaper(name string) (Paper, error) {
	for _, p := range []Paper{Letter, A4, Legal} {
		if strings.EqualFold(strings.TrimSpace(name), p.Name) {
			return p, nil
		}
	}
	return Paper{}, fmt.Errorf("unknown paper size %q (want letter, a4 or legal)", name)
}

type PrintOptions struct {
	Paper     Paper
	Landscape bool
	Timeout   time.Duration
}

// ChromiumPrinter prints through a headless Chromium started per call.
type ChromiumPrinter struct {
	chromePath string
	opts       PrintOptions
}

func NewChromiumPrinter(opts PrintOptions) *ChromiumPrinter {
	if opts.Paper.Width == 0 || opts.Paper.Height == 0 {
		opts.Paper = Letter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &ChromiumPrinter{chromePath: detectChromePath(), opts: opts}
}

// params builds the print settings; the footer names the pathway on the
// left and counts pages on the right.
func (p *ChromiumPrinter) params(title string) *page.PrintToPDFParams {
	footer := `<div style="width:100%;display:flex;justify-content:space-between;font-size:8px;color:#6b7280;padding:0 0.5in;">` +
		`<span>` + html.EscapeString(title) + `</span>` +
		`<span><span class="pageNumber"></span> / <span class="totalPages"></span></span></div>`
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithLandscape(p.opts.Landscape).
		WithDisplayHeaderFooter(true).
		WithHeaderTemplate(`<span></span>`).
		WithFooterTemplate(footer).
		WithPaperWidth(p.opts.Paper.Width).
		WithPaperHeight(p.opts.Paper.Height).
		WithMarginTop(0.6).
		WithMarginBottom(0.7).
		WithMarginLeft(0.6).
		WithMarginRight(0.6)
}

func (p *ChromiumPrinter) browser(ctx context.Context) (context.Context, context.CancelFunc) {
	flags := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if p.chromePath != "" {
		flags = append(flags, chromedp.ExecPath(p.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, flags...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

func (p *ChromiumPrinter) Print(ctx context.Context, title, htmlDoc string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	taskCtx, closeBrowser := p.browser(ctx)
	defer closeBrowser()

	params := p.params(title)
	var pdf []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;base64,"+base64.StdEncoding.EncodeToString([]byte(htmlDoc))),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) (err error) {
			pdf, _, err = params.Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromium print: %w", err)
	}
	return pdf, nil
}

func detectChromePath() string {
	if p := strings.TrimSpace(os.Getenv("CHROME_PATH")); p != "" {
		return p
	}
	for _, p := range []string{
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
