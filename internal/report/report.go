package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

const corpusReport = "all_pathway_summaries"

type Options struct {
	CompleteDir string
	MatchingDir string
	OutputDir   string
	// PDF also prints every HTML report through Printer.
	PDF   bool
	Print PrintOptions
}

type Result struct {
	Rendered int
	Failed   int
	Files    []string
}

type Renderer struct {
	opts     Options
	printer  Printer
	log      zerolog.Logger
	recorder pathway.Recorder
}

// New returns a Renderer. printer is only used when opts.PDF is set and
// defaults to a ChromiumPrinter.
func New(opts Options, printer Printer, log zerolog.Logger, recorder pathway.Recorder) *Renderer {
	if printer == nil && opts.PDF {
		printer = NewChromiumPrinter(opts.Print)
	}
	if recorder == nil {
		recorder = pathway.NopRecorder
	}
	return &Renderer{
		opts:     opts,
		printer:  printer,
		log:      log.With().Str("stage", pathway.StageRender).Logger(),
		recorder: recorder,
	}
}

// SummaryPage builds the report page for one complete summary.
func SummaryPage(art pathway.CompleteSummaryArtifact) Page {
	at := ""
	if !art.ProcessedAt.IsZero() {
		at = art.ProcessedAt.Format("January 2, 2006 at 3:04 PM MST")
	}
	return Page{
		Title: art.PathwayName,
		Meta: []MetaItem{
			{Label: "Source", Value: art.OriginalFile},
			{Label: "Generated", Value: at},
		},
		Markdown: art.CompleteSummary.Response,
	}
}

// CorpusPage builds one page listing every matching summary in corpus, a
// section per pathway.
func CorpusPage(corpus string) Page {
	var sections []string
	for _, part := range strings.Split(corpus, pathway.CorpusDelimiter) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(part, "PATHWAY: "); ok {
			name, body, _ := strings.Cut(rest, "\n")
			part = "## " + strings.TrimSpace(name) + "\n\n" + strings.TrimSpace(body)
		}
		sections = append(sections, part)
	}
	return Page{
		Title:    "Pathway Matching Summaries",
		Meta:     []MetaItem{{Label: "Pathways", Value: fmt.Sprintf("%d", len(sections))}},
		Markdown: strings.Join(sections, "\n\n---\n\n"),
	}
}

// Run renders every complete summary and, when present, the consolidated
// matching corpus.
func (r *Renderer) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartStage(ctx, pathway.StageRender)
	defer func() { telemetry.End(span, err) }()

	files, err := pathway.ListBySuffix(r.opts.CompleteDir, pathway.CompleteSuffix)
	if err != nil {
		return Result{}, &pathway.StageError{Stage: pathway.StageRender, Err: err}
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var art pathway.CompleteSummaryArtifact
		if err := pathway.ReadJSON(file, &art); err != nil {
			res.Failed++
			r.log.Error().Err(err).Str("file", filepath.Base(file)).Msg("read complete summary")
			continue
		}
		name := art.PathwayName
		if !pathway.PlainName(name) {
			name = strings.TrimSuffix(filepath.Base(file), pathway.CompleteSuffix)
		}
		r.renderOne(ctx, name, SummaryPage(art), &res)
	}

	corpus, err := os.ReadFile(pathway.CorpusPath(r.opts.MatchingDir))
	switch {
	case err == nil:
		r.renderOne(ctx, corpusReport, CorpusPage(string(corpus)), &res)
	case !os.IsNotExist(err):
		return res, &pathway.StageError{Stage: pathway.StageRender, Document: pathway.CorpusFile, Err: err}
	}

	if res.Rendered == 0 && res.Failed == 0 {
		r.log.Warn().Str("dir", r.opts.CompleteDir).Msg("nothing to render")
	}
	return res, ctx.Err()
}

func (r *Renderer) renderOne(ctx context.Context, name string, p Page, res *Result) {
	paths, err := r.Render(ctx, name, p)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		res.Failed++
		r.log.Error().Err(err).Str("pathway", name).Msg("render failed")
		r.record(ctx, pathway.Event{Stage: pathway.StageRender, Document: name, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
		return
	}
	res.Rendered++
	res.Files = append(res.Files, paths...)
	r.log.Info().Str("pathway", name).Strs("files", paths).Msg("report written")
	r.record(ctx, pathway.Event{Stage: pathway.StageRender, Document: name, Outcome: pathway.OutcomeSuccess, Artifact: paths[0]})
}

// Render writes <OutputDir>/<name>.html and, with PDF enabled, the matching
// .pdf. It returns the written paths.
func (r *Renderer) Render(ctx context.Context, name string, p Page) (_ []string, err error) {
	ctx, span := telemetry.StartDocument(ctx, pathway.StageRender, name)
	defer func() { telemetry.End(span, err) }()

	doc, err := BuildHTML(p)
	if err != nil {
		return nil, err
	}
	htmlPath := filepath.Join(r.opts.OutputDir, name+".html")
	if err := pathway.WriteFile(htmlPath, []byte(doc)); err != nil {
		return nil, fmt.Errorf("write html: %w", err)
	}
	paths := []string{htmlPath}
	if !r.opts.PDF {
		return paths, nil
	}

	start := time.Now()
	pdf, err := r.printer.Print(ctx, p.Title, doc)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	pdfPath := filepath.Join(r.opts.OutputDir, name+".pdf")
	if err := pathway.WriteFile(pdfPath, pdf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	r.log.Debug().Str("pathway", name).Dur("elapsed", time.Since(start)).Int("bytes", len(pdf)).Msg("pdf printed")
	return append(paths, pdfPath), nil
}

func (r *Renderer) record(ctx context.Context, ev pathway.Event) {
	if err := r.recorder.Record(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("pathway", ev.Document).Msg("ledger write failed")
	}
}
