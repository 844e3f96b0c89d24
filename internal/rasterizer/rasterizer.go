// Package rasterizer renders source PDFs into fixed-width page images.
package rasterizer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/image/draw"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 648
	DefaultDPI    = 200
)

type Options struct {
	PDFDir       string
	OutputDir    string
	TargetWidth  int
	TargetHeight int
	DPI          float64
}

func (o Options) withDefaults() Options {
	if o.TargetWidth <= 0 {
		o.TargetWidth = DefaultWidth
	}
	if o.TargetHeight <= 0 {
		o.TargetHeight = DefaultHeight
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	return o
}

// Result tallies one rasterize run.
type Result struct {
	Processed int
	Failed    int
	Pages     int
}

// PageSource is an open PDF that renders pages to bitmaps.
type PageSource interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

// Opener opens a PDF for rendering. It exists so tests can inject a fake.
type Opener func(path string) (PageSource, error)

func openFitz(path string) (PageSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type Rasterizer struct {
	opts     Options
	log      zerolog.Logger
	progress io.Writer
	recorder pathway.Recorder
	open     Opener
}

// New returns a Rasterizer. progress receives the per-document progress
// bars and may be nil.
func New(opts Options, log zerolog.Logger, progress io.Writer, recorder pathway.Recorder) *Rasterizer {
	if progress == nil {
		progress = io.Discard
	}
	if recorder == nil {
		recorder = pathway.NopRecorder
	}
	return &Rasterizer{
		opts:     opts.withDefaults(),
		log:      log.With().Str("stage", pathway.StageRasterize).Logger(),
		progress: progress,
		recorder: recorder,
		open:     openFitz,
	}
}

// Run converts every PDF in PDFDir. A failing PDF is logged and counted;
// only cancellation or an unreadable input directory aborts the run.
func (r *Rasterizer) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartStage(ctx, pathway.StageRasterize)
	defer func() { telemetry.End(span, err) }()

	pdfs, err := pathway.ListPDFs(r.opts.PDFDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.log.Warn().Str("dir", r.opts.PDFDir).Msg("PDF folder not found")
			return Result{}, nil
		}
		return Result{}, &pathway.StageError{Stage: pathway.StageRasterize, Err: err}
	}
	r.log.Info().Int("count", len(pdfs)).Msg("found PDF files to process")
	if err := os.MkdirAll(r.opts.OutputDir, 0o755); err != nil {
		return Result{}, &pathway.StageError{Stage: pathway.StageRasterize, Err: err}
	}

	for _, pdf := range pdfs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := pathway.Stem(pdf)
		pages, err := r.Document(ctx, pdf)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			r.log.Error().Err(err).Str("file", filepath.Base(pdf)).Msg("error processing PDF")
			r.record(ctx, pathway.Event{Stage: pathway.StageRasterize, Document: name, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
			continue
		}
		res.Processed++
		res.Pages += pages
		r.log.Info().Str("file", filepath.Base(pdf)).Int("pages", pages).Msg("saved pages")
		r.record(ctx, pathway.Event{
			Stage:    pathway.StageRasterize,
			Document: name,
			Outcome:  pathway.OutcomeSuccess,
			Detail:   fmt.Sprintf("%d pages", pages),
			Artifact: filepath.Join(r.opts.OutputDir, name),
		})
	}
	return res, nil
}

// Document renders one PDF into OutputDir/<stem>/pg<N>.png and returns the
// number of pages written.
func (r *Rasterizer) Document(ctx context.Context, pdfPath string) (n int, err error) {
	name := pathway.Stem(pdfPath)
	ctx, span := telemetry.StartDocument(ctx, pathway.StageRasterize, name)
	defer func() { telemetry.End(span, err) }()

	outDir := filepath.Join(r.opts.OutputDir, name)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, err
	}

	doc, err := r.open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", filepath.Base(pdfPath), err)
	}
	defer doc.Close()

	total := doc.NumPage()
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.progress),
		progressbar.OptionSetDescription(name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(r.progress) }),
	)
	defer bar.Finish()

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		src, err := doc.ImageDPI(i, r.opts.DPI)
		if err != nil {
			return n, fmt.Errorf("render page %d: %w", i+1, err)
		}
		img := Fit(src, r.opts.TargetWidth, r.opts.TargetHeight)
		if err := writePNG(filepath.Join(outDir, pathway.PageImageName(i+1)), img); err != nil {
			return n, fmt.Errorf("write page %d: %w", i+1, err)
		}
		n++
		_ = bar.Add(1)
	}
	return n, nil
}

func (r *Rasterizer) record(ctx context.Context, ev pathway.Event) {
	if err := r.recorder.Record(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("pathway", ev.Document).Msg("ledger write failed")
	}
}

// Fit scales src to width w, preserving aspect ratio, and keeps only the
// top h rows when the result is taller than h.
func Fit(src image.Image, w, h int) image.Image {
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	scaledH := int(float64(b.Dy()) * float64(w) / float64(b.Dx()))
	if scaledH < 1 {
		scaledH = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, scaledH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	if scaledH > h {
		return dst.SubImage(image.Rect(0, 0, w, h))
	}
	return dst
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := png.Encode(bw, img); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
