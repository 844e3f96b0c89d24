// Package analyzer extracts a structured description of every page image of
// a pathway document and a short cross-page summary.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/console"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

// ErrTooFewPages is returned for documents with fewer than two page images.
var ErrTooFewPages = errors.New("not enough pages")

// Model streams one request. *llm.Client satisfies it.
type Model interface {
	Stream(ctx context.Context, req llm.Request, echo io.Writer) (llm.Result, error)
}

type Options struct {
	ImageRoot    string
	OutputDir    string
	SystemPrompt string
	Config       config.Config
}

type Result struct {
	Processed  int
	Skipped    int
	Failed     int
	PageErrors int
}

type Analyzer struct {
	model    Model
	opts     Options
	log      zerolog.Logger
	echo     io.Writer
	recorder pathway.Recorder
	now      func() time.Time

	pageErrors int
}

// New returns an Analyzer. echo receives the streamed model output and the
// per-document progress headers; it may be nil.
func New(model Model, opts Options, log zerolog.Logger, echo io.Writer, recorder pathway.Recorder) *Analyzer {
	if echo == nil {
		echo = io.Discard
	}
	if recorder == nil {
		recorder = pathway.NopRecorder
	}
	return &Analyzer{
		model:    model,
		opts:     opts,
		log:      log.With().Str("stage", pathway.StageExtract).Logger(),
		echo:     echo,
		recorder: recorder,
		now:      time.Now,
	}
}

// Run analyzes every document folder under ImageRoot.
func (a *Analyzer) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartStage(ctx, pathway.StageExtract)
	defer func() { telemetry.End(span, err) }()

	folders, err := pathway.ListDocumentFolders(a.opts.ImageRoot)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			a.log.Warn().Str("dir", a.opts.ImageRoot).Msg("image folder not found")
			return Result{}, nil
		}
		return Result{}, &pathway.StageError{Stage: pathway.StageExtract, Err: err}
	}
	if len(folders) == 0 {
		a.log.Warn().Str("dir", a.opts.ImageRoot).Msg("no PDF folders found")
		return Result{}, nil
	}
	a.log.Info().Int("count", len(folders)).Msg("found PDF folders to process")

	for i, folder := range folders {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := filepath.Base(folder)
		console.FormatDocument(a.echo, i+1, len(folders), name)

		a.pageErrors = 0
		artifact, err := a.Document(ctx, folder)
		res.PageErrors += a.pageErrors
		switch {
		case errors.Is(err, ErrTooFewPages):
			res.Skipped++
			a.log.Info().Str("pathway", name).Msg("not enough pages, skipping")
			a.record(ctx, pathway.Event{Stage: pathway.StageExtract, Document: name, Outcome: pathway.OutcomeSkipped, Detail: err.Error()})
			continue
		case err != nil:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			a.log.Error().Err(err).Str("pathway", name).Msg("extraction failed")
			a.record(ctx, pathway.Event{Stage: pathway.StageExtract, Document: name, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
			continue
		}

		out := pathway.ExtractionPath(a.opts.OutputDir, name)
		if err := pathway.WriteJSON(out, artifact); err != nil {
			res.Failed++
			a.log.Error().Err(err).Str("pathway", name).Msg("write extraction artifact")
			a.record(ctx, pathway.Event{Stage: pathway.StageExtract, Document: name, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
			continue
		}
		res.Processed++
		a.log.Info().Str("pathway", name).Str("file", out).Int("records", len(artifact.Responses)).Msg("pathway processing complete")
		a.record(ctx, pathway.Event{
			Stage:    pathway.StageExtract,
			Document: name,
			Outcome:  pathway.OutcomeSuccess,
			Detail:   fmt.Sprintf("%d records, %d page errors", len(artifact.Responses), a.pageErrors),
			Artifact: out,
		})
	}
	return res, nil
}

// Document analyzes one folder of page images. Per-page and summary request
// errors are logged and the record omitted; the returned error is reserved
// for unreadable folders, too few pages and cancellation.
func (a *Analyzer) Document(ctx context.Context, folder string) (_ *pathway.ExtractionArtifact, err error) {
	name := filepath.Base(folder)
	ctx, span := telemetry.StartDocument(ctx, pathway.StageExtract, name)
	defer func() { telemetry.End(span, err) }()

	images, err := pathway.ListPageImages(folder)
	if err != nil {
		return nil, err
	}
	if len(images) < 2 {
		return nil, fmt.Errorf("%w: %d page images", ErrTooFewPages, len(images))
	}
	// The first page is the title slide.
	images = images[1:]

	records := make([]pathway.PageRecord, 0, len(images)+1)
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := pathway.Page(i + 2)
		log := a.log.With().Str("pathway", name).Int("page", page.Number()).Str("file", img.Name).Logger()
		log.Info().Msg("processing page")

		rec, err := a.page(ctx, img, page)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.pageErrors++
			log.Error().Err(err).Msg("page request failed")
			continue
		}
		records = append(records, rec)
	}

	a.log.Info().Str("pathway", name).Msg("requesting summary")
	res, err := a.model.Stream(ctx, llm.TextRequest(a.opts.Config, a.opts.SystemPrompt, SummaryPrompt(records)), a.echo)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.pageErrors++
		a.log.Error().Err(err).Str("pathway", name).Msg("summary request failed")
	} else {
		records = append(records, pathway.PageRecord{Page: pathway.Summary(), Response: res.Text, Thinking: res.Thinking})
	}

	return &pathway.ExtractionArtifact{
		PathwayName: name,
		ProcessedAt: a.now(),
		Responses:   records,
	}, nil
}

func (a *Analyzer) page(ctx context.Context, img pathway.PageImage, page pathway.PageRef) (pathway.PageRecord, error) {
	block, err := llm.ImageBlock(img.Path)
	if err != nil {
		return pathway.PageRecord{}, err
	}
	req := llm.Request{
		System:         a.opts.SystemPrompt,
		Blocks:         []anthropic.ContentBlockParamUnion{block, anthropic.NewTextBlock(flowchartPrompt)},
		Temperature:    a.opts.Config.Temperature,
		MaxTokens:      a.opts.Config.MaxTokens,
		ThinkingBudget: a.opts.Config.ThinkingBudget,
	}
	res, err := a.model.Stream(ctx, req, a.echo)
	if err != nil {
		return pathway.PageRecord{}, err
	}
	return pathway.PageRecord{Page: page, ImageFile: img.Name, Response: res.Text, Thinking: res.Thinking}, nil
}

func (a *Analyzer) record(ctx context.Context, ev pathway.Event) {
	if err := a.recorder.Record(ctx, ev); err != nil {
		a.log.Warn().Err(err).Str("pathway", ev.Document).Msg("ledger write failed")
	}
}
