// Package condenser distills complete pathway summaries into short
// patient-matching paragraphs and a consolidated corpus.
package condenser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/rs/zerolog"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/console"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

const (
	Temperature = 0.3
	MaxTokens   = 2000
)

const DefaultSystemPrompt = "You are a clinical pathway specialist creating concise summaries for patient matching. " +
	"Your task is to identify and extract ONLY the key diagnostic elements, conditions, " +
	"biomarkers, and treatments that would help determine if a patient should follow " +
	"this specific pathway. Focus on concrete, specific details that would appear in " +
	"patient records. Prioritize clarity and relevance for matching algorithms. " +
	"Be precise about diagnostic criteria, disease classifications, and treatment " +
	"indicators. Avoid general descriptions of the condition when possible."

const instruction = "Create a condensed 400-word summary of this clinical pathway that focuses ONLY on " +
	"information useful for matching patients to this pathway. Specifically highlight:\n" +
	"1. Key diagnostic tests required to determine eligibility\n" +
	"2. Specific medical conditions and diagnostic criteria\n" +
	"3. Relevant biomarkers, staging, or classification systems\n" +
	"4. Essential treatments and medications mentioned\n\n" +
	"The summary should allow a model to easily identify if a patient's medical record " +
	"indicates they should follow this particular clinical pathway. Format the output " +
	"as a single paragraph without headings or bullet points."

// Model issues one non-streamed request. *llm.Client satisfies it.
type Model interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

type Options struct {
	InputDir     string
	OutputDir    string
	SystemPrompt string
}

type Result struct {
	Successful int
	Failed     int
	// Corpus is the path of the consolidated file, empty when none was written.
	Corpus string
}

type Condenser struct {
	model    Model
	opts     Options
	log      zerolog.Logger
	echo     io.Writer
	recorder pathway.Recorder
	now      func() time.Time
}

func New(model Model, opts Options, log zerolog.Logger, echo io.Writer, recorder pathway.Recorder) *Condenser {
	if echo == nil {
		echo = io.Discard
	}
	if recorder == nil {
		recorder = pathway.NopRecorder
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	return &Condenser{
		model:    model,
		opts:     opts,
		log:      log.With().Str("stage", pathway.StageMatch).Logger(),
		echo:     echo,
		recorder: recorder,
		now:      time.Now,
	}
}

func Prompt(cleanName, completeSummary string) string {
	return fmt.Sprintf("I need a condensed summary of the following clinical pathway: %s\n\nComplete pathway information:\n%s\n\n",
		cleanName, completeSummary) + instruction
}

// Run condenses every complete summary in InputDir and, when at least one
// succeeded, rebuilds the consolidated corpus from every matching text file
// present in OutputDir.
func (c *Condenser) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartStage(ctx, pathway.StageMatch)
	defer func() { telemetry.End(span, err) }()

	files, err := pathway.ListBySuffix(c.opts.InputDir, pathway.CompleteSuffix)
	if err != nil {
		return Result{}, &pathway.StageError{Stage: pathway.StageMatch, Err: err}
	}
	if len(files) == 0 {
		c.log.Warn().Str("dir", c.opts.InputDir).Msg("no complete summary files found")
		return Result{}, nil
	}
	c.log.Info().Int("count", len(files)).Msg("found summary files to process")

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		base := filepath.Base(file)
		clean := pathway.CleanName(base)
		console.FormatDocument(c.echo, i+1, len(files), base)

		art, err := c.Document(ctx, file)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			c.log.Error().Err(err).Str("file", base).Msg("matching summary failed")
			c.record(ctx, pathway.Event{Stage: pathway.StageMatch, Document: clean, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
			continue
		}
		res.Successful++
		c.log.Info().Str("pathway", clean).Int("word_count", art.WordCount).Msg("created matching summary")
		c.record(ctx, pathway.Event{
			Stage:    pathway.StageMatch,
			Document: clean,
			Outcome:  pathway.OutcomeSuccess,
			Detail:   fmt.Sprintf("%d words", art.WordCount),
			Artifact: pathway.MatchingJSONPath(c.opts.OutputDir, clean),
		})
	}

	if res.Successful > 0 {
		corpus, n, err := c.WriteCorpus()
		if err != nil {
			return res, &pathway.StageError{Stage: pathway.StageMatch, Document: pathway.CorpusFile, Err: err}
		}
		res.Corpus = corpus
		c.log.Info().Str("file", corpus).Int("summaries", n).Msg("created consolidated file with all summaries")
	}
	return res, nil
}

// Document condenses one complete-summary artifact and writes its JSON and
// plain-text siblings, overwriting any earlier pair of the same name.
func (c *Condenser) Document(ctx context.Context, file string) (_ pathway.MatchingSummaryArtifact, err error) {
	base := filepath.Base(file)
	clean := pathway.CleanName(base)
	ctx, span := telemetry.StartDocument(ctx, pathway.StageMatch, clean)
	defer func() { telemetry.End(span, err) }()

	var in pathway.CompleteSummaryArtifact
	if err := pathway.ReadJSON(file, &in); err != nil {
		return pathway.MatchingSummaryArtifact{}, err
	}

	req := llm.Request{
		System:      c.opts.SystemPrompt,
		Blocks:      []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(Prompt(clean, in.CompleteSummary.Response))},
		Temperature: Temperature,
		MaxTokens:   MaxTokens,
	}
	text, err := c.model.Complete(ctx, req)
	if err != nil {
		return pathway.MatchingSummaryArtifact{}, err
	}

	art := pathway.NewMatchingSummary(clean, base, text, c.now())
	if err := pathway.WriteJSON(pathway.MatchingJSONPath(c.opts.OutputDir, clean), art); err != nil {
		return pathway.MatchingSummaryArtifact{}, fmt.Errorf("write matching json: %w", err)
	}
	if err := pathway.WriteFile(pathway.MatchingTextPath(c.opts.OutputDir, clean), []byte(art.PlainText())); err != nil {
		return pathway.MatchingSummaryArtifact{}, fmt.Errorf("write matching text: %w", err)
	}
	return art, nil
}

// WriteCorpus rebuilds the consolidated corpus file and returns its path and
// the number of summaries it joins.
func (c *Condenser) WriteCorpus() (string, int, error) {
	corpus, n, err := pathway.BuildCorpus(c.opts.OutputDir)
	if err != nil {
		return "", 0, err
	}
	path := pathway.CorpusPath(c.opts.OutputDir)
	if err := pathway.WriteFile(path, []byte(corpus)); err != nil {
		return "", 0, err
	}
	return path, n, nil
}

func (c *Condenser) record(ctx context.Context, ev pathway.Event) {
	if err := c.recorder.Record(ctx, ev); err != nil {
		c.log.Warn().Err(err).Str("pathway", ev.Document).Msg("ledger write failed")
	}
}
