// Package synthesizer turns each extraction artifact into one comprehensive
// pathway summary.
package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/console"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/telemetry"
)

const DefaultSystemPrompt = "You are a clinical expert synthesizing medical pathway information. " +
	"Your task is to create comprehensive, authoritative summaries of clinical pathways " +
	"that would serve as definitive reference documents for healthcare providers. " +
	"Organize information logically, emphasize key decision points, and ensure all critical " +
	"diagnostic and treatment elements are included. Be thorough, precise, and clinically relevant."

const instruction = "Based on all the information above, please provide a comprehensive, detailed summary " +
	"of this entire clinical pathway. Include all key decision points, treatment options, " +
	"diagnostic criteria, and clinical workflows. Organize the information in a clear, " +
	"structured format that would be useful for clinicians. This should be a definitive " +
	"reference summary of the entire pathway document."

// Model streams one request. *llm.Client satisfies it.
type Model interface {
	Stream(ctx context.Context, req llm.Request, echo io.Writer) (llm.Result, error)
}

type Options struct {
	InputDir     string
	OutputDir    string
	SystemPrompt string
	Config       config.Config
}

type Result struct {
	Successful      int
	NeedsTruncation int
	Failed          int
}

type Synthesizer struct {
	model    Model
	opts     Options
	log      zerolog.Logger
	echo     io.Writer
	recorder pathway.Recorder
	now      func() time.Time
}

func New(model Model, opts Options, log zerolog.Logger, echo io.Writer, recorder pathway.Recorder) *Synthesizer {
	if echo == nil {
		echo = io.Discard
	}
	if recorder == nil {
		recorder = pathway.NopRecorder
	}
	return &Synthesizer{
		model:    model,
		opts:     opts,
		log:      log.With().Str("stage", pathway.StageComplete).Logger(),
		echo:     echo,
		recorder: recorder,
		now:      time.Now,
	}
}

// Prompt embeds every numbered page answer of art, in page order, ahead of
// the synthesis instruction. The cross-page summary record is left out.
func Prompt(art pathway.ExtractionArtifact) string {
	pages := art.PageRecords()
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Page.Number() < pages[j].Page.Number() })

	var sb strings.Builder
	fmt.Fprintf(&sb, "I need a comprehensive summary of the clinical pathway for %s.\n\n", art.PathwayName)
	sb.WriteString("Here are the full analyses of each page:\n\n")
	for _, p := range pages {
		fmt.Fprintf(&sb, "=== PAGE %d ANALYSIS ===\n%s\n\n", p.Page.Number(), p.Response)
	}
	sb.WriteString(instruction)
	return sb.String()
}

func (s *Synthesizer) TruncationLog() string {
	return pathway.TruncationLogPath(s.opts.OutputDir)
}

// Run synthesizes every extraction artifact in InputDir.
func (s *Synthesizer) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.StartStage(ctx, pathway.StageComplete)
	defer func() { telemetry.End(span, err) }()

	files, err := pathway.ListBySuffix(s.opts.InputDir, pathway.ExtractedSuffix)
	if err != nil {
		return Result{}, &pathway.StageError{Stage: pathway.StageComplete, Err: err}
	}
	if len(files) == 0 {
		s.log.Warn().Str("dir", s.opts.InputDir).Msg("no extracted pathway files found")
		return Result{}, nil
	}
	s.log.Info().Int("count", len(files)).Msg("found pathway files to process")

	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		base := filepath.Base(file)
		doc := strings.TrimSuffix(base, pathway.ExtractedSuffix)
		console.FormatDocument(s.echo, i+1, len(files), base)

		out, err := s.Document(ctx, file)
		switch {
		case err == nil:
			res.Successful++
			s.log.Info().Str("file", base).Str("artifact", out).Msg("complete summary saved")
			s.record(ctx, pathway.Event{Stage: pathway.StageComplete, Document: doc, Outcome: pathway.OutcomeSuccess, Artifact: out})
		case ctx.Err() != nil:
			return res, ctx.Err()
		case llm.IsTokenLimit(err):
			res.NeedsTruncation++
			s.log.Warn().Err(err).Str("file", base).Msg("token limit exceeded, logging for truncation")
			if lerr := pathway.AppendTruncationEntry(s.TruncationLog(), base, s.now()); lerr != nil {
				s.log.Error().Err(lerr).Str("file", base).Msg("write truncation log")
			}
			s.record(ctx, pathway.Event{Stage: pathway.StageComplete, Document: doc, Outcome: pathway.OutcomeNeedsTruncation, Detail: err.Error()})
		default:
			res.Failed++
			s.log.Error().Err(err).Str("file", base).Msg("complete summary failed")
			s.record(ctx, pathway.Event{Stage: pathway.StageComplete, Document: doc, Outcome: pathway.OutcomeFailed, Detail: err.Error()})
		}
	}

	if res.NeedsTruncation > 0 {
		s.log.Warn().Str("log", s.TruncationLog()).Msg("some files exceeded token limits; process these with truncation or in chunks")
	}
	return res, nil
}

// Document synthesizes one extraction artifact and returns the path of the
// written complete-summary artifact.
func (s *Synthesizer) Document(ctx context.Context, file string) (_ string, err error) {
	base := filepath.Base(file)
	ctx, span := telemetry.StartDocument(ctx, pathway.StageComplete, base)
	defer func() { telemetry.End(span, err) }()

	var art pathway.ExtractionArtifact
	if err := pathway.ReadJSON(file, &art); err != nil {
		return "", err
	}
	if strings.TrimSpace(art.PathwayName) == "" {
		return "", errors.New("artifact has no pathway_name")
	}
	if !pathway.PlainName(art.PathwayName) {
		return "", fmt.Errorf("pathway_name %q is not a plain file name", art.PathwayName)
	}

	res, err := s.model.Stream(ctx, llm.TextRequest(s.opts.Config, s.opts.SystemPrompt, Prompt(art)), s.echo)
	if err != nil {
		return "", err
	}

	out := pathway.CompleteSummaryPath(s.opts.OutputDir, art.PathwayName)
	summary := pathway.CompleteSummaryArtifact{
		PathwayName:     art.PathwayName,
		OriginalFile:    base,
		ProcessedAt:     s.now(),
		CompleteSummary: pathway.CompleteSummary{Response: res.Text, Thinking: res.Thinking},
	}
	if err := pathway.WriteJSON(out, summary); err != nil {
		return "", fmt.Errorf("write complete summary: %w", err)
	}
	return out, nil
}

func (s *Synthesizer) record(ctx context.Context, ev pathway.Event) {
	if err := s.recorder.Record(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("file", ev.Document).Msg("ledger write failed")
	}
}
