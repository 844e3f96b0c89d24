package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/config"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/llm"
	"github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline/internal/pathway"
)

type fakeModel struct {
	prompts []string
	errs    map[string]error
}

func (m *fakeModel) Stream(_ context.Context, req llm.Request, _ io.Writer) (llm.Result, error) {
	prompt := req.Blocks[0].OfText.Text
	m.prompts = append(m.prompts, prompt)
	for name, err := range m.errs {
		if strings.Contains(prompt, "pathway for "+name+".") {
			return llm.Result{}, err
		}
	}
	return llm.Result{Text: "full summary", Thinking: "reasoning"}, nil
}

type memRecorder struct {
	events []pathway.Event
}

func (m *memRecorder) Record(_ context.Context, ev pathway.Event) error {
	m.events = append(m.events, ev)
	return nil
}

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func extraction(name string, pages ...string) pathway.ExtractionArtifact {
	art := pathway.ExtractionArtifact{PathwayName: name, ProcessedAt: fixedNow}
	for i, p := range pages {
		art.Responses = append(art.Responses, pathway.PageRecord{Page: pathway.Page(i + 2), ImageFile: fmt.Sprintf("pg%d.png", i+2), Response: p})
	}
	art.Responses = append(art.Responses, pathway.PageRecord{Page: pathway.Summary(), Response: "SHORT SUMMARY TEXT"})
	return art
}

func setup(t *testing.T, m Model, arts map[string]pathway.ExtractionArtifact) (*Synthesizer, *memRecorder, string, string) {
	t.Helper()
	root := t.TempDir()
	in := filepath.Join(root, pathway.ExtractedDir)
	out := filepath.Join(root, pathway.CompleteDir)
	for file, art := range arts {
		require.NoError(t, pathway.WriteJSON(filepath.Join(in, file), art))
	}
	rec := &memRecorder{}
	cfg := config.Defaults()
	cfg.APIKey = "k"
	s := New(m, Options{InputDir: in, OutputDir: out, SystemPrompt: DefaultSystemPrompt, Config: cfg}, zerolog.New(io.Discard), nil, rec)
	s.now = func() time.Time { return fixedNow }
	return s, rec, in, out
}

func TestPromptExcludesSummaryRecord(t *testing.T) {
	p := Prompt(extraction("Sepsis", "first page", "second page"))
	assert.True(t, strings.HasPrefix(p, "I need a comprehensive summary of the clinical pathway for Sepsis.\n\nHere are the full analyses of each page:\n\n"))
	assert.Contains(t, p, "=== PAGE 2 ANALYSIS ===\nfirst page\n\n")
	assert.Contains(t, p, "=== PAGE 3 ANALYSIS ===\nsecond page\n\n")
	assert.NotContains(t, p, "SHORT SUMMARY TEXT")
	assert.True(t, strings.HasSuffix(p, instruction))
}

func TestPromptOrdersPages(t *testing.T) {
	art := pathway.ExtractionArtifact{PathwayName: "x", Responses: []pathway.PageRecord{
		{Page: pathway.Page(4), Response: "four"},
		{Page: pathway.Page(2), Response: "two"},
	}}
	p := Prompt(art)
	assert.Less(t, strings.Index(p, "two"), strings.Index(p, "four"))
}

func TestRunWritesArtifactKeyedByDeclaredName(t *testing.T) {
	m := &fakeModel{}
	s, rec, _, out := setup(t, m, map[string]pathway.ExtractionArtifact{
		"renamed-file_extracted.json": extraction("Sepsis-v2", "a", "b"),
	})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Successful: 1}, res)

	var got pathway.CompleteSummaryArtifact
	require.NoError(t, pathway.ReadJSON(filepath.Join(out, "Sepsis-v2_complete_summary.json"), &got))
	assert.Equal(t, "Sepsis-v2", got.PathwayName)
	assert.Equal(t, "renamed-file_extracted.json", got.OriginalFile)
	assert.Equal(t, "full summary", got.CompleteSummary.Response)
	assert.Equal(t, "reasoning", got.CompleteSummary.Thinking)
	assert.True(t, fixedNow.Equal(got.ProcessedAt))

	require.Len(t, rec.events, 1)
	assert.Equal(t, "renamed-file", rec.events[0].Document)
	assert.Equal(t, pathway.OutcomeSuccess, rec.events[0].Outcome)
}

func TestTokenLimitIsLoggedForTruncation(t *testing.T) {
	m := &fakeModel{errs: map[string]error{
		"Huge": fmt.Errorf("%w: prompt is too long", llm.ErrTokenLimit),
	}}
	s, rec, _, out := setup(t, m, map[string]pathway.ExtractionArtifact{
		"Huge_extracted.json":  extraction("Huge", "x"),
		"Small_extracted.json": extraction("Small", "y"),
	})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Successful: 1, NeedsTruncation: 1}, res)

	logData, err := os.ReadFile(filepath.Join(out, pathway.TruncationLogFile))
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T10:00:00Z: Huge_extracted.json\n", string(logData))

	_, err = os.Stat(filepath.Join(out, "Huge_complete_summary.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(out, "Small_complete_summary.json"))
	assert.NoError(t, err)

	require.Len(t, rec.events, 2)
	assert.Equal(t, pathway.OutcomeNeedsTruncation, rec.events[0].Outcome)
}

func TestOtherErrorsAreNotLoggedForTruncation(t *testing.T) {
	m := &fakeModel{errs: map[string]error{"Flaky": errors.New("529 overloaded")}}
	s, _, _, out := setup(t, m, map[string]pathway.ExtractionArtifact{
		"Flaky_extracted.json": extraction("Flaky", "x"),
	})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)
	_, err = os.Stat(filepath.Join(out, pathway.TruncationLogFile))
	assert.True(t, os.IsNotExist(err))
}

func TestMalformedArtifactCountsAsFailed(t *testing.T) {
	m := &fakeModel{}
	s, _, in, _ := setup(t, m, nil)
	require.NoError(t, os.MkdirAll(in, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad_extracted.json"), []byte("{"), 0o644))

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Empty(t, m.prompts)
}

func TestNoInputs(t *testing.T) {
	s, _, _, _ := setup(t, &fakeModel{}, nil)
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestPathNameInArtifactIsRejected(t *testing.T) {
	m := &fakeModel{}
	s, rec, _, out := setup(t, m, map[string]pathway.ExtractionArtifact{
		"Gout_extracted.json": extraction("../outside", "x"),
	})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Empty(t, m.prompts)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(out), "outside_complete_summary.json"))
	require.Len(t, rec.events, 1)
	assert.Contains(t, rec.events[0].Detail, "not a plain file name")
}
