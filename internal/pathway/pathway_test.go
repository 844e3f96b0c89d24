package pathway

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanNameStripsVersionSuffixes(t *testing.T) {
	cases := []struct{ in, want string }{
		{"breast-cancer-v2_complete_summary.json", "breast-cancer"},
		{"lung-v1.2_complete_summary.json", "lung"},
		{"prostate-v3.1-2_complete_summary.json", "prostate"},
		{"colorectal-v4.0-1-508h_complete_summary.json", "colorectal"},
		{"melanoma_complete_summary.json", "melanoma"},
		{"/abs/path/heme-v10_complete_summary.json", "heme"},
		{"no-version-here", "no-version-here"},
		{"multiple-v1-parts-v2_complete_summary.json", "multiple-parts"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanName(tc.in), tc.in)
	}
}

func TestCleanNameIsIdempotent(t *testing.T) {
	for _, in := range []string{"breast-cancer-v2", "lung-v1.2-3-508h", "melanoma", "a-v-v1-508h3"} {
		once := CleanName(in)
		assert.Equal(t, once, CleanName(once), in)
	}
}

func TestPlainName(t *testing.T) {
	for _, ok := range []string{"Sepsis", "Breast-Cancer-v2.1", "a.b"} {
		assert.True(t, PlainName(ok), ok)
	}
	for _, bad := range []string{"", "../x", "a/b", `a\b`, "/abs"} {
		assert.False(t, PlainName(bad), bad)
	}
}

func TestWordCountMatchesFields(t *testing.T) {
	assert.Equal(t, 0, WordCount(""))
	assert.Equal(t, 0, WordCount("  \n\t "))
	assert.Equal(t, 4, WordCount("HER2-positive  breast\ncancer\tstage"))
}

func TestPageRefJSON(t *testing.T) {
	blob, err := json.Marshal([]PageRecord{
		{Page: Page(2), ImageFile: "pg2.png", Response: "r"},
		{Page: Summary(), Response: "s"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"page":2`)
	assert.Contains(t, string(blob), `"page":"summary"`)
	assert.NotContains(t, string(blob), `"image_file":""`)

	var got []PageRecord
	require.NoError(t, json.Unmarshal(blob, &got))
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Page.Number())
	assert.False(t, got[0].Page.IsSummary())
	assert.True(t, got[1].Page.IsSummary())
	assert.Equal(t, 0, got[1].Page.Number())

	var bad PageRecord
	assert.Error(t, json.Unmarshal([]byte(`{"page":"cover"}`), &bad))
}

func TestExtractionArtifactFilters(t *testing.T) {
	a := ExtractionArtifact{Responses: []PageRecord{
		{Page: Page(2), Response: "two"},
		{Page: Page(3), Response: "three"},
		{Page: Summary(), Response: "all"},
	}}
	pages := a.PageRecords()
	require.Len(t, pages, 2)
	assert.Equal(t, "three", pages[1].Response)
	s, ok := a.SummaryRecord()
	require.True(t, ok)
	assert.Equal(t, "all", s.Response)
}

func TestListPageImagesSortsNumerically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pg10.png", "pg2.png", "pg1.png", "notes.txt", "pgx.png", "pg3.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	imgs, err := ListPageImages(dir)
	require.NoError(t, err)
	var names []string
	for _, img := range imgs {
		names = append(names, img.Name)
	}
	assert.Equal(t, []string{"pg1.png", "pg2.png", "pg10.png"}, names)
	assert.Equal(t, 10, imgs[2].Page)
}

func TestListBySuffixMissingDir(t *testing.T) {
	files, err := ListBySuffix(filepath.Join(t.TempDir(), "absent"), ExtractedSuffix)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteJSONOverwritesInPlace(t *testing.T) {
	l := NewLayout(t.TempDir())
	path := MatchingJSONPath(l.Matching(), "lung")
	require.NoError(t, WriteJSON(path, NewMatchingSummary("lung", "lung-v1_complete_summary.json", "one two", time.Now())))
	require.NoError(t, WriteJSON(path, NewMatchingSummary("lung", "lung-v1_complete_summary.json", "one two three", time.Now())))

	entries, err := os.ReadDir(l.Matching())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var got MatchingSummaryArtifact
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, 3, got.WordCount)
}

func TestAppendTruncationEntry(t *testing.T) {
	l := NewLayout(t.TempDir())
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, AppendTruncationEntry(TruncationLogPath(l.Complete()), "a_extracted.json", at))
	require.NoError(t, AppendTruncationEntry(TruncationLogPath(l.Complete()), "b_extracted.json", at))
	b, err := os.ReadFile(TruncationLogPath(l.Complete()))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-03-01T10:00:00Z: a_extracted.json", lines[0])
}

func TestBuildCorpusJoinsMatchingText(t *testing.T) {
	l := NewLayout(t.TempDir())
	a := NewMatchingSummary("alpha", "", "first summary", time.Now())
	b := NewMatchingSummary("beta", "", "second summary", time.Now())
	require.NoError(t, WriteFile(MatchingTextPath(l.Matching(), "beta"), []byte(b.PlainText())))
	require.NoError(t, WriteFile(MatchingTextPath(l.Matching(), "alpha"), []byte(a.PlainText())))
	require.NoError(t, WriteFile(CorpusPath(l.Matching()), []byte("stale")))

	corpus, n, err := BuildCorpus(l.Matching())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, a.PlainText()+CorpusDelimiter+b.PlainText(), corpus)
}
