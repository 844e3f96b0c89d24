package pathway

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	PDFDir             = "pdfs"
	ImageDir           = "ripimg"
	ExtractedDir       = "extracted_pathways"
	CompleteDir        = "complete_summaries"
	MatchingDir        = "matching_summaries"
	ReportDir          = "reports"
	TruncationLogFile  = "needs_truncation.log"
	CorpusFile         = "all_pathway_summaries.txt"
	ExtractedSuffix    = "_extracted.json"
	CompleteSuffix     = "_complete_summary.json"
	MatchingJSONSuffix = "_matching.json"
	MatchingTextSuffix = "_matching.txt"
)

// CorpusDelimiter separates matching summaries in the consolidated corpus.
var CorpusDelimiter = "\n\n" + strings.Repeat("=", 50) + "\n\n"

var versionSuffixPattern = regexp.MustCompile(`-v\d+(\.\d+)?(-\d+)?(-508h)?`)

// Layout resolves the stage directories under one working directory.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	return Layout{Root: root}
}

func (l Layout) PDFs() string      { return filepath.Join(l.Root, PDFDir) }
func (l Layout) Images() string    { return filepath.Join(l.Root, ImageDir) }
func (l Layout) Extracted() string { return filepath.Join(l.Root, ExtractedDir) }
func (l Layout) Complete() string  { return filepath.Join(l.Root, CompleteDir) }
func (l Layout) Matching() string  { return filepath.Join(l.Root, MatchingDir) }
func (l Layout) Reports() string   { return filepath.Join(l.Root, ReportDir) }

// The artifact paths below take the stage directory, so the stages and
// the CLI resolve the same file whether or not they start from a Layout.

func ExtractionPath(dir, pathwayName string) string {
	return filepath.Join(dir, pathwayName+ExtractedSuffix)
}

func CompleteSummaryPath(dir, pathwayName string) string {
	return filepath.Join(dir, pathwayName+CompleteSuffix)
}

func TruncationLogPath(dir string) string {
	return filepath.Join(dir, TruncationLogFile)
}

func MatchingJSONPath(dir, cleanName string) string {
	return filepath.Join(dir, cleanName+MatchingJSONSuffix)
}

func MatchingTextPath(dir, cleanName string) string {
	return filepath.Join(dir, cleanName+MatchingTextSuffix)
}

func CorpusPath(dir string) string {
	return filepath.Join(dir, CorpusFile)
}

// PlainName reports whether name can be used as a file name inside a stage
// directory without escaping it.
func PlainName(name string) bool {
	return name != "" && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}

// CleanName derives the matching name from a complete-summary file name by
// dropping the artifact suffix and any version marker. Names without a
// version marker pass through unchanged. Stripping repeats until nothing
// matches, since removing one marker can expose another.
func CleanName(filename string) string {
	name := strings.ReplaceAll(filepath.Base(filename), CompleteSuffix, "")
	for {
		next := versionSuffixPattern.ReplaceAllString(name, "")
		if next == name {
			return name
		}
		name = next
	}
}

// WordCount counts whitespace-delimited tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
