// Package pathway holds the artifacts exchanged between pipeline stages and
// the filesystem conventions that name and discover them.
package pathway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// SummaryPage is the sentinel page value of the cross-page summary record.
const SummaryPage = "summary"

// PageRef is either a 1-based page number or the summary sentinel.
type PageRef struct {
	number  int
	summary bool
}

func Page(n int) PageRef { return PageRef{number: n} }

func Summary() PageRef { return PageRef{summary: true} }

func (p PageRef) IsSummary() bool { return p.summary }

// Number returns the page number; it is zero for the summary sentinel.
func (p PageRef) Number() int {
	if p.summary {
		return 0
	}
	return p.number
}

func (p PageRef) String() string {
	if p.summary {
		return SummaryPage
	}
	return strconv.Itoa(p.number)
}

func (p PageRef) MarshalJSON() ([]byte, error) {
	if p.summary {
		return json.Marshal(SummaryPage)
	}
	return json.Marshal(p.number)
}

func (p *PageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != SummaryPage {
			return fmt.Errorf("invalid page value %q", s)
		}
		*p = Summary()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid page value %s: %w", data, err)
	}
	*p = Page(n)
	return nil
}

// PageRecord is one model response; the summary record shares the shape
// but carries no image file.
type PageRecord struct {
	Page      PageRef `json:"page"`
	ImageFile string  `json:"image_file,omitempty"`
	Response  string  `json:"response"`
	Thinking  string  `json:"thinking"`
}

type ExtractionArtifact struct {
	PathwayName string       `json:"pathway_name"`
	ProcessedAt time.Time    `json:"processed_at"`
	Responses   []PageRecord `json:"responses"`
}

// PageRecords returns the numbered page records in stored order.
func (a ExtractionArtifact) PageRecords() []PageRecord {
	out := make([]PageRecord, 0, len(a.Responses))
	for _, r := range a.Responses {
		if !r.Page.IsSummary() {
			out = append(out, r)
		}
	}
	return out
}

// SummaryRecord returns the cross-page summary record when present.
func (a ExtractionArtifact) SummaryRecord() (PageRecord, bool) {
	for _, r := range a.Responses {
		if r.Page.IsSummary() {
			return r, true
		}
	}
	return PageRecord{}, false
}

type CompleteSummary struct {
	Response string `json:"response"`
	Thinking string `json:"thinking"`
}

type CompleteSummaryArtifact struct {
	PathwayName     string          `json:"pathway_name"`
	OriginalFile    string          `json:"original_file"`
	ProcessedAt     time.Time       `json:"processed_at"`
	CompleteSummary CompleteSummary `json:"complete_summary"`
}

type MatchingSummaryArtifact struct {
	PathwayName     string    `json:"pathway_name"`
	OriginalFile    string    `json:"original_file"`
	ProcessedAt     time.Time `json:"processed_at"`
	MatchingSummary string    `json:"matching_summary"`
	WordCount       int       `json:"word_count"`
}

// NewMatchingSummary fills in the word count from the summary text.
func NewMatchingSummary(cleanName, originalFile, summary string, at time.Time) MatchingSummaryArtifact {
	return MatchingSummaryArtifact{
		PathwayName:     cleanName,
		OriginalFile:    originalFile,
		ProcessedAt:     at,
		MatchingSummary: summary,
		WordCount:       WordCount(summary),
	}
}

// PlainText is the sibling .txt rendering consumed by matching systems.
func (a MatchingSummaryArtifact) PlainText() string {
	return "PATHWAY: " + a.PathwayName + "\n\n" + a.MatchingSummary
}
