package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("33")).
			Padding(0, 2)
)

// DisableColor switches every style to plain ASCII output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Kind selects the colour of a tally row.
type Kind int

const (
	KindNeutral Kind = iota
	KindSuccess
	KindWarning
	KindFailure
)

// Row is one labelled count in a stage tally.
type Row struct {
	Label string
	Count int
	Kind  Kind
}

// FormatBanner renders the banner printed when a stage starts.
func FormatBanner(w io.Writer, stage string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, bannerStyle.Render(" "+strings.ToUpper(stage)+" "))
	fmt.Fprintln(w)
}

// FormatDocument prints the per-document header line.
func FormatDocument(w io.Writer, index, total int, name string) {
	fmt.Fprintf(w, "\n%s %s\n", dimStyle.Render(fmt.Sprintf("[%d/%d]", index, total)), titleStyle.Render(name))
}

// FormatTally renders the summary box printed when a stage finishes.
func FormatTally(w io.Writer, title string, rows []Row) {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, titleStyle.Render(title))
	for _, r := range rows {
		count := fmt.Sprintf("%d", r.Count)
		switch r.Kind {
		case KindSuccess:
			count = successStyle.Render(count)
		case KindWarning:
			count = warnStyle.Render(count)
		case KindFailure:
			count = errorStyle.Render(count)
		}
		lines = append(lines, fmt.Sprintf("%s %s", dimStyle.Render(r.Label+":"), count))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// FormatNote prints a muted informational line.
func FormatNote(w io.Writer, msg string) {
	fmt.Fprintln(w, dimStyle.Render(msg))
}

// FormatTable renders rows under headers with a rounded border.
func FormatTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
