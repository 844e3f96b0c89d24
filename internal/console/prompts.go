package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter reads answers from one input stream. With NonInteractive set
// every prompt yields its default without reading.
type Prompter struct {
	in             *bufio.Reader
	out            io.Writer
	NonInteractive bool
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) readLine() (string, error) {
	input, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || input == "") {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

// Prompt asks for a value with no default.
func (p *Prompter) Prompt(message string) (string, error) {
	if p.NonInteractive {
		return "", nil
	}
	fmt.Fprintf(p.out, "%s: ", message)
	return p.readLine()
}

// PromptWithDefault asks for a value, returning defaultValue on empty input.
func (p *Prompter) PromptWithDefault(message, defaultValue string) (string, error) {
	if p.NonInteractive {
		return defaultValue, nil
	}
	fmt.Fprintf(p.out, "%s [%s]: ", message, defaultValue)
	input, err := p.readLine()
	if err != nil {
		return "", err
	}
	if input == "" {
		return defaultValue, nil
	}
	return input, nil
}
