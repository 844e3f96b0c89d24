package llm

import (
	"fmt"
	"io"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

type blockState int

const (
	stateIdle blockState = iota
	stateThinking
	stateText
)

// Accumulator collects reasoning and answer deltas into two buffers. The
// current block type selects the buffer; deltas arriving outside a matching
// block are dropped.
type Accumulator struct {
	state    blockState
	thinking strings.Builder
	text     strings.Builder
	echo     io.Writer
}

func NewAccumulator(echo io.Writer) *Accumulator {
	if echo == nil {
		echo = io.Discard
	}
	return &Accumulator{echo: echo}
}

func (a *Accumulator) Reset() {
	a.state = stateIdle
	a.thinking.Reset()
	a.text.Reset()
}

func (a *Accumulator) StartBlock(blockType string) {
	switch blockType {
	case "thinking":
		a.state = stateThinking
		fmt.Fprintln(a.echo, "Thinking:")
	case "text":
		a.state = stateText
		fmt.Fprint(a.echo, "\nClaude: ")
	default:
		a.state = stateIdle
	}
}

func (a *Accumulator) ThinkingDelta(s string) {
	if a.state != stateThinking {
		return
	}
	a.thinking.WriteString(s)
	fmt.Fprint(a.echo, s)
}

func (a *Accumulator) TextDelta(s string) {
	if a.state != stateText {
		return
	}
	a.text.WriteString(s)
	fmt.Fprint(a.echo, s)
}

func (a *Accumulator) StopBlock() {
	switch a.state {
	case stateThinking:
		fmt.Fprint(a.echo, "\n\n")
	case stateText:
		fmt.Fprintln(a.echo)
	}
	a.state = stateIdle
}

func (a *Accumulator) Result() Result {
	return Result{Text: a.text.String(), Thinking: a.thinking.String()}
}

// Consume drains stream into acc and closes it.
func Consume(stream EventStream, acc *Accumulator) error {
	defer stream.Close()
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			acc.StartBlock(ev.ContentBlock.Type)
		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.ThinkingDelta:
				acc.ThinkingDelta(d.Thinking)
			case anthropic.TextDelta:
				acc.TextDelta(d.Text)
			}
		case anthropic.ContentBlockStopEvent:
			acc.StopBlock()
		}
	}
	return stream.Err()
}
