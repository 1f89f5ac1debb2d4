// Package stream reconstructs a single growing text from heterogeneous
// streaming model chunks, keeping internal reasoning visually separate
// from the answer.
//
// Providers disagree about how reasoning arrives: some stream typed
// content parts where each part is either answer text or thinking, and
// some stream plain text with reasoning on a side channel. The
// Assembler accepts both shapes and produces one ordered output where
// every reasoning span is wrapped in marker lines, always balanced, and
// no byte of model output is dropped.
package stream

import (
	"strings"

	"github.com/quillhq/quill-agent/internal/llm"
)

// Markers delimiting a reasoning span in the assembled output.
const (
	ThinkingOpen  = "<thinking>\n"
	ThinkingClose = "\n</thinking>\n\n"
)

// Publish receives the full assembled text after every processed chunk.
type Publish func(text string)

// Assembler is the streaming reconstruction state machine: one boolean
// (reasoning block open) plus one accumulating buffer. Not safe for
// concurrent use; one Assembler serves one model response.
type Assembler struct {
	open    bool
	buf     strings.Builder
	publish Publish
}

// New creates an Assembler. publish may be nil if the caller only wants
// the final text from Close.
func New(publish Publish) *Assembler {
	return &Assembler{publish: publish}
}

// Process consumes one chunk and publishes the updated buffer.
//
// For typed-part chunks each part is handled in order: answer parts
// close any open reasoning block and append; thinking parts open a
// block (inserting the opening marker exactly once per closed-to-open
// transition) and append. For scalar chunks, plain content closes any
// open block and appends, and side-channel reasoning opens a block and
// appends. A chunk that carries no reasoning content closes an open
// block: the transition from thinking to answering is rendered on the
// first chunk without reasoning.
func (a *Assembler) Process(chunk llm.Chunk) {
	if chunk.Parts != nil {
		sawThinking := false
		for _, p := range chunk.Parts {
			if p.Type == "thinking" {
				a.openBlock()
				a.buf.WriteString(p.Thinking)
				sawThinking = true
			} else {
				a.closeBlock()
				a.buf.WriteString(p.Text)
			}
		}
		// A typed chunk without any thinking part ends the reasoning
		// span, including an empty parts list.
		if !sawThinking {
			a.closeBlock()
		}
		a.publishNow()
		return
	}

	handled := false
	if chunk.Content != "" {
		a.closeBlock()
		a.buf.WriteString(chunk.Content)
	}
	if chunk.Thinking != "" {
		a.openBlock()
		a.buf.WriteString(chunk.Thinking)
		handled = true
	}
	if a.open && !handled {
		a.closeBlock()
	}
	a.publishNow()
}

// Close terminates the stream: any open reasoning block is closed, the
// buffer is published once more, and the final text is returned.
func (a *Assembler) Close() string {
	a.closeBlock()
	a.publishNow()
	return a.buf.String()
}

// Text returns the buffer assembled so far without finalizing.
func (a *Assembler) Text() string {
	return a.buf.String()
}

func (a *Assembler) openBlock() {
	if a.open {
		return
	}
	a.buf.WriteString(ThinkingOpen)
	a.open = true
}

func (a *Assembler) closeBlock() {
	if !a.open {
		return
	}
	a.buf.WriteString(ThinkingClose)
	a.open = false
}

func (a *Assembler) publishNow() {
	if a.publish != nil {
		a.publish(a.buf.String())
	}
}
