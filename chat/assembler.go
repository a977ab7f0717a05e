package chat

import (
	"github.com/fabfab/codemind/corpus"
	"github.com/fabfab/codemind/llm"
)

// Assembler folds stream increments into a model message. Text is appended
// in arrival order; citations are keyed by URI, a later citation replaces an
// earlier one with the same URI and keeps the position of its first
// appearance. Citations without a URI are dropped.
type Assembler struct {
	msg       Message
	citations map[string]corpus.Citation
	order     []string
}

// NewAssembler starts from base, keeping its content and citations.
func NewAssembler(base Message) *Assembler {
	a := &Assembler{
		msg:       base.Clone(),
		citations: make(map[string]corpus.Citation),
	}
	a.mergeCitations(base.Citations)
	return a
}

// Apply adds one increment and returns the updated message.
func (a *Assembler) Apply(inc llm.Increment) Message {
	a.msg.Content += inc.Text
	a.mergeCitations(inc.Citations)
	return a.Snapshot()
}

// Finish marks the message complete and returns it.
func (a *Assembler) Finish() Message {
	a.msg.Complete = true
	return a.Snapshot()
}

func (a *Assembler) Snapshot() Message {
	out := a.msg.Clone()
	out.Citations = a.flatten()
	return out
}

func (a *Assembler) Content() string {
	return a.msg.Content
}

func (a *Assembler) mergeCitations(citations []corpus.Citation) {
	for _, c := range citations {
		if c.URI == "" {
			continue
		}
		if _, seen := a.citations[c.URI]; !seen {
			a.order = append(a.order, c.URI)
		}
		a.citations[c.URI] = c
	}
}

func (a *Assembler) flatten() []corpus.Citation {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]corpus.Citation, 0, len(a.order))
	for _, uri := range a.order {
		c := a.citations[uri]
		c.Reviews = append([]corpus.ReviewSnippet(nil), c.Reviews...)
		out = append(out, c)
	}
	return out
}
