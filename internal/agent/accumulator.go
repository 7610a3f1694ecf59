package agent

import (
	"strings"

	"github.com/nugget/helloclaw/internal/llm"
)

// AccumulatedCall is one tool call assembled from stream fragments.
type AccumulatedCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Complete reports whether the call has both an id and a name. Only
// complete calls may be executed.
func (c AccumulatedCall) Complete() bool {
	return c.ID != "" && c.Name != ""
}

// Accumulated is the reduction of one streamed model response.
type Accumulated struct {
	Content      string
	ToolCalls    []AccumulatedCall // in order of first appearance
	FinishReason string
	Usage        llm.Usage
}

// CompleteCalls returns the calls that carry both an id and a name, in
// order.
func (a Accumulated) CompleteCalls() []AccumulatedCall {
	var out []AccumulatedCall
	for _, c := range a.ToolCalls {
		if c.Complete() {
			out = append(out, c)
		}
	}
	return out
}

type callBuilder struct {
	index   int
	id      string
	name    string
	started bool
	args    strings.Builder
	// pending holds argument text received before the call was named;
	// it is reported as one delta right after the start event.
	pending string
}

// Accumulator turns raw provider deltas into normalized [StreamEvent]s
// while assembling the full response. Use one Accumulator per model
// response; it is not safe for concurrent use.
type Accumulator struct {
	content strings.Builder
	calls   []*callBuilder
	byIndex map[int]*callBuilder
	finish  string
	usage   llm.Usage
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{byIndex: make(map[int]*callBuilder)}
}

// Add consumes one raw delta and reports the resulting events to emit,
// in order. emit may be nil.
func (a *Accumulator) Add(d llm.Delta, emit func(StreamEvent)) {
	if emit == nil {
		emit = func(StreamEvent) {}
	}

	if d.Content != "" {
		a.content.WriteString(d.Content)
		emit(StreamEvent{Kind: StreamContentDelta, Text: d.Content})
	}

	for _, frag := range d.ToolCalls {
		cb := a.call(frag.Index)
		if cb.id == "" {
			cb.id = frag.ID
		}
		if cb.name == "" {
			cb.name = frag.Name
		}

		if !cb.started && (frag.ID != "" || frag.Name != "") {
			cb.started = true
			emit(StreamEvent{Kind: StreamToolCallStart, Index: cb.index, ID: cb.id, Name: cb.name})
			if cb.pending != "" {
				emit(StreamEvent{Kind: StreamToolCallDelta, Index: cb.index, Text: cb.pending})
				cb.pending = ""
			}
		}

		if frag.Arguments == "" {
			continue
		}
		cb.args.WriteString(frag.Arguments)
		if cb.started {
			emit(StreamEvent{Kind: StreamToolCallDelta, Index: cb.index, Text: frag.Arguments})
		} else {
			cb.pending += frag.Arguments
		}
	}

	if d.Usage != nil {
		a.usage = *d.Usage
	}

	if d.FinishReason != "" {
		a.finish = d.FinishReason
		emit(StreamEvent{Kind: StreamFinish, FinishReason: d.FinishReason})
	}
}

func (a *Accumulator) call(index int) *callBuilder {
	if cb, ok := a.byIndex[index]; ok {
		return cb
	}
	cb := &callBuilder{index: index}
	a.byIndex[index] = cb
	a.calls = append(a.calls, cb)
	return cb
}

// Result returns the accumulated response. After a failed stream the
// result is partial and must not be treated as a finished response.
func (a *Accumulator) Result() Accumulated {
	res := Accumulated{
		Content:      a.content.String(),
		FinishReason: a.finish,
		Usage:        a.usage,
	}
	for _, cb := range a.calls {
		res.ToolCalls = append(res.ToolCalls, AccumulatedCall{
			Index:     cb.index,
			ID:        cb.id,
			Name:      cb.name,
			Arguments: cb.args.String(),
		})
	}
	return res
}
