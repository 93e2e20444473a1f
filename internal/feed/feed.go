// Package feed reads recorded execution events and replays them into a
// tracer.Handler. A feed is a stream of events, one per record, written by
// the agent installed into the runner module. Two encodings are accepted:
// newline-delimited JSON and a msgpack stream.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jward/ftracer/internal/tracer"
)

// Format is a feed encoding.
type Format uint8

const (
	FormatNDJSON Format = iota
	FormatMsgpack
)

func (f Format) String() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "ndjson"
}

// FormatForPath picks the encoding from a file name. "-" (stdin) and the
// .ndjson, .jsonl and .json extensions are NDJSON; anything else is msgpack.
func FormatForPath(path string) Format {
	if path == "-" {
		return FormatNDJSON
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl", ".json":
		return FormatNDJSON
	}
	return FormatMsgpack
}

// Binding is a name's value in the feed.
type Binding struct {
	ID   uint64 `json:"id" msgpack:"id"`
	Type string `json:"type" msgpack:"type"`
	Repr string `json:"repr" msgpack:"repr"`
}

// Event is one feed record.
type Event struct {
	Path    string             `json:"path" msgpack:"path"`
	Line    int                `json:"line" msgpack:"line"`
	Event   string             `json:"event" msgpack:"event"`
	Locals  map[string]Binding `json:"locals,omitempty" msgpack:"locals,omitempty"`
	Globals map[string]Binding `json:"globals,omitempty" msgpack:"globals,omitempty"`
}

// ExecEvent converts e to the tracer's event type.
func (e *Event) ExecEvent() *tracer.ExecEvent {
	return &tracer.ExecEvent{
		Path: e.Path,
		Line: e.Line,
		Kind: tracer.ParseEventKind(e.Event),
		Frame: tracer.MapFrame{
			Locals:  toValues(e.Locals),
			Globals: toValues(e.Globals),
		},
	}
}

func toValues(b map[string]Binding) map[string]tracer.Value {
	out := make(map[string]tracer.Value, len(b))
	for name, v := range b {
		out[name] = tracer.Value{ID: v.ID, Type: v.Type, Repr: v.Repr}
	}
	return out
}

// Decoder reads events from a feed.
type Decoder struct {
	format Format
	lines  *bufio.Scanner
	mp     *msgpack.Decoder
	line   int
}

// NewDecoder reads events encoded as format from r.
func NewDecoder(r io.Reader, format Format) *Decoder {
	d := &Decoder{format: format}
	if format == FormatMsgpack {
		d.mp = msgpack.NewDecoder(r)
		return d
	}
	d.lines = bufio.NewScanner(r)
	d.lines.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return d
}

// Decode reads the next event into ev. It returns io.EOF after the last
// event. Blank NDJSON lines are skipped.
func (d *Decoder) Decode(ev *Event) error {
	*ev = Event{}
	if d.format == FormatMsgpack {
		if err := d.mp.Decode(ev); err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return fmt.Errorf("feed: decode msgpack: %w", err)
		}
		return nil
	}

	for d.lines.Scan() {
		d.line++
		text := strings.TrimSpace(d.lines.Text())
		if text == "" {
			continue
		}
		if err := json.Unmarshal([]byte(text), ev); err != nil {
			return fmt.Errorf("feed: line %d: %w", d.line, err)
		}
		return nil
	}
	if err := d.lines.Err(); err != nil {
		return fmt.Errorf("feed: read: %w", err)
	}
	return io.EOF
}

// Encoder writes events to a feed.
type Encoder struct {
	format Format
	w      io.Writer
	mp     *msgpack.Encoder
}

// NewEncoder writes events encoded as format to w.
func NewEncoder(w io.Writer, format Format) *Encoder {
	e := &Encoder{format: format, w: w}
	if format == FormatMsgpack {
		e.mp = msgpack.NewEncoder(w)
	}
	return e
}

// Encode writes one event.
func (e *Encoder) Encode(ev *Event) error {
	if e.format == FormatMsgpack {
		if err := e.mp.Encode(ev); err != nil {
			return fmt.Errorf("feed: encode msgpack: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("feed: write: %w", err)
	}
	return nil
}

// Replay feeds every event from dec into h until EOF, following the
// handler each call returns. It stops early when a handler detaches by
// returning nil, when h returns an error, or when ctx is done. It returns
// the number of events delivered.
func Replay(ctx context.Context, dec *Decoder, h tracer.Handler) (int, error) {
	n := 0
	var ev Event
	for h != nil {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := dec.Decode(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		next, err := h.Trace(ev.ExecEvent())
		n++
		if err != nil {
			return n, fmt.Errorf("feed: event %d (%s:%d %s): %w", n, ev.Path, ev.Line, ev.Event, err)
		}
		h = next
	}
	return n, nil
}
