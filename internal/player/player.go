// Package player replays a cassette to a terminal.
package player

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/jward/ftracer/internal/cassette"
	"github.com/jward/ftracer/internal/diag"
	"github.com/jward/ftracer/internal/runtime"
)

// DefaultReprWidth is the display width reprs are truncated to.
const DefaultReprWidth = 60

// Filter decides whether an entry is shown.
type Filter interface {
	Keep(ctx context.Context, in runtime.FilterInput) (bool, error)
}

// Entry is a decoded cassette record.
type Entry struct {
	Seq      int64
	Path     string
	Line     int
	Type     cassette.EventType
	Name     string
	DeclLine int
	Value    cassette.Value
}

// Location returns "path:line".
func (e Entry) Location() string {
	return e.Path + ":" + strconv.Itoa(e.Line)
}

// String renders the entry on one line.
func (e Entry) String() string {
	return fmt.Sprintf("#%d %s %s %s = %s (%s, id %d)",
		e.Seq, e.Location(), e.Type, e.Name, e.Value.Repr, e.Value.Type, e.Value.ID)
}

func (e Entry) filterInput() runtime.FilterInput {
	return runtime.FilterInput{
		Path:  e.Path,
		Line:  e.Line,
		Event: e.Type.String(),
		Name:  e.Name,
		Type:  e.Value.Type,
		Repr:  e.Value.Repr,
		ID:    e.Value.ID,
	}
}

func entryFromRecord(rec *cassette.Record) (Entry, error) {
	e := Entry{Seq: rec.Seq, Path: rec.ModulePath, Line: rec.ModuleLine, Type: rec.Type}
	ev, err := rec.Event()
	if err != nil {
		return e, fmt.Errorf("player: record %d: %w", rec.Seq, err)
	}
	switch ev := ev.(type) {
	case cassette.Created:
		e.Name, e.DeclLine, e.Value = ev.Name, ev.DeclLine, ev.Value
	case cassette.Assigned:
		e.Name, e.Value = ev.Name, ev.Value
	case cassette.AttrSet:
		e.Name, e.Value = ev.Attr, ev.Value
	}
	return e, nil
}

// Player prints the records of a cassette in order.
type Player struct {
	r         *cassette.Reader
	out       io.Writer
	in        *bufio.Reader
	step      bool
	filter    Filter
	log       *diag.Logger
	reprWidth int
}

// Option configures a Player.
type Option func(*Player)

// WithStep prompts after each record and waits for a line from in.
func WithStep(in io.Reader) Option {
	return func(p *Player) {
		p.step = true
		p.in = bufio.NewReader(in)
	}
}

// WithFilter hides entries the filter rejects.
func WithFilter(f Filter) Option {
	return func(p *Player) {
		p.filter = f
	}
}

// WithLogger sets the logger used for filter failures.
func WithLogger(l *diag.Logger) Option {
	return func(p *Player) {
		p.log = l
	}
}

// WithReprWidth sets the repr truncation width. Zero or less disables it.
func WithReprWidth(n int) Option {
	return func(p *Player) {
		p.reprWidth = n
	}
}

// New returns a Player reading r and writing to out.
func New(r *cassette.Reader, out io.Writer, opts ...Option) *Player {
	p := &Player{r: r, out: out, log: diag.Nop(), reprWidth: DefaultReprWidth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Entries decodes the records the filter keeps. A filter error shows the
// entry and is logged.
func (p *Player) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	for rec, err := range p.r.Records() {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := entryFromRecord(rec)
		if err != nil {
			return nil, err
		}
		if p.filter != nil {
			keep, err := p.filter.Keep(ctx, e.filterInput())
			if err != nil {
				p.log.Warnf("filter record %d: %v", e.Seq, err)
				keep = true
			}
			if !keep {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// Play prints every entry and then "finished". Without stepping the entries
// form one table; with stepping each entry is printed alone followed by a
// "step? " prompt. Stepping stops at EOF on the input.
func (p *Player) Play(ctx context.Context) (int, error) {
	entries, err := p.Entries(ctx)
	if err != nil {
		return 0, err
	}
	if !p.step {
		if len(entries) > 0 {
			p.table(entries)
		}
		fmt.Fprintln(p.out, "finished")
		return len(entries), nil
	}

	stepping := true
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		fmt.Fprintln(p.out, p.line(e))
		if !stepping || i == len(entries)-1 {
			continue
		}
		fmt.Fprint(p.out, "step? ")
		if _, err := p.in.ReadString('\n'); err != nil {
			stepping = false
			fmt.Fprintln(p.out)
		}
	}
	fmt.Fprintln(p.out, "finished")
	return len(entries), nil
}

func (p *Player) truncate(s string) string {
	if p.reprWidth <= 0 {
		return s
	}
	return runewidth.Truncate(s, p.reprWidth, "…")
}

func (p *Player) line(e Entry) string {
	return fmt.Sprintf("#%d %s %s %s = %s (%s, id %d)",
		e.Seq, e.Location(), e.Type, e.Name, p.truncate(e.Value.Repr), e.Value.Type, e.Value.ID)
}

func (p *Player) table(entries []Entry) {
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"Seq", "Location", "Event", "Name", "Type", "Repr"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
	})
	for _, e := range entries {
		table.Append([]string{
			strconv.FormatInt(e.Seq, 10),
			e.Location(),
			e.Type.String(),
			e.Name,
			e.Value.Type,
			p.truncate(e.Value.Repr),
		})
	}
	table.Render()
}
