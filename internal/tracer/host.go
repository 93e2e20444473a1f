package tracer

import (
	"fmt"
	"strings"
	"sync"
)

// Value is a runtime object as seen by the host: an identity, a type name
// and a printable representation.
type Value struct {
	ID   uint64
	Type string
	Repr string
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)#%d", v.Type, v.Repr, v.ID)
}

// Frame exposes the live bindings of the executing frame. Implementations
// are only read from.
type Frame interface {
	Local(name string) (Value, bool)
	Global(name string) (Value, bool)
}

// MapFrame is a Frame backed by maps.
type MapFrame struct {
	Locals  map[string]Value
	Globals map[string]Value
}

func (f MapFrame) Local(name string) (Value, bool) {
	v, ok := f.Locals[name]
	return v, ok
}

func (f MapFrame) Global(name string) (Value, bool) {
	v, ok := f.Globals[name]
	return v, ok
}

// EventKind is the kind of execution event delivered by the host.
type EventKind uint8

const (
	KindOther EventKind = iota
	KindCall
	KindLine
	KindReturn
	KindException
)

func (k EventKind) String() string {
	switch k {
	case KindCall:
		return "call"
	case KindLine:
		return "line"
	case KindReturn:
		return "return"
	case KindException:
		return "exception"
	default:
		return "other"
	}
}

// ParseEventKind maps host event names to kinds. Unknown names are
// KindOther.
func ParseEventKind(s string) EventKind {
	switch strings.ToLower(s) {
	case "call":
		return KindCall
	case "line":
		return KindLine
	case "return":
		return KindReturn
	case "exception":
		return KindException
	default:
		return KindOther
	}
}

// ExecEvent is one execution callback from the host.
type ExecEvent struct {
	Path  string
	Line  int
	Kind  EventKind
	Frame Frame
}

// Handler receives execution events. The returned Handler receives the
// events of the frame that follows; returning nil detaches.
type Handler interface {
	Trace(ev *ExecEvent) (Handler, error)
}

// Synchronized serializes calls into h. Use it when the host delivers
// events from more than one thread.
func Synchronized(h Handler) Handler {
	return &syncHandler{mu: &sync.Mutex{}, h: h}
}

type syncHandler struct {
	mu *sync.Mutex
	h  Handler
}

func (s *syncHandler) Trace(ev *ExecEvent) (Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.h.Trace(ev)
	switch next {
	case nil:
		return nil, err
	case s.h:
		return s, err
	default:
		return &syncHandler{mu: s.mu, h: next}, err
	}
}
