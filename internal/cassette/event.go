package cassette

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EventType tags a record's payload.
type EventType uint8

const (
	ObjectCreated EventType = iota + 1
	NameAssigned
	AttrAssigned
)

var eventTypeNames = map[EventType]string{
	ObjectCreated: "OBJECT_CREATED",
	NameAssigned:  "NAME_ASSIGNED",
	AttrAssigned:  "ATTR_ASSIGNED",
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("EventType(%d)", uint8(t))
}

// ParseEventType converts a name produced by EventType.String back to an
// EventType.
func ParseEventType(s string) (EventType, error) {
	for t, name := range eventTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("cassette: unknown event type %q", s)
}

// Value is the recorded form of a runtime object: its identity, type name
// and printable representation.
type Value struct {
	ID   uint64 `msgpack:"id"`
	Type string `msgpack:"type"`
	Repr string `msgpack:"repr"`
}

// Event is a record payload.
type Event interface {
	EventType() EventType
}

// Created records a name that resolved to an object for the first time.
// DeclLine is the line the name was declared on; the record itself carries
// the line where the binding was observed.
type Created struct {
	Name     string `msgpack:"name"`
	DeclLine int    `msgpack:"decl_line"`
	Value    Value  `msgpack:"value"`
}

func (Created) EventType() EventType { return ObjectCreated }

// Assigned records a name rebound to another object.
type Assigned struct {
	Name  string `msgpack:"name"`
	Value Value  `msgpack:"value"`
}

func (Assigned) EventType() EventType { return NameAssigned }

// AttrSet records an attribute rebound on an object.
type AttrSet struct {
	Object Value  `msgpack:"object"`
	Attr   string `msgpack:"attr"`
	Value  Value  `msgpack:"value"`
}

func (AttrSet) EventType() EventType { return AttrAssigned }

// encodeEvent serializes ev's payload.
func encodeEvent(ev Event) ([]byte, error) {
	data, err := msgpack.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("cassette: encode %s: %w", ev.EventType(), err)
	}
	return data, nil
}

// decodeEvent deserializes a payload of type t.
func decodeEvent(t EventType, data []byte) (Event, error) {
	var ev Event
	switch t {
	case ObjectCreated:
		var c Created
		if err := msgpack.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("cassette: decode %s: %w", t, err)
		}
		ev = c
	case NameAssigned:
		var a Assigned
		if err := msgpack.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("cassette: decode %s: %w", t, err)
		}
		ev = a
	case AttrAssigned:
		var a AttrSet
		if err := msgpack.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("cassette: decode %s: %w", t, err)
		}
		ev = a
	default:
		return nil, fmt.Errorf("cassette: decode: unknown event type %d", t)
	}
	return ev, nil
}
