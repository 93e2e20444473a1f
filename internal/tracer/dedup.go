package tracer

import (
	"fmt"
	"strings"
)

// Dedup selects how repeated observations of a value are suppressed.
//
// DedupIdentity treats two values with the same ID as the same object. Hosts
// that intern small immutable values (small integers, short strings) give
// unrelated bindings the same identity, so a second, unrelated binding to
// such a value is dropped. DedupEquality keys on type and representation
// instead, which merges equal but distinct objects. DedupNone records every
// resolved name.
type Dedup uint8

const (
	DedupIdentity Dedup = iota
	DedupEquality
	DedupNone
)

func (d Dedup) String() string {
	switch d {
	case DedupIdentity:
		return "identity"
	case DedupEquality:
		return "equality"
	case DedupNone:
		return "none"
	default:
		return fmt.Sprintf("Dedup(%d)", uint8(d))
	}
}

// ParseDedup accepts identity, equality and none.
func ParseDedup(s string) (Dedup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "identity", "":
		return DedupIdentity, nil
	case "equality":
		return DedupEquality, nil
	case "none":
		return DedupNone, nil
	}
	return 0, fmt.Errorf("tracer: unknown dedup policy %q (want identity|equality|none)", s)
}

type valueKey struct {
	typ  string
	repr string
}

// seenSet remembers values already recorded in a session.
type seenSet struct {
	policy Dedup
	ids    map[uint64]struct{}
	values map[valueKey]struct{}
}

func newSeenSet(policy Dedup) *seenSet {
	return &seenSet{
		policy: policy,
		ids:    make(map[uint64]struct{}),
		values: make(map[valueKey]struct{}),
	}
}

// add records v and reports whether it was new.
func (s *seenSet) add(v Value) bool {
	switch s.policy {
	case DedupIdentity:
		if _, ok := s.ids[v.ID]; ok {
			return false
		}
		s.ids[v.ID] = struct{}{}
	case DedupEquality:
		k := valueKey{typ: v.Type, repr: v.Repr}
		if _, ok := s.values[k]; ok {
			return false
		}
		s.values[k] = struct{}{}
	}
	return true
}
