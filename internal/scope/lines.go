package scope

import (
	"cmp"
	"slices"
)

type lineName struct {
	line int
	name string
}

func compareLineName(a, b lineName) int {
	if c := cmp.Compare(a.line, b.line); c != 0 {
		return c
	}
	return cmp.Compare(a.name, b.name)
}

// lineIndex is a sorted multiset of (line, name) pairs.
type lineIndex struct {
	entries []lineName
}

func (x *lineIndex) add(line int, name string) {
	e := lineName{line: line, name: name}
	i, found := slices.BinarySearchFunc(x.entries, e, compareLineName)
	if found {
		// Same name rebound on the same line; one entry is enough.
		return
	}
	x.entries = slices.Insert(x.entries, i, e)
}

func (x *lineIndex) before(line int) (int, []string) {
	// First entry at or after (line, "") bounds the search from the right.
	i, _ := slices.BinarySearchFunc(x.entries, lineName{line: line}, compareLineName)
	i--
	if i < 0 {
		return -1, nil
	}
	matched := x.entries[i].line
	j := i
	for j > 0 && x.entries[j-1].line == matched {
		j--
	}
	names := make([]string, 0, i-j+1)
	for _, e := range x.entries[j : i+1] {
		names = append(names, e.name)
	}
	return matched, names
}

// lineCount returns the number of distinct declaration lines.
func (x *lineIndex) lineCount() int {
	n := 0
	for i, e := range x.entries {
		if i == 0 || x.entries[i-1].line != e.line {
			n++
		}
	}
	return n
}
