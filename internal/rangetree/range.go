package rangetree

import "fmt"

// Range is a closed interval [Start, End] of line numbers.
type Range struct {
	Start int
	End   int
}

// Encloses reports whether r contains other. Equal ranges enclose each other.
func (r Range) Encloses(other Range) bool {
	return r.Start <= other.Start && r.End >= other.End
}

// Precedes reports whether r ends strictly before other starts.
func (r Range) Precedes(other Range) bool {
	return r.End < other.Start
}

// Succeeds reports whether r starts strictly after other ends.
func (r Range) Succeeds(other Range) bool {
	return r.Start > other.End
}

// Contains reports whether point lies inside r.
func (r Range) Contains(point int) bool {
	return r.Start <= point && point <= r.End
}

// Valid reports whether Start <= End.
func (r Range) Valid() bool {
	return r.Start <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("Range(%d, %d)", r.Start, r.End)
}
