package store

import "time"

type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LastIndexed time.Time
}

type Scope struct {
	ID        int64
	FileID    int64
	Ordinal   int
	Name      string
	Kind      string
	StartLine int
	EndLine   int
}

type Declaration struct {
	ID      int64
	ScopeID int64
	Ordinal int
	Name    string
	Kind    string
	Line    int
}
