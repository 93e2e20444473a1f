package main

// CLIResult is the top-level JSON envelope of --format json output.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIScope is a JSON-friendly scope.
type CLIScope struct {
	File         string    `json:"file"`
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Depth        int       `json:"depth"`
	StartLine    int       `json:"start_line"`
	EndLine      int       `json:"end_line"`
	DeclLines    int       `json:"decl_lines"`
	Declarations []CLIDecl `json:"declarations,omitempty"`
}

// CLIDecl is a JSON-friendly declaration. Line is 0 for names without a line
// of their own.
type CLIDecl struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// CLIRecord is a JSON-friendly cassette record.
type CLIRecord struct {
	Seq      int64  `json:"seq"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Event    string `json:"event"`
	Name     string `json:"name"`
	DeclLine int    `json:"decl_line,omitempty"`
	ID       uint64 `json:"id"`
	Type     string `json:"type"`
	Repr     string `json:"repr"`
}

// CLITraceSummary is the result of the trace command.
type CLITraceSummary struct {
	Cassette         string   `json:"cassette"`
	Events           int      `json:"events"`
	Records          int      `json:"records"`
	Duplicates       int      `json:"duplicates"`
	Filtered         int      `json:"filtered"`
	ResolutionErrors int      `json:"resolution_errors"`
	Diagnostics      []string `json:"diagnostics,omitempty"`
}
