package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// writeJSON writes result as indented JSON.
func writeJSON(w io.Writer, result CLIResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	return table
}

// formatScopesText prints one row per scope, indented by nesting depth.
func formatScopesText(w io.Writer, scopes []CLIScope) {
	table := newTable(w, []string{"File", "Scope", "Kind", "Lines", "Decl lines", "Declarations"})
	for _, s := range scopes {
		name := s.Name
		for range s.Depth {
			name = "  " + name
		}
		table.Append([]string{
			s.File,
			name,
			s.Kind,
			fmt.Sprintf("%d-%d", s.StartLine, s.EndLine),
			strconv.Itoa(s.DeclLines),
			strconv.Itoa(len(s.Declarations)),
		})
	}
	table.Render()
}

// formatTraceSummaryText prints the counters of a trace session.
func formatTraceSummaryText(w io.Writer, s CLITraceSummary) {
	table := newTable(w, []string{"Cassette", "Events", "Records", "Duplicates", "Filtered", "Unresolved"})
	table.Append([]string{
		s.Cassette,
		strconv.Itoa(s.Events),
		strconv.Itoa(s.Records),
		strconv.Itoa(s.Duplicates),
		strconv.Itoa(s.Filtered),
		strconv.Itoa(s.ResolutionErrors),
	})
	table.Render()
}
