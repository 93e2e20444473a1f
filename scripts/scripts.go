// Package scripts embeds the built-in Risor record filters. A filter is an
// expression script evaluated once per record with the globals path, line,
// event, name, type, repr and id; a truthy result keeps the record. Filters
// may import shared helpers from common.risor.
package scripts

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

// FS holds the built-in filters and their helpers.
//
//go:embed *.risor
var FS embed.FS

// Prefix marks a built-in filter name on the command line.
const Prefix = "builtin:"

// helpers are importable modules, not filters.
var helpers = map[string]bool{"common": true}

// Names lists the built-in filters.
func Names() []string {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".risor")
		if !helpers[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup maps "builtin:<name>" to the script path inside FS.
func Lookup(ref string) (string, bool) {
	name, ok := strings.CutPrefix(ref, Prefix)
	if !ok || helpers[name] {
		return "", false
	}
	path := name + ".risor"
	if _, err := fs.Stat(FS, path); err != nil {
		return "", false
	}
	return path, true
}
