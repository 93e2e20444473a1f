// Package rewrite produces an instrumented copy of a runner module. The copy
// imports the feed agent before any other statement, so every watched module
// executed afterwards streams its events to the feed.
package rewrite

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/ftracer/internal/indexer"
)

// DefaultSuffix is appended to the runner's file name.
const DefaultSuffix = "instrum"

// AgentFile is the name of the agent module written next to the copy.
const AgentFile = "ftracer_agent.py"

const agentModule = "ftracer_agent"

//go:embed ftracer_agent.py
var agentSource []byte

// AgentSource returns the agent module.
func AgentSource() []byte {
	return bytes.Clone(agentSource)
}

// WithSuffix returns name with connector and suffix placed before the
// extension: WithSuffix("a/run.py", "instrum", "-") is "a/run-instrum.py".
func WithSuffix(name, suffix, connector string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + connector + suffix + ext
}

// Rewrite writes the instrumented copy of runnerPath and the agent module
// next to it, and returns the copy's path. Events of targetPaths are written
// to feedPath ("-" for stdout). An empty suffix means DefaultSuffix.
func Rewrite(ctx context.Context, runnerPath string, targetPaths []string, feedPath, suffix string) (string, error) {
	if len(targetPaths) == 0 {
		return "", errors.New("rewrite: no target modules")
	}
	if suffix == "" {
		suffix = DefaultSuffix
	}
	runner, err := filepath.Abs(runnerPath)
	if err != nil {
		return "", fmt.Errorf("rewrite: %s: %w", runnerPath, err)
	}
	if _, ok := indexer.LanguageForFile(runner); !ok {
		return "", fmt.Errorf("rewrite: %s: %w", runnerPath, indexer.ErrUnsupportedLanguage)
	}
	src, err := os.ReadFile(runner)
	if err != nil {
		return "", fmt.Errorf("rewrite: read runner: %w", err)
	}

	targets := make([]string, len(targetPaths))
	for i, p := range targetPaths {
		if targets[i], err = filepath.Abs(p); err != nil {
			return "", fmt.Errorf("rewrite: %s: %w", p, err)
		}
	}
	if feedPath != "-" {
		if feedPath, err = filepath.Abs(feedPath); err != nil {
			return "", fmt.Errorf("rewrite: feed: %w", err)
		}
	}

	out, err := Instrument(ctx, src, Prelude(feedPath, targets))
	if err != nil {
		return "", fmt.Errorf("rewrite: %s: %w", runner, err)
	}

	dst := WithSuffix(runner, suffix, "-")
	if err := os.WriteFile(dst, out, 0o644); err != nil {
		return "", fmt.Errorf("rewrite: write %s: %w", dst, err)
	}
	agent := filepath.Join(filepath.Dir(runner), AgentFile)
	if err := os.WriteFile(agent, agentSource, 0o644); err != nil {
		return "", fmt.Errorf("rewrite: write agent: %w", err)
	}
	return dst, nil
}

// Prelude returns the statements that install the agent.
func Prelude(feedPath string, targets []string) string {
	quoted := make([]string, len(targets))
	for i, t := range targets {
		quoted[i] = pyString(t)
	}
	return fmt.Sprintf("import %s as _ftracer_agent\n_ftracer_agent.install(%s, [%s])\n",
		agentModule, pyString(feedPath), strings.Join(quoted, ", "))
}

// pyString quotes s as a Python string literal. JSON string escapes are a
// subset of Python's.
func pyString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Instrument inserts prelude into src after the module docstring and any
// __future__ imports, or after a leading shebang or encoding line.
func Instrument(ctx context.Context, src []byte, prelude string) ([]byte, error) {
	if len(bytes.TrimSpace(src)) == 0 {
		return append([]byte(prelude), src...), nil
	}
	tree, err := indexer.Parse(ctx, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()
	if root.HasError() {
		return nil, indexer.ErrSyntax
	}

	row := insertRow(root, src)
	lines := bytes.SplitAfter(src, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}
	if row > len(lines) {
		row = len(lines)
	}

	var buf bytes.Buffer
	buf.Grow(len(src) + len(prelude) + 1)
	for _, l := range lines[:row] {
		buf.Write(l)
	}
	if row > 0 && !bytes.HasSuffix(lines[row-1], []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(prelude)
	for _, l := range lines[row:] {
		buf.Write(l)
	}
	return buf.Bytes(), nil
}

// insertRow returns the zero-based line the prelude goes before.
func insertRow(root *sitter.Node, src []byte) int {
	row := 0
	docstring := true
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch {
		case n.Type() == "comment":
			if row == int(n.StartPoint().Row) && n.StartPoint().Row < 2 && isMagicComment(n.Content(src)) {
				row = int(n.EndPoint().Row) + 1
			}
			continue
		case docstring && isDocstring(n):
			row = int(n.EndPoint().Row) + 1
		case n.Type() == "future_import_statement":
			row = int(n.EndPoint().Row) + 1
		default:
			return row
		}
		docstring = false
	}
	return row
}

func isDocstring(n *sitter.Node) bool {
	if n.Type() != "expression_statement" || n.NamedChildCount() != 1 {
		return false
	}
	return n.NamedChild(0).Type() == "string"
}

func isMagicComment(text string) bool {
	return strings.HasPrefix(text, "#!") || strings.Contains(text, "coding")
}
