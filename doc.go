// Package ftracer records which values a Python program binds to names, line
// by line, for the modules you choose to watch.
//
// # Pipeline
//
// ftracer works in three steps:
//
//  1. Index: each watched module is parsed with tree-sitter into a scope
//     index, a tree of module, class and function line ranges where every
//     scope knows the lines its names are assigned on. Indices are cached in
//     SQLite and rebuilt when a file's content hash changes.
//
//  2. Trace: execution events of a run (line and return events with the live
//     frame) are correlated with the index. For each executed line the names
//     declared on the closest earlier declaration line of the enclosing scope
//     are resolved in the frame, and every newly seen value is appended to a
//     cassette.
//
//  3. Play: a cassette is replayed in order, as a table, step by step or in
//     a terminal UI.
//
// # Usage
//
//	e, err := ftracer.New(".ftracer/index.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	t, err := e.NewTracer([]string{"app/model.py"}, "cassettes/A.tape")
//	if err != nil { ... }
//	if err := t.Arm(ctx); err != nil { ... }
//	defer t.Close()
//	// deliver events with t.Trace(ev), or replay a feed with feed.Replay.
//
// Events normally come from the agent installed by the rewrite command of
// cmd/ftracer, which streams them as newline-delimited JSON.
package ftracer
