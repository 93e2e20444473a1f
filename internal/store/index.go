package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/ftracer/internal/rangetree"
	"github.com/jward/ftracer/internal/scope"
)

// FileByPath returns the file row for path, or nil if there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, path, language, hash, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT id, path, language, hash, last_indexed FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteFile removes a file and everything indexed for it.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// SaveIndex replaces the stored index of idx.Path in one transaction.
func (s *Store) SaveIndex(idx *scope.Index, language string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save index: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM files WHERE path = ?", idx.Path); err != nil {
		return fmt.Errorf("save index: delete %s: %w", idx.Path, err)
	}
	res, err := tx.Exec(
		"INSERT INTO files (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)",
		idx.Path, language, idx.Hash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save index: insert file %s: %w", idx.Path, err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("save index: last insert id: %w", err)
	}

	for ord, sc := range idx.Scopes() {
		res, err := tx.Exec(
			"INSERT INTO scopes (file_id, ordinal, name, kind, start_line, end_line) VALUES (?, ?, ?, ?, ?, ?)",
			fileID, ord, sc.Name, sc.Kind.String(), sc.Range.Start, sc.Range.End,
		)
		if err != nil {
			return fmt.Errorf("save index: scope %s: %w", sc.Name, err)
		}
		scopeID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("save index: last insert id: %w", err)
		}
		for i, d := range sc.Declarations() {
			_, err := tx.Exec(
				"INSERT INTO declarations (scope_id, ordinal, name, kind, line) VALUES (?, ?, ?, ?, ?)",
				scopeID, i, d.Name, d.Kind.String(), d.Line,
			)
			if err != nil {
				return fmt.Errorf("save index: declaration %s: %w", d.Name, err)
			}
		}
		for _, name := range sc.References() {
			if _, err := tx.Exec("INSERT INTO references_ (scope_id, name) VALUES (?, ?)", scopeID, name); err != nil {
				return fmt.Errorf("save index: reference %s: %w", name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save index: commit: %w", err)
	}
	return nil
}

// LoadIndex rebuilds the stored index of path. It returns nil when nothing
// is stored or the stored hash differs from hash.
func (s *Store) LoadIndex(path, hash string) (*scope.Index, error) {
	f, err := s.FileByPath(path)
	if err != nil {
		return nil, err
	}
	if f == nil || f.Hash != hash {
		return nil, nil
	}

	scopes, ids, err := s.scopesByFile(f.ID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*scope.Scope, len(scopes))
	for i, sc := range scopes {
		byID[ids[i]] = sc
	}
	if err := s.loadDeclarations(f.ID, byID); err != nil {
		return nil, err
	}
	if err := s.loadReferences(f.ID, byID); err != nil {
		return nil, err
	}

	idx := scope.NewIndex(f.Path, f.Hash)
	for _, sc := range scopes {
		if err := idx.AddScope(sc); err != nil {
			return nil, fmt.Errorf("load index %s: %w", path, err)
		}
	}
	return idx, nil
}

func (s *Store) scopesByFile(fileID int64) ([]*scope.Scope, []int64, error) {
	rows, err := s.db.Query(
		"SELECT id, name, kind, start_line, end_line FROM scopes WHERE file_id = ? ORDER BY ordinal", fileID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("scopes by file: %w", err)
	}
	defer rows.Close()

	var (
		scopes []*scope.Scope
		ids    []int64
	)
	for rows.Next() {
		var (
			row  Scope
			kind scope.Kind
		)
		if err := rows.Scan(&row.ID, &row.Name, &row.Kind, &row.StartLine, &row.EndLine); err != nil {
			return nil, nil, fmt.Errorf("scan scope: %w", err)
		}
		if kind, err = scope.ParseKind(row.Kind); err != nil {
			return nil, nil, err
		}
		scopes = append(scopes, scope.New(row.Name, kind, rangetree.Range{Start: row.StartLine, End: row.EndLine}))
		ids = append(ids, row.ID)
	}
	return scopes, ids, rows.Err()
}

func (s *Store) loadDeclarations(fileID int64, byID map[int64]*scope.Scope) error {
	rows, err := s.db.Query(
		`SELECT d.scope_id, d.name, d.kind, d.line
		 FROM declarations d JOIN scopes sc ON sc.id = d.scope_id
		 WHERE sc.file_id = ?
		 ORDER BY sc.ordinal, d.ordinal`, fileID,
	)
	if err != nil {
		return fmt.Errorf("declarations by file: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row Declaration
		if err := rows.Scan(&row.ScopeID, &row.Name, &row.Kind, &row.Line); err != nil {
			return fmt.Errorf("scan declaration: %w", err)
		}
		kind, err := scope.ParseDeclKind(row.Kind)
		if err != nil {
			return err
		}
		byID[row.ScopeID].Declare(row.Name, kind, row.Line)
	}
	return rows.Err()
}

func (s *Store) loadReferences(fileID int64, byID map[int64]*scope.Scope) error {
	rows, err := s.db.Query(
		`SELECT r.scope_id, r.name
		 FROM references_ r JOIN scopes sc ON sc.id = r.scope_id
		 WHERE sc.file_id = ?`, fileID,
	)
	if err != nil {
		return fmt.Errorf("references by file: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			scopeID int64
			name    string
		)
		if err := rows.Scan(&scopeID, &name); err != nil {
			return fmt.Errorf("scan reference: %w", err)
		}
		byID[scopeID].Reference(name)
	}
	return rows.Err()
}
