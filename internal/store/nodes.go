package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/DeusData/docgraph/internal/domain"
	"github.com/DeusData/docgraph/internal/lang"
)

const nodeColumns = `id, app_id, fqn, name, package_name, kind, lang, parent_id, file_path,
	line_start, line_end, source_code, doc_comment, signature, code_hash, meta`

// InsertNode inserts a new node and sets n.ID.
func (s *Store) InsertNode(n *domain.Node) error {
	res, err := s.q.Exec(`
		INSERT INTO nodes (app_id, fqn, name, package_name, kind, lang, parent_id, file_path,
			line_start, line_end, source_code, doc_comment, signature, code_hash, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.AppID, n.FQN, n.Name, n.PackageName, string(n.Kind), string(n.Lang), nullInt64(n.ParentID),
		n.FilePath, nullInt(n.LineStart), nullInt(n.LineEnd), n.SourceCode, n.DocComment, n.Signature,
		nullString(n.CodeHash), marshalProps(n.Meta))
	if err != nil {
		return fmt.Errorf("insert node %s: %w", n.FQN, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert node id: %w", err)
	}
	n.ID = id
	return nil
}

// UpdateNode rewrites every mutable column of an existing node.
func (s *Store) UpdateNode(n *domain.Node) error {
	if n.ID == 0 {
		return fmt.Errorf("update node %s: missing id", n.FQN)
	}
	_, err := s.q.Exec(`
		UPDATE nodes SET name=?, package_name=?, kind=?, lang=?, parent_id=?, file_path=?,
			line_start=?, line_end=?, source_code=?, doc_comment=?, signature=?, code_hash=?, meta=?
		WHERE id=?`,
		n.Name, n.PackageName, string(n.Kind), string(n.Lang), nullInt64(n.ParentID), n.FilePath,
		nullInt(n.LineStart), nullInt(n.LineEnd), n.SourceCode, n.DocComment, n.Signature,
		nullString(n.CodeHash), marshalProps(n.Meta), n.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", n.FQN, err)
	}
	return nil
}

// FindNode finds a node by application and FQN. It returns nil, nil if absent.
func (s *Store) FindNode(appID int64, fqn string) (*domain.Node, error) {
	row := s.q.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE app_id=? AND fqn=?`, appID, fqn)
	return scanNode(row)
}

// FindNodeByID finds a node by its primary key.
func (s *Store) FindNodeByID(id int64) (*domain.Node, error) {
	row := s.q.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id=?`, id)
	return scanNode(row)
}

// FindNodesByName finds nodes by application and simple name.
func (s *Store) FindNodesByName(appID int64, name string) ([]*domain.Node, error) {
	rows, err := s.q.Query(`SELECT `+nodeColumns+` FROM nodes WHERE app_id=? AND name=?`, appID, name)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByKind finds all nodes of a kind in an application.
func (s *Store) FindNodesByKind(appID int64, kind domain.NodeKind) ([]*domain.Node, error) {
	rows, err := s.q.Query(`SELECT `+nodeColumns+` FROM nodes WHERE app_id=? AND kind=?`, appID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("find by kind: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// AllNodes returns every node of an application ordered by id.
func (s *Store) AllNodes(appID int64) ([]*domain.Node, error) {
	rows, err := s.q.Query(`SELECT `+nodeColumns+` FROM nodes WHERE app_id=? ORDER BY id`, appID)
	if err != nil {
		return nil, fmt.Errorf("all nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

// FindNodesByIDs returns a map of nodeID → node for the given IDs.
func (s *Store) FindNodesByIDs(ids []int64) (map[int64]*domain.Node, error) {
	result := make(map[int64]*domain.Node, len(ids))
	const batchSize = 998 // leave room under the 999 limit

	for i := 0; i < len(ids); i += batchSize {
		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]
		args := make([]any, len(chunk))
		for j, id := range chunk {
			args[j] = id
		}
		query := fmt.Sprintf(`SELECT `+nodeColumns+` FROM nodes WHERE id IN (%s)`, placeholders(len(chunk)))

		if err := func() error {
			rows, err := s.q.Query(query, args...)
			if err != nil {
				return fmt.Errorf("find nodes by ids: %w", err)
			}
			defer rows.Close()
			nodes, err := scanNodes(rows)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				result[n.ID] = n
			}
			return nil
		}(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// CountNodes returns the number of nodes in an application.
func (s *Store) CountNodes(appID int64) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM nodes WHERE app_id=?", appID).Scan(&count)
	return count, err
}

// DeleteNodesByFile deletes all nodes for a file in an application.
func (s *Store) DeleteNodesByFile(appID int64, filePath string) error {
	_, err := s.q.Exec("DELETE FROM nodes WHERE app_id=? AND file_path=?", appID, filePath)
	return err
}

func scanNode(row scanner) (*domain.Node, error) {
	n, err := scanNodeRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func scanNodes(rows *sql.Rows) ([]*domain.Node, error) {
	var result []*domain.Node
	for rows.Next() {
		n, err := scanNodeRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func scanNodeRow(row scanner) (*domain.Node, error) {
	var n domain.Node
	var kind, language, meta string
	var parentID, lineStart, lineEnd sql.NullInt64
	var codeHash sql.NullString
	err := row.Scan(&n.ID, &n.AppID, &n.FQN, &n.Name, &n.PackageName, &kind, &language, &parentID,
		&n.FilePath, &lineStart, &lineEnd, &n.SourceCode, &n.DocComment, &n.Signature, &codeHash, &meta)
	if err != nil {
		return nil, err
	}
	n.Kind = domain.NodeKind(kind)
	n.Lang = lang.Language(language)
	if parentID.Valid {
		id := parentID.Int64
		n.ParentID = &id
	}
	if lineStart.Valid {
		v := int(lineStart.Int64)
		n.LineStart = &v
	}
	if lineEnd.Valid {
		v := int(lineEnd.Int64)
		n.LineEnd = &v
	}
	if codeHash.Valid {
		h := codeHash.String
		n.CodeHash = &h
	}
	n.Meta = unmarshalProps(meta)
	return &n, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
