package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

// FindLibrary returns the library with the given coordinate, or nil if absent.
func (s *Store) FindLibrary(c domain.Coordinate) (*domain.Library, error) {
	row := s.q.QueryRow(`SELECT id, group_id, artifact_id, version, kind, meta FROM libraries
		WHERE group_id=? AND artifact_id=? AND version=?`, c.Group, c.Artifact, c.Version)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return lib, err
}

// InsertLibrary inserts a library and sets lib.ID.
func (s *Store) InsertLibrary(lib *domain.Library) error {
	res, err := s.q.Exec(`INSERT INTO libraries (group_id, artifact_id, version, kind, meta) VALUES (?, ?, ?, ?, ?)`,
		lib.Coordinate.Group, lib.Coordinate.Artifact, lib.Coordinate.Version, lib.Kind, marshalProps(lib.Meta))
	if err != nil {
		return fmt.Errorf("insert library %s: %w", lib.Coordinate, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	lib.ID = id
	return nil
}

// ListLibraries returns all libraries ordered by coordinate.
func (s *Store) ListLibraries() ([]*domain.Library, error) {
	rows, err := s.q.Query(`SELECT id, group_id, artifact_id, version, kind, meta FROM libraries
		ORDER BY group_id, artifact_id, version`)
	if err != nil {
		return nil, fmt.Errorf("list libraries: %w", err)
	}
	defer rows.Close()
	var result []*domain.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, lib)
	}
	return result, rows.Err()
}

func scanLibrary(row scanner) (*domain.Library, error) {
	var lib domain.Library
	var meta string
	if err := row.Scan(&lib.ID, &lib.Coordinate.Group, &lib.Coordinate.Artifact, &lib.Coordinate.Version, &lib.Kind, &meta); err != nil {
		return nil, err
	}
	lib.Meta = unmarshalProps(meta)
	return &lib, nil
}

const libraryNodeColumns = `id, library_id, fqn, name, package_name, kind, parent_id, file_path, signature, meta`

// InsertLibraryNode inserts a library node, or refreshes it on (library, fqn)
// conflict, and sets n.ID.
func (s *Store) InsertLibraryNode(n *domain.LibraryNode) error {
	_, err := s.q.Exec(`
		INSERT INTO library_nodes (library_id, fqn, name, package_name, kind, parent_id, file_path, signature, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(library_id, fqn) DO UPDATE SET
			name=excluded.name, package_name=excluded.package_name, kind=excluded.kind,
			parent_id=excluded.parent_id, file_path=excluded.file_path,
			signature=excluded.signature, meta=excluded.meta`,
		n.LibraryID, n.FQN, n.Name, n.PackageName, string(n.Kind), nullInt64(n.ParentID), n.FilePath,
		n.Signature, marshalProps(n.Meta))
	if err != nil {
		return fmt.Errorf("insert library node %s: %w", n.FQN, err)
	}
	// LastInsertId is unreliable after ON CONFLICT DO UPDATE; read the id back.
	if err := s.q.QueryRow("SELECT id FROM library_nodes WHERE library_id=? AND fqn=?", n.LibraryID, n.FQN).Scan(&n.ID); err != nil {
		return fmt.Errorf("library node id %s: %w", n.FQN, err)
	}
	return nil
}

// FindLibraryNode returns a library node by library and FQN, or nil if absent.
func (s *Store) FindLibraryNode(libraryID int64, fqn string) (*domain.LibraryNode, error) {
	row := s.q.QueryRow(`SELECT `+libraryNodeColumns+` FROM library_nodes WHERE library_id=? AND fqn=?`, libraryID, fqn)
	n, err := scanLibraryNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// FindLibraryNodeByID returns a library node by ID, or nil if absent.
func (s *Store) FindLibraryNodeByID(id int64) (*domain.LibraryNode, error) {
	row := s.q.QueryRow(`SELECT `+libraryNodeColumns+` FROM library_nodes WHERE id=?`, id)
	n, err := scanLibraryNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

// AllLibraryNodes returns every library node across all libraries.
func (s *Store) AllLibraryNodes() ([]*domain.LibraryNode, error) {
	rows, err := s.q.Query(`SELECT ` + libraryNodeColumns + ` FROM library_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("all library nodes: %w", err)
	}
	defer rows.Close()
	var result []*domain.LibraryNode
	for rows.Next() {
		n, err := scanLibraryNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// CountLibraryNodes returns the number of nodes stored for a library.
func (s *Store) CountLibraryNodes(libraryID int64) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM library_nodes WHERE library_id=?", libraryID).Scan(&count)
	return count, err
}

func scanLibraryNode(row scanner) (*domain.LibraryNode, error) {
	var n domain.LibraryNode
	var kind, meta string
	var parentID sql.NullInt64
	if err := row.Scan(&n.ID, &n.LibraryID, &n.FQN, &n.Name, &n.PackageName, &kind, &parentID, &n.FilePath, &n.Signature, &meta); err != nil {
		return nil, err
	}
	n.Kind = domain.NodeKind(kind)
	if parentID.Valid {
		id := parentID.Int64
		n.ParentID = &id
	}
	n.Meta = unmarshalProps(meta)
	return &n, nil
}

// libraryEdgesBatchSize keeps 4 cols × 200 = 800 vars under the 999 limit.
const libraryEdgesBatchSize = 200

// UpsertNodeLibraryEdgeBatch writes application→library edges keyed by
// (node, library node, kind).
func (s *Store) UpsertNodeLibraryEdgeBatch(edges []*domain.NodeLibraryEdge) error {
	for i := 0; i < len(edges); i += libraryEdgesBatchSize {
		end := i + libraryEdgesBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[i:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO node_library_edges (node_id, library_node_id, kind, evidence) VALUES `)
		args := make([]any, 0, len(batch)*4)
		for j, e := range batch {
			if j > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString("(?,?,?,?)")
			args = append(args, e.NodeID, e.LibraryNodeID, string(e.Kind), marshalProps(e.Evidence))
		}
		sb.WriteString(` ON CONFLICT(node_id, library_node_id, kind) DO UPDATE SET evidence=excluded.evidence`)
		if _, err := s.q.Exec(sb.String(), args...); err != nil {
			return fmt.Errorf("upsert node library edge batch: %w", err)
		}
	}
	return nil
}

// FindNodeLibraryEdges returns the library edges of an application node.
func (s *Store) FindNodeLibraryEdges(nodeID int64) ([]*domain.NodeLibraryEdge, error) {
	rows, err := s.q.Query(`SELECT id, node_id, library_node_id, kind, evidence FROM node_library_edges WHERE node_id=?`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("find node library edges: %w", err)
	}
	defer rows.Close()
	var result []*domain.NodeLibraryEdge
	for rows.Next() {
		var e domain.NodeLibraryEdge
		var kind, evidence string
		if err := rows.Scan(&e.ID, &e.NodeID, &e.LibraryNodeID, &kind, &evidence); err != nil {
			return nil, err
		}
		e.Kind = domain.EdgeKind(kind)
		e.Evidence = unmarshalProps(evidence)
		result = append(result, &e)
	}
	return result, rows.Err()
}

// CountNodeLibraryEdges returns the number of library edges owned by an application.
func (s *Store) CountNodeLibraryEdges(appID int64) (int, error) {
	var count int
	err := s.q.QueryRow(`SELECT COUNT(*) FROM node_library_edges e JOIN nodes n ON e.node_id = n.id
		WHERE n.app_id=?`, appID).Scan(&count)
	return count, err
}
