package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/DeusData/docgraph/internal/domain"
)

const edgeColumns = `id, app_id, src_id, dst_id, kind, evidence, explanation, confidence, strength`

// edgesBatchSize is the max rows per batch INSERT for edges (8 cols × 120 = 960 vars < 999).
const edgesBatchSize = 120

// UpsertEdgeBatch inserts or refreshes edges keyed by (src, dst, kind).
func (s *Store) UpsertEdgeBatch(edges []*domain.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	for i := 0; i < len(edges); i += edgesBatchSize {
		end := i + edgesBatchSize
		if end > len(edges) {
			end = len(edges)
		}
		if err := s.upsertEdgeChunk(edges[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertEdgeChunk(batch []*domain.Edge) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO edges (app_id, src_id, dst_id, kind, evidence, explanation, confidence, strength) VALUES `)

	args := make([]any, 0, len(batch)*8)
	for i, e := range batch {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString("(?,?,?,?,?,?,?,?)")
		strength := e.Strength
		if strength == "" {
			strength = domain.StrengthNormal
		}
		args = append(args, e.AppID, e.SrcID, e.DstID, string(e.Kind), marshalProps(e.Evidence),
			e.Explain, e.Confidence, string(strength))
	}
	sb.WriteString(` ON CONFLICT(src_id, dst_id, kind) DO UPDATE SET
		evidence=excluded.evidence, explanation=excluded.explanation,
		confidence=excluded.confidence, strength=excluded.strength`)

	if _, err := s.q.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("upsert edge batch: %w", err)
	}
	return nil
}

// FindEdgesBySource finds all edges from a node.
func (s *Store) FindEdgesBySource(srcID int64) ([]*domain.Edge, error) {
	rows, err := s.q.Query(`SELECT `+edgeColumns+` FROM edges WHERE src_id=?`, srcID)
	if err != nil {
		return nil, fmt.Errorf("find edges by source: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesByTarget finds all edges to a node.
func (s *Store) FindEdgesByTarget(dstID int64) ([]*domain.Edge, error) {
	rows, err := s.q.Query(`SELECT `+edgeColumns+` FROM edges WHERE dst_id=?`, dstID)
	if err != nil {
		return nil, fmt.Errorf("find edges by target: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesBySourceAndKind finds edges from a node with a specific kind.
func (s *Store) FindEdgesBySourceAndKind(srcID int64, kind domain.EdgeKind) ([]*domain.Edge, error) {
	rows, err := s.q.Query(`SELECT `+edgeColumns+` FROM edges WHERE src_id=? AND kind=?`, srcID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("find edges by source+kind: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// FindEdgesByTargetAndKind finds edges to a node with a specific kind.
func (s *Store) FindEdgesByTargetAndKind(dstID int64, kind domain.EdgeKind) ([]*domain.Edge, error) {
	rows, err := s.q.Query(`SELECT `+edgeColumns+` FROM edges WHERE dst_id=? AND kind=?`, dstID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("find edges by target+kind: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// AllEdges returns every edge of an application.
func (s *Store) AllEdges(appID int64) ([]*domain.Edge, error) {
	rows, err := s.q.Query(`SELECT `+edgeColumns+` FROM edges WHERE app_id=? ORDER BY id`, appID)
	if err != nil {
		return nil, fmt.Errorf("all edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// CountEdges returns the number of edges in an application.
func (s *Store) CountEdges(appID int64) (int, error) {
	var count int
	err := s.q.QueryRow("SELECT COUNT(*) FROM edges WHERE app_id=?", appID).Scan(&count)
	return count, err
}

// CountEdgesByKind returns edge counts per kind for an application.
func (s *Store) CountEdgesByKind(appID int64) (map[domain.EdgeKind]int, error) {
	rows, err := s.q.Query("SELECT kind, COUNT(*) FROM edges WHERE app_id=? GROUP BY kind", appID)
	if err != nil {
		return nil, fmt.Errorf("count edges by kind: %w", err)
	}
	defer rows.Close()
	result := make(map[domain.EdgeKind]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		result[domain.EdgeKind(kind)] = count
	}
	return result, rows.Err()
}

func scanEdges(rows *sql.Rows) ([]*domain.Edge, error) {
	var result []*domain.Edge
	for rows.Next() {
		var e domain.Edge
		var kind, evidence, strength string
		if err := rows.Scan(&e.ID, &e.AppID, &e.SrcID, &e.DstID, &kind, &evidence, &e.Explain, &e.Confidence, &strength); err != nil {
			return nil, err
		}
		e.Kind = domain.EdgeKind(kind)
		e.Strength = domain.Strength(strength)
		e.Evidence = unmarshalProps(evidence)
		result = append(result, &e)
	}
	return result, rows.Err()
}
