package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DeusData/docgraph/internal/domain"
)

// UpsertApplication creates an application by key, or refreshes its name and
// repository path, and returns the stored row.
func (s *Store) UpsertApplication(key, name, repoPath string) (*domain.Application, error) {
	_, err := s.q.Exec(`
		INSERT INTO applications (app_key, name, repo_path, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(app_key) DO UPDATE SET name=excluded.name, repo_path=excluded.repo_path`,
		key, name, repoPath, Now())
	if err != nil {
		return nil, fmt.Errorf("upsert application: %w", err)
	}
	app, err := s.GetApplication(key)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("upsert application: %s not found after insert", key)
	}
	return app, nil
}

// GetApplication returns an application by key, or nil if absent.
func (s *Store) GetApplication(key string) (*domain.Application, error) {
	row := s.q.QueryRow("SELECT id, app_key, name, repo_path, created_at FROM applications WHERE app_key=?", key)
	return scanApplication(row)
}

// GetApplicationByID returns an application by id, or nil if absent.
func (s *Store) GetApplicationByID(id int64) (*domain.Application, error) {
	row := s.q.QueryRow("SELECT id, app_key, name, repo_path, created_at FROM applications WHERE id=?", id)
	return scanApplication(row)
}

// ListApplications returns all applications ordered by key.
func (s *Store) ListApplications() ([]*domain.Application, error) {
	rows, err := s.q.Query("SELECT id, app_key, name, repo_path, created_at FROM applications ORDER BY app_key")
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()
	var result []*domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

// DeleteApplication deletes an application and all of its nodes and edges (CASCADE).
func (s *Store) DeleteApplication(key string) error {
	_, err := s.q.Exec("DELETE FROM applications WHERE app_key=?", key)
	return err
}

func scanApplication(row scanner) (*domain.Application, error) {
	var app domain.Application
	var created string
	if err := row.Scan(&app.ID, &app.Key, &app.Name, &app.RepoPath, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	app.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &app, nil
}
