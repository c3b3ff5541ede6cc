package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/devsync-io/devsync/backend/internal/model/project"
	"github.com/devsync-io/devsync/backend/internal/model/user"
)

// SQLiteStore persists users and projects.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database file.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/devsync.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}

	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_by TEXT NOT NULL REFERENCES users(id),
		users TEXT NOT NULL DEFAULT '[]',
		file_tree TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_projects_created_by ON projects(created_by);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateUser inserts a new account. Email uniqueness is enforced by the
// schema.
func (s *SQLiteStore) CreateUser(ctx context.Context, email, passwordHash string) (*user.User, error) {
	u := &user.User{
		ID:        uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Password:  passwordHash,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.Password, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// FindUserByEmail resolves an account by email.
func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	return scanUser(row)
}

// FindUserByID resolves an account by id.
func (s *SQLiteStore) FindUserByID(ctx context.Context, id string) (*user.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, password, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateProject inserts a project with the creator as the only member.
func (s *SQLiteStore) CreateProject(ctx context.Context, name, createdBy string) (*project.Project, error) {
	p := &project.Project{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(name),
		CreatedBy: createdBy,
		Users:     []string{createdBy},
		FileTree:  project.FileTree{},
		CreatedAt: time.Now().UTC(),
	}

	users, err := json.Marshal(p.Users)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_by, users, file_tree, created_at) VALUES (?, ?, ?, ?, '{}', ?)`,
		p.ID, p.Name, p.CreatedBy, string(users), p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}

	return p, nil
}

// FindProjectByID loads a project record.
func (s *SQLiteStore) FindProjectByID(ctx context.Context, id string) (*project.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, users, file_tree, created_at FROM projects WHERE id = ?`, id)
	return scanProject(row.Scan)
}

// FindProjectsByUser lists projects the user is a member of.
func (s *SQLiteStore) FindProjectsByUser(ctx context.Context, userID string) ([]project.Project, error) {
	// Membership lives in a JSON array column; the instr match is
	// filtered exactly in Go below.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_by, users, file_tree, created_at FROM projects WHERE instr(users, ?) > 0`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		if p.HasMember(userID) {
			projects = append(projects, *p)
		}
	}
	return projects, rows.Err()
}

// AddProjectMembers appends user ids to the project's member list,
// skipping ids already present.
func (s *SQLiteStore) AddProjectMembers(ctx context.Context, id string, userIDs []string) (*project.Project, error) {
	p, err := s.FindProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, uid := range userIDs {
		if !p.HasMember(uid) {
			p.Users = append(p.Users, uid)
		}
	}

	users, err := json.Marshal(p.Users)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE projects SET users = ? WHERE id = ?`, string(users), id)
	if err != nil {
		return nil, fmt.Errorf("update members: %w", err)
	}

	return p, nil
}

// UpdateFileTree replaces the project's stored file tree. Concurrent
// writers are last-write-wins; no merge is attempted.
func (s *SQLiteStore) UpdateFileTree(ctx context.Context, id string, tree project.FileTree) error {
	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE projects SET file_tree = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("update file tree: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProject(scan func(dest ...any) error) (*project.Project, error) {
	var (
		p        project.Project
		users    string
		fileTree string
	)
	err := scan(&p.ID, &p.Name, &p.CreatedBy, &users, &fileTree, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(users), &p.Users); err != nil {
		return nil, fmt.Errorf("decode members: %w", err)
	}
	if err := json.Unmarshal([]byte(fileTree), &p.FileTree); err != nil {
		return nil, fmt.Errorf("decode file tree: %w", err)
	}

	return &p, nil
}
