package store

import (
	"context"
	"errors"
	"time"

	"github.com/devsync-io/devsync/backend/internal/model/project"
	"github.com/devsync-io/devsync/backend/internal/model/user"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// IdentityStore resolves user accounts. Implemented by SQLiteStore.
type IdentityStore interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*user.User, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
	FindUserByID(ctx context.Context, id string) (*user.User, error)
}

// ProjectStore persists projects and their file trees. Implemented by
// SQLiteStore.
type ProjectStore interface {
	CreateProject(ctx context.Context, name, createdBy string) (*project.Project, error)
	FindProjectByID(ctx context.Context, id string) (*project.Project, error)
	FindProjectsByUser(ctx context.Context, userID string) ([]project.Project, error)
	AddProjectMembers(ctx context.Context, id string, userIDs []string) (*project.Project, error)
	UpdateFileTree(ctx context.Context, id string, tree project.FileTree) error
}

// Log is the bounded per-room list the message service writes through.
// Implemented by RedisStore; swapped for an in-memory fake in tests.
type Log interface {
	// Append atomically pushes an entry, trims the list to the most
	// recent max entries and refreshes the key TTL.
	Append(ctx context.Context, key, entry string, max int64, ttl time.Duration) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Len(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
}

// Blacklist tracks revoked session tokens until their natural expiry.
// Implemented by RedisStore.
type Blacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}
